package api

import (
	"encoding/json"
	"net/http"

	"github.com/askdata/askdata/internal/auth"
)

type askRequest struct {
	Query string `json:"query"`
}

type askResponse struct {
	SQL        string           `json:"sql"`
	Result     []map[string]any `json:"result"`
	ResultRows int              `json:"result_rows"`
	Columns    []string         `json:"columns"`
	Query      string           `json:"query"`
	TablesUsed []string         `json:"tables_used"`
	Truncated  bool             `json:"truncated,omitempty"`
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}

	var request askRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", map[string]any{"details": err.Error()})
		return
	}

	result, err := deps.Pipeline.Ask(r.Context(), request.Query)
	if err != nil {
		writePipelineError(deps, w, r, "ask", err)
		return
	}

	response := askResponse{
		SQL:        result.SQL,
		Result:     result.Rows,
		ResultRows: result.RowCount,
		Columns:    result.Columns,
		Query:      result.Question,
		TablesUsed: result.TablesUsed,
		Truncated:  result.Truncated,
	}
	if response.Result == nil {
		response.Result = []map[string]any{}
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if response.TablesUsed == nil {
		response.TablesUsed = []string{}
	}
	writeJSON(w, http.StatusOK, response)
}
