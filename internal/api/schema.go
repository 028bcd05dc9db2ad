package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/askdata/askdata/internal/auth"
	"github.com/askdata/askdata/internal/history"
	"github.com/askdata/askdata/internal/registry"
)

type schemaResponse struct {
	Version         uint64              `json:"version"`
	TableName       *string             `json:"table_name"`
	AllTables       []string            `json:"all_tables"`
	Schemas         []registry.Snapshot `json:"schemas"`
	PreviewFailures []tableFailure      `json:"preview_failures,omitempty"`
	Removed         []string            `json:"removed_tables,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}
	response, err := newSchemaResponse(deps.Pipeline.Schema())
	if err != nil {
		writePipelineError(deps, w, r, "schema", err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

func handleSchemaRefresh(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleUploader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}
	result, err := deps.Pipeline.Refresh(r.Context())
	if err != nil {
		writePipelineError(deps, w, r, "schema refresh", err)
		return
	}
	response, err := newSchemaResponse(result.State)
	if err != nil {
		writePipelineError(deps, w, r, "schema refresh", err)
		return
	}
	response.PreviewFailures = tableFailures(result.PreviewFailures)
	response.Removed = result.Removed
	writeJSON(w, http.StatusOK, response)
}

func newSchemaResponse(state registry.State) (schemaResponse, error) {
	snapshots, err := state.Ordered()
	if err != nil {
		return schemaResponse{}, err
	}
	response := schemaResponse{
		Version:   state.Version,
		AllTables: state.Tables,
		Schemas:   snapshots,
	}
	if response.AllTables == nil {
		response.AllTables = []string{}
	}
	if state.Primary != "" {
		primary := state.Primary
		response.TableName = &primary
	}
	return response, nil
}

type historyResponse struct {
	Ingestions []history.Ingestion `json:"ingestions,omitempty"`
	Questions  []history.Question  `json:"questions,omitempty"`
}

func handleHistory(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleAsker); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}

	limit := 20
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(r.Context(), w, http.StatusBadRequest, "INVALID_LIMIT", "limit must be a positive integer", nil)
			return
		}
		limit = parsed
	}
	kind := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("kind")))
	if kind != "" && kind != "ingestions" && kind != "questions" {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_KIND", "kind must be ingestions or questions", nil)
		return
	}

	var response historyResponse
	if kind == "" || kind == "ingestions" {
		items, err := deps.Pipeline.RecentIngestions(r.Context(), limit)
		if err != nil {
			writePipelineError(deps, w, r, "list ingestions", err)
			return
		}
		response.Ingestions = items
	}
	if kind == "" || kind == "questions" {
		items, err := deps.Pipeline.RecentQuestions(r.Context(), limit)
		if err != nil {
			writePipelineError(deps, w, r, "list questions", err)
			return
		}
		response.Questions = items
	}
	writeJSON(w, http.StatusOK, response)
}
