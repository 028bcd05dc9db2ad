package api

import (
	"net/http"

	"github.com/askdata/askdata/internal/auth"
)

type deleteResponse struct {
	Message       string         `json:"message"`
	DeletedTables []string       `json:"deleted_tables"`
	DropFailures  []tableFailure `json:"drop_failures"`
}

func handleDeleteData(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleUploader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}

	result, err := deps.Pipeline.DeleteAll(r.Context())
	if err != nil {
		writePipelineError(deps, w, r, "delete data", err)
		return
	}

	deleted := result.DeletedTables
	if deleted == nil {
		deleted = []string{}
	}
	writeJSON(w, http.StatusOK, deleteResponse{
		Message:       result.Message,
		DeletedTables: deleted,
		DropFailures:  tableFailures(result.DropFailures),
	})
}
