package api

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/askdata/askdata/internal/auth"
	"github.com/askdata/askdata/internal/pipeline"
)

const uploadField = "file"

type statementFailure struct {
	Index     int    `json:"index"`
	Statement string `json:"statement"`
	Error     string `json:"error"`
}

type tableFailure struct {
	Table string `json:"table"`
	Error string `json:"error"`
}

type uploadResponse struct {
	Message           string             `json:"message"`
	Columns           []string           `json:"columns"`
	Rows              []map[string]any   `json:"rows"`
	TableName         *string            `json:"table_name"`
	AllTables         []string           `json:"all_tables"`
	TotalRows         int64              `json:"total_rows"`
	PreviewRows       int                `json:"preview_rows"`
	Format            string             `json:"format"`
	StatementFailures []statementFailure `json:"statement_failures"`
	PreviewFailures   []tableFailure     `json:"preview_failures"`
	ArchiveKey        string             `json:"archive_key,omitempty"`
	RegistryVersion   uint64             `json:"registry_version"`
}

func handleUpload(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if err := requireRole(r, auth.RoleUploader); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), nil)
		return
	}
	if deps.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, deps.MaxUploadBytes)
	}

	part, err := uploadPart(r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "uploaded file exceeds the size limit", map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writeError(r.Context(), w, http.StatusBadRequest, "FILE_REQUIRED", err.Error(), nil)
		return
	}
	defer func() { _ = part.Close() }()

	result, err := deps.Pipeline.Ingest(r.Context(), part.FileName(), part)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(r.Context(), w, http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE", "uploaded file exceeds the size limit", map[string]any{"limit_bytes": tooLarge.Limit})
			return
		}
		writePipelineError(deps, w, r, "upload", err)
		return
	}

	writeJSON(w, http.StatusOK, newUploadResponse(result))
}

// uploadPart streams the multipart body up to the file field so large
// uploads are never buffered in memory.
func uploadPart(r *http.Request) (*multipart.Part, error) {
	reader, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("multipart form with a %q field is required", uploadField)
	}
	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("multipart field %q is required", uploadField)
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == uploadField && strings.TrimSpace(part.FileName()) != "" {
			return part, nil
		}
		_ = part.Close()
	}
}

func newUploadResponse(result pipeline.IngestResult) uploadResponse {
	response := uploadResponse{
		Message:           result.Message,
		Columns:           result.Columns,
		Rows:              result.Rows,
		AllTables:         result.AllTables,
		TotalRows:         result.TotalRows,
		PreviewRows:       result.PreviewRows,
		Format:            result.Format,
		StatementFailures: make([]statementFailure, 0, len(result.StatementFailures)),
		PreviewFailures:   tableFailures(result.PreviewFailures),
		ArchiveKey:        result.ArchiveKey,
		RegistryVersion:   result.RegistryVersion,
	}
	if result.TableName != "" {
		table := result.TableName
		response.TableName = &table
	}
	if response.Columns == nil {
		response.Columns = []string{}
	}
	if response.Rows == nil {
		response.Rows = []map[string]any{}
	}
	if response.AllTables == nil {
		response.AllTables = []string{}
	}
	for _, outcome := range result.StatementFailures {
		failure := statementFailure{Index: outcome.Index, Statement: outcome.Statement}
		if outcome.Err != nil {
			failure.Error = outcome.Err.Error()
		}
		response.StatementFailures = append(response.StatementFailures, failure)
	}
	return response
}

func tableFailures(outcomes []pipeline.TableOutcome) []tableFailure {
	out := make([]tableFailure, 0, len(outcomes))
	for _, outcome := range outcomes {
		out = append(out, tableFailure{Table: outcome.Table, Error: outcome.Error()})
	}
	return out
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}
