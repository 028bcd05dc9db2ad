package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/askdata/askdata/internal/ingest"
	"github.com/askdata/askdata/internal/pipeline"
	"github.com/askdata/askdata/internal/query"
)

const (
	messageNoData                = "No data uploaded yet."
	messageGenerationEmpty       = "SQL generation failed."
	messageGenerationUnavailable = "SQL generation service is unavailable."
	messageStaleSchema           = "The schema registry no longer matches the stored tables. Upload the data again or refresh the schema."
	messageEmptyUpload           = "Uploaded file is empty."
	messageMalformedUpload       = "Uploaded file could not be parsed."
	messageUnexpected            = "Unexpected error"
)

var statusByCode = map[string]int{
	pipeline.CodeUnsupportedFormat:     http.StatusBadRequest,
	pipeline.CodeEmptyUpload:           http.StatusBadRequest,
	pipeline.CodeIngestionFailed:       http.StatusBadRequest,
	pipeline.CodeNoData:                http.StatusBadRequest,
	pipeline.CodeStaleSchema:           http.StatusConflict,
	pipeline.CodeGenerationUnavailable: http.StatusInternalServerError,
	pipeline.CodeGenerationEmpty:       http.StatusInternalServerError,
	pipeline.CodeExecutionFailed:       http.StatusBadRequest,
	pipeline.CodeInternal:              http.StatusInternalServerError,
}

// describeError maps a pipeline error to its status, code and client
// message. Internal errors never leak their text.
func describeError(err error) (int, string, string) {
	code := pipeline.ErrorCode(err)
	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	switch code {
	case pipeline.CodeUnsupportedFormat:
		return status, code, ingest.ErrUnsupportedFormat.Error()
	case pipeline.CodeEmptyUpload:
		return status, code, messageEmptyUpload
	case pipeline.CodeIngestionFailed:
		var malformed *ingest.MalformedUploadError
		if errors.As(err, &malformed) {
			return status, code, malformed.Error()
		}
		return status, code, messageMalformedUpload
	case pipeline.CodeNoData:
		return status, code, messageNoData
	case pipeline.CodeStaleSchema:
		return status, code, messageStaleSchema
	case pipeline.CodeGenerationEmpty:
		return status, code, messageGenerationEmpty
	case pipeline.CodeGenerationUnavailable:
		return status, code, messageGenerationUnavailable
	case pipeline.CodeExecutionFailed:
		var execErr *query.ExecutionError
		if errors.As(err, &execErr) {
			return status, code, "PostgreSQL execution error: " + execErr.Error()
		}
		return status, code, "PostgreSQL execution error: " + err.Error()
	default:
		return status, pipeline.CodeInternal, messageUnexpected
	}
}

func writePipelineError(deps Dependencies, w http.ResponseWriter, r *http.Request, operation string, err error) {
	status, code, message := describeError(err)
	if deps.Logger != nil {
		level := slog.LevelWarn
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		deps.Logger.Log(r.Context(), level, operation+" failed",
			slog.String("error_code", code),
			slog.Any("error", err),
		)
	}
	writeError(r.Context(), w, status, code, message, nil)
}
