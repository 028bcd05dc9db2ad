package pipeline

import (
	"errors"

	"github.com/askdata/askdata/internal/ingest"
	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/query"
	"github.com/askdata/askdata/internal/registry"
)

const (
	CodeUnsupportedFormat     = "UNSUPPORTED_FORMAT"
	CodeEmptyUpload           = "EMPTY_UPLOAD"
	CodeIngestionFailed       = "INGESTION_FAILED"
	CodeNoData                = "NO_DATA"
	CodeStaleSchema           = "STALE_SCHEMA"
	CodeGenerationUnavailable = "GENERATION_UNAVAILABLE"
	CodeGenerationEmpty       = "GENERATION_EMPTY"
	CodeExecutionFailed       = "EXECUTION_FAILED"
	CodeInternal              = "INTERNAL"
)

// ErrorCode classifies a pipeline error into the code reported to clients
// and stored in the question history.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return CodeUnsupportedFormat
	case errors.Is(err, ingest.ErrEmptyUpload):
		return CodeEmptyUpload
	case errors.Is(err, ingest.ErrMalformedUpload):
		return CodeIngestionFailed
	case errors.Is(err, ErrNoDataUploaded):
		return CodeNoData
	case errors.Is(err, registry.ErrStaleRegistry):
		return CodeStaleSchema
	case errors.Is(err, nl2sql.ErrGenerationEmpty):
		return CodeGenerationEmpty
	case errors.Is(err, nl2sql.ErrGenerationUnavailable):
		return CodeGenerationUnavailable
	case errors.Is(err, query.ErrExecution):
		return CodeExecutionFailed
	default:
		return CodeInternal
	}
}
