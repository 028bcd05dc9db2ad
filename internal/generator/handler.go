// Package generator serves the SQL generation endpoint consumed by the
// question pipeline. It accepts both the multi-table and the legacy
// single-table request shapes and answers with {"sql": "..."}.
package generator

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdata/askdata/internal/config"
	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/observability"
)

const maxRequestBytes = 4 << 20

type Dependencies struct {
	Logger     *slog.Logger
	Translator nl2sql.Translator
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())
	mux.HandleFunc("POST /generate", func(w http.ResponseWriter, r *http.Request) {
		handleGenerate(deps, w, r)
	})

	var handler http.Handler = mux
	if deps.Logger != nil {
		handler = observability.LoggingMiddleware(deps.Logger)(handler)
	}
	handler = observability.RecoverMiddleware(deps.Logger)(handler)
	handler = observability.MetricsMiddleware(handler)
	return observability.TraceMiddleware(handler)
}

func handleGenerate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Translator == nil {
		writeError(w, r, http.StatusNotImplemented, "GENERATION_NOT_CONFIGURED", "generation model is not configured")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_BODY", "request body could not be read")
		return
	}
	request, err := nl2sql.ParseRequest(body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := deps.Translator.Translate(r.Context(), request)
	switch {
	case errors.Is(err, nl2sql.ErrGenerationEmpty):
		writeJSON(w, http.StatusOK, nl2sql.Response{SQL: ""})
		return
	case err != nil:
		if deps.Logger != nil {
			deps.Logger.ErrorContext(r.Context(), "sql generation failed",
				slog.String("mode", string(request.Mode)),
				slog.Int("tables", len(request.Tables)),
				slog.Any("error", err),
			)
		}
		writeError(w, r, http.StatusBadGateway, "GENERATION_UNAVAILABLE", "generation model is unavailable")
		return
	}

	if deps.Logger != nil {
		deps.Logger.DebugContext(r.Context(), "sql generated",
			slog.String("mode", string(result.Mode)),
			slog.String("model", result.Model),
			slog.Int("tables", len(request.Tables)),
		)
	}
	writeJSON(w, http.StatusOK, nl2sql.Response{SQL: strings.TrimSpace(result.SQL)})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error":      message,
		"error_code": code,
		"trace_id":   observability.TraceIDFromContext(r.Context()),
	})
}
