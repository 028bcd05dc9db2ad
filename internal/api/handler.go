package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdata/askdata/internal/config"
	"github.com/askdata/askdata/internal/history"
	"github.com/askdata/askdata/internal/observability"
	"github.com/askdata/askdata/internal/pipeline"
	"github.com/askdata/askdata/internal/registry"
)

type ReadinessCheck func(ctx context.Context) error

// Pipeline is the question pipeline as seen by the HTTP layer.
type Pipeline interface {
	Ingest(ctx context.Context, filename string, body io.Reader) (pipeline.IngestResult, error)
	Ask(ctx context.Context, question string) (pipeline.AskResult, error)
	DeleteAll(ctx context.Context) (pipeline.DeleteResult, error)
	Refresh(ctx context.Context) (pipeline.RefreshResult, error)
	Schema() registry.State
	RecentIngestions(ctx context.Context, limit int) ([]history.Ingestion, error)
	RecentQuestions(ctx context.Context, limit int) ([]history.Question, error)
}

type Dependencies struct {
	Logger           *slog.Logger
	Readiness        ReadinessCheck
	AuthMiddleware   func(http.Handler) http.Handler
	DependencyTimout time.Duration
	Pipeline         Pipeline
	MaxUploadBytes   int64
}

type route struct {
	pattern string
	handler func(Dependencies, http.ResponseWriter, *http.Request)
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = cfg.HTTP.MaxUploadBytes
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	routes := []route{
		{pattern: "POST /v1/upload", handler: handleUpload},
		{pattern: "POST /upload", handler: handleUpload},
		{pattern: "POST /v1/ask", handler: handleAsk},
		{pattern: "POST /ask", handler: handleAsk},
		{pattern: "DELETE /v1/data", handler: handleDeleteData},
		{pattern: "DELETE /delete-data", handler: handleDeleteData},
		{pattern: "GET /v1/schema", handler: handleSchema},
		{pattern: "POST /v1/schema/refresh", handler: handleSchemaRefresh},
		{pattern: "GET /v1/history", handler: handleHistory},
	}

	protected := http.NewServeMux()
	for _, rt := range routes {
		handle := rt.handler
		protected.HandleFunc(rt.pattern, func(w http.ResponseWriter, r *http.Request) {
			if deps.Pipeline == nil {
				writeError(r.Context(), w, http.StatusNotImplemented, "PIPELINE_NOT_CONFIGURED", "question pipeline is not configured", nil)
				return
			}
			handle(deps, w, r)
		})
	}

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, rt := range routes {
		mux.Handle(rt.pattern, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, observability.RecoverMiddleware(deps.Logger))
	return chain(mux, middlewares...)
}

// Pinger is satisfied by the table store.
type Pinger interface {
	Ping(ctx context.Context) error
}

func CheckStore(store Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if store == nil {
			return errors.New("store is not configured")
		}
		return store.Ping(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.ObjectStore.Enabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, extra map[string]any) {
	body := map[string]any{
		"error":      message,
		"error_code": code,
		"trace_id":   observability.TraceIDFromContext(ctx),
	}
	if len(extra) > 0 {
		body["context"] = extra
	}
	writeJSON(w, status, body)
}
