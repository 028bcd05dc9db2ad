package observability

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/askdata/askdata/internal/config"
)

// NewLogger builds the process logger. Every record carries the service
// name, the profile and the backing store driver.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler = slog.NewTextHandler(writer, opts)
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	}

	attrs := []any{
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	}
	if cfg.Store.Driver != "" {
		attrs = append(attrs, slog.String("store_driver", cfg.Store.Driver))
	}
	return slog.New(handler).With(attrs...)
}

// RequestAttrs are the attributes shared by every request scoped log line.
func RequestAttrs(r *http.Request) []slog.Attr {
	return []slog.Attr{
		slog.String("trace_id", TraceIDFromContext(r.Context())),
		slog.String("method", r.Method),
		slog.String("route", RouteLabel(r)),
	}
}
