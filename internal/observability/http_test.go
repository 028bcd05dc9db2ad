package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if TraceIDFromContext(r.Context()) == "" {
			t.Fatal("expected generated trace id")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestTraceMiddlewareReplacesUnprintableTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	for _, incoming := range []string{"has space", strings.Repeat("a", maxTraceIDBytes+1)} {
		req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
		req.Header.Set(traceHeader, incoming)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)

		got := rr.Header().Get(traceHeader)
		if got == incoming || len(got) != 32 {
			t.Fatalf("trace header for %q = %q", incoming, got)
		}
	}
}

func TestTraceIDContextHelpers(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(ctx); got != "abc123" {
		t.Fatalf("TraceIDFromContext() = %q", got)
	}
}

func TestLoggingMiddlewareDoesNotPanic(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/x", nil))
}

func TestLoggingMiddlewareRecordsRoutePattern(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/tables/{name}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	})
	h := TraceMiddleware(LoggingMiddleware(logger)(mux))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/tables/orders", nil))

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("log line is not json: %v (%s)", err, buf.String())
	}
	if record["route"] != "GET /v1/tables/{name}" {
		t.Fatalf("route = %v", record["route"])
	}
	if record["path"] != "/v1/tables/orders" {
		t.Fatalf("path = %v", record["path"])
	}
	if record["status"] != float64(http.StatusAccepted) {
		t.Fatalf("status = %v", record["status"])
	}
	if record["trace_id"] == "" {
		t.Fatal("expected trace_id in log line")
	}
}

func TestMetricsMiddlewareLabelsByRoutePattern(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/widgets/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := TraceMiddleware(MetricsMiddleware(mux))

	for _, path := range []string{"/v1/widgets/1", "/v1/widgets/2", "/v1/widgets/3"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	for _, path := range []string{"/random/a", "/random/b"} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodPut, path, nil))
		if rr.Code != http.StatusNotFound {
			t.Fatalf("PUT %s status = %d", path, rr.Code)
		}
	}

	scrape := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(scrape, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	body := scrape.Body.String()

	for _, want := range []string{
		`askdata_http_requests_total{method="GET",route="GET /v1/widgets/{id}",status="200"} 3`,
		`askdata_http_requests_total{method="PUT",route="unmatched",status="404"} 2`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q\n%s", want, body)
		}
	}
	for _, raw := range []string{"/v1/widgets/1", "/random/a"} {
		if strings.Contains(body, `route="`+raw+`"`) {
			t.Fatalf("raw path %q leaked into route label", raw)
		}
	}
}

func TestRouteLabelFallsBackToUnmatched(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	if got := RouteLabel(req); got != unmatchedRoute {
		t.Fatalf("RouteLabel() = %q", got)
	}
	req.Pattern = "GET /anything"
	if got := RouteLabel(req); got != "GET /anything" {
		t.Fatalf("RouteLabel() = %q", got)
	}
}

func TestRecoverMiddlewareReturnsGenericError(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	h := TraceMiddleware(RecoverMiddleware(logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/ask", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"error":"Unexpected error"`) {
		t.Fatalf("body = %s", rr.Body.String())
	}
}
