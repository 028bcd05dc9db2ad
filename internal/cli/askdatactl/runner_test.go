package askdatactl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestRunHealthCommand(t *testing.T) {
	var gotMethod, gotPath, gotAPIKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotAPIKey = r.Header.Get("X-API-Key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	code := Run(context.Background(), []string{
		"--base-url", srv.URL,
		"--api-key", "k1",
		"health",
	}, Options{
		Stdout:  &stdout,
		Stderr:  &stderr,
		Timeout: 2 * time.Second,
	})
	if code != 0 {
		t.Fatalf("exit code = %d, stderr=%s", code, stderr.String())
	}
	if gotMethod != http.MethodGet || gotPath != "/v1/health" {
		t.Fatalf("request = %s %s", gotMethod, gotPath)
	}
	if gotAPIKey != "k1" {
		t.Fatalf("api key = %q", gotAPIKey)
	}
	if !strings.Contains(stdout.String(), "ok") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunReadyFlag(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}))
	defer srv.Close()

	code := Run(context.Background(), []string{"--base-url", srv.URL, "health", "--ready"}, Options{})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotPath != "/v1/ready" {
		t.Fatalf("path = %s", gotPath)
	}
}

func TestRunUploadCommand(t *testing.T) {
	var gotFilename, gotContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/upload" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		data, _ := io.ReadAll(file)
		gotFilename = header.Filename
		gotContent = string(data)
		_, _ = w.Write([]byte(`{"message":"File uploaded successfully","table_name":"data","all_tables":["data"],"columns":["a"],"rows":[{"a":1}],"total_rows":1,"preview_rows":1,"statement_failures":[],"preview_failures":[]}`))
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "sales.csv")
	if err := os.WriteFile(path, []byte("a\n1\n"), 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "upload", path}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotFilename != "sales.csv" || gotContent != "a\n1\n" {
		t.Fatalf("uploaded %q %q", gotFilename, gotContent)
	}
	if !strings.Contains(stdout.String(), "primary table: data (1 rows)") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunAskCommandJoinsArguments(t *testing.T) {
	var payload map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&payload)
		_, _ = w.Write([]byte(`{"sql":"SELECT 1","result":[{"n":1}],"result_rows":1,"columns":["n"],"query":"how many","tables_used":["data"]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "how", "many"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if payload["query"] != "how many" {
		t.Fatalf("payload = %#v", payload)
	}
	out := stdout.String()
	if !strings.Contains(out, "SELECT 1") || !strings.Contains(out, "1 row(s)") {
		t.Fatalf("stdout = %q", out)
	}
}

func TestRunAskReportsServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"No data uploaded yet.","error_code":"NO_DATA"}`))
	}))
	defer srv.Close()

	var stderr bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "ask", "q"}, Options{Stderr: &stderr})
	if code != 1 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stderr.String(), "No data uploaded yet.") {
		t.Fatalf("stderr = %q", stderr.String())
	}
}

func TestRunDeleteRequiresConfirmation(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		if r.Method != http.MethodDelete || r.URL.Path != "/v1/data" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"message":"Successfully deleted 1 table(s)","deleted_tables":["data"],"drop_failures":[]}`))
	}))
	defer srv.Close()

	if code := Run(context.Background(), []string{"--base-url", srv.URL, "delete"}, Options{}); code != 2 {
		t.Fatalf("exit code without --yes = %d", code)
	}
	if called {
		t.Fatal("delete sent without confirmation")
	}

	var stdout bytes.Buffer
	if code := Run(context.Background(), []string{"--base-url", srv.URL, "delete", "--yes"}, Options{Stdout: &stdout}); code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "dropped data") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunHistoryPassesQuery(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"questions":[{"question":"q","status":"ok","result_rows":2,"created_at":"2026-01-02T03:04:05Z"}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "history", "-n", "5", "--kind", "questions"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if gotQuery != "kind=questions&limit=5" {
		t.Fatalf("query = %q", gotQuery)
	}
	if !strings.Contains(stdout.String(), "Questions") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunSchemaJSONOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"version":3,"table_name":"data","all_tables":["data"],"schemas":[{"table_name":"data","columns":["a"],"top_rows":[[1]]}]}`))
	}))
	defer srv.Close()

	var stdout bytes.Buffer
	code := Run(context.Background(), []string{"--base-url", srv.URL, "--json", "schema"}, Options{Stdout: &stdout})
	if code != 0 {
		t.Fatalf("exit code = %d", code)
	}
	if !strings.Contains(stdout.String(), "\"version\": 3") {
		t.Fatalf("stdout = %q", stdout.String())
	}
}

func TestRunUsageErrors(t *testing.T) {
	if code := Run(context.Background(), nil, Options{}); code != 2 {
		t.Fatalf("no command exit code = %d", code)
	}
	if code := Run(context.Background(), []string{"bogus"}, Options{}); code != 2 {
		t.Fatalf("unknown command exit code = %d", code)
	}
	if code := Run(context.Background(), []string{"upload"}, Options{}); code != 2 {
		t.Fatalf("missing argument exit code = %d", code)
	}
}
