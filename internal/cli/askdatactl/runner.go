// Package askdatactl implements the askdatactl command line client for the
// askdata API.
package askdatactl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type settings struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	rawJSON bool
}

// Run executes one askdatactl invocation and returns the process exit code:
// 0 on success, 1 when the request failed, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	if args == nil {
		args = []string{}
	}
	root := NewRootCommand(defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(stderr, "error: %v\n", err)
		var usage *usageError
		if errors.As(err, &usage) || strings.HasPrefix(err.Error(), "unknown command") {
			return 2
		}
		return 1
	}
	return 0
}

type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func NewRootCommand(defaults Options) *cobra.Command {
	s := &settings{}
	root := &cobra.Command{
		Use:   "askdatactl",
		Short: "Upload tabular data and ask questions about it",
		Long: `askdatactl talks to the askdata API.

Examples:

  askdatactl upload sales.csv
  askdatactl ask "total revenue per region"
  askdatactl schema
  askdatactl delete --yes
`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = cmd.Usage()
			return &usageError{err: errors.New("a command is required")}
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &usageError{err: err}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&s.baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8001"), "askdata API base URL")
	flags.StringVar(&s.apiKey, "api-key", defaults.APIKey, "API key for authenticated requests")
	flags.DurationVar(&s.timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 30s)")
	flags.BoolVar(&s.rawJSON, "json", false, "print the raw JSON response")

	clientFor := func() *apiClient {
		client := defaults.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: s.timeout}
		}
		return &apiClient{baseURL: s.baseURL, apiKey: s.apiKey, http: client}
	}

	root.AddCommand(
		newHealthCommand(s, clientFor),
		newUploadCommand(s, clientFor),
		newAskCommand(s, clientFor),
		newDeleteCommand(s, clientFor),
		newSchemaCommand(s, clientFor),
		newHistoryCommand(s, clientFor),
	)
	return root
}

func newHealthCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	var ready bool
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check API liveness (or readiness with --ready)",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/v1/health"
			if ready {
				path = "/v1/ready"
			}
			var body map[string]any
			raw, err := clientFor().getJSON(cmd.Context(), path, &body)
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			green := color.New(color.FgGreen, color.Bold)
			_, _ = green.Fprintf(cmd.OutOrStdout(), "%v\n", body["status"])
			return nil
		},
	}
	cmd.Flags().BoolVar(&ready, "ready", false, "check dependency readiness instead of liveness")
	return cmd
}

func newUploadCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a .csv, .xls, .xlsx, .sql or .parquet file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body uploadResponse
			raw, err := clientFor().upload(cmd.Context(), "/v1/upload", args[0], &body)
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			renderUpload(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newAskCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a question about the uploaded data",
		Args:  minArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var body askResponse
			question := strings.Join(args, " ")
			raw, err := clientFor().sendJSON(cmd.Context(), http.MethodPost, "/v1/ask", map[string]string{"query": question}, &body)
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			renderAsk(cmd.OutOrStdout(), body)
			return nil
		},
	}
}

func newDeleteCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	var confirmed bool
	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Drop every uploaded table",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return &usageError{err: errors.New("refusing to delete data without --yes")}
			}
			var body deleteResponse
			raw, err := clientFor().sendJSON(cmd.Context(), http.MethodDelete, "/v1/data", nil, &body)
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			renderDelete(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&confirmed, "yes", "y", false, "confirm deletion")
	return cmd
}

func newSchemaCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Show the tables and sample rows used to ground questions",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var body schemaResponse
			var raw []byte
			var err error
			if refresh {
				raw, err = clientFor().sendJSON(cmd.Context(), http.MethodPost, "/v1/schema/refresh", nil, &body)
			} else {
				raw, err = clientFor().getJSON(cmd.Context(), "/v1/schema", &body)
			}
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			renderSchema(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-sample the tables from the store first")
	return cmd
}

func newHistoryCommand(s *settings, clientFor func() *apiClient) *cobra.Command {
	var limit int
	var kind string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent uploads and questions",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit <= 0 {
				return &usageError{err: fmt.Errorf("--limit must be positive")}
			}
			query := url.Values{}
			query.Set("limit", strconv.Itoa(limit))
			if kind != "" {
				query.Set("kind", kind)
			}
			var body historyResponse
			raw, err := clientFor().getJSON(cmd.Context(), "/v1/history?"+query.Encode(), &body)
			if err != nil {
				return err
			}
			if s.rawJSON {
				return printRaw(cmd.OutOrStdout(), raw)
			}
			renderHistory(cmd.OutOrStdout(), body)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries per kind")
	cmd.Flags().StringVar(&kind, "kind", "", "ingestions or questions (default both)")
	return cmd
}

func noArgs(cmd *cobra.Command, args []string) error {
	if err := cobra.NoArgs(cmd, args); err != nil {
		return &usageError{err: err}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.ExactArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := cobra.MinimumNArgs(n)(cmd, args); err != nil {
			return &usageError{err: err}
		}
		return nil
	}
}

func printRaw(w io.Writer, raw []byte) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, err := fmt.Fprintln(w, pretty)
		return err
	}
	_, err := w.Write(raw)
	return err
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
