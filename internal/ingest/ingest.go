package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"

	"github.com/askdata/askdata/internal/store"
)

const DefaultTable = "data"

// Archiver keeps a copy of the raw upload. Failures are logged and never
// fail an ingestion.
type Archiver interface {
	Archive(ctx context.Context, format string, body io.Reader, size int64) (string, error)
}

type Options struct {
	DefaultTable string
	Archiver     Archiver
	Logger       *slog.Logger
}

type Result struct {
	Format      Format
	Tables      []string
	Statements  []store.StatementOutcome
	ArchivePath string
	Bytes       int64
}

// FailedStatements returns the script statements that did not succeed.
func (r Result) FailedStatements() []store.StatementOutcome {
	failed := make([]store.StatementOutcome, 0)
	for _, outcome := range r.Statements {
		if outcome.Err != nil {
			failed = append(failed, outcome)
		}
	}
	return failed
}

type Ingestor struct {
	store        store.Store
	defaultTable string
	archiver     Archiver
	logger       *slog.Logger
}

func New(s store.Store, opts Options) *Ingestor {
	table := strings.ToLower(strings.TrimSpace(opts.DefaultTable))
	if table == "" {
		table = DefaultTable
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Ingestor{store: s, defaultTable: table, archiver: opts.Archiver, logger: logger}
}

func (i *Ingestor) DefaultTable() string {
	return i.defaultTable
}

// Ingest materializes one upload. The table list in the result is exactly
// the set of tables this call produced or, for SQL scripts, every table
// visible in the data schema afterwards.
func (i *Ingestor) Ingest(ctx context.Context, filename string, body io.Reader) (Result, error) {
	format, err := DetectFormat(filename)
	if err != nil {
		return Result{}, err
	}

	path, size, cleanup, err := spool(body, format)
	if err != nil {
		return Result{}, err
	}
	defer cleanup()
	if size == 0 {
		return Result{}, ErrEmptyUpload
	}

	result := Result{Format: format, Bytes: size}
	result.ArchivePath = i.archive(ctx, path, format, size)

	switch format {
	case FormatSQL:
		return i.runScript(ctx, path, result)
	case FormatParquet:
		relation, err := parseParquet(path, i.defaultTable)
		if err != nil {
			return Result{}, malformed(format, err)
		}
		return i.replace(ctx, relation, result)
	default:
		raw, err := parseTabular(path, format)
		if err != nil {
			return Result{}, malformed(format, err)
		}
		return i.replace(ctx, inferRelation(i.defaultTable, raw), result)
	}
}

func parseTabular(path string, format Format) (rawTable, error) {
	switch format {
	case FormatCSV:
		file, err := os.Open(path)
		if err != nil {
			return rawTable{}, fmt.Errorf("open spooled upload: %w", err)
		}
		defer func() { _ = file.Close() }()
		return parseDelimited(file)
	case FormatXLSX:
		return parseXLSX(path)
	case FormatXLS:
		return parseXLS(path)
	default:
		return rawTable{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

func (i *Ingestor) replace(ctx context.Context, relation store.Relation, result Result) (Result, error) {
	if err := i.store.ReplaceTable(ctx, relation); err != nil {
		return Result{}, fmt.Errorf("materialize %q: %w", relation.Name, err)
	}
	result.Tables = []string{relation.Name}
	i.logger.Info("relation materialized",
		slog.String("table", relation.Name),
		slog.Int("columns", len(relation.Columns)),
		slog.Int("rows", len(relation.Rows)),
	)
	return result, nil
}

func (i *Ingestor) runScript(ctx context.Context, path string, result Result) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read spooled script: %w", err)
	}
	if !utf8.Valid(data) {
		if data, err = charmap.Windows1252.NewDecoder().Bytes(data); err != nil {
			return Result{}, fmt.Errorf("decode windows-1252 script: %w", err)
		}
	}

	statements := splitScript(string(data))
	if len(statements) == 0 {
		return Result{}, ErrEmptyUpload
	}
	outcomes, err := i.store.ExecScript(ctx, statements)
	if err != nil {
		return Result{}, fmt.Errorf("execute script: %w", err)
	}
	result.Statements = outcomes
	for _, failed := range result.FailedStatements() {
		i.logger.Warn("script statement failed",
			slog.Int("index", failed.Index),
			slog.String("statement", abbreviate(failed.Statement, 120)),
			slog.String("error", failed.Err.Error()),
		)
	}

	tables, err := i.store.ListTables(ctx)
	if err != nil {
		return Result{}, err
	}
	result.Tables = tables
	return result, nil
}

func (i *Ingestor) archive(ctx context.Context, path string, format Format, size int64) string {
	if i.archiver == nil {
		return ""
	}
	file, err := os.Open(path)
	if err != nil {
		i.logger.Warn("upload archive skipped", slog.String("error", err.Error()))
		return ""
	}
	defer func() { _ = file.Close() }()

	key, err := i.archiver.Archive(ctx, string(format), file, size)
	if err != nil {
		i.logger.Warn("upload archive failed", slog.String("error", err.Error()))
		return ""
	}
	return key
}

func abbreviate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
