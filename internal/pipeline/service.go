// Package pipeline wires ingestion, the schema registry, SQL generation and
// query execution into the request operations served over HTTP.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/askdata/askdata/internal/history"
	"github.com/askdata/askdata/internal/ingest"
	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/observability"
	"github.com/askdata/askdata/internal/prompt"
	"github.com/askdata/askdata/internal/query"
	"github.com/askdata/askdata/internal/registry"
	"github.com/askdata/askdata/internal/store"
)

var ErrNoDataUploaded = errors.New("no data uploaded")

const (
	defaultPreviewRows = 20
	defaultSampleRows  = 5
)

type Config struct {
	PreviewRows    int
	SampleRows     int
	GenerationMode string
	ReadOnly       bool
	MaxRows        int
}

// Service holds the collaborators of the question pipeline. Ingest, DeleteAll
// and Refresh are serialized against each other; Ask works off one registry
// snapshot and never takes the write lock.
type Service struct {
	Store      store.Store
	Ingestor   *ingest.Ingestor
	Registry   *registry.Registry
	Translator nl2sql.Translator
	Engine     query.Engine
	History    history.Recorder
	Config     Config
	Logger     *slog.Logger
	Clock      func() time.Time

	writeMu      sync.Mutex
	defaultsOnce sync.Once
}

// TableOutcome records a per-table step that failed without failing the
// whole operation.
type TableOutcome struct {
	Table string `json:"table"`
	Err   error  `json:"-"`
}

func (o TableOutcome) Error() string {
	if o.Err == nil {
		return ""
	}
	return o.Err.Error()
}

type IngestResult struct {
	Message           string
	Format            string
	TableName         string
	Columns           []string
	Rows              []map[string]any
	AllTables         []string
	TotalRows         int64
	PreviewRows       int
	StatementFailures []store.StatementOutcome
	PreviewFailures   []TableOutcome
	ArchiveKey        string
	RegistryVersion   uint64
}

type AskResult struct {
	SQL        string
	Columns    []string
	Rows       []map[string]any
	RowCount   int
	Truncated  bool
	Question   string
	TablesUsed []string
	Mode       prompt.Mode
}

type DeleteResult struct {
	Message       string
	DeletedTables []string
	DropFailures  []TableOutcome
}

type RefreshResult struct {
	State           registry.State
	PreviewFailures []TableOutcome
	Removed         []string
}

func (s *Service) ensureDefaults() {
	s.defaultsOnce.Do(s.applyDefaults)
}

func (s *Service) applyDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.History == nil {
		s.History = history.Noop{}
	}
	if s.Config.PreviewRows <= 0 {
		s.Config.PreviewRows = defaultPreviewRows
	}
	if s.Config.SampleRows <= 0 {
		s.Config.SampleRows = defaultSampleRows
	}
	if s.Config.SampleRows > s.Config.PreviewRows {
		s.Config.SampleRows = s.Config.PreviewRows
	}
}

// Ingest materializes an upload and rebuilds the registry from the tables
// it produced.
func (s *Service) Ingest(ctx context.Context, filename string, body io.Reader) (IngestResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ensureDefaults()

	entry := history.Ingestion{Filename: filename, Status: history.StatusFailed}
	materialized, err := s.Ingestor.Ingest(ctx, filename, body)
	entry.Format = string(materialized.Format)
	entry.SizeBytes = materialized.Bytes
	entry.ArchiveKey = materialized.ArchivePath
	if err != nil {
		if format, formatErr := ingest.DetectFormat(filename); formatErr == nil {
			entry.Format = string(format)
		}
		observability.ObserveIngest(entry.Format, history.StatusFailed, 0, 0)
		entry.ErrorMessage = err.Error()
		s.recordIngestion(ctx, entry)
		return IngestResult{}, err
	}

	snapshots, previews, failures := s.sample(ctx, materialized.Tables)
	state := s.Registry.Replace(materialized.Tables, snapshots)
	observability.SetRegistryVersion(state.Version)

	result := IngestResult{
		Message:           "File uploaded successfully",
		Format:            string(materialized.Format),
		AllTables:         state.Tables,
		StatementFailures: materialized.FailedStatements(),
		PreviewFailures:   failures,
		ArchiveKey:        materialized.ArchivePath,
		RegistryVersion:   state.Version,
		Rows:              []map[string]any{},
		Columns:           []string{},
	}
	if state.Primary != "" {
		preview := previews[state.Primary]
		result.TableName = state.Primary
		result.Columns = preview.Columns
		result.Rows = records(preview)
		result.PreviewRows = len(preview.Rows)

		total, err := s.Store.CountRows(ctx, state.Primary)
		if err != nil {
			s.Logger.WarnContext(ctx, "count primary table rows failed",
				slog.String("table", state.Primary),
				slog.Any("error", err),
			)
			total = int64(len(preview.Rows))
		}
		result.TotalRows = total
	}

	observability.ObserveIngest(result.Format, history.StatusOK, len(result.AllTables), len(result.StatementFailures))
	entry.Status = history.StatusOK
	entry.Tables = result.AllTables
	entry.TotalRows = result.TotalRows
	entry.StatementFailures = len(result.StatementFailures)
	s.recordIngestion(ctx, entry)

	s.Logger.InfoContext(ctx, "ingestion completed",
		slog.String("filename", filename),
		slog.String("format", result.Format),
		slog.Any("tables", result.AllTables),
		slog.Int("statement_failures", len(result.StatementFailures)),
		slog.Int("preview_failures", len(result.PreviewFailures)),
		slog.Uint64("registry_version", result.RegistryVersion),
	)
	return result, nil
}

// Ask grounds the question in the current registry, generates SQL for it
// and executes the sanitized statement.
func (s *Service) Ask(ctx context.Context, question string) (AskResult, error) {
	s.ensureDefaults()

	state := s.Registry.Read()
	entry := history.Question{
		Question:        question,
		TablesUsed:      state.Tables,
		Status:          history.StatusFailed,
		RegistryVersion: state.Version,
	}
	result, err := s.ask(ctx, question, state, &entry)
	if err != nil {
		entry.ErrorCode = ErrorCode(err)
		entry.ErrorMessage = err.Error()
		observability.ObserveAsk(history.StatusFailed)
		s.recordQuestion(ctx, entry)
		return AskResult{}, err
	}

	entry.Status = history.StatusOK
	entry.ResultRows = result.RowCount
	observability.ObserveAsk(history.StatusOK)
	s.recordQuestion(ctx, entry)
	return result, nil
}

func (s *Service) ask(ctx context.Context, question string, state registry.State, entry *history.Question) (AskResult, error) {
	if state.Empty() {
		return AskResult{}, ErrNoDataUploaded
	}
	snapshots, err := state.Ordered()
	if err != nil {
		return AskResult{}, err
	}
	for _, snapshot := range snapshots {
		exists, err := s.Store.TableExists(ctx, snapshot.TableName)
		if err != nil {
			return AskResult{}, fmt.Errorf("check table %q: %w", snapshot.TableName, err)
		}
		if !exists {
			return AskResult{}, fmt.Errorf("%w: table %q no longer exists", registry.ErrStaleRegistry, snapshot.TableName)
		}
	}

	mode, err := nl2sql.ResolveMode(s.Config.GenerationMode, len(snapshots))
	if err != nil {
		return AskResult{}, err
	}
	request := nl2sql.Request{Question: question, Mode: mode, Tables: make([]nl2sql.TableSchema, 0, len(snapshots))}
	for _, snapshot := range snapshots {
		table := nl2sql.TableSchema{TableName: snapshot.TableName, Columns: snapshot.Columns, TopRows: snapshot.SampleRows}
		if mismatches := prompt.ArityMismatches(prompt.Table{Name: table.TableName, Columns: table.Columns, Rows: table.TopRows}); mismatches > 0 {
			s.Logger.DebugContext(ctx, "sample rows do not match column count",
				slog.String("table", table.TableName),
				slog.Int("rows", mismatches),
			)
		}
		request.Tables = append(request.Tables, table)
	}

	started := s.Clock()
	generated, err := s.Translator.Translate(ctx, request)
	elapsed := s.Clock().Sub(started)
	entry.GenerationMs = elapsed.Milliseconds()
	observability.ObserveGenerationLatency(elapsed)
	if err != nil {
		return AskResult{}, err
	}
	sqlText := nl2sql.SanitizeSQL(generated.SQL)
	if sqlText == "" {
		return AskResult{}, nl2sql.ErrGenerationEmpty
	}
	entry.SQL = sqlText

	executed, err := s.Engine.Execute(ctx, query.Request{
		SQL:      sqlText,
		ReadOnly: s.Config.ReadOnly,
		MaxRows:  s.Config.MaxRows,
	})
	entry.ExecutionMs = executed.Duration.Milliseconds()
	if err != nil {
		return AskResult{}, err
	}
	observability.ObserveExecutionLatency(executed.Duration)

	return AskResult{
		SQL:        sqlText,
		Columns:    executed.Columns,
		Rows:       executed.Rows,
		RowCount:   len(executed.Rows),
		Truncated:  executed.Truncated,
		Question:   question,
		TablesUsed: state.Tables,
		Mode:       mode,
	}, nil
}

// DeleteAll drops every registered table and clears the registry, even when
// some drops fail.
func (s *Service) DeleteAll(ctx context.Context) (DeleteResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ensureDefaults()

	state := s.Registry.Read()
	if len(state.Tables) == 0 {
		cleared := s.Registry.Clear()
		observability.SetRegistryVersion(cleared.Version)
		return DeleteResult{Message: "No data to delete", DeletedTables: []string{}, DropFailures: []TableOutcome{}}, nil
	}

	result := DeleteResult{DeletedTables: make([]string, 0, len(state.Tables)), DropFailures: []TableOutcome{}}
	for _, table := range state.Tables {
		if err := s.Store.DropTable(ctx, table); err != nil {
			s.Logger.WarnContext(ctx, "drop table failed", slog.String("table", table), slog.Any("error", err))
			result.DropFailures = append(result.DropFailures, TableOutcome{Table: table, Err: err})
			continue
		}
		result.DeletedTables = append(result.DeletedTables, table)
	}
	cleared := s.Registry.Clear()
	observability.SetRegistryVersion(cleared.Version)
	observability.AddDeletedTables(len(result.DeletedTables))

	result.Message = fmt.Sprintf("Successfully deleted %d table(s)", len(result.DeletedTables))
	return result, nil
}

// Refresh re-samples the registered tables from the store. Tables that no
// longer exist are removed from the registry.
func (s *Service) Refresh(ctx context.Context) (RefreshResult, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.ensureDefaults()

	state := s.Registry.Read()
	if len(state.Tables) == 0 {
		return RefreshResult{State: state, PreviewFailures: []TableOutcome{}, Removed: []string{}}, nil
	}

	present := make([]string, 0, len(state.Tables))
	removed := []string{}
	for _, table := range state.Tables {
		exists, err := s.Store.TableExists(ctx, table)
		if err != nil {
			return RefreshResult{}, fmt.Errorf("check table %q: %w", table, err)
		}
		if !exists {
			removed = append(removed, table)
			continue
		}
		present = append(present, table)
	}

	snapshots, _, failures := s.sample(ctx, present)
	next := s.Registry.Replace(present, snapshots)
	observability.SetRegistryVersion(next.Version)
	return RefreshResult{State: next, PreviewFailures: failures, Removed: removed}, nil
}

func (s *Service) Schema() registry.State {
	return s.Registry.Read()
}

func (s *Service) RecentIngestions(ctx context.Context, limit int) ([]history.Ingestion, error) {
	s.ensureDefaults()
	return s.History.RecentIngestions(ctx, limit)
}

func (s *Service) RecentQuestions(ctx context.Context, limit int) ([]history.Question, error) {
	s.ensureDefaults()
	return s.History.RecentQuestions(ctx, limit)
}

// sample reads a preview of every table. A failed read keeps the table with
// an empty snapshot and reports it.
func (s *Service) sample(ctx context.Context, tables []string) (map[string]registry.Snapshot, map[string]store.Preview, []TableOutcome) {
	snapshots := make(map[string]registry.Snapshot, len(tables))
	previews := make(map[string]store.Preview, len(tables))
	failures := []TableOutcome{}
	for _, table := range tables {
		preview, err := s.Store.Preview(ctx, table, s.Config.PreviewRows)
		if err != nil {
			s.Logger.WarnContext(ctx, "table preview failed", slog.String("table", table), slog.Any("error", err))
			failures = append(failures, TableOutcome{Table: table, Err: err})
			snapshots[table] = registry.Snapshot{TableName: table, Columns: []string{}, SampleRows: [][]any{}}
			previews[table] = store.Preview{Columns: []string{}, Rows: [][]any{}}
			continue
		}
		sampleSize := min(s.Config.SampleRows, len(preview.Rows))
		snapshots[table] = registry.Snapshot{
			TableName:  table,
			Columns:    preview.Columns,
			SampleRows: preview.Rows[:sampleSize],
		}
		previews[table] = preview
	}
	return snapshots, previews, failures
}

func (s *Service) recordIngestion(ctx context.Context, entry history.Ingestion) {
	if err := s.History.RecordIngestion(ctx, entry); err != nil {
		s.Logger.WarnContext(ctx, "record ingestion history failed", slog.Any("error", err))
	}
}

func (s *Service) recordQuestion(ctx context.Context, entry history.Question) {
	if err := s.History.RecordQuestion(ctx, entry); err != nil {
		s.Logger.WarnContext(ctx, "record question history failed", slog.Any("error", err))
	}
}

func records(preview store.Preview) []map[string]any {
	out := make([]map[string]any, 0, len(preview.Rows))
	for _, row := range preview.Rows {
		record := make(map[string]any, len(preview.Columns))
		for i, column := range preview.Columns {
			if i < len(row) {
				record[column] = row[i]
			} else {
				record[column] = nil
			}
		}
		out = append(out, record)
	}
	return out
}
