package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askdata/askdata/internal/history"
	"github.com/askdata/askdata/internal/ingest"
	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/prompt"
	"github.com/askdata/askdata/internal/query"
	"github.com/askdata/askdata/internal/registry"
	"github.com/askdata/askdata/internal/store"
)

type harness struct {
	service    *Service
	store      *fakeStore
	translator *fakeTranslator
	engine     *fakeEngine
	history    *history.Memory
}

func newHarness(t *testing.T) harness {
	t.Helper()
	st := newFakeStore()
	translator := &fakeTranslator{sql: `SELECT COUNT(*) FROM "data"`}
	engine := &fakeEngine{}
	recorder := history.NewMemory(10)
	return harness{
		service: &Service{
			Store:      st,
			Ingestor:   ingest.New(st, ingest.Options{}),
			Registry:   registry.New(),
			Translator: translator,
			Engine:     engine,
			History:    recorder,
		},
		store:      st,
		translator: translator,
		engine:     engine,
		history:    recorder,
	}
}

func TestIngestCSVScenario(t *testing.T) {
	h := newHarness(t)

	result, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("name,age\nann,31\nbob,42\ncy,27\n"))
	require.NoError(t, err)

	assert.Equal(t, "File uploaded successfully", result.Message)
	assert.Equal(t, []string{"data"}, result.AllTables)
	assert.Equal(t, "data", result.TableName)
	assert.Equal(t, []string{"name", "age"}, result.Columns)
	assert.Len(t, result.Rows, 3)
	assert.Equal(t, map[string]any{"name": "ann", "age": int64(31)}, result.Rows[0])
	assert.Equal(t, int64(3), result.TotalRows)
	assert.Equal(t, 3, result.PreviewRows)

	state := h.service.Schema()
	assert.Equal(t, []string{"data"}, state.Tables)
	assert.Len(t, state.Snapshots["data"].SampleRows, 3)

	ingestions, err := h.service.RecentIngestions(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, ingestions, 1)
	assert.Equal(t, history.StatusOK, ingestions[0].Status)
	assert.Equal(t, "csv", ingestions[0].Format)
}

func TestIngestSampleIsCappedAndPreviewBounded(t *testing.T) {
	h := newHarness(t)
	var b strings.Builder
	b.WriteString("n\n")
	for i := 0; i < 30; i++ {
		b.WriteString("1\n")
	}

	result, err := h.service.Ingest(context.Background(), "many.csv", strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, 20, result.PreviewRows)
	assert.Equal(t, int64(30), result.TotalRows)
	assert.Len(t, h.service.Schema().Snapshots["data"].SampleRows, 5)
}

func TestIngestCSVReplacesRegistryWithoutUnion(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE orders (id int); CREATE TABLE customers (id int);"))
	require.NoError(t, err)
	assert.Equal(t, []string{"customers", "orders"}, h.service.Schema().Tables)

	_, err = h.service.Ingest(context.Background(), "people.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"data"}, h.service.Schema().Tables)
}

func TestIngestScriptReportsOutcomes(t *testing.T) {
	h := newHarness(t)
	h.store.previewFails["broken"] = errors.New("permission denied")

	result, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE broken (id int);\nBOGUS;\nCREATE TABLE orders (id int);\n"))
	require.NoError(t, err)

	assert.Equal(t, []string{"broken", "orders"}, result.AllTables)
	require.Len(t, result.StatementFailures, 1)
	assert.Equal(t, 1, result.StatementFailures[0].Index)
	require.Len(t, result.PreviewFailures, 1)
	assert.Equal(t, "broken", result.PreviewFailures[0].Table)

	state := h.service.Schema()
	assert.Empty(t, state.Snapshots["broken"].SampleRows)
	assert.Len(t, state.Snapshots["orders"].SampleRows, 1)
}

func TestIngestUnsupportedFormatLeavesRegistry(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	before := h.service.Schema()

	_, err = h.service.Ingest(context.Background(), "notes.txt", strings.NewReader("hello"))
	require.ErrorIs(t, err, ingest.ErrUnsupportedFormat)
	assert.Equal(t, CodeUnsupportedFormat, ErrorCode(err))
	assert.Equal(t, before.Version, h.service.Schema().Version)

	ingestions, _ := h.service.RecentIngestions(context.Background(), 5)
	require.Len(t, ingestions, 2)
	assert.Equal(t, history.StatusFailed, ingestions[0].Status)
}

func TestAskWithoutDataSkipsGeneration(t *testing.T) {
	h := newHarness(t)

	_, err := h.service.Ask(context.Background(), "how many rows?")
	require.ErrorIs(t, err, ErrNoDataUploaded)
	assert.Equal(t, 0, h.translator.calls())
	assert.Empty(t, h.engine.requests)

	questions, _ := h.service.RecentQuestions(context.Background(), 5)
	require.Len(t, questions, 1)
	assert.Equal(t, CodeNoData, questions[0].ErrorCode)
}

func TestAskSanitizesFencedSQLAndExecutes(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("name,age\nann,31\nbob,42\n"))
	require.NoError(t, err)

	h.translator.sql = "```sql\nSELECT \"name\" FROM \"data\"\n```"
	h.engine.result = query.Result{
		Columns: []string{"name"},
		Rows:    []map[string]any{{"name": "ann"}, {"name": "bob"}},
	}

	result, err := h.service.Ask(context.Background(), "list names")
	require.NoError(t, err)
	assert.Equal(t, `SELECT "name" FROM "data"`, result.SQL)
	assert.Equal(t, 2, result.RowCount)
	assert.Equal(t, []string{"name"}, result.Columns)
	assert.Equal(t, []string{"data"}, result.TablesUsed)
	assert.Equal(t, "list names", result.Question)

	require.Len(t, h.engine.requests, 1)
	assert.Equal(t, `SELECT "name" FROM "data"`, h.engine.requests[0].SQL)

	request := h.translator.requests[0]
	assert.Equal(t, prompt.ModeMulti, request.Mode)
	require.Len(t, request.Tables, 1)
	assert.Equal(t, []string{"name", "age"}, request.Tables[0].Columns)
	assert.Len(t, request.Tables[0].TopRows, 2)
}

func TestAskSendsEveryRegisteredTable(t *testing.T) {
	h := newHarness(t)
	h.service.Config.GenerationMode = nl2sql.ModeAuto
	_, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE a (id int); CREATE TABLE b (id int); CREATE TABLE c (id int)"))
	require.NoError(t, err)

	result, err := h.service.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, result.TablesUsed)

	request := h.translator.requests[0]
	assert.Equal(t, prompt.ModeMulti, request.Mode)
	names := []string{}
	for _, table := range request.Tables {
		names = append(names, table.TableName)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestAskFailures(t *testing.T) {
	tests := []struct {
		name     string
		prepare  func(h harness)
		wantErr  error
		wantCode string
	}{
		{
			name:     "generation unavailable",
			prepare:  func(h harness) { h.translator.err = nl2sql.ErrGenerationUnavailable },
			wantErr:  nl2sql.ErrGenerationUnavailable,
			wantCode: CodeGenerationUnavailable,
		},
		{
			name:     "fence only output",
			prepare:  func(h harness) { h.translator.sql = "```sql\n```" },
			wantErr:  nl2sql.ErrGenerationEmpty,
			wantCode: CodeGenerationEmpty,
		},
		{
			name:     "execution error",
			prepare:  func(h harness) { h.engine.err = query.Failed(errors.New(`relation "nope" does not exist`)) },
			wantErr:  query.ErrExecution,
			wantCode: CodeExecutionFailed,
		},
		{
			name:     "table dropped behind the registry",
			prepare:  func(h harness) { _ = h.store.DropTable(context.Background(), "data") },
			wantErr:  registry.ErrStaleRegistry,
			wantCode: CodeStaleSchema,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			_, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("a\n1\n"))
			require.NoError(t, err)
			tc.prepare(h)

			_, err = h.service.Ask(context.Background(), "q")
			require.ErrorIs(t, err, tc.wantErr)
			assert.Equal(t, tc.wantCode, ErrorCode(err))
		})
	}
}

func TestAskPassesReadOnlyOption(t *testing.T) {
	h := newHarness(t)
	h.service.Config.ReadOnly = true
	h.service.Config.MaxRows = 100
	_, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)

	_, err = h.service.Ask(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, query.Request{SQL: `SELECT COUNT(*) FROM "data"`, ReadOnly: true, MaxRows: 100}, h.engine.requests[0])
}

func TestDeleteAllOnEmptyRegistry(t *testing.T) {
	h := newHarness(t)

	result, err := h.service.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "No data to delete", result.Message)
	assert.Empty(t, result.DeletedTables)
}

func TestDeleteAllDropsAndClears(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE a (id int); CREATE TABLE b (id int)"))
	require.NoError(t, err)

	result, err := h.service.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted 2 table(s)", result.Message)
	assert.Equal(t, []string{"a", "b"}, result.DeletedTables)
	assert.True(t, h.service.Schema().Empty())

	_, err = h.service.Ask(context.Background(), "q")
	require.ErrorIs(t, err, ErrNoDataUploaded)
}

func TestDeleteAllClearsRegistryWhenEveryDropFails(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE a (id int); CREATE TABLE b (id int)"))
	require.NoError(t, err)
	h.store.dropFails["a"] = errors.New("locked")
	h.store.dropFails["b"] = errors.New("locked")

	result, err := h.service.DeleteAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Successfully deleted 0 table(s)", result.Message)
	assert.Empty(t, result.DeletedTables)
	assert.Len(t, result.DropFailures, 2)

	state := h.service.Schema()
	assert.Empty(t, state.Tables)
	assert.Empty(t, state.Primary)
	assert.Empty(t, state.Snapshots)
}

func TestRefreshDropsVanishedTables(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "dump.sql", strings.NewReader("CREATE TABLE a (id int); CREATE TABLE b (id int)"))
	require.NoError(t, err)
	require.NoError(t, h.store.DropTable(context.Background(), "a"))
	h.store.relations["b"] = store.Relation{
		Name:    "b",
		Columns: []store.Column{{Name: "id", Type: store.TypeBigInt}, {Name: "v", Type: store.TypeText}},
		Rows:    [][]any{{int64(1), "x"}, {int64(2), "y"}},
	}

	result, err := h.service.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, result.Removed)
	assert.Equal(t, []string{"b"}, result.State.Tables)
	assert.Equal(t, "b", result.State.Primary)
	assert.Equal(t, []string{"id", "v"}, result.State.Snapshots["b"].Columns)
	assert.Len(t, result.State.Snapshots["b"].SampleRows, 2)
}

func TestIngestMalformedUploadLeavesRegistry(t *testing.T) {
	h := newHarness(t)
	_, err := h.service.Ingest(context.Background(), "people.csv", strings.NewReader("a\n1\n"))
	require.NoError(t, err)
	before := h.service.Schema()

	_, err = h.service.Ingest(context.Background(), "ragged.csv", strings.NewReader("a,b\n1,2,3\n"))
	require.ErrorIs(t, err, ingest.ErrMalformedUpload)
	assert.Equal(t, CodeIngestionFailed, ErrorCode(err))
	assert.Equal(t, before.Version, h.service.Schema().Version)

	ingestions, _ := h.service.RecentIngestions(context.Background(), 5)
	require.Len(t, ingestions, 2)
	assert.Equal(t, history.StatusFailed, ingestions[0].Status)
}

func TestErrorCodeDefaultsToInternal(t *testing.T) {
	assert.Equal(t, "", ErrorCode(nil))
	assert.Equal(t, CodeInternal, ErrorCode(errors.New("boom")))
}
