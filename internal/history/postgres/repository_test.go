package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"

	"github.com/askdata/askdata/internal/history"
)

func TestRecordIngestion(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	id := uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO askdata_meta.ingestion_log`)).
		WithArgs(id.String(), "sales.csv", "csv", int64(120), `["data"]`, int64(3), 0, nil, history.StatusOK, nil).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RecordIngestion(context.Background(), history.Ingestion{
		ID:        id,
		Filename:  "sales.csv",
		Format:    "csv",
		SizeBytes: 120,
		Tables:    []string{"data"},
		TotalRows: 3,
		Status:    history.StatusOK,
	})
	if err != nil {
		t.Fatalf("RecordIngestion() error = %v", err)
	}
	assertSQLMock(t, mock)
}

func TestRecordQuestionWrapsError(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO askdata_meta.question_log`)).
		WillReturnError(errors.New("connection reset"))

	err := repo.RecordQuestion(context.Background(), history.Question{Question: "q", Status: history.StatusFailed})
	if err == nil {
		t.Fatal("expected error")
	}
	assertSQLMock(t, mock)
}

func TestRecentQuestions(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM askdata_meta.question_log
ORDER BY created_at DESC
LIMIT $1`)).
		WithArgs(50).
		WillReturnRows(sqlmock.NewRows([]string{
			"question_id", "question", "generated_sql", "tables_used", "result_rows", "status",
			"error_code", "error_message", "generation_ms", "execution_ms", "registry_version", "created_at",
		}).AddRow(id.String(), "how many?", `SELECT COUNT(*) FROM "data"`, `["data","orders"]`, 1, history.StatusOK, "", "", int64(12), int64(3), int64(4), now))

	items, err := repo.RecentQuestions(context.Background(), 0)
	if err != nil {
		t.Fatalf("RecentQuestions() error = %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("len(items) = %d", len(items))
	}
	item := items[0]
	if item.ID != id || item.RegistryVersion != 4 || len(item.TablesUsed) != 2 || item.TablesUsed[1] != "orders" {
		t.Fatalf("item = %+v", item)
	}
	assertSQLMock(t, mock)
}

func TestRecentIngestions(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now().UTC()
	id := uuid.New()

	mock.ExpectQuery(regexp.QuoteMeta(`FROM askdata_meta.ingestion_log`)).
		WithArgs(10).
		WillReturnRows(sqlmock.NewRows([]string{
			"ingestion_id", "filename", "format", "size_bytes", "tables", "total_rows",
			"statement_failures", "archive_key", "status", "error_message", "created_at",
		}).AddRow(id.String(), "dump.sql", "sql", int64(99), `["a","b"]`, int64(0), 2, "", history.StatusOK, "", now))

	items, err := repo.RecentIngestions(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentIngestions() error = %v", err)
	}
	if len(items) != 1 || items[0].StatementFailures != 2 || len(items[0].Tables) != 2 {
		t.Fatalf("items = %+v", items)
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
