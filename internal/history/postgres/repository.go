// Package postgres stores the ingestion and question audit trail in the
// askdata_meta schema.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/askdata/askdata/internal/history"
)

const defaultListLimit = 50

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping history db: %w", err)
	}
	return nil
}

func (r *Repository) RecordIngestion(ctx context.Context, entry history.Ingestion) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	tablesJSON, err := encodeTables(entry.Tables)
	if err != nil {
		return err
	}

	query := `
INSERT INTO askdata_meta.ingestion_log (ingestion_id, filename, format, size_bytes, tables, total_rows, statement_failures, archive_key, status, error_message)
VALUES ($1, $2, $3, $4, $5::jsonb, $6, $7, $8, $9, $10)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.Filename,
		entry.Format,
		entry.SizeBytes,
		tablesJSON,
		entry.TotalRows,
		entry.StatementFailures,
		nullableString(entry.ArchiveKey),
		entry.Status,
		nullableString(entry.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("record ingestion: %w", err)
	}
	return nil
}

func (r *Repository) RecordQuestion(ctx context.Context, entry history.Question) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	tablesJSON, err := encodeTables(entry.TablesUsed)
	if err != nil {
		return err
	}

	query := `
INSERT INTO askdata_meta.question_log (question_id, question, generated_sql, tables_used, result_rows, status, error_code, error_message, generation_ms, execution_ms, registry_version)
VALUES ($1, $2, $3, $4::jsonb, $5, $6, $7, $8, $9, $10, $11)`
	_, err = r.db.ExecContext(ctx, query,
		entry.ID.String(),
		entry.Question,
		nullableString(entry.SQL),
		tablesJSON,
		entry.ResultRows,
		entry.Status,
		nullableString(entry.ErrorCode),
		nullableString(entry.ErrorMessage),
		entry.GenerationMs,
		entry.ExecutionMs,
		int64(entry.RegistryVersion),
	)
	if err != nil {
		return fmt.Errorf("record question: %w", err)
	}
	return nil
}

func (r *Repository) RecentIngestions(ctx context.Context, limit int) ([]history.Ingestion, error) {
	query := `
SELECT ingestion_id, filename, format, size_bytes, tables::text, total_rows, statement_failures, COALESCE(archive_key, ''), status, COALESCE(error_message, ''), created_at
FROM askdata_meta.ingestion_log
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list ingestions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]history.Ingestion, 0)
	for rows.Next() {
		var item history.Ingestion
		var tablesJSON string
		if err := rows.Scan(
			&item.ID,
			&item.Filename,
			&item.Format,
			&item.SizeBytes,
			&tablesJSON,
			&item.TotalRows,
			&item.StatementFailures,
			&item.ArchiveKey,
			&item.Status,
			&item.ErrorMessage,
			&item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan ingestion: %w", err)
		}
		if item.Tables, err = decodeTables(tablesJSON); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ingestions: %w", err)
	}
	return out, nil
}

func (r *Repository) RecentQuestions(ctx context.Context, limit int) ([]history.Question, error) {
	query := `
SELECT question_id, question, COALESCE(generated_sql, ''), tables_used::text, result_rows, status, COALESCE(error_code, ''), COALESCE(error_message, ''), generation_ms, execution_ms, registry_version, created_at
FROM askdata_meta.question_log
ORDER BY created_at DESC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, query, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]history.Question, 0)
	for rows.Next() {
		var item history.Question
		var tablesJSON string
		var registryVersion int64
		var createdAt time.Time
		if err := rows.Scan(
			&item.ID,
			&item.Question,
			&item.SQL,
			&tablesJSON,
			&item.ResultRows,
			&item.Status,
			&item.ErrorCode,
			&item.ErrorMessage,
			&item.GenerationMs,
			&item.ExecutionMs,
			&registryVersion,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan question: %w", err)
		}
		if item.TablesUsed, err = decodeTables(tablesJSON); err != nil {
			return nil, err
		}
		item.RegistryVersion = uint64(registryVersion)
		item.CreatedAt = createdAt
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate questions: %w", err)
	}
	return out, nil
}

func encodeTables(tables []string) (string, error) {
	if tables == nil {
		tables = []string{}
	}
	encoded, err := json.Marshal(tables)
	if err != nil {
		return "", fmt.Errorf("encode tables: %w", err)
	}
	return string(encoded), nil
}

func decodeTables(raw string) ([]string, error) {
	tables := []string{}
	if raw == "" {
		return tables, nil
	}
	if err := json.Unmarshal([]byte(raw), &tables); err != nil {
		return nil, fmt.Errorf("decode tables: %w", err)
	}
	return tables, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return defaultListLimit
	}
	return limit
}

var _ history.Recorder = (*Repository)(nil)
