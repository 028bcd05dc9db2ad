// Package sqlstore implements store.Store over database/sql, for PostgreSQL
// (pgx stdlib driver) and embedded DuckDB.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/askdata/askdata/internal/query"
	"github.com/askdata/askdata/internal/store"
)

const (
	defaultBatchSize = 500
	// PostgreSQL caps a statement at 65535 bind parameters.
	maxBindParams = 65535
)

type Options struct {
	Driver    string
	Schema    string
	BatchSize int
}

type Store struct {
	db        *sql.DB
	schema    string
	batchSize int
}

func New(db *sql.DB, opts Options) *Store {
	schema := strings.TrimSpace(opts.Schema)
	if strings.EqualFold(opts.Driver, DriverDuckDB) && (schema == "" || schema == "public") {
		schema = "main"
	}
	if schema == "" {
		schema = "public"
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Store{db: db, schema: schema, batchSize: batchSize}
}

func (s *Store) Schema() string {
	return s.schema
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ReplaceTable drops any relation with the same name, recreates it with the
// relation's column types and loads every row, all in one transaction.
func (s *Store) ReplaceTable(ctx context.Context, relation store.Relation) error {
	if err := relation.Validate(); err != nil {
		return err
	}
	batch, err := s.insertBatch(len(relation.Columns))
	if err != nil {
		return fmt.Errorf("%w: %q: %v", store.ErrInvalidRelation, relation.Name, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace %q: %w", relation.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	table := s.qualified(relation.Name)
	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
		return fmt.Errorf("drop existing table %q: %w", relation.Name, err)
	}
	if _, err := tx.ExecContext(ctx, createTableSQL(table, relation.Columns)); err != nil {
		return fmt.Errorf("create table %q: %w", relation.Name, err)
	}

	for start := 0; start < len(relation.Rows); start += batch {
		end := start + batch
		if end > len(relation.Rows) {
			end = len(relation.Rows)
		}
		statement, args := insertSQL(table, relation.Columns, relation.Rows[start:end])
		if _, err := tx.ExecContext(ctx, statement, args...); err != nil {
			return fmt.Errorf("insert rows %d-%d into %q: %w", start, end-1, relation.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace %q: %w", relation.Name, err)
	}
	return nil
}

// insertBatch is the number of rows per INSERT that keeps the statement
// under the driver's bind parameter limit.
func (s *Store) insertBatch(columns int) (int, error) {
	limit := maxBindParams / columns
	if limit < 1 {
		return 0, fmt.Errorf("%d columns exceed the %d bind parameters of one insert", columns, maxBindParams)
	}
	return max(1, min(s.batchSize, limit)), nil
}

// ExecScript runs each statement on one connection in autocommit mode and
// keeps going past failures. The returned outcomes cover every statement.
func (s *Store) ExecScript(ctx context.Context, statements []string) ([]store.StatementOutcome, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire script connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	outcomes := make([]store.StatementOutcome, 0, len(statements))
	for i, statement := range statements {
		_, execErr := conn.ExecContext(ctx, statement)
		outcomes = append(outcomes, store.StatementOutcome{Index: i, Statement: statement, Err: execErr})
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcomes, ctxErr
		}
	}
	return outcomes, nil
}

// ListTables returns every base table in the data schema, lower-cased,
// sorted and deduplicated.
func (s *Store) ListTables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT table_name
FROM information_schema.tables
WHERE table_schema = $1 AND table_type = 'BASE TABLE'
ORDER BY table_name`, s.schema)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	seen := map[string]struct{}{}
	tables := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		name = strings.ToLower(name)
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		tables = append(tables, name)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tables: %w", err)
	}
	sort.Strings(tables)
	return tables, nil
}

func (s *Store) TableExists(ctx context.Context, table string) (bool, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM information_schema.tables
WHERE table_schema = $1 AND lower(table_name) = $2`, s.schema, strings.ToLower(table)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check table %q: %w", table, err)
	}
	return count > 0, nil
}

func (s *Store) Preview(ctx context.Context, table string, limit int) (store.Preview, error) {
	statement := `SELECT * FROM ` + s.qualified(table)
	args := []any{}
	if limit > 0 {
		statement += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, statement, args...)
	if err != nil {
		return store.Preview{}, fmt.Errorf("preview %q: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return store.Preview{}, fmt.Errorf("preview columns %q: %w", table, err)
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return store.Preview{}, fmt.Errorf("preview column types %q: %w", table, err)
	}
	dates := query.DateColumns(types)

	preview := store.Preview{Columns: columns, Rows: make([][]any, 0)}
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return store.Preview{}, fmt.Errorf("scan preview row %q: %w", table, err)
		}
		for i, value := range values {
			if dates[i] {
				value = query.AsDate(value)
			}
			values[i] = query.NormalizeValue(value)
		}
		preview.Rows = append(preview.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return store.Preview{}, fmt.Errorf("iterate preview %q: %w", table, err)
	}
	return preview, nil
}

func (s *Store) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+s.qualified(table)).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, fmt.Errorf("count rows %q: %w", table, err)
	}
	return count, nil
}

func (s *Store) DropTable(ctx context.Context, table string) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS `+s.qualified(table)); err != nil {
		return fmt.Errorf("drop table %q: %w", table, err)
	}
	return nil
}

func (s *Store) qualified(table string) string {
	return QuoteIdent(s.schema) + "." + QuoteIdent(table)
}

func QuoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func createTableSQL(table string, columns []store.Column) string {
	defs := make([]string, len(columns))
	for i, column := range columns {
		columnType := column.Type
		if columnType == "" {
			columnType = store.TypeText
		}
		defs[i] = QuoteIdent(column.Name) + " " + columnType
	}
	return `CREATE TABLE ` + table + ` (` + strings.Join(defs, ", ") + `)`
}

func insertSQL(table string, columns []store.Column, rows [][]any) (string, []any) {
	names := make([]string, len(columns))
	for i, column := range columns {
		names[i] = QuoteIdent(column.Name)
	}

	var b strings.Builder
	b.WriteString(`INSERT INTO `)
	b.WriteString(table)
	b.WriteString(` (`)
	b.WriteString(strings.Join(names, ", "))
	b.WriteString(`) VALUES `)

	args := make([]any, 0, len(rows)*len(columns))
	for r, row := range rows {
		if r > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for c := range columns {
			if c > 0 {
				b.WriteString(", ")
			}
			args = append(args, row[c])
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteString(")")
	}
	return b.String(), args
}

var _ store.Store = (*Store)(nil)
