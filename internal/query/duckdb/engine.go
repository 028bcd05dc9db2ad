// Package duckdb runs generated statements against the embedded DuckDB
// store, for single-binary deployments.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/askdata/askdata/internal/query"
)

// Engine borrows a fresh connection from the shared database handle for
// every statement. DuckDB holds a file lock, so a second handle on the same
// file cannot be opened.
type Engine struct {
	DB *sql.DB
}

func NewEngine(db *sql.DB) *Engine {
	return &Engine{DB: db}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if e.DB == nil {
		return query.Result{}, fmt.Errorf("duckdb handle is required")
	}
	sqlText := query.StripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.ReadOnly && !query.IsReadOnlySQL(sqlText) {
		return query.Result{}, query.Failed(fmt.Errorf("read-only mode accepts a single SELECT or WITH statement"))
	}

	start := time.Now()
	conn, err := e.DB.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("acquire duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, query.Failed(err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, query.Failed(err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		return query.Result{}, query.Failed(err)
	}

	collector := query.NewCollector(columns, request.MaxRows)
	collector.MarkDateColumns(query.DateColumns(types))
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, query.Failed(err)
		}
		if !collector.Add(values) {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, query.Failed(err)
	}
	return collector.Result(start), nil
}

// Open opens an embedded DuckDB database. An empty path is an in-memory
// database.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", strings.TrimSpace(path))
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return db, nil
}

var _ query.Engine = (*Engine)(nil)
