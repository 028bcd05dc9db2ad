// Package postgres runs generated statements against PostgreSQL on a fresh
// connection per call.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/askdata/askdata/internal/query"
)

type Config struct {
	DSN            string
	ConnectTimeout time.Duration
}

type Engine struct {
	dsn            string
	connectTimeout time.Duration
}

func NewEngine(cfg Config) (*Engine, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, fmt.Errorf("query dsn is required")
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Engine{dsn: dsn, connectTimeout: timeout}, nil
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	sqlText := strings.TrimSpace(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	start := time.Now()

	connectCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()
	connCfg, err := pgx.ParseConfig(e.dsn)
	if err != nil {
		return query.Result{}, fmt.Errorf("parse query dsn: %w", err)
	}
	connCfg.ConnectTimeout = e.connectTimeout
	conn, err := pgx.ConnectConfig(connectCtx, connCfg)
	if err != nil {
		return query.Result{}, query.Failed(fmt.Errorf("connect: %w", err))
	}
	defer func() { _ = conn.Close(context.WithoutCancel(ctx)) }()

	if !request.ReadOnly {
		return collect(ctx, conn, sqlText, request.MaxRows, start)
	}

	tx, err := conn.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return query.Result{}, query.Failed(err)
	}
	defer func() { _ = tx.Rollback(context.WithoutCancel(ctx)) }()

	result, err := collect(ctx, tx, sqlText, request.MaxRows, start)
	if err != nil {
		return query.Result{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return query.Result{}, query.Failed(err)
	}
	return result, nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// The simple protocol lets a statement with no result set (DDL, DML) run
// through Query just like a SELECT.
func collect(ctx context.Context, q querier, sqlText string, maxRows int, start time.Time) (query.Result, error) {
	rows, err := q.Query(ctx, sqlText, pgx.QueryExecModeSimpleProtocol)
	if err != nil {
		return query.Result{}, query.Failed(err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	dates := make([]bool, len(fields))
	for i, field := range fields {
		columns[i] = field.Name
		dates[i] = field.DataTypeOID == pgtype.DateOID
	}

	collector := query.NewCollector(columns, maxRows)
	collector.MarkDateColumns(dates)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return query.Result{}, query.Failed(err)
		}
		if !collector.Add(normalizeValues(values)) {
			break
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return query.Result{}, query.Failed(err)
	}
	return collector.Result(start), nil
}

// normalizeValues turns pgx-specific value types into plain Go values before
// the shared normalization runs.
func normalizeValues(values []any) []any {
	out := make([]any, len(values))
	for i, value := range values {
		out[i] = normalizeValue(value)
	}
	return out
}

func normalizeValue(value any) any {
	switch typed := value.(type) {
	case pgtype.Numeric:
		if !typed.Valid || typed.NaN {
			return nil
		}
		f, err := typed.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case [16]byte:
		return uuid.UUID(typed).String()
	case pgtype.Interval:
		if !typed.Valid {
			return nil
		}
		return fmt.Sprintf("%d months %d days %s", typed.Months, typed.Days, time.Duration(typed.Microseconds)*time.Microsecond)
	case pgtype.Time:
		if !typed.Valid {
			return nil
		}
		return time.Time{}.Add(time.Duration(typed.Microseconds) * time.Microsecond).Format("15:04:05")
	case []any:
		return normalizeValues(typed)
	}
	return value
}

var _ query.Engine = (*Engine)(nil)
