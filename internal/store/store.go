// Package store describes the synchronous administration connection to the
// relational store: materializing relations, running uploaded scripts,
// discovering and previewing tables, and dropping them.
package store

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidRelation = errors.New("invalid relation")

const (
	TypeBigInt  = "BIGINT"
	TypeDouble  = "DOUBLE PRECISION"
	TypeBoolean = "BOOLEAN"
	TypeText    = "TEXT"
)

type Column struct {
	Name string
	Type string
}

// Relation is a table to materialize. Every row has one value per column,
// already converted to the column's Go type (int64, float64, bool, string)
// or nil.
type Relation struct {
	Name    string
	Columns []Column
	Rows    [][]any
}

func (r Relation) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, column := range r.Columns {
		names[i] = column.Name
	}
	return names
}

func (r Relation) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidRelation)
	}
	if len(r.Columns) == 0 {
		return fmt.Errorf("%w: %q has no columns", ErrInvalidRelation, r.Name)
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("%w: row %d has %d values for %d columns", ErrInvalidRelation, i, len(row), len(r.Columns))
		}
	}
	return nil
}

// StatementOutcome records one statement of an uploaded SQL script. Err is
// nil when the statement succeeded.
type StatementOutcome struct {
	Index     int    `json:"index"`
	Statement string `json:"statement"`
	Err       error  `json:"-"`
}

// Preview is the head of a table. Columns are reported even when the table
// has no rows.
type Preview struct {
	Columns []string
	Rows    [][]any
}

type Store interface {
	ReplaceTable(ctx context.Context, relation Relation) error
	ExecScript(ctx context.Context, statements []string) ([]StatementOutcome, error)
	ListTables(ctx context.Context) ([]string, error)
	TableExists(ctx context.Context, table string) (bool, error)
	Preview(ctx context.Context, table string, limit int) (Preview, error)
	CountRows(ctx context.Context, table string) (int64, error)
	DropTable(ctx context.Context, table string) error
	Ping(ctx context.Context) error
}
