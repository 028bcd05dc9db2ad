package query

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrExecution marks a statement the store rejected or failed to run.
var ErrExecution = errors.New("query execution failed")

type Request struct {
	SQL      string
	ReadOnly bool
	MaxRows  int
}

type Result struct {
	Columns   []string
	Rows      []map[string]any
	Truncated bool
	Duration  time.Duration
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}

// ExecutionError carries the store's own message so callers can surface it
// verbatim. It matches ErrExecution under errors.Is.
type ExecutionError struct {
	Cause error
}

func (e *ExecutionError) Error() string {
	if e.Cause == nil {
		return ErrExecution.Error()
	}
	return e.Cause.Error()
}

func (e *ExecutionError) Unwrap() []error {
	return []error{ErrExecution, e.Cause}
}

func Failed(cause error) error {
	return &ExecutionError{Cause: cause}
}

var readOnlyKeywords = map[string]struct{}{
	"select":   {},
	"with":     {},
	"values":   {},
	"table":    {},
	"show":     {},
	"explain":  {},
	"describe": {},
}

// IsReadOnlySQL reports whether sqlText is a single statement that starts
// with a reading keyword. Data-modifying CTEs are not detected.
func IsReadOnlySQL(sqlText string) bool {
	trimmed := StripTrailingSemicolons(stripLeadingComments(sqlText))
	if trimmed == "" || strings.Contains(trimmed, ";") {
		return false
	}
	for len(trimmed) > 0 && trimmed[0] == '(' {
		trimmed = strings.TrimSpace(trimmed[1:])
	}
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return false
	}
	keyword := strings.ToLower(strings.TrimRight(fields[0], "("))
	_, ok := readOnlyKeywords[keyword]
	return ok
}

func StripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}

func stripLeadingComments(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for {
		switch {
		case strings.HasPrefix(trimmed, "--"):
			end := strings.IndexByte(trimmed, '\n')
			if end < 0 {
				return ""
			}
			trimmed = strings.TrimSpace(trimmed[end+1:])
		case strings.HasPrefix(trimmed, "/*"):
			end := strings.Index(trimmed, "*/")
			if end < 0 {
				return ""
			}
			trimmed = strings.TrimSpace(trimmed[end+2:])
		default:
			return trimmed
		}
	}
}

// Collector accumulates scanned rows into a Result, honoring MaxRows.
//
// Rows are keyed by column name, so a statement returning the same name
// twice yields one key holding the later value. Result.Columns lists each
// name once, in first-seen order.
type Collector struct {
	columns []string
	names   []string
	dates   []bool
	maxRows int
	result  Result
}

func NewCollector(columns []string, maxRows int) *Collector {
	seen := make(map[string]struct{}, len(columns))
	names := make([]string, 0, len(columns))
	for _, column := range columns {
		if _, ok := seen[column]; ok {
			continue
		}
		seen[column] = struct{}{}
		names = append(names, column)
	}
	return &Collector{
		columns: columns,
		names:   names,
		maxRows: maxRows,
		result:  Result{Rows: make([]map[string]any, 0)},
	}
}

// MarkDateColumns flags result positions that hold DATE values; their time
// values render without a clock part.
func (c *Collector) MarkDateColumns(dates []bool) {
	c.dates = dates
}

func (c *Collector) isDate(i int) bool {
	return i < len(c.dates) && c.dates[i]
}

// Add records one row. It returns false once the row cap is reached.
func (c *Collector) Add(values []any) bool {
	if c.maxRows > 0 && len(c.result.Rows) >= c.maxRows {
		c.result.Truncated = true
		return false
	}
	row := make(map[string]any, len(c.names))
	for i, column := range c.columns {
		if i >= len(values) {
			row[column] = nil
			continue
		}
		value := values[i]
		if c.isDate(i) {
			value = AsDate(value)
		}
		row[column] = NormalizeValue(value)
	}
	c.result.Rows = append(c.result.Rows, row)
	return true
}

// Result returns the collected rows. Columns are reported only when at least
// one row came back.
func (c *Collector) Result(started time.Time) Result {
	out := c.result
	out.Columns = []string{}
	if len(out.Rows) > 0 {
		out.Columns = append(out.Columns, c.names...)
	}
	out.Duration = time.Since(started)
	return out
}
