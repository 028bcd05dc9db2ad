// Package prompt renders the grounding instruction sent to a SQL generator.
//
// The wording is part of the generator contract: the dialect declaration,
// the double-quote rule and its example, the alias and invention bans, the
// per-table schema block, the user question and the SQL-only instruction
// must all be present, in that order.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

type Mode string

const (
	ModeMulti  Mode = "multi"
	ModeSingle Mode = "single"
)

// Table is one schema block. Rows are zipped against Columns by position.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

const preamble = "You are an expert SQL developer working with PostgreSQL.\n" +
	"ALWAYS wrap every table and column name in double quotes (\"\") exactly as shown below. " +
	"For example, write SELECT \"P\" FROM \"data\", not SELECT P FROM data.\n" +
	"Do NOT use table aliases unless asked in the user question.\n" +
	"Do NOT guess or hallucinate table or column names not shown in the schema below.\n" +
	"If a table or column name contains spaces, case, or unusual characters, you MUST use double quotes (\"\").\n"

const sqlOnly = "Respond ONLY with the SQL query and nothing else."

// Multi renders the canonical multi-table prompt. Every table appears once,
// in the given order, including tables without sample rows.
func Multi(tables []Table, question string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("Given the schemas and example rows for multiple tables below, write a valid SQL query.\n\n")
	for _, table := range tables {
		writeTable(&b, table)
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "User question:\n%s\n\n", question)
	b.WriteString(sqlOnly)
	return b.String()
}

// Single renders the legacy one-table prompt, which also pins the generator
// to the given table name.
func Single(table Table, question string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("Given the schema and example rows below, write a valid SQL query.\n\n")
	writeTable(&b, table)
	fmt.Fprintf(&b, "User question:\n%s\n\n", question)
	fmt.Fprintf(&b, "Only refer to the table as %q in the SQL. ", table.Name)
	b.WriteString(sqlOnly)
	return b.String()
}

func Render(mode Mode, tables []Table, question string) (string, error) {
	switch mode {
	case ModeMulti, "":
		return Multi(tables, question), nil
	case ModeSingle:
		if len(tables) == 0 {
			return "", fmt.Errorf("single-table prompt needs a table")
		}
		return Single(tables[0], question), nil
	default:
		return "", fmt.Errorf("unknown prompt mode %q", mode)
	}
}

// ArityMismatches counts sample rows whose length differs from the column
// list. Such rows are still rendered, truncated to the shorter side.
func ArityMismatches(table Table) int {
	count := 0
	for _, row := range table.Rows {
		if len(row) != len(table.Columns) {
			count++
		}
	}
	return count
}

func writeTable(b *strings.Builder, table Table) {
	fmt.Fprintf(b, "Table name: %s\n", table.Name)
	fmt.Fprintf(b, "Columns: %s\n", strings.Join(table.Columns, ", "))
	b.WriteString("Top rows:\n")
	for _, row := range table.Rows {
		b.WriteString(formatRow(table.Columns, row))
		b.WriteString("\n")
	}
}

func formatRow(columns []string, row []any) string {
	n := len(columns)
	if len(row) < n {
		n = len(row)
	}
	pairs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, fmt.Sprintf("%s: %s", quoteKey(columns[i]), formatValue(row[i])))
	}
	return "{" + strings.Join(pairs, ", ") + "}"
}

func quoteKey(key string) string {
	encoded, err := encodeLiteral(key)
	if err != nil {
		return fmt.Sprintf("%q", key)
	}
	return encoded
}

func formatValue(value any) string {
	encoded, err := encodeLiteral(value)
	if err != nil {
		return fmt.Sprintf("%q", fmt.Sprint(value))
	}
	return encoded
}

// encodeLiteral renders value as JSON with <, > and & left as written; the
// model reads sample values verbatim.
func encodeLiteral(value any) (string, error) {
	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(value); err != nil {
		return "", err
	}
	return strings.TrimSuffix(buf.String(), "\n"), nil
}
