package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/askdata/askdata/internal/prompt"
)

var (
	ErrGenerationUnavailable = errors.New("generation backend unavailable")
	ErrGenerationEmpty       = errors.New("generation returned empty SQL")
)

const (
	ModeMulti  = "multi"
	ModeSingle = "single"
	ModeAuto   = "auto"
)

// TableSchema is one table of grounding context as sent to the backend.
type TableSchema struct {
	TableName string   `json:"table_name"`
	Columns   []string `json:"columns"`
	TopRows   [][]any  `json:"top_rows"`
}

type Request struct {
	Question string
	Tables   []TableSchema
	Mode     prompt.Mode
}

type Result struct {
	SQL      string      `json:"sql"`
	Provider string      `json:"provider"`
	Model    string      `json:"model,omitempty"`
	Mode     prompt.Mode `json:"mode"`
}

type Translator interface {
	Translate(ctx context.Context, req Request) (Result, error)
}

// MultiRequest is the canonical generation payload.
type MultiRequest struct {
	Schemas []TableSchema `json:"schemas"`
	Query   string        `json:"query"`
}

type SingleSchema struct {
	Columns []string `json:"columns"`
	TopRows [][]any  `json:"top_rows"`
}

// SingleRequest is the legacy one-table payload.
type SingleRequest struct {
	Schema    SingleSchema `json:"schema"`
	Query     string       `json:"query"`
	TableName string       `json:"table_name"`
}

type Response struct {
	SQL string `json:"sql"`
}

// ResolveMode maps a configured generation mode onto a prompt mode for a
// given number of tables. Auto picks single only for exactly one table.
func ResolveMode(configured string, tableCount int) (prompt.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(configured)) {
	case "", ModeMulti:
		return prompt.ModeMulti, nil
	case ModeSingle:
		return prompt.ModeSingle, nil
	case ModeAuto:
		if tableCount == 1 {
			return prompt.ModeSingle, nil
		}
		return prompt.ModeMulti, nil
	default:
		return "", fmt.Errorf("unknown generation mode %q", configured)
	}
}

// Payload returns the wire body for the request's mode. Single mode sends
// only the first table.
func (r Request) Payload() (any, error) {
	switch r.Mode {
	case prompt.ModeMulti, "":
		schemas := r.Tables
		if schemas == nil {
			schemas = []TableSchema{}
		}
		return MultiRequest{Schemas: schemas, Query: r.Question}, nil
	case prompt.ModeSingle:
		if len(r.Tables) == 0 {
			return nil, fmt.Errorf("single generation request needs a table")
		}
		first := r.Tables[0]
		return SingleRequest{
			Schema:    SingleSchema{Columns: first.Columns, TopRows: first.TopRows},
			Query:     r.Question,
			TableName: first.TableName,
		}, nil
	default:
		return nil, fmt.Errorf("unknown prompt mode %q", r.Mode)
	}
}

func (r Request) PromptTables() []prompt.Table {
	out := make([]prompt.Table, 0, len(r.Tables))
	for _, table := range r.Tables {
		out = append(out, prompt.Table{Name: table.TableName, Columns: table.Columns, Rows: table.TopRows})
	}
	return out
}

const defaultSingleTable = "data"

// ParseRequest decodes either wire shape. A body carrying "schemas" is a
// multi request; one carrying "schema" is a single request whose table
// name defaults to "data".
func ParseRequest(body []byte) (Request, error) {
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(body, &shape); err != nil {
		return Request{}, fmt.Errorf("decode generation request: %w", err)
	}
	if _, ok := shape["schemas"]; ok {
		var multi MultiRequest
		if err := json.Unmarshal(body, &multi); err != nil {
			return Request{}, fmt.Errorf("decode multi generation request: %w", err)
		}
		return Request{Question: multi.Query, Tables: multi.Schemas, Mode: prompt.ModeMulti}, nil
	}
	if _, ok := shape["schema"]; ok {
		var single SingleRequest
		if err := json.Unmarshal(body, &single); err != nil {
			return Request{}, fmt.Errorf("decode single generation request: %w", err)
		}
		if strings.TrimSpace(single.TableName) == "" {
			single.TableName = defaultSingleTable
		}
		return Request{
			Question: single.Query,
			Tables: []TableSchema{{
				TableName: single.TableName,
				Columns:   single.Schema.Columns,
				TopRows:   single.Schema.TopRows,
			}},
			Mode: prompt.ModeSingle,
		}, nil
	}
	return Request{}, fmt.Errorf("generation request needs schemas or schema")
}
