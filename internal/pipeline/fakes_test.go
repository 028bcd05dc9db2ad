package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/askdata/askdata/internal/nl2sql"
	"github.com/askdata/askdata/internal/query"
	"github.com/askdata/askdata/internal/store"
)

type fakeStore struct {
	mu           sync.Mutex
	relations    map[string]store.Relation
	previewFails map[string]error
	dropFails    map[string]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		relations:    map[string]store.Relation{},
		previewFails: map[string]error{},
		dropFails:    map[string]error{},
	}
}

func (f *fakeStore) ReplaceTable(_ context.Context, relation store.Relation) error {
	if err := relation.Validate(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relations[relation.Name] = relation
	return nil
}

// ExecScript understands CREATE TABLE <name> and treats everything else
// other than INSERT as a syntax error.
func (f *fakeStore) ExecScript(_ context.Context, statements []string) ([]store.StatementOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	outcomes := make([]store.StatementOutcome, 0, len(statements))
	for i, statement := range statements {
		outcome := store.StatementOutcome{Index: i, Statement: statement}
		fields := strings.Fields(statement)
		switch {
		case len(fields) >= 3 && strings.EqualFold(fields[0], "CREATE"):
			name := strings.ToLower(strings.Trim(fields[2], `"(`))
			f.relations[name] = store.Relation{
				Name:    name,
				Columns: []store.Column{{Name: "id", Type: store.TypeBigInt}},
				Rows:    [][]any{{int64(1)}},
			}
		case len(fields) >= 1 && strings.EqualFold(fields[0], "INSERT"):
		default:
			outcome.Err = errors.New("syntax error")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (f *fakeStore) ListTables(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tables := make([]string, 0, len(f.relations))
	for name := range f.relations {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

func (f *fakeStore) TableExists(_ context.Context, table string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.relations[table]
	return ok, nil
}

func (f *fakeStore) Preview(_ context.Context, table string, limit int) (store.Preview, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.previewFails[table]; err != nil {
		return store.Preview{}, err
	}
	relation, ok := f.relations[table]
	if !ok {
		return store.Preview{}, errors.New("relation does not exist")
	}
	rows := relation.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return store.Preview{Columns: relation.ColumnNames(), Rows: rows}, nil
}

func (f *fakeStore) CountRows(_ context.Context, table string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.relations[table].Rows)), nil
}

func (f *fakeStore) DropTable(_ context.Context, table string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.dropFails[table]; err != nil {
		return err
	}
	delete(f.relations, table)
	return nil
}

func (f *fakeStore) Ping(context.Context) error { return nil }

type fakeTranslator struct {
	mu       sync.Mutex
	sql      string
	err      error
	requests []nl2sql.Request
}

func (f *fakeTranslator) Translate(_ context.Context, req nl2sql.Request) (nl2sql.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nl2sql.Result{}, f.err
	}
	return nl2sql.Result{SQL: f.sql, Provider: "fake", Mode: req.Mode}, nil
}

func (f *fakeTranslator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

type fakeEngine struct {
	result   query.Result
	err      error
	requests []query.Request
}

func (f *fakeEngine) Execute(_ context.Context, req query.Request) (query.Result, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return query.Result{}, f.err
	}
	out := f.result
	out.Duration = 3 * time.Millisecond
	return out, nil
}
