package ingest

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/askdata/askdata/internal/store"
)

// memoryStore is a store.Store that keeps relations in memory and
// understands just enough SQL to run script tests.
type memoryStore struct {
	mu        sync.Mutex
	relations map[string]store.Relation
	executed  []string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{relations: map[string]store.Relation{}}
}

func (m *memoryStore) ReplaceTable(_ context.Context, relation store.Relation) error {
	if err := relation.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.relations[relation.Name] = relation
	return nil
}

func (m *memoryStore) ExecScript(_ context.Context, statements []string) ([]store.StatementOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcomes := make([]store.StatementOutcome, 0, len(statements))
	for i, statement := range statements {
		m.executed = append(m.executed, statement)
		outcome := store.StatementOutcome{Index: i, Statement: statement}
		fields := strings.Fields(statement)
		switch {
		case len(fields) >= 3 && strings.EqualFold(fields[0], "CREATE") && strings.EqualFold(fields[1], "TABLE"):
			name := strings.ToLower(strings.Trim(fields[2], `"(`))
			m.relations[name] = store.Relation{Name: name, Columns: []store.Column{{Name: "id", Type: store.TypeBigInt}}}
		case len(fields) >= 1 && strings.EqualFold(fields[0], "INSERT"):
		default:
			outcome.Err = errors.New("syntax error at or near \"" + fields[0] + "\"")
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (m *memoryStore) ListTables(context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tables := make([]string, 0, len(m.relations))
	for name := range m.relations {
		tables = append(tables, name)
	}
	sort.Strings(tables)
	return tables, nil
}

func (m *memoryStore) TableExists(_ context.Context, table string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.relations[table]
	return ok, nil
}

func (m *memoryStore) Preview(_ context.Context, table string, limit int) (store.Preview, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	relation, ok := m.relations[table]
	if !ok {
		return store.Preview{}, errors.New("relation does not exist")
	}
	rows := relation.Rows
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return store.Preview{Columns: relation.ColumnNames(), Rows: rows}, nil
}

func (m *memoryStore) CountRows(_ context.Context, table string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.relations[table].Rows)), nil
}

func (m *memoryStore) DropTable(_ context.Context, table string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.relations, table)
	return nil
}

func (m *memoryStore) Ping(context.Context) error { return nil }

func (m *memoryStore) relation(name string) (store.Relation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	relation, ok := m.relations[name]
	return relation, ok
}
