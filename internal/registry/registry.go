// Package registry holds the process-wide schema cache used to ground SQL
// generation: the ordered list of materialized tables, the primary table and
// a bounded sample of rows per table.
//
// The three fields form one unit. Every read returns a deep copy taken under
// the lock and every write replaces the whole unit, so a reader never sees a
// table list from one ingestion paired with snapshots from another.
package registry

import (
	"errors"
	"fmt"
	"sync"
)

// ErrStaleRegistry reports a registry entry that no longer matches the store.
var ErrStaleRegistry = errors.New("schema registry is stale")

// Snapshot is the cached prompt context for one table. Columns and every row
// in SampleRows are aligned by position.
type Snapshot struct {
	TableName  string   `json:"table_name"`
	Columns    []string `json:"columns"`
	SampleRows [][]any  `json:"top_rows"`
}

type State struct {
	Version   uint64              `json:"version"`
	Tables    []string            `json:"all_tables"`
	Primary   string              `json:"table_name"`
	Snapshots map[string]Snapshot `json:"schemas"`
}

func (s State) Empty() bool {
	return len(s.Tables) == 0 || s.Primary == ""
}

// Ordered returns the snapshots in table order. A listed table without a
// snapshot is reported as stale rather than skipped.
func (s State) Ordered() ([]Snapshot, error) {
	out := make([]Snapshot, 0, len(s.Tables))
	for _, table := range s.Tables {
		snapshot, ok := s.Snapshots[table]
		if !ok {
			return nil, fmt.Errorf("%w: no snapshot for table %q", ErrStaleRegistry, table)
		}
		out = append(out, snapshot)
	}
	return out, nil
}

type Registry struct {
	mu    sync.RWMutex
	state State
}

func New() *Registry {
	return &Registry{state: State{Snapshots: map[string]Snapshot{}}}
}

func (r *Registry) Read() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state.clone()
}

// Replace installs a new state built from tables (in order) and their
// snapshots. The first table becomes the primary table. Tables missing from
// snapshots get an empty snapshot so the unit stays consistent.
func (r *Registry) Replace(tables []string, snapshots map[string]Snapshot) State {
	next := State{
		Tables:    make([]string, 0, len(tables)),
		Snapshots: make(map[string]Snapshot, len(tables)),
	}
	for _, table := range tables {
		if _, seen := next.Snapshots[table]; seen {
			continue
		}
		snapshot, ok := snapshots[table]
		if !ok {
			snapshot = Snapshot{TableName: table}
		}
		snapshot.TableName = table
		next.Tables = append(next.Tables, table)
		next.Snapshots[table] = cloneSnapshot(snapshot)
	}
	if len(next.Tables) > 0 {
		next.Primary = next.Tables[0]
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	next.Version = r.state.Version + 1
	r.state = next
	return r.state.clone()
}

func (r *Registry) Clear() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = State{
		Version:   r.state.Version + 1,
		Snapshots: map[string]Snapshot{},
	}
	return r.state.clone()
}

func (s State) clone() State {
	out := State{
		Version:   s.Version,
		Primary:   s.Primary,
		Tables:    append([]string(nil), s.Tables...),
		Snapshots: make(map[string]Snapshot, len(s.Snapshots)),
	}
	for name, snapshot := range s.Snapshots {
		out.Snapshots[name] = cloneSnapshot(snapshot)
	}
	return out
}

func cloneSnapshot(s Snapshot) Snapshot {
	out := Snapshot{
		TableName:  s.TableName,
		Columns:    append([]string(nil), s.Columns...),
		SampleRows: make([][]any, 0, len(s.SampleRows)),
	}
	for _, row := range s.SampleRows {
		out.SampleRows = append(out.SampleRows, append([]any(nil), row...))
	}
	return out
}
