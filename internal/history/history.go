// Package history keeps an audit trail of ingestions and questions.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

type Ingestion struct {
	ID                uuid.UUID `json:"id"`
	Filename          string    `json:"filename"`
	Format            string    `json:"format"`
	SizeBytes         int64     `json:"size_bytes"`
	Tables            []string  `json:"tables"`
	TotalRows         int64     `json:"total_rows"`
	StatementFailures int       `json:"statement_failures"`
	ArchiveKey        string    `json:"archive_key,omitempty"`
	Status            string    `json:"status"`
	ErrorMessage      string    `json:"error,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

type Question struct {
	ID              uuid.UUID `json:"id"`
	Question        string    `json:"question"`
	SQL             string    `json:"sql,omitempty"`
	TablesUsed      []string  `json:"tables_used"`
	ResultRows      int       `json:"result_rows"`
	Status          string    `json:"status"`
	ErrorCode       string    `json:"error_code,omitempty"`
	ErrorMessage    string    `json:"error,omitempty"`
	GenerationMs    int64     `json:"generation_ms"`
	ExecutionMs     int64     `json:"execution_ms"`
	RegistryVersion uint64    `json:"registry_version"`
	CreatedAt       time.Time `json:"created_at"`
}

type Recorder interface {
	RecordIngestion(ctx context.Context, entry Ingestion) error
	RecordQuestion(ctx context.Context, entry Question) error
	RecentIngestions(ctx context.Context, limit int) ([]Ingestion, error)
	RecentQuestions(ctx context.Context, limit int) ([]Question, error)
}

// Noop discards every entry. It is used when history is disabled.
type Noop struct{}

func (Noop) RecordIngestion(context.Context, Ingestion) error { return nil }
func (Noop) RecordQuestion(context.Context, Question) error   { return nil }
func (Noop) RecentIngestions(context.Context, int) ([]Ingestion, error) {
	return []Ingestion{}, nil
}
func (Noop) RecentQuestions(context.Context, int) ([]Question, error) {
	return []Question{}, nil
}

// Memory keeps the most recent entries in process. It backs history when
// no Postgres store is configured.
type Memory struct {
	mu         sync.Mutex
	capacity   int
	ingestions []Ingestion
	questions  []Question
}

func NewMemory(capacity int) *Memory {
	if capacity <= 0 {
		capacity = 200
	}
	return &Memory{capacity: capacity}
}

func (m *Memory) RecordIngestion(_ context.Context, entry Ingestion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.ingestions = appendBounded(m.ingestions, entry, m.capacity)
	return nil
}

func (m *Memory) RecordQuestion(_ context.Context, entry Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	m.questions = appendBounded(m.questions, entry, m.capacity)
	return nil
}

func (m *Memory) RecentIngestions(_ context.Context, limit int) ([]Ingestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.ingestions, limit), nil
}

func (m *Memory) RecentQuestions(_ context.Context, limit int) ([]Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(m.questions, limit), nil
}

func appendBounded[T any](items []T, item T, capacity int) []T {
	items = append(items, item)
	if len(items) > capacity {
		items = append([]T(nil), items[len(items)-capacity:]...)
	}
	return items
}

func newestFirst[T any](items []T, limit int) []T {
	if limit <= 0 || limit > len(items) {
		limit = len(items)
	}
	out := make([]T, 0, limit)
	for i := len(items) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, items[i])
	}
	return out
}
