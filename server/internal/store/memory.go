package store

import (
	"context"
	"sync"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Memory is a thread-safe in-memory Store. Rows are kept in insertion order,
// which is also ascending ID order.
type Memory struct {
	mu     sync.RWMutex
	rows   []Row
	nextID int64
	now    func() time.Time // injectable for deterministic tests
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{nextID: 1, now: time.Now}
}

// Append implements Store.
func (m *Memory) Append(_ context.Context, runID string, rows []types.EnrichedReading) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.now()
	for _, r := range rows {
		m.rows = append(m.rows, Row{ID: m.nextID, RunID: runID, Stored: stored, EnrichedReading: r})
		m.nextID++
	}
	return len(rows), nil
}

// History implements Store.
func (m *Memory) History(_ context.Context, limit int) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	start := 0
	if limit > 0 && limit < len(m.rows) {
		start = len(m.rows) - limit
	}
	out := make([]Row, len(m.rows)-start)
	copy(out, m.rows[start:])
	return out, nil
}

// Latest implements Store.
func (m *Memory) Latest(_ context.Context) (Row, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.rows) == 0 {
		return Row{}, false, nil
	}
	return m.rows[len(m.rows)-1], true, nil
}

// Run implements Store.
func (m *Memory) Run(_ context.Context, runID string) ([]Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Row
	for _, r := range m.rows {
		if r.RunID == runID {
			out = append(out, r)
		}
	}
	return out, nil
}

// Prune implements Store.
func (m *Memory) Prune(_ context.Context, before time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.rows[:0]
	var removed int64
	for _, r := range m.rows {
		if r.Stored.Before(before) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	m.rows = kept
	return removed, nil
}

// Count returns the number of rows held.
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Close implements Store. It is a no-op.
func (m *Memory) Close() error { return nil }
