package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Compile-time check that Memory implements Store.
var _ Store = (*Memory)(nil)

// Memory is an in-memory Store using brute-force cosine similarity.
// It backs unit tests and short-lived local experiments; nothing survives
// process exit.
type Memory struct {
	mu     sync.RWMutex
	schema Schema
	rows   map[string]Row
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{rows: make(map[string]Row)}
}

func (m *Memory) EnsureCollection(_ context.Context, schema Schema) error {
	if schema.Dim <= 0 {
		return fmt.Errorf("invalid dimension %d", schema.Dim)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.schema.Dim != 0 && m.schema.Dim != schema.Dim {
		return fmt.Errorf("%w: existing dim %d, requested %d", ErrSchemaConflict, m.schema.Dim, schema.Dim)
	}
	m.schema = schema
	return nil
}

func (m *Memory) Upsert(_ context.Context, rows []Row) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		if m.schema.Dim != 0 && len(r.Vector) != m.schema.Dim {
			return fmt.Errorf("vector dimension %d does not match collection dimension %d", len(r.Vector), m.schema.Dim)
		}
		m.rows[r.ID] = r
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, filter Filter, limit int) ([]ScoredRow, error) {
	if limit <= 0 {
		limit = 5
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var scored []ScoredRow
	for _, r := range m.rows {
		if !filter.matches(r.Fields) {
			continue
		}
		scored = append(scored, ScoredRow{Row: r, Score: cosine(vector, r.Vector)})
	}
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].ID < scored[j].ID // deterministic tie order for tests
	})
	if len(scored) > limit {
		scored = scored[:limit]
	}
	return scored, nil
}

func (m *Memory) Get(_ context.Context, id string) (Row, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rows[id]
	if !ok {
		return Row{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

func (m *Memory) Count(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.rows)), nil
}

func (m *Memory) Health(_ context.Context) error { return nil }

// cosine computes cosine similarity between two vectors. Mismatched lengths
// score zero.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, aSq, bSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aSq += float64(a[i]) * float64(a[i])
		bSq += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(aSq) * math.Sqrt(bSq)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
