package core

import (
	"context"
	"sync"
	"time"
)

// RunStore persists import run records. Runs are created once per
// import invocation, mutated only by the owning run and immutable
// after a terminal status is written.
type RunStore interface {
	// CreateRun persists a new run and assigns its id.
	CreateRun(ctx context.Context, run *ImportRun) error

	// UpdateRun overwrites the stored run.
	UpdateRun(ctx context.Context, run *ImportRun) error

	// RunByID returns a run, or ErrRunNotFound.
	RunByID(ctx context.Context, id int64) (*ImportRun, error)

	// ListRuns returns runs, most recent first.
	ListRuns(ctx context.Context, limit, offset int) ([]*ImportRun, error)
}

// MemoryRunStore is an in-memory RunStore for tests and database-less
// deployments.
type MemoryRunStore struct {
	mu     sync.RWMutex
	nextID int64
	runs   []*ImportRun
}

// NewMemoryRunStore creates an empty MemoryRunStore.
func NewMemoryRunStore() *MemoryRunStore {
	return &MemoryRunStore{}
}

// CreateRun implements RunStore.
func (m *MemoryRunStore) CreateRun(_ context.Context, run *ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	run.ID = m.nextID
	run.StartedAt = time.Now()
	m.runs = append(m.runs, cloneRun(run))
	return nil
}

// UpdateRun implements RunStore.
func (m *MemoryRunStore) UpdateRun(_ context.Context, run *ImportRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, r := range m.runs {
		if r.ID == run.ID {
			m.runs[i] = cloneRun(run)
			return nil
		}
	}
	return ErrRunNotFound
}

// RunByID implements RunStore.
func (m *MemoryRunStore) RunByID(_ context.Context, id int64) (*ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, r := range m.runs {
		if r.ID == id {
			return cloneRun(r), nil
		}
	}
	return nil, ErrRunNotFound
}

// ListRuns implements RunStore.
func (m *MemoryRunStore) ListRuns(_ context.Context, limit, offset int) ([]*ImportRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*ImportRun
	skipped := 0
	for i := len(m.runs) - 1; i >= 0; i-- {
		if skipped < offset {
			skipped++
			continue
		}
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, cloneRun(m.runs[i]))
	}
	return out, nil
}

func cloneRun(r *ImportRun) *ImportRun {
	c := *r
	c.RowErrors = append([]RowError(nil), r.RowErrors...)
	return &c
}
