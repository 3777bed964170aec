package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agriveille/prefecture-crawler/internal/store"
)

// RunStore provides an in-memory implementation for development/testing.
type RunStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]store.Run
}

// NewRunStore constructs a RunStore.
func NewRunStore() *RunStore {
	return &RunStore{runs: make(map[uuid.UUID]store.Run)}
}

// StartRun inserts (or re-marks) a run in running status.
func (s *RunStore) StartRun(_ context.Context, id uuid.UUID, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[id] = store.Run{ID: id, StartedAt: startedAt, Status: store.RunRunning}
	return nil
}

// CompleteRun marks a run as finished.
func (s *RunStore) CompleteRun(
	_ context.Context,
	id uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	totals store.RunTotals,
	errMsg *string,
) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return store.ErrNotFound
	}
	finished := finishedAt
	run.FinishedAt = &finished
	run.Status = status
	run.Totals = totals
	run.ErrorMessage = cloneString(errMsg)
	s.runs[id] = run
	return nil
}

// GetRun fetches a run by ID.
func (s *RunStore) GetRun(_ context.Context, id uuid.UUID) (store.Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return store.Run{}, store.ErrNotFound
	}
	return cloneRun(run), nil
}

// ListRuns returns runs newest first, with optional status filtering.
func (s *RunStore) ListRuns(_ context.Context, status *store.RunStatus, limit, offset int) ([]store.Run, error) {
	s.mu.RLock()
	runs := make([]store.Run, 0, len(s.runs))
	for _, run := range s.runs {
		if status != nil && run.Status != *status {
			continue
		}
		runs = append(runs, cloneRun(run))
	}
	s.mu.RUnlock()

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})

	if limit <= 0 {
		limit = defaultListLimit
	}
	if offset >= len(runs) {
		return nil, nil
	}
	runs = runs[offset:]
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Close is a no-op for the in-memory store.
func (s *RunStore) Close() {}

func cloneRun(run store.Run) store.Run {
	out := run
	if run.FinishedAt != nil {
		t := *run.FinishedAt
		out.FinishedAt = &t
	}
	out.ErrorMessage = cloneString(run.ErrorMessage)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
