package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/vindloodgieter/discovery/internal/discovery"
)

// ProgressStore keeps run bookkeeping in memory.
type ProgressStore struct {
	mu    sync.RWMutex
	runs  map[string]discovery.Run
	items map[string]string
}

// NewProgressStore constructs a ProgressStore.
func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		runs:  make(map[string]discovery.Run),
		items: make(map[string]string),
	}
}

// StartRun records a new run.
func (s *ProgressStore) StartRun(_ context.Context, run discovery.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runs[run.ID]; exists {
		return errors.New("run already exists")
	}
	s.runs[run.ID] = run
	return nil
}

// FinishRun stores the terminal state of a run.
func (s *ProgressStore) FinishRun(_ context.Context, run discovery.Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return errors.New("run not found")
	}
	s.runs[run.ID] = run
	return nil
}

// CompletedItems returns a copy of the completed item keys.
func (s *ProgressStore) CompletedItems(_ context.Context) (map[string]struct{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.items))
	for k := range s.items {
		out[k] = struct{}{}
	}
	return out, nil
}

// MarkItemCompleted records a completed item.
func (s *ProgressStore) MarkItemCompleted(_ context.Context, runID, key string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = runID
	return nil
}

// ResetItems forgets all item progress.
func (s *ProgressStore) ResetItems(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = make(map[string]string)
	return nil
}

// Run returns a stored run by ID.
func (s *ProgressStore) Run(id string) (discovery.Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	return run, ok
}

// ListRuns returns the most recent runs, newest first.
func (s *ProgressStore) ListRuns(_ context.Context, limit int) ([]discovery.Run, error) {
	s.mu.RLock()
	runs := make([]discovery.Run, 0, len(s.runs))
	for _, r := range s.runs {
		runs = append(runs, r)
	}
	s.mu.RUnlock()
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.After(runs[j].StartedAt)
		}
		return runs[i].ID > runs[j].ID
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

var (
	_ discovery.ProgressStore = (*ProgressStore)(nil)
	_ discovery.RunLister     = (*ProgressStore)(nil)
)
