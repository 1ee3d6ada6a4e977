package memory

import (
	"context"
	"slices"
	"sort"
	"sync"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// ValidationRunStore is an in-memory implementation of storage.ValidationRunStore.
type ValidationRunStore struct {
	mu   sync.RWMutex
	data map[string]*domain.ValidationRun // keyed by run_id
}

// NewValidationRunStore creates a new in-memory validation run store.
func NewValidationRunStore() *ValidationRunStore {
	return &ValidationRunStore{
		data: make(map[string]*domain.ValidationRun),
	}
}

// Insert adds a completed run. Returns ErrDuplicateKey if run_id exists.
func (s *ValidationRunStore) Insert(_ context.Context, run *domain.ValidationRun) error {
	if run == nil || run.RunID == "" {
		return storage.Invalid(storage.KindRun, "missing run id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[run.RunID]; exists {
		return storage.Duplicate(storage.KindRun, run.RunID)
	}

	s.data[run.RunID] = cloneRun(run)
	return nil
}

// GetByID retrieves a run by its ID. Returns ErrNotFound if not exists.
func (s *ValidationRunStore) GetByID(_ context.Context, runID string) (*domain.ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, exists := s.data[runID]
	if !exists {
		return nil, storage.NotFound(storage.KindRun, runID)
	}
	return cloneRun(run), nil
}

// Exists reports whether a run with the ID has been recorded.
func (s *ValidationRunStore) Exists(_ context.Context, runID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, exists := s.data[runID]
	return exists, nil
}

// List retrieves all runs ordered by started_at ASC, run_id ASC.
func (s *ValidationRunStore) List(_ context.Context) ([]*domain.ValidationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.ValidationRun, 0, len(s.data))
	for _, run := range s.data {
		result = append(result, cloneRun(run))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].StartedAt.Equal(result[j].StartedAt) {
			return result[i].StartedAt.Before(result[j].StartedAt)
		}
		return result[i].RunID < result[j].RunID
	})

	return result, nil
}

// cloneRun deep-copies the slices and pointers of a run.
func cloneRun(run *domain.ValidationRun) *domain.ValidationRun {
	c := *run
	c.Grid.TargetMultiples = slices.Clone(run.Grid.TargetMultiples)
	c.Grid.FilterThresholds = slices.Clone(run.Grid.FilterThresholds)
	c.Grid.StopModes = slices.Clone(run.Grid.StopModes)
	c.Optimal = clonePtr(run.Optimal)
	c.ValidationStats = clonePtr(run.ValidationStats)
	c.TrainStats = clonePtr(run.TrainStats)
	c.TestStats = clonePtr(run.TestStats)
	c.Degradation = clonePtr(run.Degradation)

	c.Stages = make([]domain.StageResult, len(run.Stages))
	for i, st := range run.Stages {
		st.Params = clonePtr(st.Params)
		st.Stats = clonePtr(st.Stats)
		st.Criteria = slices.Clone(st.Criteria)
		c.Stages[i] = st
	}
	return &c
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

var _ storage.ValidationRunStore = (*ValidationRunStore)(nil)
