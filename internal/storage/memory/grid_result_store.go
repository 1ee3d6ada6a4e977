package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// GridResultStore is an in-memory implementation of storage.GridResultStore.
type GridResultStore struct {
	mu   sync.RWMutex
	data map[string]domain.GridResult // keyed by (run_id, grid_index)
}

// NewGridResultStore creates a new in-memory grid result store.
func NewGridResultStore() *GridResultStore {
	return &GridResultStore{
		data: make(map[string]domain.GridResult),
	}
}

func gridKey(runID string, idx int) string {
	return fmt.Sprintf("%s|%d", runID, idx)
}

// InsertBulk adds a run's grid. Fails entire batch on duplicate.
func (s *GridResultStore) InsertBulk(_ context.Context, rows []domain.GridResult) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(rows))
	for _, r := range rows {
		if r.RunID == "" || r.GridIndex < 0 {
			return storage.Invalid(storage.KindGrid, "missing run id or grid index")
		}
		key := gridKey(r.RunID, r.GridIndex)
		if _, exists := s.data[key]; exists {
			return storage.Duplicate(storage.KindGrid, key)
		}
		if _, exists := batchKeys[key]; exists {
			return storage.Duplicate(storage.KindGrid, key)
		}
		batchKeys[key] = struct{}{}
	}

	for _, r := range rows {
		s.data[gridKey(r.RunID, r.GridIndex)] = r
	}
	return nil
}

// GetByRunID retrieves a run's grid, ordered by grid_index ASC.
func (s *GridResultStore) GetByRunID(_ context.Context, runID string) ([]domain.GridResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.GridResult
	for _, r := range s.data {
		if r.RunID == runID {
			result = append(result, r)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].GridIndex < result[j].GridIndex
	})
	return result, nil
}

var _ storage.GridResultStore = (*GridResultStore)(nil)
