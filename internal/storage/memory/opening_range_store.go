package memory

import (
	"context"
	"sort"
	"sync"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// OpeningRangeStore is an in-memory implementation of storage.OpeningRangeStore.
type OpeningRangeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.OpeningRange // keyed by range_id
}

// NewOpeningRangeStore creates a new in-memory opening range store.
func NewOpeningRangeStore() *OpeningRangeStore {
	return &OpeningRangeStore{
		data: make(map[string]*domain.OpeningRange),
	}
}

// Insert adds a new range. Returns ErrDuplicateKey if range_id exists.
func (s *OpeningRangeStore) Insert(_ context.Context, r *domain.OpeningRange) error {
	if r == nil || r.RangeID == "" {
		return storage.Invalid(storage.KindRange, "missing range id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.RangeID]; exists {
		return storage.Duplicate(storage.KindRange, r.RangeID)
	}

	copy := *r
	s.data[r.RangeID] = &copy
	return nil
}

// GetByID retrieves a range by its ID. Returns ErrNotFound if not exists.
func (s *OpeningRangeStore) GetByID(_ context.Context, rangeID string) (*domain.OpeningRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[rangeID]
	if !exists {
		return nil, storage.NotFound(storage.KindRange, rangeID)
	}

	copy := *r
	return &copy, nil
}

// GetByInstrument retrieves ranges whose date falls in dates,
// ordered by date ASC, anchor_id ASC.
func (s *OpeningRangeStore) GetByInstrument(_ context.Context, instrument string, dates domain.DateRange) ([]*domain.OpeningRange, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.OpeningRange
	for _, r := range s.data {
		if r.Instrument == instrument && dates.Contains(r.Date) {
			copy := *r
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].Date.Equal(result[j].Date) {
			return result[i].Date.Before(result[j].Date)
		}
		return result[i].AnchorID < result[j].AnchorID
	})

	return result, nil
}

var _ storage.OpeningRangeStore = (*OpeningRangeStore)(nil)
