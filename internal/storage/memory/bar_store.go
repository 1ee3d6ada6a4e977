package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore.
type BarStore struct {
	mu   sync.RWMutex
	data map[string]domain.PriceBar // keyed by (instrument, timestamp)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{
		data: make(map[string]domain.PriceBar),
	}
}

// barKey generates a unique key for a bar.
func barKey(instrument string, ts time.Time) string {
	return fmt.Sprintf("%s|%d", instrument, ts.UnixNano())
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate.
func (s *BarStore) InsertBulk(_ context.Context, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track keys in this batch to detect intra-batch duplicates
	batchKeys := make(map[string]struct{}, len(bars))

	// First pass: check for duplicates (existing + intra-batch)
	for _, b := range bars {
		if b.Instrument == "" || b.Timestamp.IsZero() {
			return storage.Invalid(storage.KindBar, "missing instrument or timestamp")
		}
		key := barKey(b.Instrument, b.Timestamp)

		if _, exists := s.data[key]; exists {
			return storage.Duplicate(storage.KindBar, key)
		}
		if _, exists := batchKeys[key]; exists {
			return storage.Duplicate(storage.KindBar, key)
		}
		batchKeys[key] = struct{}{}
	}

	// Second pass: insert all
	for _, b := range bars {
		s.data[barKey(b.Instrument, b.Timestamp)] = b
	}

	return nil
}

// GetRange retrieves bars within [start, end), ordered by timestamp ASC.
func (s *BarStore) GetRange(_ context.Context, instrument string, start, end time.Time) ([]domain.PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.PriceBar
	for _, b := range s.data {
		if b.Instrument == instrument && !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			result = append(result, b)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

// Instruments returns the distinct instruments with stored bars, sorted.
func (s *BarStore) Instruments(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, b := range s.data {
		seen[b.Instrument] = struct{}{}
	}

	result := make([]string, 0, len(seen))
	for inst := range seen {
		result = append(result, inst)
	}
	sort.Strings(result)
	return result, nil
}

var _ storage.BarStore = (*BarStore)(nil)
