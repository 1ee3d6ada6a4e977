package memory

import (
	"context"
	"sort"
	"sync"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// TradeOutcomeStore is an in-memory implementation of storage.TradeOutcomeStore.
type TradeOutcomeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.RealizedOutcome // keyed by trade_id
}

// NewTradeOutcomeStore creates a new in-memory trade outcome store.
func NewTradeOutcomeStore() *TradeOutcomeStore {
	return &TradeOutcomeStore{
		data: make(map[string]*domain.RealizedOutcome),
	}
}

// Insert adds a new outcome. Returns ErrDuplicateKey if trade_id exists.
func (s *TradeOutcomeStore) Insert(_ context.Context, o *domain.RealizedOutcome) error {
	if o == nil || o.TradeID == "" {
		return storage.Invalid(storage.KindOutcome, "missing trade id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[o.TradeID]; exists {
		return storage.Duplicate(storage.KindOutcome, o.TradeID)
	}

	copy := *o
	s.data[o.TradeID] = &copy
	return nil
}

// GetByID retrieves an outcome by trade ID. Returns ErrNotFound if not exists.
func (s *TradeOutcomeStore) GetByID(_ context.Context, tradeID string) (*domain.RealizedOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, exists := s.data[tradeID]
	if !exists {
		return nil, storage.NotFound(storage.KindOutcome, tradeID)
	}

	copy := *o
	return &copy, nil
}

// GetByParams retrieves outcomes for an instrument and parameter combination.
func (s *TradeOutcomeStore) GetByParams(_ context.Context, instrument string, params domain.TradeParams) ([]*domain.RealizedOutcome, error) {
	return s.filter(func(o *domain.RealizedOutcome) bool {
		return o.Instrument == instrument && o.Params == params
	}), nil
}

// GetAll retrieves all outcomes.
func (s *TradeOutcomeStore) GetAll(_ context.Context) ([]*domain.RealizedOutcome, error) {
	return s.filter(func(*domain.RealizedOutcome) bool { return true }), nil
}

// filter returns matching copies ordered by entry_time ASC, trade_id ASC.
func (s *TradeOutcomeStore) filter(match func(*domain.RealizedOutcome) bool) []*domain.RealizedOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.RealizedOutcome
	for _, o := range s.data {
		if match(o) {
			copy := *o
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].EntryTime.Equal(result[j].EntryTime) {
			return result[i].EntryTime.Before(result[j].EntryTime)
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result
}

var _ storage.TradeOutcomeStore = (*TradeOutcomeStore)(nil)
