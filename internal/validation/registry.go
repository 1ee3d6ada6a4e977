package validation

import (
	"fmt"
	"sync"

	"breakout-lab/internal/domain"
)

// Registry records run identifiers claimed in this process.
// A run identifier executes at most once; a second claim is leakage.
type Registry struct {
	mu      sync.Mutex
	claimed map[string]struct{}
}

// NewRegistry creates an empty run registry.
func NewRegistry() *Registry {
	return &Registry{claimed: make(map[string]struct{})}
}

// Claim reserves runID. Returns ErrLeakageViolation if already claimed.
func (r *Registry) Claim(runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.claimed[runID]; ok {
		return fmt.Errorf("%w: run %s already executed", domain.ErrLeakageViolation, runID)
	}
	r.claimed[runID] = struct{}{}
	return nil
}

// Release frees runID. Only valid before any split data was evaluated.
func (r *Registry) Release(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claimed, runID)
}

// Claimed reports whether runID has been claimed.
func (r *Registry) Claimed(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.claimed[runID]
	return ok
}

// vault holds the test split out of reach of Stages 1 and 2.
// It opens exactly once.
type vault struct {
	mu     sync.Mutex
	series *domain.BarSeries
	opened bool
}

func seal(series *domain.BarSeries) *vault {
	return &vault{series: series}
}

// open releases the test series. A second open is leakage.
func (v *vault) open() (*domain.BarSeries, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.opened {
		return nil, fmt.Errorf("%w: test split already opened", domain.ErrLeakageViolation)
	}
	v.opened = true
	s := v.series
	v.series = nil
	return s, nil
}
