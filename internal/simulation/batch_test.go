package simulation

import (
	"context"
	"errors"
	"testing"

	"breakout-lab/internal/domain"
)

func TestSimulateAll_Counts(t *testing.T) {
	series, win := fixture(t, longBreakout,
		ohlc{110, 115, 105, 114},
		ohlc{114, 131, 112, 129},
	)
	none := win
	none.Direction = domain.DirectionNone
	none.BarIndex = -1

	tight := win
	tight.Range.Low = 107.5
	tight.Range.Size = 2.5

	sim := New(testModel(t), series, Options{})
	signals := []domain.BreakoutSignal{win, none, tight}

	b, err := sim.SimulateAll(context.Background(), signals, params(domain.EntryNextOpen, 2))
	if err != nil {
		t.Fatalf("SimulateAll() error = %v", err)
	}
	if b.Signals != 3 || b.NoSignal != 1 || b.Filtered != 0 {
		t.Errorf("signals %d nosignal %d filtered %d", b.Signals, b.NoSignal, b.Filtered)
	}
	if len(b.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes (1 viable, 1 unviable), got %d", len(b.Outcomes))
	}

	stats := b.Stats()
	if stats.SampleSize != 1 || stats.Wins != 1 || stats.Unviable != 1 {
		t.Errorf("stats = %+v", stats)
	}

	// A 5-point filter drops the 2.5-point range before simulation.
	p := params(domain.EntryNextOpen, 2)
	p.FilterThreshold = 5
	b, err = sim.SimulateAll(context.Background(), signals, p)
	if err != nil {
		t.Fatalf("SimulateAll() error = %v", err)
	}
	if b.Filtered != 1 || len(b.Outcomes) != 1 {
		t.Errorf("filtered %d outcomes %d, want 1/1", b.Filtered, len(b.Outcomes))
	}
	if b.Stats().Filtered != 1 {
		t.Error("filtered count not reported in stats")
	}
}

func TestSimulateAll_NoEntryAndUnresolved(t *testing.T) {
	series, sig := fixture(t, longBreakout,
		ohlc{111, 112, 108, 109}, // confirmation fails, next-open never resolves
	)
	sim := New(testModel(t), series, Options{})

	b, _ := sim.SimulateAll(context.Background(), []domain.BreakoutSignal{sig}, params(domain.EntryConfirmation, 2))
	if b.NoEntry != 1 || b.Stats().NoEntry != 1 {
		t.Errorf("confirmation: no entry %d", b.NoEntry)
	}

	b, _ = sim.SimulateAll(context.Background(), []domain.BreakoutSignal{sig}, params(domain.EntryNextOpen, 2))
	if b.Unresolved != 1 || b.Stats().Unresolved != 1 {
		t.Errorf("next open: unresolved %d", b.Unresolved)
	}
	if b.Stats().SampleSize != 0 {
		t.Error("unresolved trade counted in sample")
	}
}

func TestSimulateAll_Cancelled(t *testing.T) {
	series, sig := fixture(t, longBreakout, ohlc{110, 115, 105, 114})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(testModel(t), series, Options{}).SimulateAll(ctx, []domain.BreakoutSignal{sig}, params(domain.EntryNextOpen, 2))
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestSimulateAll_InvalidParams(t *testing.T) {
	series, sig := fixture(t, longBreakout)
	_, err := New(testModel(t), series, Options{}).SimulateAll(context.Background(), []domain.BreakoutSignal{sig}, params(domain.EntryNextOpen, 0))
	if !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("expected ErrInvalidParams, got %v", err)
	}
}
