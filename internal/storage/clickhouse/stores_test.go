package clickhouse

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func bars(instrument string, n int) []domain.PriceBar {
	out := make([]domain.PriceBar, n)
	for i := range out {
		out[i] = domain.PriceBar{
			Instrument: instrument,
			Timestamp:  t0.Add(time.Duration(i) * 5 * time.Minute),
			Open:       100 + float64(i),
			High:       101 + float64(i),
			Low:        99 + float64(i),
			Close:      100.5 + float64(i),
			Volume:     1000,
		}
	}
	return out
}

func TestBarStore_InsertAndGetRange(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()

	assert.NoError(t, store.InsertBulk(ctx, nil))
	require.NoError(t, store.InsertBulk(ctx, bars("ES", 6)))
	require.NoError(t, store.InsertBulk(ctx, bars("NQ", 2)))

	got, err := store.GetRange(ctx, "ES", t0.Add(5*time.Minute), t0.Add(20*time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.True(t, got[0].Timestamp.Equal(t0.Add(5*time.Minute)))
	assert.Equal(t, 101.0, got[0].Open)
	assert.Equal(t, 1000.0, got[0].Volume)
	assert.True(t, got[2].Timestamp.Equal(t0.Add(15*time.Minute)), "end is exclusive")

	instruments, err := store.Instruments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"ES", "NQ"}, instruments)
}

func TestBarStore_InsertBulk_DuplicateKey(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewBarStore(conn)
	ctx := context.Background()

	batch := bars("ES", 3)
	assert.ErrorIs(t, store.InsertBulk(ctx, append(batch, batch[0])), storage.ErrDuplicateKey)

	require.NoError(t, store.InsertBulk(ctx, batch))
	assert.ErrorIs(t, store.InsertBulk(ctx, batch[1:2]), storage.ErrDuplicateKey)

	got, err := store.GetRange(ctx, "ES", t0, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestGridResultStore(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewGridResultStore(conn)
	ctx := context.Background()

	p := domain.TradeParams{EntryRule: domain.EntryNextOpen, StopMode: domain.StopHalf, TargetMultiple: 1.5, FilterThreshold: 2}
	rows := []domain.GridResult{
		{RunID: "run-1", GridIndex: 1, Params: p, SampleSize: 10, Wins: 4, Losses: 6, WinRate: 0.4, Expectancy: -0.1},
		{RunID: "run-1", GridIndex: 0, Params: p, SampleSize: 40, Wins: 20, Losses: 20, WinRate: 0.5, Expectancy: 0.25, Unviable: 3, Eligible: true, Selected: true},
	}

	require.NoError(t, store.InsertBulk(ctx, rows))
	assert.ErrorIs(t, store.InsertBulk(ctx, rows[:1]), storage.ErrDuplicateKey)

	got, err := store.GetByRunID(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, rows[1], got[0])
	assert.Equal(t, rows[0], got[1])

	none, err := store.GetByRunID(ctx, "run-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
