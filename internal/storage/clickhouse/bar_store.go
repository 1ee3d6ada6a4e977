package clickhouse

import (
	"context"
	"fmt"
	"time"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/storage"
)

// BarStore implements storage.BarStore using ClickHouse.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

type barKey struct {
	instrument string
	ts         int64
}

// InsertBulk adds multiple bars. Fails entire batch on duplicate (instrument, timestamp).
func (s *BarStore) InsertBulk(ctx context.Context, bars []domain.PriceBar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates and collect the span per instrument
	type span struct{ lo, hi time.Time }
	spans := make(map[string]span)
	seen := make(map[barKey]struct{}, len(bars))
	for _, b := range bars {
		if b.Instrument == "" || b.Timestamp.IsZero() {
			return storage.Invalid(storage.KindBar, "missing instrument or timestamp")
		}
		k := barKey{b.Instrument, b.Timestamp.UnixMilli()}
		if _, exists := seen[k]; exists {
			return storage.Duplicate(storage.KindBar, b.Instrument+"@"+b.Timestamp.UTC().Format(time.RFC3339))
		}
		seen[k] = struct{}{}

		sp, ok := spans[b.Instrument]
		if !ok || b.Timestamp.Before(sp.lo) {
			sp.lo = b.Timestamp
		}
		if !ok || b.Timestamp.After(sp.hi) {
			sp.hi = b.Timestamp
		}
		spans[b.Instrument] = sp
	}

	// Check for duplicates against existing DB rows
	for instrument, sp := range spans {
		existing, err := s.GetRange(ctx, instrument, sp.lo, sp.hi.Add(time.Millisecond))
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		for _, b := range existing {
			if _, dup := seen[barKey{instrument, b.Timestamp.UnixMilli()}]; dup {
				return storage.Duplicate(storage.KindBar, instrument+"@"+b.Timestamp.UTC().Format(time.RFC3339))
			}
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_bars (instrument, ts, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		err = batch.Append(b.Instrument, b.Timestamp.UTC(), b.Open, b.High, b.Low, b.Close, b.Volume)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetRange retrieves bars for an instrument within [start, end), ordered by timestamp ASC.
func (s *BarStore) GetRange(ctx context.Context, instrument string, start, end time.Time) ([]domain.PriceBar, error) {
	query := `
		SELECT instrument, ts, open, high, low, close, volume
		FROM price_bars FINAL
		WHERE instrument = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`

	rows, err := s.conn.Query(ctx, query, instrument, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars by range: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Instruments returns the distinct instruments with stored bars, sorted.
func (s *BarStore) Instruments(ctx context.Context) ([]string, error) {
	rows, err := s.conn.Query(ctx, `SELECT DISTINCT instrument FROM price_bars ORDER BY instrument ASC`)
	if err != nil {
		return nil, fmt.Errorf("query instruments: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var instrument string
		if err := rows.Scan(&instrument); err != nil {
			return nil, fmt.Errorf("scan instrument row: %w", err)
		}
		out = append(out, instrument)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate instrument rows: %w", err)
	}
	return out, nil
}

// scanBars scans multiple rows.
func scanBars(rows chRows) ([]domain.PriceBar, error) {
	var bars []domain.PriceBar

	for rows.Next() {
		var b domain.PriceBar
		err := rows.Scan(&b.Instrument, &b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume)
		if err != nil {
			return nil, fmt.Errorf("scan price bar row: %w", err)
		}
		b.Timestamp = b.Timestamp.UTC()
		bars = append(bars, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price bar rows: %w", err)
	}

	return bars, nil
}
