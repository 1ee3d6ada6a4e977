// Package csvbars reads and writes OHLCV bar files.
//
// Expected columns: time,open,high,low,close[,volume]. A header row is
// allowed. Time is RFC3339, "2006-01-02 15:04:05" in the exchange
// timezone, or a unix timestamp in seconds or milliseconds.
package csvbars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"breakout-lab/internal/domain"
)

// ErrMalformedRow is returned for a row that cannot be parsed.
var ErrMalformedRow = errors.New("malformed bar row")

const localLayout = "2006-01-02 15:04:05"

// Load reads bars for instrument from the file at path.
func Load(path, instrument string, loc *time.Location) ([]domain.PriceBar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	bars, err := Read(f, instrument, loc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return bars, nil
}

// Read parses bars from r. Rows are returned in file order; callers
// validate ordering with domain.NewBarSeries.
func Read(r io.Reader, instrument string, loc *time.Location) ([]domain.PriceBar, error) {
	if loc == nil {
		loc = time.UTC
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var (
		bars []domain.PriceBar
		line int
	)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		if len(row) == 0 || (len(row) == 1 && strings.TrimSpace(row[0]) == "") {
			continue
		}
		if line == 1 && isHeader(row[0]) {
			continue
		}

		b, err := parseRow(row, instrument, loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	return bars, nil
}

func isHeader(first string) bool {
	f := strings.ToLower(strings.TrimSpace(first))
	return f == "time" || f == "timestamp" || f == "datetime" || f == "date"
}

func parseRow(row []string, instrument string, loc *time.Location) (domain.PriceBar, error) {
	if len(row) < 5 || len(row) > 6 {
		return domain.PriceBar{}, fmt.Errorf("%w: expected 5 or 6 columns, got %d", ErrMalformedRow, len(row))
	}

	ts, err := parseTime(strings.TrimSpace(row[0]), loc)
	if err != nil {
		return domain.PriceBar{}, err
	}

	vals := make([]float64, len(row)-1)
	for i, field := range row[1:] {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return domain.PriceBar{}, fmt.Errorf("%w: column %d: %v", ErrMalformedRow, i+2, err)
		}
		vals[i] = v
	}

	b := domain.PriceBar{
		Instrument: instrument,
		Timestamp:  ts,
		Open:       vals[0],
		High:       vals[1],
		Low:        vals[2],
		Close:      vals[3],
	}
	if len(vals) == 5 {
		b.Volume = vals[4]
	}
	return b, nil
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		// Millisecond timestamps have at least 12 digits.
		if len(strings.TrimPrefix(s, "-")) >= 12 {
			return time.UnixMilli(n).UTC(), nil
		}
		return time.Unix(n, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation(localLayout, s, loc); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("%w: unrecognized time %q", ErrMalformedRow, s)
}

// Write writes bars with a header row. Times are RFC3339 UTC.
func Write(w io.Writer, bars []domain.PriceBar) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"time", "open", "high", "low", "close", "volume"}); err != nil {
		return err
	}
	for _, b := range bars {
		err := cw.Write([]string{
			b.Timestamp.UTC().Format(time.RFC3339),
			formatF(b.Open), formatF(b.High), formatF(b.Low), formatF(b.Close), formatF(b.Volume),
		})
		if err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
