package csvbars

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Formats(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	input := strings.Join([]string{
		"time,open,high,low,close,volume",
		"2024-03-04T14:30:00Z,100,110,99,105,1200",
		"2024-03-04 09:35:00,105,106,104,105.5,800",
		"1709563200,1,2,0.5,1.5",
		"1709563500000,1,2,0.5,1.5",
		"",
	}, "\n")

	bars, err := Read(strings.NewReader(input), "ES", ny)
	require.NoError(t, err)
	require.Len(t, bars, 4)

	assert.Equal(t, "ES", bars[0].Instrument)
	assert.True(t, bars[0].Timestamp.Equal(time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)))
	assert.Equal(t, 1200.0, bars[0].Volume)

	// Local times are read in the exchange timezone (EST, UTC-5).
	assert.True(t, bars[1].Timestamp.Equal(time.Date(2024, 3, 4, 14, 35, 0, 0, time.UTC)))

	assert.True(t, bars[2].Timestamp.Equal(time.Unix(1709563200, 0)))
	assert.Zero(t, bars[2].Volume)
	assert.True(t, bars[3].Timestamp.Equal(time.UnixMilli(1709563500000)))
}

func TestRead_Malformed(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"too few columns", "2024-03-04T14:30:00Z,1,2,3"},
		{"bad price", "2024-03-04T14:30:00Z,1,x,0,1"},
		{"bad time", "yesterday,1,2,0,1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), "ES", nil)
			assert.True(t, errors.Is(err, ErrMalformedRow), "error = %v", err)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	bars, err := Read(strings.NewReader("2024-03-04T14:30:00Z,100,110,99,105,1200\n2024-03-04T14:35:00Z,105,106,104,105.25,800\n"), "ES", nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, bars))

	path := filepath.Join(t.TempDir(), "es.csv")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	loaded, err := Load(path, "ES", nil)
	require.NoError(t, err)
	assert.Equal(t, bars, loaded)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.csv"), "ES", nil)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
