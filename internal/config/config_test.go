package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"breakout-lab/internal/domain"
)

const sampleYAML = `
instruments:
  - symbol: ES
    point_value: 50
    tick_size: 0.25
    commission: 4.5
    spread: 12.5
    slippage: 12.5
    timezone: America/New_York
    allowed: true
anchors:
  - id: "0930"
    start: "09:30"
    duration: 15m
    horizon: 2h
simulation:
  trade_horizon: 4h
  entry_rule: CONFIRMATION
validation:
  thresholds:
    min_expectancy: 0.1
    min_samples: 20
    min_win_rate: 0.4
    max_degradation: 0.5
  baseline:
    stop_mode: HALF
    target_multiple: 1.5
  grid:
    target_multiples: [1, 2]
    filter_thresholds: [0, 4]
    stop_modes: [FULL]
  workers: 4
  run_timeout: 5m
  splits:
    train: {start: "2022-01-01", end: "2023-01-01"}
    validation: {start: "2023-01-01", end: "2023-04-01"}
    test: {start: "2023-04-01", end: "2023-07-01"}
storage:
  backend: sqlite
  sqlite_path: runs.db
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadFromFileYAML(t *testing.T) {
	cfg, err := LoadFromFile(writeFile(t, "lab.yaml", sampleYAML))
	require.NoError(t, err)

	specs := cfg.Specs()
	require.Len(t, specs, 1)
	assert.Equal(t, "ES", specs[0].Symbol)
	assert.Equal(t, 50.0, specs[0].PointValue)
	assert.True(t, specs[0].Allowed)

	w, err := cfg.Anchor("0930")
	require.NoError(t, err)
	assert.Equal(t, 9, w.StartHour)
	assert.Equal(t, 30, w.StartMinute)
	assert.Equal(t, 15*time.Minute, w.Duration)
	assert.Equal(t, 2*time.Hour, w.Horizon)

	_, err = cfg.Anchor("1000")
	assert.ErrorIs(t, err, domain.ErrInvalidParams)

	opts, err := cfg.SimulationOptions()
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, opts.TradeHorizon)
	assert.Zero(t, opts.EntryHorizon)

	assert.Equal(t, domain.Thresholds{MinExpectancy: 0.1, MinSamples: 20, MinWinRate: 0.4, MaxDegradation: 0.5}, cfg.Thresholds())
	assert.Equal(t, domain.TradeParams{EntryRule: domain.EntryConfirmation, StopMode: domain.StopHalf, TargetMultiple: 1.5}, cfg.Baseline())

	grid := cfg.Grid()
	assert.Equal(t, domain.EntryConfirmation, grid.EntryRule)
	assert.Equal(t, 4, grid.Size())

	timeout, err := cfg.RunTimeout()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, timeout)
	assert.Equal(t, BackendSQLite, cfg.Storage.Backend)
}

func TestLoadFromFileJSONFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.json")
	require.NoError(t, Default().SaveToFile(path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestSaveToFileYAMLRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lab.yml")
	require.NoError(t, Default().SaveToFile(path))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFileErrors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadFromFile(writeFile(t, "bad.yaml", "instruments: [\n"))
	assert.ErrorContains(t, err, "tried YAML and JSON")
}

func TestSplitInLocation(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	sc, err := Default().Split(ny)
	require.NoError(t, err)
	assert.True(t, sc.Train.Start.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, ny)))
	assert.True(t, sc.Test.End.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, ny)))
}

func TestValidateFieldPaths(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"no instruments", func(c *Config) { c.Instruments = nil }, "instruments"},
		{"missing symbol", func(c *Config) { c.Instruments[0].Symbol = "" }, "instruments[0].symbol"},
		{"duplicate symbol", func(c *Config) { c.Instruments[1].Symbol = "ES" }, "instruments[1].symbol"},
		{"zero point value", func(c *Config) { c.Instruments[0].PointValue = 0 }, "instruments[0].point_value"},
		{"zero tick", func(c *Config) { c.Instruments[1].TickSize = 0 }, "instruments[1].tick_size"},
		{"negative cost", func(c *Config) { c.Instruments[0].Slippage = -1 }, "instruments[0]"},
		{"bad timezone", func(c *Config) { c.Instruments[0].Timezone = "Mars/Olympus" }, "instruments[0].timezone"},
		{"no anchors", func(c *Config) { c.Anchors = nil }, "anchors"},
		{"bad anchor start", func(c *Config) { c.Anchors[0].Start = "9h30" }, "anchors[0]"},
		{"bad horizon", func(c *Config) { c.Simulation.TradeHorizon = "forever" }, "simulation"},
		{"cost ratio", func(c *Config) { c.Simulation.MaxCostRatio = 1 }, "simulation.max_cost_ratio"},
		{"entry rule", func(c *Config) { c.Simulation.EntryRule = "MARKET" }, "validation.baseline"},
		{"empty grid", func(c *Config) { c.Validation.Grid.StopModes = nil }, "validation.grid"},
		{"min samples", func(c *Config) { c.Validation.Thresholds.MinSamples = 0 }, "validation.thresholds.min_samples"},
		{"win rate", func(c *Config) { c.Validation.Thresholds.MinWinRate = 1.5 }, "validation.thresholds.min_win_rate"},
		{"degradation", func(c *Config) { c.Validation.Thresholds.MaxDegradation = 0 }, "validation.thresholds.max_degradation"},
		{"workers", func(c *Config) { c.Validation.Workers = -1 }, "validation.workers"},
		{"timeout", func(c *Config) { c.Validation.RunTimeout = "-1s" }, "validation.run_timeout"},
		{"overlap", func(c *Config) { c.Validation.Splits.Test.Start = "2022-06-01" }, "validation.splits"},
		{"postgres dsn", func(c *Config) { c.Storage.Backend = BackendPostgres }, "storage.postgres_dsn"},
		{"sqlite path", func(c *Config) { c.Storage.Backend = BackendSQLite }, "storage.sqlite_path"},
		{"backend", func(c *Config) { c.Storage.Backend = "mongo" }, "storage.backend"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)

			var fe *FieldError
			require.True(t, errors.As(err, &fe), "want a FieldError, got %v", err)
			assert.Equal(t, tt.path, fe.Path)
		})
	}
}

func TestValidateJoinsAllFailures(t *testing.T) {
	cfg := Default()
	cfg.Instruments[0].PointValue = 0
	cfg.Storage.Backend = "mongo"

	err := cfg.Validate()
	assert.ErrorContains(t, err, "instruments[0].point_value")
	assert.ErrorContains(t, err, "storage.backend")
}

func TestLoadAppliesEnvFile(t *testing.T) {
	t.Setenv(EnvPostgresDSN, "")
	t.Setenv(EnvClickHouseDSN, "")
	t.Setenv(EnvSQLitePath, "")
	os.Unsetenv(EnvPostgresDSN)
	os.Unsetenv(EnvClickHouseDSN)
	os.Unsetenv(EnvSQLitePath)

	env := writeFile(t, ".env", "POSTGRES_DSN=postgres://lab@localhost/lab\nCLICKHOUSE_DSN=clickhouse://localhost:9000/lab\n")
	cfgPath := writeFile(t, "lab.yaml", sampleYAML)

	cfg, err := Load(cfgPath, env)
	require.NoError(t, err)
	assert.Equal(t, "postgres://lab@localhost/lab", cfg.Storage.PostgresDSN)
	assert.Equal(t, "clickhouse://localhost:9000/lab", cfg.Storage.ClickHouseDSN)
	assert.Equal(t, "runs.db", cfg.Storage.SQLitePath)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	t.Setenv(EnvSQLitePath, "/var/lib/lab/runs.db")

	cfg, err := Load(writeFile(t, "lab.yaml", sampleYAML), "")
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/lab/runs.db", cfg.Storage.SQLitePath)
}

func TestLoadDefaultsAndMissingEnvFile(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
	assert.Len(t, cfg.Instruments, 2)
}
