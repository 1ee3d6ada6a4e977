// Package config loads the lab configuration from YAML or JSON.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/simulation"
)

// Storage backends for ranges, outcomes and validation runs.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Environment variables that override file values.
const (
	EnvPostgresDSN   = "POSTGRES_DSN"
	EnvClickHouseDSN = "CLICKHOUSE_DSN"
	EnvSQLitePath    = "SQLITE_PATH"
)

// Config represents the complete lab configuration.
type Config struct {
	Instruments []InstrumentConfig `json:"instruments" yaml:"instruments"`
	Anchors     []AnchorConfig     `json:"anchors" yaml:"anchors"`
	Simulation  SimulationConfig   `json:"simulation" yaml:"simulation"`
	Validation  ValidationConfig   `json:"validation" yaml:"validation"`
	Storage     StorageConfig      `json:"storage" yaml:"storage"`
}

// InstrumentConfig is one allowlisted contract profile.
type InstrumentConfig struct {
	Symbol     string  `json:"symbol" yaml:"symbol"`
	PointValue float64 `json:"point_value" yaml:"point_value"`
	TickSize   float64 `json:"tick_size" yaml:"tick_size"`
	Commission float64 `json:"commission" yaml:"commission"`
	Spread     float64 `json:"spread" yaml:"spread"`
	Slippage   float64 `json:"slippage" yaml:"slippage"`
	Timezone   string  `json:"timezone" yaml:"timezone"`
	Allowed    bool    `json:"allowed" yaml:"allowed"`
}

// AnchorConfig is one opening-range window.
type AnchorConfig struct {
	ID       string `json:"id" yaml:"id"`
	Start    string `json:"start" yaml:"start"`       // "HH:MM" exchange time
	Duration string `json:"duration" yaml:"duration"` // e.g. "15m"
	Horizon  string `json:"horizon" yaml:"horizon"`   // breakout validity after the window
}

// SimulationConfig bounds the trade lifecycle.
type SimulationConfig struct {
	EntryHorizon string  `json:"entry_horizon,omitempty" yaml:"entry_horizon,omitempty"`
	TradeHorizon string  `json:"trade_horizon,omitempty" yaml:"trade_horizon,omitempty"`
	EntryRule    string  `json:"entry_rule" yaml:"entry_rule"`
	MaxCostRatio float64 `json:"max_cost_ratio,omitempty" yaml:"max_cost_ratio,omitempty"`
}

// ValidationConfig contains the walk-forward gate settings.
type ValidationConfig struct {
	Thresholds ThresholdsConfig `json:"thresholds" yaml:"thresholds"`
	Baseline   BaselineConfig   `json:"baseline" yaml:"baseline"`
	Grid       GridConfig       `json:"grid" yaml:"grid"`
	Workers    int              `json:"workers,omitempty" yaml:"workers,omitempty"`
	RunTimeout string           `json:"run_timeout,omitempty" yaml:"run_timeout,omitempty"`
	Splits     SplitsConfig     `json:"splits" yaml:"splits"`
}

// ThresholdsConfig mirrors domain.Thresholds.
type ThresholdsConfig struct {
	MinExpectancy  float64 `json:"min_expectancy" yaml:"min_expectancy"`
	MinSamples     int     `json:"min_samples" yaml:"min_samples"`
	MinWinRate     float64 `json:"min_win_rate" yaml:"min_win_rate"`
	MaxDegradation float64 `json:"max_degradation" yaml:"max_degradation"`
}

// BaselineConfig is the Stage 1 parameter set.
type BaselineConfig struct {
	StopMode       string  `json:"stop_mode" yaml:"stop_mode"`
	TargetMultiple float64 `json:"target_multiple" yaml:"target_multiple"`
}

// GridConfig is the Stage 2 search grid.
type GridConfig struct {
	TargetMultiples  []float64 `json:"target_multiples" yaml:"target_multiples"`
	FilterThresholds []float64 `json:"filter_thresholds" yaml:"filter_thresholds"`
	StopModes        []string  `json:"stop_modes" yaml:"stop_modes"`
}

// SplitsConfig holds the three date ranges, "YYYY-MM-DD", end exclusive.
type SplitsConfig struct {
	Train      DatesConfig `json:"train" yaml:"train"`
	Validation DatesConfig `json:"validation" yaml:"validation"`
	Test       DatesConfig `json:"test" yaml:"test"`
}

// DatesConfig is a half-open date range.
type DatesConfig struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

// StorageConfig selects persistence.
type StorageConfig struct {
	Backend       string `json:"backend" yaml:"backend"`
	PostgresDSN   string `json:"postgres_dsn,omitempty" yaml:"postgres_dsn,omitempty"`
	ClickHouseDSN string `json:"clickhouse_dsn,omitempty" yaml:"clickhouse_dsn,omitempty"` // bar source when set
	SQLitePath    string `json:"sqlite_path,omitempty" yaml:"sqlite_path,omitempty"`
	BarsDir       string `json:"bars_dir,omitempty" yaml:"bars_dir,omitempty"` // <SYMBOL>.csv files
}

// FieldError is a validation failure at a config path.
type FieldError struct {
	Path string
	Msg  string
}

func (e *FieldError) Error() string {
	return e.Path + ": " + e.Msg
}

// Default returns a configuration for ES and NQ on the 09:30 New York open.
func Default() *Config {
	return &Config{
		Instruments: []InstrumentConfig{
			{Symbol: "ES", PointValue: 50, TickSize: 0.25, Commission: 4.50, Spread: 12.50, Slippage: 12.50, Timezone: "America/New_York", Allowed: true},
			{Symbol: "NQ", PointValue: 20, TickSize: 0.25, Commission: 4.50, Spread: 5.00, Slippage: 5.00, Timezone: "America/New_York", Allowed: true},
		},
		Anchors: []AnchorConfig{
			{ID: "0930", Start: "09:30", Duration: "15m", Horizon: "2h"},
		},
		Simulation: SimulationConfig{
			TradeHorizon: "6h",
			EntryRule:    string(domain.EntryNextOpen),
		},
		Validation: ValidationConfig{
			Thresholds: ThresholdsConfig{
				MinExpectancy:  0.05,
				MinSamples:     30,
				MinWinRate:     0.35,
				MaxDegradation: 0.5,
			},
			Baseline: BaselineConfig{StopMode: string(domain.StopFull), TargetMultiple: 2},
			Grid: GridConfig{
				TargetMultiples:  []float64{1, 1.5, 2, 3},
				FilterThresholds: []float64{0},
				StopModes:        []string{string(domain.StopFull), string(domain.StopHalf)},
			},
			RunTimeout: "10m",
			Splits: SplitsConfig{
				Train:      DatesConfig{Start: "2022-01-01", End: "2023-01-01"},
				Validation: DatesConfig{Start: "2023-01-01", End: "2023-07-01"},
				Test:       DatesConfig{Start: "2023-07-01", End: "2024-01-01"},
			},
		},
		Storage: StorageConfig{Backend: BackendMemory},
	}
}

// Load reads envFile (when present), then path (Default when empty),
// applies environment overrides and validates.
func Load(path, envFile string) (*Config, error) {
	if err := LoadEnvFile(envFile); err != nil {
		return nil, err
	}

	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = parseFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads and validates configuration from a file.
func LoadFromFile(path string) (*Config, error) {
	cfg, err := parseFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func parseFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		if jerr := json.Unmarshal(data, cfg); jerr != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", errors.Join(err, jerr))
		}
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error. Existing variables win.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("stat env file: %w", err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides storage settings from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvPostgresDSN); v != "" {
		c.Storage.PostgresDSN = v
	}
	if v := os.Getenv(EnvClickHouseDSN); v != "" {
		c.Storage.ClickHouseDSN = v
	}
	if v := os.Getenv(EnvSQLitePath); v != "" {
		c.Storage.SQLitePath = v
	}
}

// SaveToFile writes the configuration as YAML for .yaml/.yml paths, JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration. All failures are returned joined,
// each as a *FieldError.
func (c *Config) Validate() error {
	var errs []error
	fail := func(path, format string, args ...interface{}) {
		errs = append(errs, &FieldError{Path: path, Msg: fmt.Sprintf(format, args...)})
	}

	if len(c.Instruments) == 0 {
		fail("instruments", "at least one instrument is required")
	}
	symbols := make(map[string]bool)
	for i, ic := range c.Instruments {
		p := fmt.Sprintf("instruments[%d]", i)
		if ic.Symbol == "" {
			fail(p+".symbol", "is required")
		} else if symbols[ic.Symbol] {
			fail(p+".symbol", "duplicate symbol %q", ic.Symbol)
		}
		symbols[ic.Symbol] = true
		if ic.PointValue <= 0 {
			fail(p+".point_value", "must be positive")
		}
		if ic.TickSize <= 0 {
			fail(p+".tick_size", "must be positive")
		}
		if ic.Commission < 0 || ic.Spread < 0 || ic.Slippage < 0 {
			fail(p, "commission, spread and slippage must be non-negative")
		}
		if _, err := ic.spec().Location(); err != nil {
			fail(p+".timezone", "%v", err)
		}
	}

	if len(c.Anchors) == 0 {
		fail("anchors", "at least one anchor is required")
	}
	ids := make(map[string]bool)
	for i, ac := range c.Anchors {
		p := fmt.Sprintf("anchors[%d]", i)
		if ids[ac.ID] {
			fail(p+".id", "duplicate anchor %q", ac.ID)
		}
		ids[ac.ID] = true
		if _, err := ac.window(); err != nil {
			fail(p, "%v", err)
		}
	}

	if _, err := c.SimulationOptions(); err != nil {
		fail("simulation", "%v", err)
	}
	if c.Simulation.MaxCostRatio < 0 || c.Simulation.MaxCostRatio >= 1 {
		fail("simulation.max_cost_ratio", "must be in [0, 1)")
	}
	if err := c.Baseline().Validate(); err != nil {
		fail("validation.baseline", "%v", err)
	}
	if err := c.Grid().Validate(); err != nil {
		fail("validation.grid", "%v", err)
	}

	th := c.Validation.Thresholds
	if th.MinSamples < 1 {
		fail("validation.thresholds.min_samples", "must be at least 1")
	}
	if th.MinWinRate < 0 || th.MinWinRate > 1 {
		fail("validation.thresholds.min_win_rate", "must be in [0, 1]")
	}
	if th.MaxDegradation <= 0 {
		fail("validation.thresholds.max_degradation", "must be positive")
	}
	if c.Validation.Workers < 0 {
		fail("validation.workers", "must be non-negative")
	}
	if _, err := c.RunTimeout(); err != nil {
		fail("validation.run_timeout", "%v", err)
	}
	if _, err := c.Split(time.UTC); err != nil {
		fail("validation.splits", "%v", err)
	}

	switch c.Storage.Backend {
	case BackendMemory:
	case BackendPostgres:
		if c.Storage.PostgresDSN == "" {
			fail("storage.postgres_dsn", "is required for the postgres backend (or set %s)", EnvPostgresDSN)
		}
	case BackendSQLite:
		if c.Storage.SQLitePath == "" {
			fail("storage.sqlite_path", "is required for the sqlite backend (or set %s)", EnvSQLitePath)
		}
	default:
		fail("storage.backend", "must be %q, %q or %q, got %q", BackendMemory, BackendPostgres, BackendSQLite, c.Storage.Backend)
	}

	return errors.Join(errs...)
}

func (ic InstrumentConfig) spec() domain.InstrumentSpec {
	return domain.InstrumentSpec{
		Symbol:     ic.Symbol,
		PointValue: ic.PointValue,
		TickSize:   ic.TickSize,
		Commission: ic.Commission,
		Spread:     ic.Spread,
		Slippage:   ic.Slippage,
		Timezone:   ic.Timezone,
		Allowed:    ic.Allowed,
	}
}

// Specs converts the instruments section.
func (c *Config) Specs() []domain.InstrumentSpec {
	out := make([]domain.InstrumentSpec, 0, len(c.Instruments))
	for _, ic := range c.Instruments {
		out = append(out, ic.spec())
	}
	return out
}

// CostModel builds the cost model over the configured instruments.
func (c *Config) CostModel() (*cost.Model, error) {
	var opts []cost.Option
	if c.Simulation.MaxCostRatio > 0 {
		opts = append(opts, cost.WithMaxCostRatio(c.Simulation.MaxCostRatio))
	}
	return cost.NewModel(c.Specs(), opts...)
}

func (ac AnchorConfig) window() (domain.AnchorWindow, error) {
	start, err := time.Parse("15:04", ac.Start)
	if err != nil {
		return domain.AnchorWindow{}, fmt.Errorf("anchor %s start %q: want HH:MM", ac.ID, ac.Start)
	}
	dur, err := time.ParseDuration(ac.Duration)
	if err != nil {
		return domain.AnchorWindow{}, fmt.Errorf("anchor %s duration: %w", ac.ID, err)
	}
	horizon, err := time.ParseDuration(ac.Horizon)
	if err != nil {
		return domain.AnchorWindow{}, fmt.Errorf("anchor %s horizon: %w", ac.ID, err)
	}
	w := domain.AnchorWindow{
		ID:          ac.ID,
		StartHour:   start.Hour(),
		StartMinute: start.Minute(),
		Duration:    dur,
		Horizon:     horizon,
	}
	return w, w.Validate()
}

// AnchorWindows converts the anchors section.
func (c *Config) AnchorWindows() ([]domain.AnchorWindow, error) {
	out := make([]domain.AnchorWindow, 0, len(c.Anchors))
	for _, ac := range c.Anchors {
		w, err := ac.window()
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// Anchor returns the anchor window with id.
func (c *Config) Anchor(id string) (domain.AnchorWindow, error) {
	for _, ac := range c.Anchors {
		if ac.ID == id {
			return ac.window()
		}
	}
	return domain.AnchorWindow{}, fmt.Errorf("%w: unknown anchor %q", domain.ErrInvalidParams, id)
}

// SimulationOptions converts the simulation horizons.
func (c *Config) SimulationOptions() (simulation.Options, error) {
	var (
		opts simulation.Options
		err  error
	)
	if opts.EntryHorizon, err = optionalDuration(c.Simulation.EntryHorizon); err != nil {
		return opts, fmt.Errorf("entry_horizon: %w", err)
	}
	if opts.TradeHorizon, err = optionalDuration(c.Simulation.TradeHorizon); err != nil {
		return opts, fmt.Errorf("trade_horizon: %w", err)
	}
	return opts, nil
}

// RunTimeout returns the per-run time budget, 0 when unset.
func (c *Config) RunTimeout() (time.Duration, error) {
	return optionalDuration(c.Validation.RunTimeout)
}

func optionalDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("duration %s must be non-negative", s)
	}
	return d, nil
}

// Thresholds converts the gate thresholds.
func (c *Config) Thresholds() domain.Thresholds {
	th := c.Validation.Thresholds
	return domain.Thresholds{
		MinExpectancy:  th.MinExpectancy,
		MinSamples:     th.MinSamples,
		MinWinRate:     th.MinWinRate,
		MaxDegradation: th.MaxDegradation,
	}
}

// Baseline returns the Stage 1 parameters: no filter.
func (c *Config) Baseline() domain.TradeParams {
	return domain.TradeParams{
		EntryRule:      domain.EntryRule(c.Simulation.EntryRule),
		StopMode:       domain.StopMode(c.Validation.Baseline.StopMode),
		TargetMultiple: c.Validation.Baseline.TargetMultiple,
	}
}

// Grid returns the Stage 2 search grid.
func (c *Config) Grid() domain.SearchGrid {
	g := domain.SearchGrid{
		EntryRule:        domain.EntryRule(c.Simulation.EntryRule),
		TargetMultiples:  c.Validation.Grid.TargetMultiples,
		FilterThresholds: c.Validation.Grid.FilterThresholds,
	}
	for _, m := range c.Validation.Grid.StopModes {
		g.StopModes = append(g.StopModes, domain.StopMode(m))
	}
	return g
}

// Split parses the date splits as midnights in loc.
func (c *Config) Split(loc *time.Location) (domain.SplitConfig, error) {
	var (
		sc  domain.SplitConfig
		err error
	)
	s := c.Validation.Splits
	if sc.Train, err = s.Train.dates(loc); err != nil {
		return sc, fmt.Errorf("train: %w", err)
	}
	if sc.Validation, err = s.Validation.dates(loc); err != nil {
		return sc, fmt.Errorf("validation: %w", err)
	}
	if sc.Test, err = s.Test.dates(loc); err != nil {
		return sc, fmt.Errorf("test: %w", err)
	}
	return sc, sc.Validate()
}

func (d DatesConfig) dates(loc *time.Location) (domain.DateRange, error) {
	start, err := time.ParseInLocation(domain.DateLayout, d.Start, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("start %q: %w", d.Start, err)
	}
	end, err := time.ParseInLocation(domain.DateLayout, d.End, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("end %q: %w", d.End, err)
	}
	return domain.DateRange{Start: start, End: end}, nil
}
