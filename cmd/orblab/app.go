package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"breakout-lab/internal/config"
	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/observability"
	"breakout-lab/internal/storage"
	chstore "breakout-lab/internal/storage/clickhouse"
	"breakout-lab/internal/storage/csvbars"
	"breakout-lab/internal/storage/memory"
	pgstore "breakout-lab/internal/storage/postgres"
	"breakout-lab/internal/storage/sqlite"
	"breakout-lab/internal/validation"
)

// app is the wired state of one command invocation.
type app struct {
	cfg     *config.Config
	model   *cost.Model
	metrics *observability.Metrics
	logger  *log.Logger
	verbose bool

	bars     storage.BarStore
	ranges   storage.OpeningRangeStore
	outcomes storage.TradeOutcomeStore
	runs     storage.ValidationRunStore
	grids    storage.GridResultStore

	closers []func()
}

// openApp loads configuration and connects the configured stores.
func openApp(ctx context.Context, ro *rootOptions) (*app, error) {
	cfg, err := config.Load(ro.configPath, ro.envFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	model, err := cfg.CostModel()
	if err != nil {
		return nil, fmt.Errorf("cost model: %w", err)
	}

	a := &app{
		cfg:     cfg,
		model:   model,
		metrics: observability.NewMetrics("orblab", prometheus.NewRegistry()),
		logger:  log.New(os.Stderr, "[orblab] ", log.LstdFlags),
		verbose: ro.verbose,
	}
	if ro.metricsAddr != "" {
		a.serveMetrics(ro.metricsAddr)
	}
	if err := a.openStores(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// openStores selects the result stores by backend. Bars come from
// ClickHouse when a DSN is configured, otherwise from CSV files.
func (a *app) openStores(ctx context.Context) error {
	st := a.cfg.Storage

	switch st.Backend {
	case config.BackendPostgres:
		pool, err := pgstore.NewPool(ctx, st.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		a.ranges = pgstore.NewOpeningRangeStore(pool)
		a.outcomes = pgstore.NewTradeOutcomeStore(pool)
		a.runs = pgstore.NewValidationRunStore(pool)
	case config.BackendSQLite:
		runs, err := sqlite.Open(st.SQLitePath)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { runs.Close() })
		a.ranges = memory.NewOpeningRangeStore()
		a.outcomes = memory.NewTradeOutcomeStore()
		a.runs = runs
	default:
		a.ranges = memory.NewOpeningRangeStore()
		a.outcomes = memory.NewTradeOutcomeStore()
		a.runs = memory.NewValidationRunStore()
	}
	a.grids = memory.NewGridResultStore()

	if st.ClickHouseDSN != "" {
		conn, err := chstore.NewConn(ctx, st.ClickHouseDSN)
		if err != nil {
			return fmt.Errorf("connect to clickhouse: %w", err)
		}
		a.closers = append(a.closers, func() { conn.Close() })
		a.bars = chstore.NewBarStore(conn)
		a.grids = chstore.NewGridResultStore(conn)
		return nil
	}

	bars := memory.NewBarStore()
	a.bars = bars
	return a.loadCSVBars(ctx, bars)
}

// loadCSVBars reads <SYMBOL>.csv from the bars directory for every
// configured instrument. Missing files are skipped.
func (a *app) loadCSVBars(ctx context.Context, store *memory.BarStore) error {
	dir := a.cfg.Storage.BarsDir
	if dir == "" {
		return nil
	}
	for _, spec := range a.cfg.Specs() {
		path := filepath.Join(dir, spec.Symbol+".csv")
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			a.log("No bar file for %s at %s", spec.Symbol, path)
			continue
		}
		loc, err := spec.Location()
		if err != nil {
			return err
		}
		bars, err := csvbars.Load(path, spec.Symbol, loc)
		if err != nil {
			return err
		}
		if err := store.InsertBulk(ctx, bars); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		a.metrics.RecordBars(spec.Symbol, len(bars))
		a.log("Loaded %d %s bars from %s", len(bars), spec.Symbol, path)
	}
	return nil
}

func (a *app) serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Printf("Metrics server error: %v", err)
		}
	}()
	a.log("Serving metrics on %s/metrics", addr)

	a.closers = append(a.closers, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
}

// Close releases stores and the metrics server in reverse order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// pipeline builds a validation pipeline over the app's stores.
func (a *app) pipeline() (*validation.Pipeline, error) {
	simOpts, err := a.cfg.SimulationOptions()
	if err != nil {
		return nil, err
	}
	budget, err := a.cfg.RunTimeout()
	if err != nil {
		return nil, err
	}
	return validation.New(validation.Options{
		Model:        a.model,
		BarStore:     a.bars,
		Thresholds:   a.cfg.Thresholds(),
		RunStore:     a.runs,
		GridStore:    a.grids,
		OutcomeStore: a.outcomes,
		RangeStore:   a.ranges,
		Simulation:   simOpts,
		Workers:      a.cfg.Validation.Workers,
		TimeBudget:   budget,
		Metrics:      a.metrics,
		Verbose:      a.verbose,
	})
}

// location returns the exchange timezone of an allowed instrument.
func (a *app) location(instrument string) (*time.Location, error) {
	spec, err := a.model.Spec(instrument)
	if err != nil {
		return nil, err
	}
	return spec.Location()
}

// anchors resolves anchor ids, all configured anchors when ids is empty.
func (a *app) anchors(ids []string) ([]domain.AnchorWindow, error) {
	if len(ids) == 0 {
		return a.cfg.AnchorWindows()
	}
	out := make([]domain.AnchorWindow, 0, len(ids))
	for _, id := range ids {
		w, err := a.cfg.Anchor(id)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// instruments returns the allowed instruments, or symbols when given.
func (a *app) instruments(symbols []string) []string {
	if len(symbols) > 0 {
		out := make([]string, len(symbols))
		for i, s := range symbols {
			out[i] = strings.ToUpper(s)
		}
		return out
	}
	var out []string
	for _, spec := range a.cfg.Specs() {
		if spec.Allowed {
			out = append(out, spec.Symbol)
		}
	}
	return out
}

func (a *app) log(format string, args ...interface{}) {
	if a.verbose {
		a.logger.Printf(format, args...)
	}
}

// parseDates parses a half-open "YYYY-MM-DD" range as midnights in loc.
func parseDates(from, to string, loc *time.Location) (domain.DateRange, error) {
	start, err := time.ParseInLocation(domain.DateLayout, from, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("bad --from: %w", err)
	}
	end, err := time.ParseInLocation(domain.DateLayout, to, loc)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("bad --to: %w", err)
	}
	dates := domain.DateRange{Start: start, End: end}
	if dates.Empty() {
		return dates, fmt.Errorf("%w: --from must be before --to", domain.ErrInvalidParams)
	}
	return dates, nil
}

// writeOutput writes s to path, or to w when path is empty.
func writeOutput(w io.Writer, path, s string) error {
	if path == "" {
		_, err := fmt.Fprint(w, s)
		return err
	}
	if err := os.WriteFile(path, []byte(s), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
