// Package validation runs the three-stage walk-forward validation.
// Stages: concept on the validation split, grid optimization on the train
// split, out-of-sample confirmation on the sealed test split.
package validation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"slices"
	"time"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/decision"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/idhash"
	"breakout-lab/internal/observability"
	"breakout-lab/internal/ranges"
	"breakout-lab/internal/simulation"
	"breakout-lab/internal/storage"
)

// Split names recorded on stage results.
const (
	SplitTrain      = "train"
	SplitValidation = "validation"
	SplitTest       = "test"
)

// Request describes one validation run.
type Request struct {
	Name       string
	Instrument string
	Anchor     domain.AnchorWindow
	Split      domain.SplitConfig
	Grid       domain.SearchGrid
	Baseline   domain.TradeParams // Stage 1 parameters
	Attempt    int                // 0 means 1
	Supersedes string             // defaults to the previous attempt's run id
}

func (r Request) validate() error {
	if r.Name == "" {
		return fmt.Errorf("%w: run name is required", domain.ErrInvalidParams)
	}
	if r.Attempt < 1 {
		return fmt.Errorf("%w: attempt must be at least 1", domain.ErrInvalidParams)
	}
	if err := r.Anchor.Validate(); err != nil {
		return err
	}
	if err := r.Split.Validate(); err != nil {
		return err
	}
	if err := r.Grid.Validate(); err != nil {
		return err
	}
	if err := r.Baseline.Validate(); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	if r.Baseline.FilterThreshold != 0 {
		return fmt.Errorf("%w: baseline runs unfiltered, got filter %g", domain.ErrInvalidParams, r.Baseline.FilterThreshold)
	}
	return nil
}

// Options contains configuration for creating a Pipeline.
type Options struct {
	// Required
	Model      *cost.Model
	BarStore   storage.BarStore
	Thresholds domain.Thresholds

	// Optional stores
	RunStore     storage.ValidationRunStore
	GridStore    storage.GridResultStore
	OutcomeStore storage.TradeOutcomeStore
	RangeStore   storage.OpeningRangeStore

	Registry   *Registry // shared across pipelines in one process
	Simulation simulation.Options
	Workers    int           // Stage 2 concurrency, default GOMAXPROCS
	TimeBudget time.Duration // 0 disables the budget
	Metrics    *observability.Metrics
	Clock      func() time.Time
	Verbose    bool
}

// Pipeline executes validation runs.
type Pipeline struct {
	opts     Options
	eval     *decision.Evaluator
	registry *Registry
	now      func() time.Time
	workers  int
}

// New creates a validation pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Model == nil {
		return nil, errors.New("validation: cost model is required")
	}
	if opts.BarStore == nil {
		return nil, errors.New("validation: bar store is required")
	}
	if opts.Thresholds.MinSamples < 1 {
		return nil, fmt.Errorf("%w: min samples must be at least 1", domain.ErrInvalidParams)
	}
	if opts.Thresholds.MaxDegradation <= 0 {
		return nil, fmt.Errorf("%w: max degradation must be positive", domain.ErrInvalidParams)
	}

	p := &Pipeline{
		opts:     opts,
		eval:     decision.NewEvaluator(opts.Thresholds),
		registry: opts.Registry,
		now:      opts.Clock,
		workers:  opts.Workers,
	}
	if p.registry == nil {
		p.registry = NewRegistry()
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.workers <= 0 {
		p.workers = runtime.GOMAXPROCS(0)
	}
	return p, nil
}

// Registry returns the run registry the pipeline claims ids from.
func (p *Pipeline) Registry() *Registry { return p.registry }

// RunID returns the deterministic id req would execute under.
func RunID(req Request) string {
	attempt := req.Attempt
	if attempt == 0 {
		attempt = 1
	}
	return idhash.ComputeRunID(req.Name, req.Instrument, req.Anchor.ID, req.Split, req.Grid, req.Baseline, attempt)
}

// split is one loaded split with its signals.
type split struct {
	days    domain.DateRange
	series  *domain.BarSeries
	signals []domain.BreakoutSignal
}

// runData holds the loaded splits. The test split stays sealed until Stage 3.
type runData struct {
	loc        *time.Location
	train      split
	validation split
	test       *vault
	testDays   domain.DateRange
}

type stageFunc func(ctx context.Context, run *domain.ValidationRun, req Request, d *runData) (domain.StageResult, error)

// Run executes one validation run and persists its record.
// Steps:
//  1. Validate the request and resolve the instrument
//  2. Claim the run id (a second execution is leakage)
//  3. Load all three splits, sealing the test split
//  4. Stage 1: baseline on the validation split
//  5. Stage 2: grid search on the train split
//  6. Stage 3: winner on the test split
//  7. Persist the run record
//
// A failed stage ends the run as REJECTED; later stages are NOT_RUN.
// Exceeding the time budget returns ErrRunTimeout and persists a rejected
// record with no statistics.
func (p *Pipeline) Run(ctx context.Context, req Request) (*domain.ValidationRun, error) {
	// 1. Validate
	if req.Attempt == 0 {
		req.Attempt = 1
	}
	if err := req.validate(); err != nil {
		return nil, err
	}
	spec, err := p.opts.Model.Spec(req.Instrument)
	if err != nil {
		return nil, err
	}
	loc, err := spec.Location()
	if err != nil {
		return nil, err
	}
	// Splits load as whole trading dates, so disjointness must hold there too.
	if err := req.Split.In(loc).Validate(); err != nil {
		return nil, fmt.Errorf("split in %s: %w", loc, err)
	}

	// 2. Claim
	runID := RunID(req)
	if req.Supersedes == "" && req.Attempt > 1 {
		prev := req
		prev.Attempt--
		req.Supersedes = RunID(prev)
	}
	if err := p.claim(ctx, runID, req); err != nil {
		return nil, err
	}

	run := &domain.ValidationRun{
		RunID:            runID,
		Name:             req.Name,
		Instrument:       req.Instrument,
		AnchorID:         req.Anchor.ID,
		Attempt:          req.Attempt,
		Supersedes:       req.Supersedes,
		Split:            req.Split,
		Grid:             req.Grid,
		Baseline:         req.Baseline,
		Thresholds:       p.opts.Thresholds,
		OptimalGridIndex: -1,
		StartedAt:        p.now().UTC(),
	}
	p.log("run %s (%s attempt %d) started", idhash.ShortID(runID), req.Name, req.Attempt)

	parent := ctx
	if p.opts.TimeBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.TimeBudget)
		defer cancel()
	}

	// 3. Load
	data, err := p.load(ctx, req, loc, run)
	if err != nil {
		if isTimeout(err) {
			return nil, p.abort(parent, run, domain.StageConcept, err)
		}
		// Nothing was evaluated, so the id may be claimed again.
		p.registry.Release(runID)
		return nil, err
	}

	// 4-6. Stages
	stages := []struct {
		stage domain.Stage
		fn    stageFunc
	}{
		{domain.StageConcept, p.concept},
		{domain.StageOptimization, p.optimize},
		{domain.StageOutOfSample, p.outOfSample},
	}
	run.Verdict = domain.VerdictPromotable
	for i, s := range stages {
		if err := ctx.Err(); err != nil {
			return nil, p.abort(parent, run, s.stage, err)
		}
		res, err := s.fn(ctx, run, req, data)
		if err != nil {
			if isTimeout(err) {
				return nil, p.abort(parent, run, s.stage, err)
			}
			return nil, fmt.Errorf("stage %s: %w", s.stage, err)
		}
		run.Stages = append(run.Stages, res)
		p.log("  %s on %s: %s %s", s.stage, res.Split, res.Status, res.Reason)

		if res.Status == domain.StageStatusFailed {
			run.Verdict = domain.VerdictRejected
			run.FailedStage = s.stage
			run.FailureReason = res.Reason
			for _, rest := range stages[i+1:] {
				run.Stages = append(run.Stages, domain.StageResult{Stage: rest.stage, Status: domain.StageStatusNotRun})
			}
			break
		}
	}

	// 7. Persist
	if err := p.finalize(parent, run); err != nil {
		return nil, err
	}
	return run, nil
}

// claim reserves runID in the registry and the run store. Executing an
// attempt whose predecessor already read the test split is leakage.
func (p *Pipeline) claim(ctx context.Context, runID string, req Request) error {
	if p.opts.RunStore != nil {
		exists, err := p.opts.RunStore.Exists(ctx, runID)
		if err != nil {
			return fmt.Errorf("check run %s: %w", runID, err)
		}
		if exists {
			return fmt.Errorf("%w: run %s already recorded", domain.ErrLeakageViolation, runID)
		}
	}
	if err := p.registry.Claim(runID); err != nil {
		return err
	}
	if req.Supersedes != "" && p.opts.RunStore != nil {
		prev, err := p.opts.RunStore.GetByID(ctx, req.Supersedes)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			p.registry.Release(runID)
			return fmt.Errorf("load superseded run %s: %w", req.Supersedes, err)
		}
		if prev != nil && testSplitRead(prev) && prev.Split.Test.Overlaps(req.Split.Test) {
			p.registry.Release(runID)
			return fmt.Errorf("%w: test split %s already read by run %s",
				domain.ErrLeakageViolation, req.Split.Test, req.Supersedes)
		}
	}
	return nil
}

func testSplitRead(run *domain.ValidationRun) bool {
	for _, st := range run.Stages {
		if st.Stage == domain.StageOutOfSample && st.Status != domain.StageStatusNotRun {
			return true
		}
	}
	return false
}

// load reads every split's bars and builds signals for train and
// validation. The test split is sealed without building ranges.
func (p *Pipeline) load(ctx context.Context, req Request, loc *time.Location, run *domain.ValidationRun) (*runData, error) {
	d := &runData{loc: loc, testDays: req.Split.Test.In(loc)}

	var all []domain.PriceBar
	named := []struct {
		name string
		r    domain.DateRange
	}{
		{SplitTrain, req.Split.Train},
		{SplitValidation, req.Split.Validation},
		{SplitTest, req.Split.Test},
	}
	series := make(map[string]*domain.BarSeries, len(named))
	for _, n := range named {
		days := n.r.In(loc)
		bars, err := p.opts.BarStore.GetRange(ctx, req.Instrument, days.Start, days.End)
		if err != nil {
			return nil, fmt.Errorf("load %s split: %w", n.name, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("%w: no %s bars in %s split %s", domain.ErrInsufficientData, req.Instrument, n.name, days)
		}
		s, err := domain.NewBarSeries(req.Instrument, bars)
		if err != nil {
			return nil, fmt.Errorf("%s split: %w", n.name, err)
		}
		series[n.name] = s
		all = append(all, bars...)
		p.opts.Metrics.RecordBars(req.Instrument, len(bars))
	}
	slices.SortStableFunc(all, func(a, b domain.PriceBar) int { return a.Timestamp.Compare(b.Timestamp) })
	run.DataVersion = idhash.ComputeDataVersion(all)

	var err error
	d.train, err = p.prepare(ctx, req, series[SplitTrain], req.Split.Train.In(loc), loc)
	if err != nil {
		return nil, err
	}
	d.validation, err = p.prepare(ctx, req, series[SplitValidation], req.Split.Validation.In(loc), loc)
	if err != nil {
		return nil, err
	}
	d.test = seal(series[SplitTest])
	p.log("  loaded %d bars (data version %s)", len(all), run.DataVersion)
	return d, nil
}

// prepare builds ranges and signals for one split, persisting the ranges.
func (p *Pipeline) prepare(ctx context.Context, req Request, series *domain.BarSeries, days domain.DateRange, loc *time.Location) (split, error) {
	b := ranges.NewBuilder(series, loc)
	seq, err := b.Build(req.Instrument, days, []domain.AnchorWindow{req.Anchor})
	if err != nil {
		return split{}, err
	}
	built := ranges.Collect(seq)
	if p.opts.RangeStore != nil {
		for i := range built {
			if err := p.opts.RangeStore.Insert(ctx, &built[i]); err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
				return split{}, fmt.Errorf("persist range %s: %w", built[i].RangeID, err)
			}
		}
	}
	return split{
		days:    days,
		series:  series,
		signals: slices.Collect(b.Signals(slices.Values(built))),
	}, nil
}

// concept runs the baseline parameters on the validation split.
func (p *Pipeline) concept(ctx context.Context, run *domain.ValidationRun, req Request, d *runData) (domain.StageResult, error) {
	batch, err := p.simulate(ctx, d.validation.series, d.validation.signals, req.Baseline)
	if err != nil {
		return domain.StageResult{}, err
	}
	stats := batch.Stats()
	run.ValidationStats = &stats

	baseline := req.Baseline
	return stageResult(domain.StageConcept, SplitValidation, &baseline, &stats, p.eval.Concept(stats)), nil
}

// optimize evaluates the grid on the train split and selects the winner.
func (p *Pipeline) optimize(ctx context.Context, run *domain.ValidationRun, req Request, d *runData) (domain.StageResult, error) {
	sim := simulation.New(p.opts.Model, d.train.series, p.opts.Simulation)
	results, err := evaluateGrid(ctx, sim, d.train.signals, req.Grid.Combinations(), p.workers)
	if err != nil {
		return domain.StageResult{}, err
	}
	p.opts.Metrics.RecordGrid(len(results))

	minSamples := p.opts.Thresholds.MinSamples
	winner := selectWinner(results, minSamples)
	if p.opts.GridStore != nil {
		if err := p.opts.GridStore.InsertBulk(ctx, gridRows(run.RunID, results, winner, minSamples)); err != nil {
			return domain.StageResult{}, fmt.Errorf("persist grid: %w", err)
		}
	}
	p.log("  grid: %d combinations, winner %d", len(results), winner)

	if winner < 0 {
		return domain.StageResult{
			Stage:  domain.StageOptimization,
			Status: domain.StageStatusFailed,
			Split:  SplitTrain,
			Reason: fmt.Sprintf("no combination reached %d viable trades", minSamples),
		}, nil
	}

	w := results[winner]
	optimal := w.params
	stats := w.stats
	run.Optimal = &optimal
	run.OptimalGridIndex = winner
	run.TrainStats = &stats
	p.record(w.batch)
	if _, err := simulation.InsertOutcomes(ctx, p.opts.OutcomeStore, w.batch.Outcomes); err != nil {
		return domain.StageResult{}, err
	}

	params := optimal
	return stageResult(domain.StageOptimization, SplitTrain, &params, &stats, p.eval.Optimization(stats)), nil
}

// outOfSample opens the vault and runs the winner on the test split.
func (p *Pipeline) outOfSample(ctx context.Context, run *domain.ValidationRun, req Request, d *runData) (domain.StageResult, error) {
	series, err := d.test.open()
	if err != nil {
		return domain.StageResult{}, err
	}
	test, err := p.prepare(ctx, req, series, d.testDays, d.loc)
	if err != nil {
		return domain.StageResult{}, err
	}
	batch, err := p.simulate(ctx, test.series, test.signals, *run.Optimal)
	if err != nil {
		return domain.StageResult{}, err
	}
	stats := batch.Stats()
	run.TestStats = &stats
	run.Degradation = Degradation(run.TrainStats.Expectancy, stats.Expectancy)

	params := *run.Optimal
	return stageResult(domain.StageOutOfSample, SplitTest, &params, &stats, p.eval.OutOfSample(stats, run.Degradation)), nil
}

// simulate runs params over one split and persists the outcomes.
func (p *Pipeline) simulate(ctx context.Context, series *domain.BarSeries, signals []domain.BreakoutSignal, params domain.TradeParams) (*simulation.Batch, error) {
	batch, err := simulation.New(p.opts.Model, series, p.opts.Simulation).SimulateAll(ctx, signals, params)
	if err != nil {
		return nil, err
	}
	p.record(batch)
	if _, err := simulation.InsertOutcomes(ctx, p.opts.OutcomeStore, batch.Outcomes); err != nil {
		return nil, err
	}
	return batch, nil
}

func (p *Pipeline) record(b *simulation.Batch) {
	stats := b.Stats()
	p.opts.Metrics.RecordTrades("win", stats.Wins)
	p.opts.Metrics.RecordTrades("loss", stats.Losses)
	p.opts.Metrics.RecordTrades("unviable", stats.Unviable)
	p.opts.Metrics.RecordTrades("no_entry", b.NoEntry)
	p.opts.Metrics.RecordTrades("unresolved", b.Unresolved)
}

// Degradation returns (train - test) / train, or nil when the train
// expectancy is not positive.
func Degradation(train, test float64) *float64 {
	if train <= 0 {
		return nil
	}
	d := (train - test) / train
	return &d
}

func stageResult(stage domain.Stage, splitName string, params *domain.TradeParams, stats *domain.OutcomeStats, criteria []domain.CriterionResult) domain.StageResult {
	res := domain.StageResult{
		Stage:    stage,
		Status:   domain.StageStatusPassed,
		Split:    splitName,
		Params:   params,
		Stats:    stats,
		Criteria: criteria,
	}
	if !decision.Passed(criteria) {
		res.Status = domain.StageStatusFailed
		res.Reason = decision.FailureReason(criteria)
	}
	return res
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// abort fails the run closed at stage: every statistic is dropped, the
// record is persisted as REJECTED and ErrRunTimeout is returned.
func (p *Pipeline) abort(parent context.Context, run *domain.ValidationRun, stage domain.Stage, cause error) error {
	reason := fmt.Sprintf("time budget %s exceeded", p.opts.TimeBudget)
	if errors.Is(cause, context.Canceled) {
		reason = "run cancelled"
	}

	stages := make([]domain.StageResult, 0, len(domain.Stages))
	reached := false
	for _, s := range domain.Stages {
		switch {
		case s == stage:
			reached = true
			stages = append(stages, domain.StageResult{Stage: s, Status: domain.StageStatusFailed, Reason: reason})
		case reached:
			stages = append(stages, domain.StageResult{Stage: s, Status: domain.StageStatusNotRun})
		default:
			prev := stageStatus(run, s)
			stages = append(stages, domain.StageResult{Stage: s, Status: prev})
		}
	}

	run.Stages = stages
	run.Optimal = nil
	run.OptimalGridIndex = -1
	run.ValidationStats = nil
	run.TrainStats = nil
	run.TestStats = nil
	run.Degradation = nil
	run.Verdict = domain.VerdictRejected
	run.FailedStage = stage
	run.FailureReason = reason

	if err := p.finalize(context.WithoutCancel(parent), run); err != nil {
		return errors.Join(fmt.Errorf("%w: %s", domain.ErrRunTimeout, reason), err)
	}
	return fmt.Errorf("%w: run %s at %s: %s", domain.ErrRunTimeout, run.RunID, stage, reason)
}

func stageStatus(run *domain.ValidationRun, s domain.Stage) domain.StageStatus {
	for _, st := range run.Stages {
		if st.Stage == s {
			return st.Status
		}
	}
	return domain.StageStatusNotRun
}

// finalize stamps and persists the run record.
func (p *Pipeline) finalize(ctx context.Context, run *domain.ValidationRun) error {
	run.CompletedAt = p.now().UTC()
	if p.opts.RunStore != nil {
		if err := p.opts.RunStore.Insert(ctx, run); err != nil {
			if errors.Is(err, storage.ErrDuplicateKey) {
				return fmt.Errorf("%w: run %s already recorded", domain.ErrLeakageViolation, run.RunID)
			}
			return fmt.Errorf("persist run %s: %w", run.RunID, err)
		}
	}
	p.opts.Metrics.RecordRun(run)
	p.log("run %s: %s %s", idhash.ShortID(run.RunID), run.Verdict, run.FailureReason)
	return nil
}

func (p *Pipeline) log(format string, args ...interface{}) {
	if p.opts.Verbose {
		log.Printf("[validation] "+format, args...)
	}
}
