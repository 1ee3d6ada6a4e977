package validation

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"breakout-lab/internal/cost"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/simulation"
	"breakout-lab/internal/storage"
	"breakout-lab/internal/storage/memory"
)

// Per-trade R for the fixture: 11 point stop and 1R target on ES.
// risk $118.40, reward $101.60.
var winR = 101.6 / 118.4

var anchor = domain.AnchorWindow{
	ID:          "1430",
	StartHour:   14,
	StartMinute: 30,
	Duration:    15 * time.Minute,
	Horizon:     2 * time.Hour,
}

var baseline = domain.TradeParams{
	EntryRule:      domain.EntryNextOpen,
	StopMode:       domain.StopFull,
	TargetMultiple: 1,
}

func march(from, to int) domain.DateRange {
	return domain.DateRange{
		Start: time.Date(2024, 3, from, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 3, to, 0, 0, 0, 0, time.UTC),
	}
}

var splits = domain.SplitConfig{
	Train:      march(4, 9),
	Validation: march(11, 16),
	Test:       march(18, 23),
}

func testModel(t *testing.T) *cost.Model {
	t.Helper()
	m, err := cost.NewModel([]domain.InstrumentSpec{
		{Symbol: "ES", PointValue: 10, TickSize: 0.25, Commission: 4.40, Spread: 2.50, Slippage: 1.50, Allowed: true},
		{Symbol: "NQ", PointValue: 20, TickSize: 0.25, Commission: 4.40, Allowed: false},
	})
	if err != nil {
		t.Fatalf("NewModel() error = %v", err)
	}
	return m
}

// session returns one day's bars: a 100-110 opening range, a long
// breakout closing at 111 and a bar that hits the 1R target (win) or the
// range low (loss).
func session(day int, win bool) []domain.PriceBar {
	open := time.Date(2024, 3, day, 14, 30, 0, 0, time.UTC)
	shapes := [][4]float64{
		{105, 110, 100, 106},
		{106, 109, 102, 108},
		{108, 109.5, 104, 108},
		{108, 112, 107, 111},
		{111, 112, 99, 100},
	}
	if win {
		shapes[4] = [4]float64{111, 123, 110, 122}
	}
	bars := make([]domain.PriceBar, len(shapes))
	for i, s := range shapes {
		bars[i] = domain.PriceBar{
			Instrument: "ES",
			Timestamp:  open.Add(time.Duration(i) * 5 * time.Minute),
			Open:       s[0], High: s[1], Low: s[2], Close: s[3],
		}
	}
	return bars
}

// seed stores consecutive sessions starting at day; pattern holds one
// 'W' or 'L' per day.
func seed(t *testing.T, store *memory.BarStore, day int, pattern string) {
	t.Helper()
	var bars []domain.PriceBar
	for i, c := range pattern {
		bars = append(bars, session(day+i, c == 'W')...)
	}
	if err := store.InsertBulk(context.Background(), bars); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}
}

type fixture struct {
	bars     *memory.BarStore
	runs     *memory.ValidationRunStore
	grids    *memory.GridResultStore
	outcomes *memory.TradeOutcomeStore
	ranges   *memory.OpeningRangeStore
	pipeline *Pipeline
}

func newFixture(t *testing.T, train, validation, test string) *fixture {
	t.Helper()
	f := &fixture{
		bars:     memory.NewBarStore(),
		runs:     memory.NewValidationRunStore(),
		grids:    memory.NewGridResultStore(),
		outcomes: memory.NewTradeOutcomeStore(),
		ranges:   memory.NewOpeningRangeStore(),
	}
	seed(t, f.bars, 4, train)
	seed(t, f.bars, 11, validation)
	seed(t, f.bars, 18, test)
	f.pipeline = f.newPipeline(t, f.bars)
	return f
}

func (f *fixture) newPipeline(t *testing.T, bars storage.BarStore) *Pipeline {
	t.Helper()
	p, err := New(Options{
		Model:        testModel(t),
		BarStore:     bars,
		RunStore:     f.runs,
		GridStore:    f.grids,
		OutcomeStore: f.outcomes,
		RangeStore:   f.ranges,
		Thresholds: domain.Thresholds{
			MinExpectancy:  0.05,
			MinSamples:     3,
			MinWinRate:     0.35,
			MaxDegradation: 0.5,
		},
		Simulation: simulation.Options{TradeHorizon: time.Hour},
		Workers:    2,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p
}

func request() Request {
	return Request{
		Name:       "es-1430",
		Instrument: "ES",
		Anchor:     anchor,
		Split:      splits,
		Grid: domain.SearchGrid{
			EntryRule:        domain.EntryNextOpen,
			TargetMultiples:  []float64{1, 2},
			FilterThresholds: []float64{0},
			StopModes:        []domain.StopMode{domain.StopFull},
		},
		Baseline: baseline,
	}
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestRun_Promotable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWLW", "WLWWW", "WWLWW")

	run, err := f.pipeline.Run(ctx, request())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Verdict != domain.VerdictPromotable {
		t.Fatalf("verdict = %s (%s: %s)", run.Verdict, run.FailedStage, run.FailureReason)
	}
	if len(run.Stages) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(run.Stages))
	}
	for _, st := range run.Stages {
		if st.Status != domain.StageStatusPassed {
			t.Errorf("%s = %s", st.Stage, st.Status)
		}
	}

	want := (4*winR - 1) / 5
	if run.ValidationStats.SampleSize != 5 || !approx(run.ValidationStats.Expectancy, want) {
		t.Errorf("validation stats = %+v, want expectancy %f", run.ValidationStats, want)
	}
	if run.OptimalGridIndex != 0 || run.Optimal.TargetMultiple != 1 {
		t.Errorf("optimal = %+v at %d", run.Optimal, run.OptimalGridIndex)
	}
	if run.Degradation == nil || !approx(*run.Degradation, 0) {
		t.Errorf("degradation = %v, want 0", run.Degradation)
	}
	if run.DataVersion == "" || run.CompletedAt.IsZero() {
		t.Error("run not finalized")
	}

	stored, err := f.runs.GetByID(ctx, run.RunID)
	if err != nil {
		t.Fatalf("run not persisted: %v", err)
	}
	if stored.Verdict != domain.VerdictPromotable {
		t.Errorf("stored verdict = %s", stored.Verdict)
	}

	grid, _ := f.grids.GetByRunID(ctx, run.RunID)
	if len(grid) != 2 {
		t.Fatalf("expected 2 grid rows, got %d", len(grid))
	}
	if !grid[0].Selected || grid[1].Selected {
		t.Error("grid row 0 should be the only selected row")
	}
	// 2R targets never fill inside the trade horizon; only the loss resolves.
	if grid[1].Eligible || grid[1].SampleSize != 1 {
		t.Errorf("grid row 1 = %+v", grid[1])
	}
}

func TestRun_ConceptRejectLeavesTestSplitUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWWW", "LLLLL", "WWWWW")

	run, err := f.pipeline.Run(ctx, request())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.Verdict != domain.VerdictRejected || run.FailedStage != domain.StageConcept {
		t.Fatalf("verdict %s at %s", run.Verdict, run.FailedStage)
	}
	if run.Stages[1].Status != domain.StageStatusNotRun || run.Stages[2].Status != domain.StageStatusNotRun {
		t.Error("later stages should be NOT_RUN")
	}
	if run.Optimal != nil || run.TrainStats != nil || run.TestStats != nil {
		t.Error("no stage after CONCEPT should have produced results")
	}

	outcomes, _ := f.outcomes.GetAll(ctx)
	for _, o := range outcomes {
		if splits.Test.Contains(o.Date) {
			t.Errorf("outcome %s read the test split", o.TradeID)
		}
	}
	testRanges, _ := f.ranges.GetByInstrument(ctx, "ES", splits.Test)
	if len(testRanges) != 0 {
		t.Errorf("%d test ranges built before Stage 3", len(testRanges))
	}
}

func TestRun_OutOfSampleReject(t *testing.T) {
	f := newFixture(t, "WWWLW", "WLWWW", "LLLLL")

	run, err := f.pipeline.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.FailedStage != domain.StageOutOfSample {
		t.Fatalf("failed stage = %s", run.FailedStage)
	}
	train := (4*winR - 1) / 5
	wantDeg := (train - -1) / train
	if run.Degradation == nil || !approx(*run.Degradation, wantDeg) {
		t.Errorf("degradation = %v, want %f", run.Degradation, wantDeg)
	}
	if run.TestStats.Expectancy != -1 {
		t.Errorf("test expectancy = %f", run.TestStats.Expectancy)
	}
}

func TestRun_NoEligibleCombination(t *testing.T) {
	f := newFixture(t, "WWWLW", "WLWWW", "WWWWW")
	req := request()
	req.Grid.TargetMultiples = []float64{2}

	run, err := f.pipeline.Run(context.Background(), req)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if run.FailedStage != domain.StageOptimization {
		t.Fatalf("failed stage = %s", run.FailedStage)
	}
	if run.OptimalGridIndex != -1 || run.Optimal != nil {
		t.Error("no winner expected")
	}
	if run.Stages[2].Status != domain.StageStatusNotRun {
		t.Error("Stage 3 should not run without a winner")
	}
}

func TestRun_RerunIsLeakage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWLW", "WLWWW", "WWLWW")

	if _, err := f.pipeline.Run(ctx, request()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	if _, err := f.pipeline.Run(ctx, request()); !errors.Is(err, domain.ErrLeakageViolation) {
		t.Errorf("re-run error = %v, want ErrLeakageViolation", err)
	}

	// A fresh process sees the persisted record.
	fresh := f.newPipeline(t, f.bars)
	if _, err := fresh.Run(ctx, request()); !errors.Is(err, domain.ErrLeakageViolation) {
		t.Errorf("re-run in new pipeline error = %v, want ErrLeakageViolation", err)
	}
}

func TestRun_NewAttemptAfterTestSplitReadIsLeakage(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWLW", "WLWWW", "LLLLL")

	if _, err := f.pipeline.Run(ctx, request()); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	req := request()
	req.Attempt = 2
	if _, err := f.pipeline.Run(ctx, req); !errors.Is(err, domain.ErrLeakageViolation) {
		t.Errorf("attempt 2 error = %v, want ErrLeakageViolation", err)
	}
	if f.pipeline.Registry().Claimed(RunID(req)) {
		t.Error("refused attempt should not hold its claim")
	}
}

func TestRun_NewAttemptSupersedesEarlyReject(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWLW", "LLLLL", "WWWWW")

	first, err := f.pipeline.Run(ctx, request())
	if err != nil {
		t.Fatalf("first Run failed: %v", err)
	}

	req := request()
	req.Attempt = 2
	second, err := f.pipeline.Run(ctx, req)
	if err != nil {
		t.Fatalf("attempt 2 failed: %v", err)
	}
	if second.RunID == first.RunID {
		t.Error("attempts must have distinct run ids")
	}
	if second.Supersedes != first.RunID {
		t.Errorf("supersedes = %q, want %q", second.Supersedes, first.RunID)
	}
}

func TestRun_OverlappingSplits(t *testing.T) {
	f := newFixture(t, "WWWWW", "WWWWW", "WWWWW")
	req := request()
	req.Split.Test = march(8, 20)

	if _, err := f.pipeline.Run(context.Background(), req); !errors.Is(err, domain.ErrLeakageViolation) {
		t.Errorf("error = %v, want ErrLeakageViolation", err)
	}
}

// countingBars counts bar store reads.
type countingBars struct {
	*memory.BarStore
	reads atomic.Int32
}

func (c *countingBars) GetRange(ctx context.Context, instrument string, start, end time.Time) ([]domain.PriceBar, error) {
	c.reads.Add(1)
	return c.BarStore.GetRange(ctx, instrument, start, end)
}

func TestRun_SplitsSharingTradingDateIsLeakage(t *testing.T) {
	f := newFixture(t, "WWWWW", "WWWWW", "WWWWW")
	seed(t, f.bars, 25, "WWWWW")
	bars := &countingBars{BarStore: f.bars}
	p := f.newPipeline(t, bars)

	// Disjoint as instants, but both halves of March 18 load as whole
	// trading dates into train and test.
	noon := time.Date(2024, 3, 18, 12, 0, 0, 0, time.UTC)
	req := request()
	req.Split = domain.SplitConfig{
		Train:      domain.DateRange{Start: march(4, 5).Start, End: noon},
		Validation: march(25, 30),
		Test:       domain.DateRange{Start: noon, End: march(23, 24).Start},
	}
	if err := req.Split.Validate(); err != nil {
		t.Fatalf("instant split should be disjoint: %v", err)
	}

	_, err := p.Run(context.Background(), req)
	if !errors.Is(err, domain.ErrLeakageViolation) {
		t.Fatalf("error = %v, want ErrLeakageViolation", err)
	}
	if n := bars.reads.Load(); n != 0 {
		t.Errorf("bar store read %d times, want 0", n)
	}
	if p.Registry().Claimed(RunID(req)) {
		t.Error("rejected request must not claim its run id")
	}
	if got, _ := f.runs.List(context.Background()); len(got) != 0 {
		t.Errorf("stored %d runs, want 0", len(got))
	}
}

func TestRun_UnknownInstrument(t *testing.T) {
	f := newFixture(t, "WWWWW", "WWWWW", "WWWWW")
	req := request()
	req.Instrument = "NQ"

	if _, err := f.pipeline.Run(context.Background(), req); !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Errorf("error = %v, want ErrUnknownInstrument", err)
	}
}

func TestRun_EmptySplitReleasesClaim(t *testing.T) {
	f := newFixture(t, "WWWWW", "WWWWW", "")

	_, err := f.pipeline.Run(context.Background(), request())
	if !errors.Is(err, domain.ErrInsufficientData) {
		t.Fatalf("error = %v, want ErrInsufficientData", err)
	}
	if f.pipeline.Registry().Claimed(RunID(request())) {
		t.Error("claim should be released when no data was evaluated")
	}
}

func TestRun_InvalidRequest(t *testing.T) {
	f := newFixture(t, "W", "W", "W")

	req := request()
	req.Grid.TargetMultiples = nil
	if _, err := f.pipeline.Run(context.Background(), req); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("empty grid error = %v, want ErrInvalidParams", err)
	}

	req = request()
	req.Name = ""
	if _, err := f.pipeline.Run(context.Background(), req); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("missing name error = %v, want ErrInvalidParams", err)
	}

	req = request()
	req.Baseline.FilterThreshold = 2
	if _, err := f.pipeline.Run(context.Background(), req); !errors.Is(err, domain.ErrInvalidParams) {
		t.Errorf("filtered baseline error = %v, want ErrInvalidParams", err)
	}
}

func TestRunID_DependsOnBaseline(t *testing.T) {
	a := request()
	b := request()
	b.Baseline.StopMode = domain.StopHalf
	if RunID(a) == RunID(b) {
		t.Error("requests with different baselines share a run id")
	}
}

// blockingBars waits for the context to end before answering.
type blockingBars struct {
	*memory.BarStore
}

func (b blockingBars) GetRange(ctx context.Context, instrument string, start, end time.Time) ([]domain.PriceBar, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestRun_TimeoutFailsClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "WWWWW", "WWWWW", "WWWWW")

	p, err := New(Options{
		Model:      testModel(t),
		BarStore:   blockingBars{f.bars},
		RunStore:   f.runs,
		Thresholds: domain.Thresholds{MinSamples: 1, MaxDegradation: 0.5},
		TimeBudget: 20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	run, err := p.Run(ctx, request())
	if !errors.Is(err, domain.ErrRunTimeout) {
		t.Fatalf("error = %v, want ErrRunTimeout", err)
	}
	if run != nil {
		t.Error("a timed-out run returns no record")
	}

	stored, err := f.runs.GetByID(ctx, RunID(request()))
	if err != nil {
		t.Fatalf("timed-out run not persisted: %v", err)
	}
	if stored.Verdict != domain.VerdictRejected {
		t.Errorf("verdict = %s", stored.Verdict)
	}
	if stored.ValidationStats != nil || stored.TrainStats != nil || stored.TestStats != nil || stored.Optimal != nil {
		t.Error("timed-out run must carry no statistics")
	}
	for _, st := range stored.Stages {
		if st.Stats != nil {
			t.Errorf("%s carries stats", st.Stage)
		}
	}
	if !p.Registry().Claimed(RunID(request())) {
		t.Error("a timed-out run id stays claimed")
	}
}

func TestRun_Deterministic(t *testing.T) {
	a := newFixture(t, "WWWLW", "WLWWW", "WWLWW")
	b := newFixture(t, "WWWLW", "WLWWW", "WWLWW")

	ra, err := a.pipeline.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run a failed: %v", err)
	}
	rb, err := b.pipeline.Run(context.Background(), request())
	if err != nil {
		t.Fatalf("Run b failed: %v", err)
	}

	if ra.RunID != rb.RunID || ra.DataVersion != rb.DataVersion {
		t.Error("run id and data version should match")
	}
	if *ra.ValidationStats != *rb.ValidationStats || *ra.TrainStats != *rb.TrainStats || *ra.TestStats != *rb.TestStats {
		t.Error("stats should match across identical runs")
	}
}

func TestNew_Validation(t *testing.T) {
	model := testModel(t)
	bars := memory.NewBarStore()
	th := domain.Thresholds{MinSamples: 30, MaxDegradation: 0.5}

	if _, err := New(Options{BarStore: bars, Thresholds: th}); err == nil {
		t.Error("missing model should fail")
	}
	if _, err := New(Options{Model: model, Thresholds: th}); err == nil {
		t.Error("missing bar store should fail")
	}
	if _, err := New(Options{Model: model, BarStore: bars, Thresholds: domain.Thresholds{MaxDegradation: 0.5}}); !errors.Is(err, domain.ErrInvalidParams) {
		t.Error("zero min samples should fail")
	}
	if _, err := New(Options{Model: model, BarStore: bars, Thresholds: domain.Thresholds{MinSamples: 1}}); !errors.Is(err, domain.ErrInvalidParams) {
		t.Error("zero max degradation should fail")
	}
}

func TestDegradation(t *testing.T) {
	if Degradation(0, 0.1) != nil || Degradation(-0.2, 0.1) != nil {
		t.Error("non-positive train expectancy has no degradation")
	}
	if d := Degradation(0.2, 0.1); d == nil || !approx(*d, 0.5) {
		t.Errorf("Degradation(0.2, 0.1) = %v", d)
	}
}
