package reporting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"breakout-lab/internal/decision"
	"breakout-lab/internal/domain"
	"breakout-lab/internal/idhash"
	"breakout-lab/internal/storage"
	"breakout-lab/internal/validation"
)

// Generator produces reports from stored validation runs.
type Generator struct {
	runStore  storage.ValidationRunStore
	gridStore storage.GridResultStore // optional
	now       func() time.Time        // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator. gridStore may be nil.
func NewGenerator(runStore storage.ValidationRunStore, gridStore storage.GridResultStore) *Generator {
	return &Generator{
		runStore:  runStore,
		gridStore: gridStore,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces the summary report over all runs.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	runs, err := g.runStore.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}

	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i], runs[j]
		if a.Instrument != b.Instrument {
			return a.Instrument < b.Instrument
		}
		if a.AnchorID != b.AnchorID {
			return a.AnchorID < b.AnchorID
		}
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.Attempt < b.Attempt
	})

	report := &Report{
		GeneratedAt: g.now(),
		RunCount:    len(runs),
	}

	instruments := make(map[string]struct{})
	for _, run := range runs {
		instruments[run.Instrument] = struct{}{}
		if run.Promotable() {
			report.PromotableCount++
		}
		report.Runs = append(report.Runs, runRow(run))
		report.SplitMetrics = append(report.SplitMetrics, splitMetrics(run)...)
	}
	report.InstrumentCount = len(instruments)
	report.Rejections = rejections(runs)

	return report, nil
}

// GenerateRun produces the detail report of one run.
func (g *Generator) GenerateRun(ctx context.Context, runID string) (*RunReport, error) {
	run, err := g.runStore.GetByID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("get run %s: %w", runID, err)
	}

	rr := &RunReport{GeneratedAt: g.now(), Run: run}
	if g.gridStore != nil {
		grid, err := g.gridStore.GetByRunID(ctx, runID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("get grid of run %s: %w", runID, err)
		}
		rr.Grid = grid
	}
	return rr, nil
}

func runRow(run *domain.ValidationRun) RunRow {
	row := RunRow{
		RunID:         run.RunID,
		ShortID:       idhash.ShortID(run.RunID),
		Name:          run.Name,
		Instrument:    run.Instrument,
		AnchorID:      run.AnchorID,
		Attempt:       run.Attempt,
		Verdict:       run.Verdict,
		FailedStage:   run.FailedStage,
		FailureReason: run.FailureReason,
		Degradation:   run.Degradation,
		DataVersion:   run.DataVersion,
		CompletedAt:   run.CompletedAt,
	}
	if run.Optimal != nil {
		row.Optimal = decision.ParamsLabel(*run.Optimal)
	}
	return row
}

// splitMetrics lists the splits a run actually evaluated.
func splitMetrics(run *domain.ValidationRun) []SplitMetricRow {
	splits := []struct {
		name  string
		stats *domain.OutcomeStats
	}{
		{validation.SplitValidation, run.ValidationStats},
		{validation.SplitTrain, run.TrainStats},
		{validation.SplitTest, run.TestStats},
	}

	var rows []SplitMetricRow
	for _, s := range splits {
		if s.stats == nil {
			continue
		}
		rows = append(rows, SplitMetricRow{
			RunID:                run.RunID,
			Split:                s.name,
			SampleSize:           s.stats.SampleSize,
			Wins:                 s.stats.Wins,
			Losses:               s.stats.Losses,
			WinRate:              s.stats.WinRate,
			Expectancy:           s.stats.Expectancy,
			MedianR:              s.stats.MedianR,
			P10R:                 s.stats.P10R,
			P90R:                 s.stats.P90R,
			MaxDrawdownR:         s.stats.MaxDrawdownR,
			MaxConsecutiveLosses: s.stats.MaxConsecutiveLosses,
			Unviable:             s.stats.Unviable,
		})
	}
	return rows
}

func rejections(runs []*domain.ValidationRun) []RejectionRow {
	order := []domain.Stage{domain.StageConcept, domain.StageOptimization, domain.StageOutOfSample}
	counts := make(map[domain.Stage]int)
	reasons := make(map[domain.Stage]map[string]struct{})

	for _, run := range runs {
		if run.Promotable() || run.FailedStage == "" {
			continue
		}
		counts[run.FailedStage]++
		if reasons[run.FailedStage] == nil {
			reasons[run.FailedStage] = make(map[string]struct{})
		}
		reasons[run.FailedStage][run.FailureReason] = struct{}{}
	}

	var rows []RejectionRow
	for _, stage := range order {
		if counts[stage] == 0 {
			continue
		}
		row := RejectionRow{Stage: stage, Count: counts[stage]}
		for r := range reasons[stage] {
			row.Reasons = append(row.Reasons, r)
		}
		sort.Strings(row.Reasons)
		rows = append(rows, row)
	}
	return rows
}
