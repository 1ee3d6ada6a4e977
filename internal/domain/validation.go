package domain

import (
	"fmt"
	"time"
)

// Stage identifies a validation pipeline stage.
type Stage string

// Stage constants, in execution order.
const (
	StageConcept      Stage = "CONCEPT"
	StageOptimization Stage = "OPTIMIZATION"
	StageOutOfSample  Stage = "OUT_OF_SAMPLE"
)

// Stages lists stages in execution order.
var Stages = []Stage{StageConcept, StageOptimization, StageOutOfSample}

// StageStatus is the outcome of one stage.
type StageStatus string

// Stage status constants
const (
	StageStatusPassed StageStatus = "PASSED"
	StageStatusFailed StageStatus = "FAILED"
	StageStatusNotRun StageStatus = "NOT_RUN"
)

// Verdict is the final validation decision.
type Verdict string

// Verdict constants
const (
	VerdictPromotable Verdict = "PROMOTABLE"
	VerdictRejected   Verdict = "REJECTED"
)

// SplitConfig holds the three disjoint date ranges of a run.
type SplitConfig struct {
	Train      DateRange
	Validation DateRange
	Test       DateRange
}

// Validate checks that all splits are non-empty and pairwise disjoint.
// Overlap is reported as ErrLeakageViolation.
func (c SplitConfig) Validate() error {
	named := []struct {
		name string
		r    DateRange
	}{
		{"train", c.Train},
		{"validation", c.Validation},
		{"test", c.Test},
	}
	for _, n := range named {
		if n.r.Empty() {
			return fmt.Errorf("%w: %s split %s is empty", ErrInvalidParams, n.name, n.r)
		}
	}
	for i := 0; i < len(named); i++ {
		for j := i + 1; j < len(named); j++ {
			if named[i].r.Overlaps(named[j].r) {
				return fmt.Errorf("%w: %s split %s overlaps %s split %s",
					ErrLeakageViolation, named[i].name, named[i].r, named[j].name, named[j].r)
			}
		}
	}
	return nil
}

// In aligns every split to whole trading dates in loc. Splits that are
// disjoint as instants may share a trading date once aligned.
func (c SplitConfig) In(loc *time.Location) SplitConfig {
	return SplitConfig{
		Train:      c.Train.In(loc),
		Validation: c.Validation.In(loc),
		Test:       c.Test.In(loc),
	}
}

// SearchGrid is the fixed finite parameter grid of Stage 2.
type SearchGrid struct {
	EntryRule        EntryRule
	TargetMultiples  []float64
	FilterThresholds []float64
	StopModes        []StopMode
}

// Size returns the number of combinations.
func (g SearchGrid) Size() int {
	return len(g.TargetMultiples) * len(g.FilterThresholds) * len(g.StopModes)
}

// Combinations enumerates the grid in index order:
// target multiple, then filter threshold, then stop mode.
func (g SearchGrid) Combinations() []TradeParams {
	out := make([]TradeParams, 0, g.Size())
	for _, tm := range g.TargetMultiples {
		for _, ft := range g.FilterThresholds {
			for _, sm := range g.StopModes {
				out = append(out, TradeParams{
					EntryRule:       g.EntryRule,
					StopMode:        sm,
					TargetMultiple:  tm,
					FilterThreshold: ft,
				})
			}
		}
	}
	return out
}

// Validate checks that the grid is non-empty and every combination is valid.
func (g SearchGrid) Validate() error {
	if g.Size() == 0 {
		return fmt.Errorf("%w: search grid is empty", ErrInvalidParams)
	}
	for i, p := range g.Combinations() {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("grid combination %d: %w", i, err)
		}
	}
	return nil
}

// Thresholds are the gate limits shared by all stages.
type Thresholds struct {
	MinExpectancy  float64 // minimum edge in R per trade
	MinSamples     int     // minimum viable resolved trades
	MinWinRate     float64 // minimum win rate (Stage 1)
	MaxDegradation float64 // maximum train-to-test degradation (Stage 3), exclusive
}

// CriterionResult represents pass/fail for one gate criterion.
type CriterionResult struct {
	Name      string
	Threshold string
	Actual    string
	Pass      bool
}

// StageResult records one stage of a validation run.
type StageResult struct {
	Stage    Stage
	Status   StageStatus
	Split    string // split the stage read: validation | train | test
	Params   *TradeParams
	Stats    *OutcomeStats
	Criteria []CriterionResult
	Reason   string // failure reason, empty when passed
}

// ValidationRun is the append-only record of one walk-forward validation.
// Corresponds to validation_runs table.
type ValidationRun struct {
	RunID      string // deterministic hash
	Name       string
	Instrument string
	AnchorID   string
	Attempt    int    // attempt number, starting at 1
	Supersedes string // run id of the attempt this one replaces, empty for the first

	Split      SplitConfig
	Grid       SearchGrid
	Baseline   TradeParams
	Thresholds Thresholds

	// Stage 2 winner
	Optimal          *TradeParams
	OptimalGridIndex int // -1 when no winner

	// Per-split metrics
	ValidationStats *OutcomeStats
	TrainStats      *OutcomeStats
	TestStats       *OutcomeStats
	Degradation     *float64 // (train - test) / train

	Stages        []StageResult
	Verdict       Verdict
	FailedStage   Stage // empty when promotable
	FailureReason string

	DataVersion string // hash of the bars the run read
	StartedAt   time.Time
	CompletedAt time.Time
}

// Promotable reports whether every stage passed.
func (r *ValidationRun) Promotable() bool {
	return r.Verdict == VerdictPromotable
}

// GridResult is one evaluated Stage 2 combination.
// Corresponds to grid_results table.
type GridResult struct {
	RunID      string
	GridIndex  int
	Params     TradeParams
	SampleSize int
	Wins       int
	Losses     int
	WinRate    float64
	Expectancy float64
	Unviable   int
	Eligible   bool // sample size reached the minimum
	Selected   bool // chosen as the Stage 2 winner
}
