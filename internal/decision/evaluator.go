// Package decision evaluates the validation stage gates and renders
// the resulting checklist.
package decision

import (
	"fmt"
	"strings"

	"breakout-lab/internal/domain"
)

// Criterion names.
const (
	CriterionExpectancy  = "Expectancy"
	CriterionSampleSize  = "Sample size"
	CriterionWinRate     = "Win rate"
	CriterionDegradation = "Degradation"
)

// Evaluator evaluates stage gates against fixed thresholds.
type Evaluator struct {
	th domain.Thresholds
}

// NewEvaluator creates a new stage gate evaluator.
func NewEvaluator(th domain.Thresholds) *Evaluator {
	return &Evaluator{th: th}
}

// Thresholds returns the configured gate limits.
func (e *Evaluator) Thresholds() domain.Thresholds { return e.th }

// Concept evaluates the Stage 1 gate:
// expectancy >= min edge, sample >= min count, win rate >= floor.
func (e *Evaluator) Concept(stats domain.OutcomeStats) []domain.CriterionResult {
	return []domain.CriterionResult{
		e.expectancy(stats),
		e.sampleSize(stats),
		{
			Name:      CriterionWinRate,
			Threshold: fmt.Sprintf(">= %.2f%%", e.th.MinWinRate*100),
			Actual:    fmt.Sprintf("%.2f%%", stats.WinRate*100),
			Pass:      stats.WinRate >= e.th.MinWinRate,
		},
	}
}

// Optimization evaluates the Stage 2 gate on the winner's training stats.
func (e *Evaluator) Optimization(stats domain.OutcomeStats) []domain.CriterionResult {
	return []domain.CriterionResult{
		e.expectancy(stats),
		e.sampleSize(stats),
	}
}

// OutOfSample evaluates the Stage 3 gate. A nil degradation (training
// expectancy not positive) fails the degradation criterion.
func (e *Evaluator) OutOfSample(test domain.OutcomeStats, degradation *float64) []domain.CriterionResult {
	deg := domain.CriterionResult{
		Name:      CriterionDegradation,
		Threshold: fmt.Sprintf("< %.2f%%", e.th.MaxDegradation*100),
		Actual:    "undefined (train expectancy <= 0)",
	}
	if degradation != nil {
		deg.Actual = fmt.Sprintf("%.2f%%", *degradation*100)
		deg.Pass = *degradation < e.th.MaxDegradation
	}

	return []domain.CriterionResult{
		e.expectancy(test),
		deg,
		e.sampleSize(test),
	}
}

func (e *Evaluator) expectancy(stats domain.OutcomeStats) domain.CriterionResult {
	return domain.CriterionResult{
		Name:      CriterionExpectancy,
		Threshold: fmt.Sprintf(">= %.4fR", e.th.MinExpectancy),
		Actual:    fmt.Sprintf("%.4fR", stats.Expectancy),
		Pass:      stats.SampleSize > 0 && stats.Expectancy >= e.th.MinExpectancy,
	}
}

func (e *Evaluator) sampleSize(stats domain.OutcomeStats) domain.CriterionResult {
	return domain.CriterionResult{
		Name:      CriterionSampleSize,
		Threshold: fmt.Sprintf(">= %d", e.th.MinSamples),
		Actual:    fmt.Sprintf("%d", stats.SampleSize),
		Pass:      stats.SampleSize >= e.th.MinSamples,
	}
}

// Passed reports whether every criterion passed.
func Passed(criteria []domain.CriterionResult) bool {
	for _, c := range criteria {
		if !c.Pass {
			return false
		}
	}
	return true
}

// FailureReason summarizes the failed criteria, empty when all passed.
func FailureReason(criteria []domain.CriterionResult) string {
	var parts []string
	for _, c := range criteria {
		if !c.Pass {
			parts = append(parts, fmt.Sprintf("%s %s, required %s", strings.ToLower(c.Name), c.Actual, c.Threshold))
		}
	}
	return strings.Join(parts, "; ")
}
