package decision

import (
	"fmt"
	"strings"

	"breakout-lab/internal/domain"
)

// RenderMarkdown renders a validation run's stage trail as Markdown.
func RenderMarkdown(run *domain.ValidationRun) string {
	var sb strings.Builder

	sb.WriteString("# Validation Gate Report\n\n")
	sb.WriteString(fmt.Sprintf("## Verdict: %s\n\n", run.Verdict))

	sb.WriteString("| Field | Value |\n")
	sb.WriteString("|-------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Run | %s |\n", run.RunID))
	sb.WriteString(fmt.Sprintf("| Name | %s |\n", run.Name))
	sb.WriteString(fmt.Sprintf("| Instrument | %s |\n", run.Instrument))
	sb.WriteString(fmt.Sprintf("| Anchor | %s |\n", run.AnchorID))
	sb.WriteString(fmt.Sprintf("| Attempt | %d |\n", run.Attempt))
	sb.WriteString(fmt.Sprintf("| Train | %s |\n", run.Split.Train))
	sb.WriteString(fmt.Sprintf("| Validation | %s |\n", run.Split.Validation))
	sb.WriteString(fmt.Sprintf("| Test | %s |\n", run.Split.Test))
	sb.WriteString(fmt.Sprintf("| Data version | %s |\n", run.DataVersion))
	if run.Optimal != nil {
		sb.WriteString(fmt.Sprintf("| Optimal | %s (grid #%d) |\n", ParamsLabel(*run.Optimal), run.OptimalGridIndex))
	}
	if run.Degradation != nil {
		sb.WriteString(fmt.Sprintf("| Degradation | %.2f%% |\n", *run.Degradation*100))
	}
	sb.WriteString("\n")

	for i, st := range run.Stages {
		sb.WriteString(fmt.Sprintf("## Stage %d: %s (%s)\n\n", i+1, st.Stage, st.Status))
		if st.Status == domain.StageStatusNotRun {
			sb.WriteString("Not run.\n\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("Split: %s\n\n", st.Split))
		if len(st.Criteria) == 0 {
			if st.Reason != "" {
				sb.WriteString(fmt.Sprintf("Reason: %s\n\n", st.Reason))
			}
			continue
		}

		sb.WriteString("| # | Criterion | Threshold | Actual | Pass |\n")
		sb.WriteString("|---|-----------|-----------|--------|------|\n")
		passed := 0
		for j, c := range st.Criteria {
			passStr := "PASS"
			if !c.Pass {
				passStr = "FAIL"
			} else {
				passed++
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
				j+1, c.Name, c.Threshold, c.Actual, passStr))
		}
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("Criteria: %d/%d passed\n\n", passed, len(st.Criteria)))
	}

	sb.WriteString("## Summary\n\n")
	if run.Promotable() {
		sb.WriteString("All stages passed; the optimal parameters are promotable.\n")
	} else {
		sb.WriteString(fmt.Sprintf("Rejected at %s: %s\n", run.FailedStage, run.FailureReason))
	}

	return sb.String()
}

// ParamsLabel formats a parameter combination for tables.
func ParamsLabel(p domain.TradeParams) string {
	return fmt.Sprintf("%s / %s / %gR / filter %g", p.EntryRule, p.StopMode, p.TargetMultiple, p.FilterThreshold)
}
