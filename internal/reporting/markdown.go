package reporting

import (
	"fmt"
	"strings"
	"time"

	"breakout-lab/internal/decision"
)

// RenderMarkdown renders the summary report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Validation Summary\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Runs: %d | Promotable: %d | Instruments: %d\n\n",
		r.RunCount, r.PromotableCount, r.InstrumentCount))

	// Runs
	sb.WriteString("## Runs\n\n")
	if len(r.Runs) > 0 {
		sb.WriteString("| Run | Name | Instrument | Anchor | Attempt | Verdict | Failed Stage | Optimal | Degradation |\n")
		sb.WriteString("|-----|------|------------|--------|---------|---------|--------------|---------|-------------|\n")
		for _, run := range r.Runs {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s | %d | %s | %s | %s | %s |\n",
				run.ShortID, run.Name, run.Instrument, run.AnchorID, run.Attempt,
				run.Verdict, dash(string(run.FailedStage)), dash(run.Optimal), percent(run.Degradation)))
		}
	} else {
		sb.WriteString("No validation runs recorded.\n")
	}
	sb.WriteString("\n")

	// Split metrics
	sb.WriteString("## Split Metrics\n\n")
	if len(r.SplitMetrics) > 0 {
		sb.WriteString("| Run | Split | Trades | Wins | Losses | WinRate | Expectancy | Median | P10 | P90 | MaxDD | MaxLoss | Unviable |\n")
		sb.WriteString("|-----|-------|--------|------|--------|---------|------------|--------|-----|-----|-------|---------|----------|\n")
		for _, m := range r.SplitMetrics {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %d | %d | %.4f | %.4f | %.4f | %.4f | %.4f | %.4f | %d | %d |\n",
				shortRunID(r, m.RunID), m.Split, m.SampleSize, m.Wins, m.Losses,
				m.WinRate, m.Expectancy, m.MedianR, m.P10R, m.P90R,
				m.MaxDrawdownR, m.MaxConsecutiveLosses, m.Unviable))
		}
	} else {
		sb.WriteString("No split metrics available.\n")
	}
	sb.WriteString("\n")

	// Rejections
	sb.WriteString("## Rejections\n\n")
	if len(r.Rejections) > 0 {
		sb.WriteString("| Stage | Runs | Reasons |\n")
		sb.WriteString("|-------|------|---------|\n")
		for _, rej := range r.Rejections {
			sb.WriteString(fmt.Sprintf("| %s | %d | %s |\n",
				rej.Stage, rej.Count, strings.Join(rej.Reasons, "; ")))
		}
	} else {
		sb.WriteString("No rejected runs.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

// RenderRunMarkdown renders one run's stage trail followed by its grid.
func RenderRunMarkdown(rr *RunReport) string {
	var sb strings.Builder

	sb.WriteString(decision.RenderMarkdown(rr.Run))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", rr.GeneratedAt.Format(time.RFC3339)))

	sb.WriteString("## Parameter Grid\n\n")
	if len(rr.Grid) == 0 {
		sb.WriteString("No grid evaluated.\n")
		return sb.String()
	}

	sb.WriteString("| # | Params | Trades | WinRate | Expectancy | Unviable | Eligible | Selected |\n")
	sb.WriteString("|---|--------|--------|---------|------------|----------|----------|----------|\n")
	for _, g := range rr.Grid {
		selected := ""
		if g.Selected {
			selected = "**yes**"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %d | %.4f | %.4f | %d | %t | %s |\n",
			g.GridIndex, decision.ParamsLabel(g.Params), g.SampleSize,
			g.WinRate, g.Expectancy, g.Unviable, g.Eligible, selected))
	}
	return sb.String()
}

func shortRunID(r *Report, runID string) string {
	for _, run := range r.Runs {
		if run.RunID == runID {
			return run.ShortID
		}
	}
	return runID
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func percent(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f%%", *v*100)
}
