package reporting

import (
	"time"

	"breakout-lab/internal/domain"
)

// Report summarizes every recorded validation run.
type Report struct {
	// Metadata
	GeneratedAt     time.Time
	RunCount        int
	PromotableCount int
	InstrumentCount int

	// Runs (sorted by instrument, anchor_id, name, attempt)
	Runs []RunRow

	// Per-split statistics of each run, in run order then validation, train, test
	SplitMetrics []SplitMetricRow

	// Rejections grouped by the stage that failed, in stage order
	Rejections []RejectionRow
}

// RunRow is one line of the runs table.
type RunRow struct {
	RunID         string
	ShortID       string
	Name          string
	Instrument    string
	AnchorID      string
	Attempt       int
	Verdict       domain.Verdict
	FailedStage   domain.Stage
	FailureReason string
	Optimal       string // params label, empty when Stage 2 found no winner
	Degradation   *float64
	DataVersion   string
	CompletedAt   time.Time
}

// SplitMetricRow is the aggregate of one run over one split.
type SplitMetricRow struct {
	RunID                string
	Split                string
	SampleSize           int
	Wins                 int
	Losses               int
	WinRate              float64
	Expectancy           float64
	MedianR              float64
	P10R                 float64
	P90R                 float64
	MaxDrawdownR         float64
	MaxConsecutiveLosses int
	Unviable             int
}

// RejectionRow counts rejected runs per failed stage.
type RejectionRow struct {
	Stage   domain.Stage
	Count   int
	Reasons []string // distinct failure reasons, sorted
}

// RunReport is the detail view of one run: its stage trail plus the
// evaluated Stage 2 grid.
type RunReport struct {
	GeneratedAt time.Time
	Run         *domain.ValidationRun
	Grid        []domain.GridResult
}
