// Package orchestrator runs batches of walk-forward validations.
// It fans one plan out over instruments × anchors and executes the runs
// in parallel through a shared validation pipeline.
package orchestrator

import (
	"context"
	cryptoRand "crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sync/errgroup"

	"breakout-lab/internal/domain"
	"breakout-lab/internal/observability"
	"breakout-lab/internal/validation"
)

// Batch run statuses recorded in metrics.
const (
	StatusPromotable = "promotable"
	StatusRejected   = "rejected"
	StatusLeakage    = "leakage"
	StatusTimeout    = "timeout"
	StatusFailed     = "failed"
)

// Runner executes one validation run. *validation.Pipeline satisfies it.
type Runner interface {
	Run(ctx context.Context, req validation.Request) (*domain.ValidationRun, error)
}

var _ Runner = (*validation.Pipeline)(nil)

// Plan describes a batch: every instrument is validated at every anchor
// with the same grid and baseline. Splits holds an instrument's split
// parsed in its exchange timezone; instruments without an entry use Split.
type Plan struct {
	Name        string
	Instruments []string
	Anchors     []domain.AnchorWindow
	Split       domain.SplitConfig
	Splits      map[string]domain.SplitConfig
	Grid        domain.SearchGrid
	Baseline    domain.TradeParams
	Attempt     int // 0 means 1
}

// Requests expands the plan in (instrument, anchor) order.
func (p Plan) Requests() []validation.Request {
	reqs := make([]validation.Request, 0, len(p.Instruments)*len(p.Anchors))
	for _, inst := range p.Instruments {
		split, ok := p.Splits[inst]
		if !ok {
			split = p.Split
		}
		for _, a := range p.Anchors {
			reqs = append(reqs, validation.Request{
				Name:       fmt.Sprintf("%s-%s-%s", p.Name, inst, a.ID),
				Instrument: inst,
				Anchor:     a,
				Split:      split,
				Grid:       p.Grid,
				Baseline:   p.Baseline,
				Attempt:    p.Attempt,
			})
		}
	}
	return reqs
}

// Orchestrator coordinates parallel validation runs.
type Orchestrator struct {
	runner      Runner
	metrics     *observability.Metrics
	parallelism int
	now         func() time.Time
	verbose     bool

	mu      sync.Mutex
	entropy io.Reader
}

// Options for creating Orchestrator.
type Options struct {
	// Required
	Runner Runner

	// Options
	Metrics     *observability.Metrics
	Parallelism int // concurrent runs, default GOMAXPROCS
	Clock       func() time.Time
	Entropy     io.Reader // batch id entropy, default seeded from crypto/rand
	Verbose     bool
}

// New creates a new Orchestrator.
func New(opts Options) (*Orchestrator, error) {
	if opts.Runner == nil {
		return nil, errors.New("orchestrator: runner is required")
	}

	o := &Orchestrator{
		runner:      opts.Runner,
		metrics:     opts.Metrics,
		parallelism: opts.Parallelism,
		now:         opts.Clock,
		verbose:     opts.Verbose,
	}
	if o.parallelism <= 0 {
		o.parallelism = runtime.GOMAXPROCS(0)
	}
	if o.now == nil {
		o.now = time.Now
	}

	if opts.Entropy != nil {
		o.entropy = opts.Entropy
		return o, nil
	}

	// Monotonic entropy keeps batch ids from one process sortable.
	var seed int64
	_ = binary.Read(cryptoRand.Reader, binary.LittleEndian, &seed)
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	o.entropy = ulid.Monotonic(rand.New(rand.NewSource(seed)), 0)

	return o, nil
}

// RunOutcome is the result of one request in a batch.
type RunOutcome struct {
	Request validation.Request
	RunID   string
	Run     *domain.ValidationRun // nil when the run never started
	Status  string
	Err     error
}

// BatchResult contains results from orchestrator execution.
type BatchResult struct {
	BatchID     string
	StartedAt   time.Time
	CompletedAt time.Time
	Runs        []RunOutcome // in plan order
	Promotable  int
	Rejected    int
	Failed      int // leakage, timeout and other errors
	Errors      []string
}

// NewBatchID returns a time-sortable batch identifier. It fails when the
// entropy source errors, including monotonic overflow within one millisecond.
func (o *Orchestrator) NewBatchID() (string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	id, err := ulid.New(ulid.Timestamp(o.now().UTC()), o.entropy)
	if err != nil {
		return "", fmt.Errorf("batch id: %w", err)
	}
	return id.String(), nil
}

// Run executes every request of the plan. A failing run never aborts its
// siblings: per-run errors are collected in the result. The returned error
// is non-nil only for an invalid plan or a cancelled context.
func (o *Orchestrator) Run(ctx context.Context, plan Plan) (*BatchResult, error) {
	reqs := plan.Requests()
	if len(reqs) == 0 {
		return nil, fmt.Errorf("%w: plan %q has no instrument or anchor", domain.ErrInvalidParams, plan.Name)
	}

	batchID, err := o.NewBatchID()
	if err != nil {
		return nil, err
	}

	result := &BatchResult{
		BatchID:   batchID,
		StartedAt: o.now(),
		Runs:      make([]RunOutcome, len(reqs)),
	}
	o.log("Batch %s: %d runs, parallelism %d", result.BatchID, len(reqs), o.parallelism)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)

	for i, req := range reqs {
		result.Runs[i] = RunOutcome{Request: req, RunID: validation.RunID(req)}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				result.Runs[i].Status = StatusFailed
				result.Runs[i].Err = err
				return nil
			}
			run, err := o.runner.Run(gctx, req)
			result.Runs[i].Run = run
			result.Runs[i].Err = err
			result.Runs[i].Status = status(run, err)
			o.metrics.RecordBatchRun(result.Runs[i].Status)
			o.log("  %s: %s", req.Name, result.Runs[i].Status)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Runs {
		switch r.Status {
		case StatusPromotable:
			result.Promotable++
		case StatusRejected:
			result.Rejected++
		default:
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", r.Request.Name, r.Err))
		}
	}
	result.CompletedAt = o.now()

	o.log("Batch %s completed: %d promotable, %d rejected, %d failed",
		result.BatchID, result.Promotable, result.Rejected, result.Failed)

	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

func status(run *domain.ValidationRun, err error) string {
	switch {
	case err == nil && run != nil && run.Promotable():
		return StatusPromotable
	case err == nil:
		return StatusRejected
	case errors.Is(err, domain.ErrLeakageViolation):
		return StatusLeakage
	case errors.Is(err, domain.ErrRunTimeout):
		return StatusTimeout
	default:
		return StatusFailed
	}
}

func (o *Orchestrator) log(format string, args ...interface{}) {
	if o.verbose {
		log.Printf("[orchestrator] "+format, args...)
	}
}
