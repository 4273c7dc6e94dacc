package detect

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sifterhq/sifter/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Outcome is one successful classification result.
type Outcome struct {
	Subject            string
	ProbabilityPercent float64 // 0-100, rounded to 2 decimals
	Positive           bool
}

// URLResult is the per-URL slot of a batch: either an outcome or a captured
// error, never both. Slots appear in the original input order.
type URLResult struct {
	URL     string
	Outcome *Outcome
	Err     error
}

// Aggregate is the joined output of one detection batch.
type Aggregate struct {
	Text    *Outcome // nil when text classification wasn't requested or failed
	TextErr error    // captured text-task failure
	URLs    []URLResult
}

// Request describes which sub-detections a batch needs.
type Request struct {
	Text     string
	URLs     []string
	WantText bool
	WantURLs bool
}

// Orchestrator fans a detection batch out over the shared worker pool and
// joins the results. A sub-task failure is terminal for its own slot only:
// the join is a full barrier with no cancellation between siblings, and no
// retries happen here (the scoring collaborator owns retry policy).
type Orchestrator struct {
	scorer      Scorer
	pool        *Pool
	taskTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithTaskTimeout sets the per-sub-task deadline. A timeout becomes a
// captured failure for that slot only.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.taskTimeout = d
	}
}

// NewOrchestrator creates an orchestrator using the given scorer and pool.
func NewOrchestrator(scorer Scorer, pool *Pool, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		scorer:      scorer,
		pool:        pool,
		taskTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Detect runs the requested sub-detections concurrently and returns the
// aggregate once every sub-task has produced an outcome or a captured
// failure. Completion order is non-deterministic; the assembled output order
// is always the input order.
func (o *Orchestrator) Detect(ctx context.Context, req Request) Aggregate {
	started := time.Now()
	logger := zerolog.Ctx(ctx)
	m := telemetry.GetMetrics()

	agg := Aggregate{}
	if req.WantURLs {
		agg.URLs = make([]URLResult, len(req.URLs))
		for i, url := range req.URLs {
			agg.URLs[i].URL = url
		}
	}

	var wg sync.WaitGroup

	if req.WantText {
		wg.Add(1)
		task := o.task(ctx, func(tctx context.Context) error {
			p, err := o.scorer.ScoreText(tctx, req.Text)
			if err != nil {
				return err
			}
			agg.Text = newOutcome(req.Text, p)
			return nil
		}, func(err error) {
			agg.TextErr = err
		}, &wg)

		if err := o.pool.Submit(ctx, task); err != nil {
			agg.TextErr = err
			wg.Done()
		}
	}

	if req.WantURLs {
		for i := range agg.URLs {
			slot := &agg.URLs[i]

			wg.Add(1)
			task := o.task(ctx, func(tctx context.Context) error {
				p, err := o.scorer.ScoreURL(tctx, slot.URL)
				if err != nil {
					return err
				}
				slot.Outcome = newOutcome(slot.URL, p)
				return nil
			}, func(err error) {
				logger.Error().Err(err).Str("url", slot.URL).Msg("URL scoring failed")
				slot.Err = err
			}, &wg)

			if err := o.pool.Submit(ctx, task); err != nil {
				slot.Err = err
				wg.Done()
			}
		}
	}

	// Full barrier: no early return on first error.
	wg.Wait()

	attrs := metric.WithAttributes(attribute.Bool("text", req.WantText))
	m.DetectionBatchesTotal.Add(ctx, 1, attrs)
	m.DetectionTasksTotal.Add(ctx, countTasks(req))
	m.DetectionTaskFailures.Add(ctx, countFailures(agg))
	m.DetectionBatchDuration.Record(ctx, float64(time.Since(started).Milliseconds()))

	return agg
}

// task wraps a scoring call with the per-sub-task deadline and failure
// capture. The deadline also covers time spent queued behind other batches.
func (o *Orchestrator) task(ctx context.Context, run func(context.Context) error, capture func(error), wg *sync.WaitGroup) func() {
	tctx, cancel := context.WithTimeout(ctx, o.taskTimeout)

	return func() {
		defer wg.Done()
		defer cancel()

		if err := tctx.Err(); err != nil {
			capture(err)
			return
		}
		if err := run(tctx); err != nil {
			capture(err)
		}
	}
}

// newOutcome converts a raw probability to the wire form: a percentage
// rounded to 2 decimals, positive at the fixed threshold.
func newOutcome(subject string, probability float64) *Outcome {
	percent := math.Round(clamp01(probability)*10000) / 100

	return &Outcome{
		Subject:            subject,
		ProbabilityPercent: percent,
		Positive:           percent >= PositiveThresholdPercent,
	}
}

func clamp01(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

func countTasks(req Request) int64 {
	var n int64
	if req.WantText {
		n++
	}
	if req.WantURLs {
		n += int64(len(req.URLs))
	}
	return n
}

func countFailures(agg Aggregate) int64 {
	var n int64
	if agg.TextErr != nil {
		n++
	}
	for _, r := range agg.URLs {
		if r.Err != nil {
			n++
		}
	}
	return n
}
