package detect

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryingScorer decorates a Scorer with bounded exponential-backoff
// retries. Retry policy lives here, in the scoring collaborator, and never
// in the orchestrator: by the time a failure reaches a batch slot it is
// terminal.
type RetryingScorer struct {
	next     Scorer
	maxTries uint
	initial  time.Duration
}

// WithRetries wraps a scorer with up to maxTries attempts per call.
func WithRetries(next Scorer, maxTries uint) *RetryingScorer {
	if maxTries == 0 {
		maxTries = 1
	}
	return &RetryingScorer{
		next:     next,
		maxTries: maxTries,
		initial:  50 * time.Millisecond,
	}
}

// ScoreText implements TextScorer.
func (r *RetryingScorer) ScoreText(ctx context.Context, text string) (float64, error) {
	return r.retry(ctx, func() (float64, error) {
		return r.next.ScoreText(ctx, text)
	})
}

// ScoreURL implements URLScorer.
func (r *RetryingScorer) ScoreURL(ctx context.Context, url string) (float64, error) {
	return r.retry(ctx, func() (float64, error) {
		return r.next.ScoreURL(ctx, url)
	})
}

func (r *RetryingScorer) retry(ctx context.Context, op func() (float64, error)) (float64, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.initial

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(r.maxTries),
	)
}
