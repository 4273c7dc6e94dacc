// Package detect orchestrates classification batches: it fans scoring
// sub-tasks out over a shared worker pool and joins their outcomes in input
// order, isolating per-item failure.
package detect

import "context"

// PositiveThresholdPercent is the fixed policy cutoff: a probability at or
// above this percentage classifies the subject as positive.
const PositiveThresholdPercent = 50.0

// TextScorer scores free text for spam. Implementations return a probability
// in [0,1] and must be safe for unbounded concurrent use.
type TextScorer interface {
	ScoreText(ctx context.Context, text string) (float64, error)
}

// URLScorer scores a URL for phishing. Implementations return a probability
// in [0,1] and must be safe for unbounded concurrent use.
type URLScorer interface {
	ScoreURL(ctx context.Context, url string) (float64, error)
}

// Scorer combines both scoring collaborators. The models behind it are
// loaded once at process start and injected; the orchestrator never loads
// anything itself.
type Scorer interface {
	TextScorer
	URLScorer
}
