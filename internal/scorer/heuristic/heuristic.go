// Package heuristic provides a deterministic, dependency-free scoring
// backend for local development and tests. It is not a real classifier;
// it exists so the service can run end to end without a model bundle.
package heuristic

import (
	"context"
	"strings"
)

var spamMarkers = []string{
	"free", "winner", "prize", "urgent", "act now", "buy now",
	"click here", "limited time", "congratulations", "guarantee",
}

var phishingMarkers = []string{
	"login", "verify", "account", "secure", "update", "confirm",
	"wallet", "suspended",
}

// Scorer assigns probabilities from crude lexical signals. The same input
// always yields the same score.
type Scorer struct{}

// New creates a heuristic scorer.
func New() *Scorer {
	return &Scorer{}
}

// ScoreText counts spam marker phrases; every hit adds 0.25 up to 1.0.
// Excessive exclamation marks add one more hit.
func (s *Scorer) ScoreText(_ context.Context, text string) (float64, error) {
	lower := strings.ToLower(text)

	var hits int
	for _, marker := range spamMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	if strings.Count(lower, "!") >= 3 {
		hits++
	}

	return clamp(float64(hits) * 0.25), nil
}

// ScoreURL flags lookalike shapes: credential-themed path words, raw IP
// hosts, many subdomain levels, and '@' userinfo tricks.
func (s *Scorer) ScoreURL(_ context.Context, url string) (float64, error) {
	lower := strings.ToLower(url)

	var hits int
	for _, marker := range phishingMarkers {
		if strings.Contains(lower, marker) {
			hits++
		}
	}
	if strings.Contains(lower, "@") {
		hits += 2
	}
	if strings.Count(lower, ".") >= 4 {
		hits++
	}
	if hasIPHost(lower) {
		hits += 2
	}

	return clamp(float64(hits) * 0.25), nil
}

func hasIPHost(url string) bool {
	host := url
	if i := strings.Index(host, "://"); i >= 0 {
		host = host[i+3:]
	}
	if i := strings.IndexAny(host, "/:"); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return false
	}
	for _, r := range host {
		if r != '.' && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func clamp(p float64) float64 {
	if p > 1 {
		return 1
	}
	return p
}
