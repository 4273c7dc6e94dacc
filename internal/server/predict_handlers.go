package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sifterhq/sifter/internal/auth"
	"github.com/sifterhq/sifter/internal/detect"
	"github.com/sifterhq/sifter/internal/models"
	"github.com/sifterhq/sifter/internal/segment"
)

// errScoringFailed marks a failed text classification, surfaced as 500: the
// whole request has no usable result. Per-URL failures never take this path.
var errScoringFailed = errors.New("classification failed")

type predictRequest struct {
	Text string `json:"text"`
}

type spamResponse struct {
	Text            string  `json:"text"`
	Spam            bool    `json:"spam"`
	SpamProbability float64 `json:"spamProbability"`
}

// urlEntry is one slot of the phishing result array: a scored URL or a
// captured failure, never both.
type urlEntry struct {
	URL                 string   `json:"url"`
	Phishing            *bool    `json:"phishing,omitempty"`
	PhishingProbability *float64 `json:"phishingProbability,omitempty"`
	Error               string   `json:"error,omitempty"`
}

type phishingResponse struct {
	URLs []urlEntry `json:"urls"`
}

type combinedResponse struct {
	Text            string     `json:"text"`
	Spam            bool       `json:"spam"`
	SpamProbability float64    `json:"spamProbability"`
	URLs            []urlEntry `json:"urls"`
}

func (s *Server) handlePredictSpam(w http.ResponseWriter, r *http.Request) {
	user, err := s.gate.RequireDetection(r.Context(), auth.PrincipalFromContext(r.Context()), models.CapabilitySpam)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.readText(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	seg := segment.Split(text)
	if seg.CleanedText == "" {
		s.writeError(w, r, validationf("only URLs provided"))
		return
	}

	agg := s.orchestrator.Detect(r.Context(), detect.Request{
		Text:     seg.CleanedText,
		WantText: true,
	})
	if agg.TextErr != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errScoringFailed, agg.TextErr))
		return
	}

	if err := s.updater.Record(r.Context(), user, agg); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, spamResponse{
		Text:            seg.CleanedText,
		Spam:            agg.Text.Positive,
		SpamProbability: agg.Text.ProbabilityPercent,
	})
}

func (s *Server) handlePredictPhishing(w http.ResponseWriter, r *http.Request) {
	user, err := s.gate.RequireDetection(r.Context(), auth.PrincipalFromContext(r.Context()), models.CapabilityPhishing)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.readText(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	seg := segment.Split(text)
	if len(seg.URLs) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"message": "No URLs found in text"})
		return
	}

	agg := s.orchestrator.Detect(r.Context(), detect.Request{
		URLs:     seg.URLs,
		WantURLs: true,
	})

	if err := s.updater.Record(r.Context(), user, agg); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, phishingResponse{URLs: urlEntries(agg.URLs)})
}

func (s *Server) handlePredictSpamPhishing(w http.ResponseWriter, r *http.Request) {
	user, err := s.gate.RequireDetection(r.Context(), auth.PrincipalFromContext(r.Context()), models.CapabilityBoth)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	text, err := s.readText(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	seg := segment.Split(text)

	agg := s.orchestrator.Detect(r.Context(), detect.Request{
		Text:     seg.CleanedText,
		URLs:     seg.URLs,
		WantText: true,
		WantURLs: len(seg.URLs) > 0,
	})
	if agg.TextErr != nil {
		s.writeError(w, r, fmt.Errorf("%w: %w", errScoringFailed, agg.TextErr))
		return
	}

	if err := s.updater.Record(r.Context(), user, agg); err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, combinedResponse{
		Text:            seg.CleanedText,
		Spam:            agg.Text.Positive,
		SpamProbability: agg.Text.ProbabilityPercent,
		URLs:            urlEntries(agg.URLs),
	})
}

// readText extracts and validates the submission text.
func (s *Server) readText(r *http.Request) (string, error) {
	var req predictRequest
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return "", validationf("no text provided")
	}
	return text, nil
}

func urlEntries(results []detect.URLResult) []urlEntry {
	entries := make([]urlEntry, 0, len(results))
	for _, res := range results {
		entry := urlEntry{URL: res.URL}
		if res.Err != nil {
			entry.Error = res.Err.Error()
		} else {
			positive := res.Outcome.Positive
			probability := res.Outcome.ProbabilityPercent
			entry.Phishing = &positive
			entry.PhishingProbability = &probability
		}
		entries = append(entries, entry)
	}
	return entries
}
