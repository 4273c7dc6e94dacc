// Package segment splits raw submission text into classifiable text and URL
// candidates ahead of detection.
package segment

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// Result is the outcome of segmenting one submission. CleanedText is the
// non-URL tokens rejoined with single spaces; URLs preserves the original
// left-to-right order of appearance. Either side may be empty and the caller
// decides per endpoint whether that is an error.
type Result struct {
	CleanedText string
	URLs        []string
}

// Split partitions whitespace-separated tokens into text and URL candidates.
// The partition is stable: removing URL tokens never reorders the remainder.
func Split(text string) Result {
	tokens := strings.Fields(text)

	var words []string
	var urls []string
	for _, token := range tokens {
		if isURLCandidate(token) {
			urls = append(urls, token)
		} else {
			words = append(words, token)
		}
	}

	return Result{
		CleanedText: strings.Join(words, " "),
		URLs:        urls,
	}
}

// isURLCandidate reports whether a token looks like a URL: its host part
// must have a registrable domain label in front of a valid public suffix.
func isURLCandidate(token string) bool {
	host := hostOf(token)
	if host == "" || !strings.Contains(host, ".") {
		return false
	}

	suffix, icann := publicsuffix.PublicSuffix(host)
	if suffix == "" || len(host) <= len(suffix) {
		return false
	}

	// Unknown suffixes come back as the last label with icann=false; a dot
	// inside the suffix means it matched a private entry in the list.
	return icann || strings.IndexByte(suffix, '.') >= 0
}

// hostOf extracts the candidate host from a raw token: scheme, path, query,
// fragment, userinfo, port and surrounding punctuation are stripped.
func hostOf(token string) string {
	t := strings.Trim(token, ".,;:!?\"'()[]<>")

	if i := strings.Index(t, "://"); i >= 0 {
		t = t[i+3:]
	}
	if i := strings.IndexAny(t, "/?#"); i >= 0 {
		t = t[:i]
	}
	if i := strings.LastIndexByte(t, '@'); i >= 0 {
		t = t[i+1:]
	}
	if i := strings.LastIndexByte(t, ':'); i >= 0 {
		t = t[:i]
	}

	return strings.ToLower(strings.Trim(t, "."))
}
