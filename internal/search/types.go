// Package search orchestrates answer retrieval: a baseline single-query
// path and a paraphrase fanout path whose per-paraphrase result lists are
// fused by the rank package.
package search

import "errors"

// ErrBaselineOnly signals that the paraphrase set offers nothing beyond the
// original query, so the caller should run a single baseline search instead
// of a fanout. It is a control-flow sentinel, not a failure.
var ErrBaselineOnly = errors.New("no useful paraphrases, baseline search only")

// Options tunes a single FindAnswers call. Zero values fall back to the
// service defaults.
type Options struct {
	// Limit caps the number of fused answers returned.
	Limit int

	// ScoreThreshold is the baseline minimum similarity score. The fanout
	// branches search with a relaxed threshold derived from it.
	ScoreThreshold float64

	// VotingMethod overrides the configured fusion method.
	VotingMethod string
}
