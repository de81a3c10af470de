package search

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/answerdesk/parafuse/internal/embed"
	"github.com/answerdesk/parafuse/internal/rank"
	"github.com/answerdesk/parafuse/internal/store"
)

// Default fanout tuning. Branch searches use a relaxed threshold because
// fusion downstream filters by consensus, not by raw score.
const (
	DefaultBranchLimit       = 5
	DefaultParallelism       = 5
	DefaultBranchTimeout     = 10 * time.Second
	DefaultRelaxedRatio      = 0.7
	DefaultAbsoluteThreshold = 0.2
)

// Coordinator runs one vector search per paraphrase in parallel and
// collects the ranked lists into a result set for fusion. A failed branch
// contributes an empty list; it never aborts the other branches.
type Coordinator struct {
	embedder embed.Embedder
	store    store.VectorStore

	branchLimit       int
	parallelism       int
	branchTimeout     time.Duration
	relaxedRatio      float64
	absoluteThreshold float64
}

// CoordinatorOption configures the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithBranchLimit sets the per-branch result limit.
func WithBranchLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.branchLimit = n
		}
	}
}

// WithParallelism sets the maximum number of concurrent branch searches.
func WithParallelism(n int) CoordinatorOption {
	return func(c *Coordinator) {
		if n > 0 {
			c.parallelism = n
		}
	}
}

// WithBranchTimeout sets the per-branch deadline. A branch that exceeds it
// is treated like any other branch failure.
func WithBranchTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) {
		if d > 0 {
			c.branchTimeout = d
		}
	}
}

// WithRelaxedThresholds sets the ratio applied to the baseline threshold and
// the absolute threshold used when no baseline threshold is configured.
func WithRelaxedThresholds(ratio, absolute float64) CoordinatorOption {
	return func(c *Coordinator) {
		if ratio > 0 {
			c.relaxedRatio = ratio
		}
		if absolute > 0 {
			c.absoluteThreshold = absolute
		}
	}
}

// NewCoordinator creates a fanout coordinator over an embedder and a vector
// store.
func NewCoordinator(embedder embed.Embedder, vs store.VectorStore, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		embedder:          embedder,
		store:             vs,
		branchLimit:       DefaultBranchLimit,
		parallelism:       DefaultParallelism,
		branchTimeout:     DefaultBranchTimeout,
		relaxedRatio:      DefaultRelaxedRatio,
		absoluteThreshold: DefaultAbsoluteThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Baseline runs a single search on the query with the caller's limit and
// threshold.
func (c *Coordinator) Baseline(ctx context.Context, query string, limit int, scoreThreshold float64) ([]*store.AnswerCandidate, error) {
	vector, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return c.store.Search(ctx, vector, limit, scoreThreshold)
}

// Search dispatches one branch per paraphrase and returns the collected
// result set in dispatch order.
//
// When the paraphrase set is empty, or holds a single case-insensitive echo
// of the original query, Search returns ErrBaselineOnly without building
// anything. Cancellation of ctx aborts the fanout and is returned as the
// operation error; individual branch failures are logged and degrade that
// branch to an empty list.
func (c *Coordinator) Search(ctx context.Context, originalQuery string, paraphrases []string, baselineThreshold float64) (*rank.ResultSet, error) {
	if !usefulParaphrases(originalQuery, paraphrases) {
		return nil, ErrBaselineOnly
	}

	relaxed := c.relaxedThreshold(baselineThreshold)
	start := time.Now()

	slog.Debug("fanout_dispatch",
		slog.String("query", originalQuery),
		slog.Int("branches", len(paraphrases)),
		slog.Float64("relaxed_threshold", relaxed))

	// One result slot per branch, written only by that branch's goroutine.
	results := make([][]*store.AnswerCandidate, len(paraphrases))

	g, gctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, c.parallelism)

	var mu sync.Mutex
	var failures int
	var firstErr error

	for i, p := range paraphrases {
		i, p := i, p

		g.Go(func() error {
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-gctx.Done():
				return gctx.Err()
			}

			candidates, err := c.searchBranch(gctx, p, relaxed)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				slog.Warn("fanout_branch_failed",
					slog.String("paraphrase", p),
					slog.String("error", err.Error()))
				mu.Lock()
				failures++
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				results[i] = []*store.AnswerCandidate{}
				return nil
			}

			results[i] = candidates
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		// Only cancellation propagates out of the group.
		return nil, err
	}

	set := rank.NewResultSet()
	for i, p := range paraphrases {
		set.Add(p, results[i])
	}

	slog.Debug("fanout_complete",
		slog.String("query", originalQuery),
		slog.Int("branches", len(paraphrases)),
		slog.Int("branch_failures", failures),
		slog.Duration("duration", time.Since(start)))
	if firstErr != nil {
		slog.Debug("fanout_first_branch_error", slog.String("error", firstErr.Error()))
	}

	return set, nil
}

// searchBranch embeds one paraphrase and searches the store under the
// per-branch deadline.
func (c *Coordinator) searchBranch(ctx context.Context, paraphrase string, threshold float64) ([]*store.AnswerCandidate, error) {
	if c.branchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.branchTimeout)
		defer cancel()
	}

	vector, err := c.embedder.Embed(ctx, paraphrase)
	if err != nil {
		return nil, err
	}
	return c.store.Search(ctx, vector, c.branchLimit, threshold)
}

// relaxedThreshold derives the branch threshold from the baseline one, or
// uses the absolute default when no baseline threshold is set.
func (c *Coordinator) relaxedThreshold(baseline float64) float64 {
	if baseline > 0 {
		return baseline * c.relaxedRatio
	}
	return c.absoluteThreshold
}

// usefulParaphrases reports whether the paraphrase set adds anything over
// the original query. A single case-insensitive echo does not.
func usefulParaphrases(originalQuery string, paraphrases []string) bool {
	if len(paraphrases) == 0 {
		return false
	}
	if len(paraphrases) == 1 {
		p := strings.TrimSpace(paraphrases[0])
		q := strings.TrimSpace(originalQuery)
		if strings.EqualFold(p, q) {
			return false
		}
	}
	return true
}
