package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
	"github.com/answerdesk/parafuse/internal/paraphrase"
	"github.com/answerdesk/parafuse/internal/rank"
	"github.com/answerdesk/parafuse/internal/store"
	"github.com/answerdesk/parafuse/internal/telemetry"
)

// Service defaults, shared with the config package defaults.
const (
	DefaultLimit           = 5
	DefaultScoreThreshold  = 0.7
	DefaultParaphraseCount = 5
)

// Service is the single entry point for answer retrieval. It asks the
// paraphrase source for rephrasings, fans the searches out, and fuses the
// ranked lists; when paraphrasing is unavailable or not useful it serves a
// plain baseline search instead.
type Service struct {
	coordinator *Coordinator
	paraphraser paraphrase.Source
	fuser       *rank.Fuser
	metrics     *telemetry.QueryMetrics

	limit           int
	scoreThreshold  float64
	votingMethod    rank.VotingMethod
	paraphraseCount int
	timeout         time.Duration
}

// ServiceOption configures the Service.
type ServiceOption func(*Service)

// WithLimit sets the default result limit.
func WithLimit(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.limit = n
		}
	}
}

// WithScoreThreshold sets the default baseline score threshold.
func WithScoreThreshold(t float64) ServiceOption {
	return func(s *Service) {
		if t > 0 {
			s.scoreThreshold = t
		}
	}
}

// WithVotingMethod sets the default fusion method.
func WithVotingMethod(method rank.VotingMethod) ServiceOption {
	return func(s *Service) {
		if method != "" {
			s.votingMethod = method
		}
	}
}

// WithParaphraseCount sets how many paraphrases to request per query.
func WithParaphraseCount(n int) ServiceOption {
	return func(s *Service) {
		if n > 0 {
			s.paraphraseCount = n
		}
	}
}

// WithTimeout sets a ceiling for the whole retrieval operation.
func WithTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics wires a telemetry collector. Metrics are optional; a nil
// collector records nothing.
func WithMetrics(m *telemetry.QueryMetrics) ServiceOption {
	return func(s *Service) {
		s.metrics = m
	}
}

// NewService creates a retrieval service. paraphraser may be nil, in which
// case every query takes the baseline path.
func NewService(coordinator *Coordinator, paraphraser paraphrase.Source, opts ...ServiceOption) *Service {
	s := &Service{
		coordinator:     coordinator,
		paraphraser:     paraphraser,
		fuser:           rank.NewFuser(),
		limit:           DefaultLimit,
		scoreThreshold:  DefaultScoreThreshold,
		votingMethod:    rank.VotingWeighted,
		paraphraseCount: DefaultParaphraseCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// FindAnswers retrieves a fused ranking of answers for the query.
//
// An empty or whitespace query is invalid. An unknown voting method is a
// configuration error. Collaborator failures never surface: a failing
// paraphrase source or fanout degrades the request to the baseline path, a
// failing baseline degrades to an empty result. Cancellation aborts the
// operation and is returned as the error.
func (s *Service) FindAnswers(ctx context.Context, query string, opts Options) ([]*rank.FusedAnswer, error) {
	start := time.Now()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ferrors.EmptyQuery()
	}

	limit := s.limit
	if opts.Limit > 0 {
		limit = opts.Limit
	}
	threshold := s.scoreThreshold
	if opts.ScoreThreshold > 0 {
		threshold = opts.ScoreThreshold
	}
	method := s.votingMethod
	if opts.VotingMethod != "" {
		method = rank.VotingMethod(opts.VotingMethod)
	}
	if err := validateMethod(method); err != nil {
		return nil, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	if s.paraphraser == nil {
		answers, err := s.baseline(ctx, query, limit, threshold)
		if err != nil {
			return nil, err
		}
		s.record(query, telemetry.PathBaseline, "", len(answers), 0, 0, false, start)
		return answers, nil
	}

	paraphrases, err := s.paraphraser.Generate(ctx, query, s.paraphraseCount)
	if err != nil {
		if cancelled(ctx, err) {
			return nil, err
		}
		slog.Warn("paraphrase_degraded",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return s.degradeToBaseline(ctx, query, limit, threshold, start)
	}

	set, err := s.coordinator.Search(ctx, query, paraphrases, threshold)
	if err != nil {
		if errors.Is(err, ErrBaselineOnly) {
			slog.Debug("fanout_skipped", slog.String("query", query))
			return s.degradeToBaseline(ctx, query, limit, threshold, start)
		}
		if cancelled(ctx, err) {
			return nil, err
		}
		slog.Warn("fanout_degraded",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return s.degradeToBaseline(ctx, query, limit, threshold, start)
	}

	fused, err := s.fuser.Fuse(set, method)
	if err != nil {
		return nil, err
	}
	if len(fused) > limit {
		fused = fused[:limit]
	}

	branchFailures := emptyBranches(set)
	s.record(query, telemetry.PathFused, string(method), len(fused), set.Len(), branchFailures, false, start)
	slog.Info("query_answered",
		slog.String("query", query),
		slog.String("path", string(telemetry.PathFused)),
		slog.String("voting_method", string(method)),
		slog.Int("branches", set.Len()),
		slog.Int("results", len(fused)),
		slog.Duration("duration", time.Since(start)))

	return fused, nil
}

// Metrics returns the wired telemetry collector, which may be nil.
func (s *Service) Metrics() *telemetry.QueryMetrics {
	return s.metrics
}

// degradeToBaseline serves the baseline path after a failed or skipped
// fusion attempt.
func (s *Service) degradeToBaseline(ctx context.Context, query string, limit int, threshold float64, start time.Time) ([]*rank.FusedAnswer, error) {
	answers, err := s.baseline(ctx, query, limit, threshold)
	if err != nil {
		return nil, err
	}
	s.record(query, telemetry.PathBaseline, "", len(answers), 0, 0, true, start)
	slog.Info("query_answered",
		slog.String("query", query),
		slog.String("path", string(telemetry.PathBaseline)),
		slog.Bool("degraded", true),
		slog.Int("results", len(answers)),
		slog.Duration("duration", time.Since(start)))
	return answers, nil
}

// baseline runs the single-query search. A collaborator failure yields an
// empty result, not an error; only cancellation surfaces.
func (s *Service) baseline(ctx context.Context, query string, limit int, threshold float64) ([]*rank.FusedAnswer, error) {
	candidates, err := s.coordinator.Baseline(ctx, query, limit, threshold)
	if err != nil {
		if cancelled(ctx, err) {
			return nil, err
		}
		slog.Warn("baseline_failed",
			slog.String("query", query),
			slog.String("error", err.Error()))
		return []*rank.FusedAnswer{}, nil
	}
	return toFused(candidates), nil
}

func (s *Service) record(query string, path telemetry.QueryPath, method string, results, branches, branchFailures int, degraded bool, start time.Time) {
	s.metrics.Record(telemetry.QueryEvent{
		Query:          query,
		Path:           path,
		VotingMethod:   method,
		ResultCount:    results,
		BranchCount:    branches,
		BranchFailures: branchFailures,
		Degraded:       degraded,
		Latency:        time.Since(start),
		Timestamp:      time.Now(),
	})
}

// toFused lifts baseline candidates into the fused result shape; with a
// single list all three scores are the raw similarity score.
func toFused(candidates []*store.AnswerCandidate) []*rank.FusedAnswer {
	out := make([]*rank.FusedAnswer, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, &rank.FusedAnswer{
			AnswerID:     c.AnswerID,
			Text:         c.Text,
			AvgScore:     c.Score,
			MaxScore:     c.Score,
			RankingScore: c.Score,
		})
	}
	return out
}

func emptyBranches(set *rank.ResultSet) int {
	n := 0
	for i := 0; i < set.Len(); i++ {
		if len(set.Candidates(i)) == 0 {
			n++
		}
	}
	return n
}

func validateMethod(method rank.VotingMethod) error {
	switch method {
	case rank.VotingSimple, rank.VotingWeighted, rank.VotingEnsemble:
		return nil
	default:
		return ferrors.UnknownVotingMethod(string(method))
	}
}

func cancelled(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
