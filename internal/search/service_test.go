package search

import (
	"context"
	"errors"
	"testing"
	"time"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
	"github.com/answerdesk/parafuse/internal/store"
	"github.com/answerdesk/parafuse/internal/telemetry"
)

func newTestService(emb *fakeEmbedder, vs *fakeStore, src *fakeSource, opts ...ServiceOption) *Service {
	c := NewCoordinator(emb, vs)
	if src == nil {
		// A typed nil would defeat the service's nil check.
		return NewService(c, nil, opts...)
	}
	return NewService(c, src, opts...)
}

func TestFindAnswersEmptyQuery(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeStore{}, nil)

	for _, q := range []string{"", "   ", "\t\n"} {
		_, err := s.FindAnswers(context.Background(), q, Options{})
		if err == nil {
			t.Fatalf("expected error for query %q", q)
		}
		if ferrors.GetCode(err) != ferrors.ErrCodeQueryEmpty {
			t.Errorf("query %q: expected %s, got %s", q, ferrors.ErrCodeQueryEmpty, ferrors.GetCode(err))
		}
	}
}

func TestFindAnswersUnknownVotingMethod(t *testing.T) {
	s := newTestService(&fakeEmbedder{}, &fakeStore{}, nil)

	_, err := s.FindAnswers(context.Background(), "q", Options{VotingMethod: "borda"})
	if err == nil {
		t.Fatal("expected error for unknown voting method")
	}
	if ferrors.GetCode(err) != ferrors.ErrCodeUnknownVotingMethod {
		t.Errorf("expected %s, got %s", ferrors.ErrCodeUnknownVotingMethod, ferrors.GetCode(err))
	}
}

func TestFindAnswersFusedPath(t *testing.T) {
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			return []string{"p1", "p2"}, nil
		},
	}
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return []*store.AnswerCandidate{
				{AnswerID: "ans1", Text: "shared answer", Score: 0.8},
				{AnswerID: "ans2", Text: "other answer", Score: 0.5},
			}, nil
		},
	}
	s := newTestService(&fakeEmbedder{}, vs, src)

	got, err := s.FindAnswers(context.Background(), "how are you", Options{})
	if err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 fused answers, got %d", len(got))
	}
	// Both branches returned the same lists, so ans1 leads with full
	// consensus.
	if got[0].AnswerID != "ans1" {
		t.Errorf("expected ans1 first, got %s", got[0].AnswerID)
	}
	if got[0].RankingScore <= got[1].RankingScore {
		t.Errorf("results not sorted by ranking score: %v then %v", got[0].RankingScore, got[1].RankingScore)
	}
}

func TestFindAnswersTruncatesToLimit(t *testing.T) {
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			return []string{"p1", "p2"}, nil
		},
	}
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return candidates("a", "b", "c", "d", "e"), nil
		},
	}
	s := newTestService(&fakeEmbedder{}, vs, src)

	got, err := s.FindAnswers(context.Background(), "q", Options{Limit: 2})
	if err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 answers after truncation, got %d", len(got))
	}
}

func TestFindAnswersParaphraseFailureDegrades(t *testing.T) {
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			return nil, errors.New("llm unavailable")
		},
	}
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return candidates("baseline-answer"), nil
		},
	}
	metrics, _ := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	s := newTestService(&fakeEmbedder{}, vs, src, WithMetrics(metrics))

	got, err := s.FindAnswers(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("paraphrase failure must degrade silently, got error: %v", err)
	}
	if len(got) != 1 || got[0].AnswerID != "baseline-answer" {
		t.Fatalf("expected baseline answer, got %v", got)
	}
	if got[0].AvgScore != got[0].RankingScore || got[0].MaxScore != got[0].RankingScore {
		t.Errorf("baseline answers should carry the raw score in all fields")
	}

	snap := metrics.Snapshot()
	if snap.DegradedCount != 1 {
		t.Errorf("expected 1 degraded query recorded, got %d", snap.DegradedCount)
	}
	if snap.PathCounts[telemetry.PathBaseline] != 1 {
		t.Errorf("expected baseline path recorded")
	}
}

func TestFindAnswersEchoParaphrasesDegrade(t *testing.T) {
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			return []string{"Как дела?"}, nil
		},
	}
	searches := 0
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			searches++
			return candidates("a"), nil
		},
	}
	s := newTestService(&fakeEmbedder{}, vs, src)

	got, err := s.FindAnswers(context.Background(), "как дела?", Options{})
	if err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected baseline answer, got %d", len(got))
	}
	if searches != 1 {
		t.Errorf("expected a single baseline search, got %d searches", searches)
	}
}

func TestFindAnswersNilParaphraserUsesBaseline(t *testing.T) {
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return candidates("a"), nil
		},
	}
	metrics, _ := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	s := newTestService(&fakeEmbedder{}, vs, nil, WithMetrics(metrics))

	got, err := s.FindAnswers(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(got))
	}

	snap := metrics.Snapshot()
	if snap.PathCounts[telemetry.PathBaseline] != 1 {
		t.Errorf("expected baseline path recorded")
	}
	if snap.DegradedCount != 0 {
		t.Errorf("baseline without a paraphraser is not degradation")
	}
}

func TestFindAnswersBaselineFailureYieldsEmpty(t *testing.T) {
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return nil, errors.New("store down")
		},
	}
	s := newTestService(&fakeEmbedder{}, vs, nil)

	got, err := s.FindAnswers(context.Background(), "q", Options{})
	if err != nil {
		t.Fatalf("collaborator failure must not surface, got: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty result, got %d", len(got))
	}
}

func TestFindAnswersCancellationSurfaces(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	emb := &fakeEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			return nil, ctx.Err()
		},
	}
	s := newTestService(emb, &fakeStore{}, nil)

	_, err := s.FindAnswers(ctx, "q", Options{})
	if err == nil {
		t.Fatal("expected cancellation to surface")
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestFindAnswersOverallTimeout(t *testing.T) {
	emb := &fakeEmbedder{
		embedFn: func(ctx context.Context, text string) ([]float32, error) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(5 * time.Second):
				return []float32{1}, nil
			}
		},
	}
	s := newTestService(emb, &fakeStore{}, nil, WithTimeout(20*time.Millisecond))

	_, err := s.FindAnswers(context.Background(), "q", Options{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestFindAnswersFusedMetrics(t *testing.T) {
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			return []string{"p1", "p2"}, nil
		},
	}
	vs := &fakeStore{
		searchFn: func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
			return candidates("a"), nil
		},
	}
	metrics, _ := telemetry.NewQueryMetrics(telemetry.DefaultConfig())
	s := newTestService(&fakeEmbedder{}, vs, src, WithMetrics(metrics), WithVotingMethod("ensemble"))

	if _, err := s.FindAnswers(context.Background(), "q", Options{}); err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}

	snap := metrics.Snapshot()
	if snap.PathCounts[telemetry.PathFused] != 1 {
		t.Errorf("expected fused path recorded")
	}
	if snap.MethodCounts["ensemble"] != 1 {
		t.Errorf("expected ensemble method recorded, got %v", snap.MethodCounts)
	}
}

func TestFindAnswersParaphraseCountForwarded(t *testing.T) {
	var gotCount int
	src := &fakeSource{
		generateFn: func(ctx context.Context, query string, count int) ([]string, error) {
			gotCount = count
			return nil, nil
		},
	}
	vs := &fakeStore{}
	s := newTestService(&fakeEmbedder{}, vs, src, WithParaphraseCount(3))

	if _, err := s.FindAnswers(context.Background(), "q", Options{}); err != nil {
		t.Fatalf("FindAnswers failed: %v", err)
	}
	if gotCount != 3 {
		t.Errorf("expected paraphrase count 3, got %d", gotCount)
	}
}
