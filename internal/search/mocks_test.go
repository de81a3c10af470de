package search

import (
	"context"
	"fmt"

	"github.com/answerdesk/parafuse/internal/store"
)

// fakeEmbedder is a function-backed test double for embed.Embedder.
type fakeEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.embedFn != nil {
		return f.embedFn(ctx, text)
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-embedder" }
func (f *fakeEmbedder) Close() error      { return nil }

// fakeStore is a function-backed test double for store.VectorStore.
type fakeStore struct {
	searchFn func(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error)
}

func (f *fakeStore) Search(ctx context.Context, vector []float32, limit int, threshold float64) ([]*store.AnswerCandidate, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, vector, limit, threshold)
	}
	return nil, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeSource is a function-backed test double for paraphrase.Source.
type fakeSource struct {
	generateFn func(ctx context.Context, query string, count int) ([]string, error)
}

func (f *fakeSource) Generate(ctx context.Context, query string, count int) ([]string, error) {
	if f.generateFn != nil {
		return f.generateFn(ctx, query, count)
	}
	return nil, nil
}

func candidates(ids ...string) []*store.AnswerCandidate {
	out := make([]*store.AnswerCandidate, len(ids))
	for i, id := range ids {
		out[i] = &store.AnswerCandidate{
			AnswerID: id,
			Text:     fmt.Sprintf("text for %s", id),
			Score:    0.9 - 0.1*float64(i),
		}
	}
	return out
}
