package embed

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder is a test double with injectable behavior.
type fakeEmbedder struct {
	embedFunc func(ctx context.Context, text string) ([]float32, error)
	calls     int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.embedFunc != nil {
		return f.embedFunc(ctx, text)
	}
	return deterministicVector(text), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) ModelName() string { return "fake-model" }
func (f *fakeEmbedder) Close() error      { return nil }

// deterministicVector derives a small stable vector from the text bytes.
func deterministicVector(text string) []float32 {
	var sum float32
	for _, b := range []byte(text) {
		sum += float32(b)
	}
	return []float32{sum, float32(len(text))}
}

func TestCachedEmbedder_HitSkipsInner(t *testing.T) {
	inner := &fakeEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "how do I reset my password")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "how do I reset my password")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedEmbedder_DistinctTextsMiss(t *testing.T) {
	inner := &fakeEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "first question")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "second question")
	require.NoError(t, err)

	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_ErrorNotCached(t *testing.T) {
	failing := errors.New("embedder down")
	inner := &fakeEmbedder{}
	inner.embedFunc = func(ctx context.Context, text string) ([]float32, error) {
		if inner.calls == 1 {
			return nil, failing
		}
		return deterministicVector(text), nil
	}
	cached := NewCachedEmbedder(inner, 10)

	ctx := context.Background()
	_, err := cached.Embed(ctx, "flaky")
	require.Error(t, err)

	vec, err := cached.Embed(ctx, "flaky")
	require.NoError(t, err)
	assert.NotNil(t, vec)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedEmbedder_BatchMixesCachedAndFresh(t *testing.T) {
	inner := &fakeEmbedder{}
	cached := NewCachedEmbedder(inner, 10)

	ctx := context.Background()
	warm, err := cached.Embed(ctx, "warm")
	require.NoError(t, err)
	innerCallsAfterWarm := inner.calls

	results, err := cached.EmbedBatch(ctx, []string{"warm", "cold"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, warm, results[0])
	assert.Equal(t, deterministicVector("cold"), results[1])
	// Only one batch call for the uncached remainder
	assert.Equal(t, innerCallsAfterWarm+1, inner.calls)
}

func TestCachedEmbedder_EmptyBatch(t *testing.T) {
	cached := NewCachedEmbedder(&fakeEmbedder{}, 10)

	results, err := cached.EmbedBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestCachedEmbedder_DefaultSizeWhenZero(t *testing.T) {
	cached := NewCachedEmbedder(&fakeEmbedder{}, 0)
	assert.NotNil(t, cached.cache)
	assert.Equal(t, "fake-model", cached.ModelName())
}
