package paraphrase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseParaphrases(t *testing.T) {
	tests := []struct {
		name     string
		content  string
		count    int
		expected []string
	}{
		{
			name:     "plain lines",
			content:  "How can I reset my password?\nWhat is the way to reset a password?",
			count:    5,
			expected: []string{"How can I reset my password?", "What is the way to reset a password?"},
		},
		{
			name:     "numbered list",
			content:  "1. First variant\n2) Second variant\n3. Third variant",
			count:    5,
			expected: []string{"First variant", "Second variant", "Third variant"},
		},
		{
			name:     "bullets and quotes",
			content:  "- \"Quoted variant\"\n* Starred variant",
			count:    5,
			expected: []string{"Quoted variant", "Starred variant"},
		},
		{
			name:     "case-insensitive dedupe",
			content:  "Same question\nsame question\nSAME QUESTION\nOther question",
			count:    5,
			expected: []string{"Same question", "Other question"},
		},
		{
			name:     "capped at count",
			content:  "one\ntwo\nthree\nfour",
			count:    2,
			expected: []string{"one", "two"},
		},
		{
			name:     "blank lines skipped",
			content:  "\n\nonly variant\n\n",
			count:    5,
			expected: []string{"only variant"},
		},
		{
			name:     "empty content",
			content:  "",
			count:    5,
			expected: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseParaphrases(tt.content, tt.count))
		})
	}
}

func TestParseParaphrases_KeepsQueryEchoes(t *testing.T) {
	// Echoes of the original query are the fanout's problem, not the source's.
	result := parseParaphrases("как дела?\nКак дела?\nкак у тебя дела?", 5)
	assert.Equal(t, []string{"как дела?", "как у тебя дела?"}, result)
}

func TestStaticSource_QuestionMarkVariants(t *testing.T) {
	src := NewStaticSource()
	ctx := context.Background()

	t.Run("adds question mark", func(t *testing.T) {
		result, err := src.Generate(ctx, "how to pay", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"how to pay", "how to pay?"}, result)
	})

	t.Run("strips question mark", func(t *testing.T) {
		result, err := src.Generate(ctx, "how to pay?", 5)
		require.NoError(t, err)
		assert.Equal(t, []string{"how to pay?", "how to pay"}, result)
	})

	t.Run("respects count", func(t *testing.T) {
		result, err := src.Generate(ctx, "how to pay", 1)
		require.NoError(t, err)
		assert.Equal(t, []string{"how to pay"}, result)
	})

	t.Run("empty query", func(t *testing.T) {
		result, err := src.Generate(ctx, "   ", 5)
		require.NoError(t, err)
		assert.Empty(t, result)
	})

	t.Run("zero count", func(t *testing.T) {
		result, err := src.Generate(ctx, "how to pay", 0)
		require.NoError(t, err)
		assert.Empty(t, result)
	})
}

func TestNewLLMSource_Validation(t *testing.T) {
	_, err := NewLLMSource(LLMConfig{Model: "qwen2.5:3b"})
	assert.Error(t, err)

	_, err = NewLLMSource(LLMConfig{Host: "http://localhost:11434/v1"})
	assert.Error(t, err)
}
