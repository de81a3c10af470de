package embed

import (
	"context"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible embedding client.
type OpenAIConfig struct {
	// Host is the base URL of the embedding API, e.g.
	// "http://localhost:11434/v1" for a local Ollama server.
	Host string

	// Model is the embedding model identifier.
	Model string

	// Token is the API token. Local OpenAI-compatible servers accept any
	// non-empty value; defaults to "none".
	Token string
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
// It works against hosted OpenAI as well as local servers (Ollama, vLLM,
// LocalAI) that expose the same endpoint.
type OpenAIEmbedder struct {
	embedder  embeddings.Embedder
	modelName string
	logger    *slog.Logger
}

// Verify interface implementation at compile time
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates a new embedder for the configured host and model.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Host == "" {
		return nil, ferrors.ConfigError("embedding host required", nil)
	}
	if cfg.Model == "" {
		return nil, ferrors.ConfigError("embedding model required", nil)
	}
	if cfg.Token == "" {
		cfg.Token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(cfg.Token),
		openai.WithEmbeddingModel(cfg.Model),
	)
	if err != nil {
		return nil, ferrors.ConfigError("create embedding client", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, ferrors.ConfigError("create embedder", err)
	}

	return &OpenAIEmbedder{
		embedder:  embedder,
		modelName: cfg.Model,
		logger:    slog.Default().With("component", "openai-embedder"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ferrors.InvalidInput("text must not be empty")
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		e.logger.Error("embedding_failed", slog.Int("text_len", len(text)), slog.String("error", err.Error()))
		return nil, ferrors.CollaboratorError(ferrors.ErrCodeEmbeddingFailed, "embedder", err)
	}
	if len(vectors) == 0 {
		return nil, ferrors.CollaboratorError(ferrors.ErrCodeEmbeddingFailed, "embedder",
			ferrors.New(ferrors.ErrCodeInternal, "embedder returned no vectors", nil))
	}

	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, ferrors.InvalidInput("texts must not contain empty entries")
		}
	}

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("embedding_batch_failed", slog.Int("count", len(texts)), slog.String("error", err.Error()))
		return nil, ferrors.CollaboratorError(ferrors.ErrCodeEmbeddingFailed, "embedder", err)
	}

	return vectors, nil
}

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string {
	return e.modelName
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	return nil
}
