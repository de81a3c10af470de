package paraphrase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
)

const systemPrompt = `You rephrase user questions. Given a question, produce alternative
phrasings that keep the exact meaning but vary the wording. Answer in the
same language as the question. Output one paraphrase per line, nothing else.`

// LLMConfig configures the LLM paraphrase source.
type LLMConfig struct {
	// Host is the base URL of an OpenAI-compatible chat API.
	Host string

	// Model is the chat model identifier.
	Model string

	// Token is the API token; defaults to "none" for local servers.
	Token string

	// Temperature controls sampling diversity (default: 0.9).
	Temperature float64
}

// LLMSource generates paraphrases with a chat model.
type LLMSource struct {
	client      llms.Model
	temperature float64
	logger      *slog.Logger
}

// Verify interface implementation at compile time
var _ Source = (*LLMSource)(nil)

// NewLLMSource creates a paraphrase source backed by a chat model.
func NewLLMSource(cfg LLMConfig) (*LLMSource, error) {
	if cfg.Host == "" {
		return nil, ferrors.ConfigError("paraphrase host required", nil)
	}
	if cfg.Model == "" {
		return nil, ferrors.ConfigError("paraphrase model required", nil)
	}
	if cfg.Token == "" {
		cfg.Token = "none"
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = 0.9
	}

	client, err := openai.New(
		openai.WithBaseURL(cfg.Host),
		openai.WithToken(cfg.Token),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, ferrors.ConfigError("create paraphrase client", err)
	}

	return &LLMSource{
		client:      client,
		temperature: cfg.Temperature,
		logger:      slog.Default().With("component", "llm-paraphraser"),
	}, nil
}

// Generate asks the model for up to count paraphrases of the query.
//
// The model is asked for extra candidates because sampling produces
// duplicates; the output is deduplicated and capped at count.
func (s *LLMSource) Generate(ctx context.Context, query string, count int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []string{}, nil
	}
	if count <= 0 {
		return []string{}, nil
	}

	content := []llms.MessageContent{
		{
			Role:  schema.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(systemPrompt)},
		},
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(fmt.Sprintf("Rephrase this question %d different ways:\n%s", count*2, query)),
			},
		},
	}

	response, err := s.client.GenerateContent(ctx, content,
		llms.WithTemperature(s.temperature),
		llms.WithTopP(0.95),
	)
	if err != nil {
		s.logger.Error("paraphrase_generation_failed", slog.String("error", err.Error()))
		return nil, ferrors.CollaboratorError(ferrors.ErrCodeParaphraseFailed, "paraphraser", err)
	}

	if len(response.Choices) == 0 {
		s.logger.Debug("paraphrase_no_choices")
		return []string{}, nil
	}

	result := parseParaphrases(response.Choices[0].Content, count)
	s.logger.Debug("paraphrases_generated",
		slog.Int("requested", count),
		slog.Int("returned", len(result)))
	return result, nil
}

// parseParaphrases extracts distinct paraphrases from model output: one per
// line, with list markers and surrounding quotes stripped. Echoes of the
// original query are kept; the fanout's baseline rule deals with them.
func parseParaphrases(content string, count int) []string {
	lines := strings.Split(content, "\n")

	seen := make(map[string]bool, len(lines))
	result := make([]string, 0, count)

	for _, line := range lines {
		p := cleanLine(line)
		if p == "" {
			continue
		}

		key := strings.ToLower(p)
		if seen[key] {
			continue
		}
		seen[key] = true

		result = append(result, p)
		if len(result) == count {
			break
		}
	}

	return result
}

// cleanLine strips list markers ("1.", "-", "*") and surrounding quotes.
func cleanLine(line string) string {
	s := strings.TrimSpace(line)

	s = strings.TrimLeft(s, "0123456789")
	s = strings.TrimLeft(s, ".)")
	s = strings.TrimLeft(s, "-*")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"«»`)

	return strings.TrimSpace(s)
}
