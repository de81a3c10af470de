package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
)

const (
	defaultTimeout  = 5 * time.Second
	defaultRetryMax = 2
	minBackoff      = 100 * time.Millisecond
	maxBackoff      = 2 * time.Second

	qdrantQueryPath = "/collections/%s/points/query"
	contentTypeJSON = "application/json"
)

// QdrantConfig configures the Qdrant client.
type QdrantConfig struct {
	// URL is the Qdrant base URL, e.g. "http://localhost:6333".
	URL string

	// Collection is the collection holding answer vectors.
	Collection string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// RetryMax is the number of retries on transport errors and 5xx.
	RetryMax int
}

// QdrantStore queries a Qdrant collection over its HTTP API.
// Answer payloads carry "answer" (text), "answer_id", and "is_visible".
type QdrantStore struct {
	baseURL    string
	collection string
	client     *http.Client
	retryMax   int
}

// Verify interface implementation at compile time
var _ VectorStore = (*QdrantStore)(nil)

// NewQdrantStore creates a Qdrant vector store client.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, ferrors.ConfigError("qdrant URL required", nil)
	}
	if cfg.Collection == "" {
		return nil, ferrors.ConfigError("qdrant collection required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = defaultRetryMax
	}

	return &QdrantStore{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		collection: cfg.Collection,
		client:     &http.Client{Timeout: cfg.Timeout},
		retryMax:   cfg.RetryMax,
	}, nil
}

// queryRequest is the Qdrant points/query request body.
type queryRequest struct {
	Query          []float32    `json:"query"`
	Limit          int          `json:"limit"`
	ScoreThreshold float64      `json:"score_threshold,omitempty"`
	Filter         *queryFilter `json:"filter,omitempty"`
	WithPayload    bool         `json:"with_payload"`
}

type queryFilter struct {
	Must []fieldCondition `json:"must"`
}

type fieldCondition struct {
	Key   string     `json:"key"`
	Match matchValue `json:"match"`
}

type matchValue struct {
	Value any `json:"value"`
}

// queryResponse is the Qdrant points/query response body.
type queryResponse struct {
	Result struct {
		Points []scoredPoint `json:"points"`
	} `json:"result"`
	Status string `json:"status"`
}

type scoredPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// Search queries the collection for the nearest answers.
//
// Only answers marked visible are searched; if the filtered query returns
// nothing, one unfiltered query runs so that collections ingested without
// the is_visible flag still work.
func (s *QdrantStore) Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float64) ([]*AnswerCandidate, error) {
	if len(embedding) == 0 {
		return nil, ferrors.InvalidInput("embedding must not be empty")
	}
	if limit <= 0 {
		return nil, ferrors.InvalidInput(fmt.Sprintf("limit must be positive, got %d", limit))
	}

	visibleOnly := &queryFilter{
		Must: []fieldCondition{
			{Key: "is_visible", Match: matchValue{Value: true}},
		},
	}

	candidates, err := s.query(ctx, embedding, limit, scoreThreshold, visibleOnly)
	if err != nil {
		return nil, err
	}

	if len(candidates) == 0 {
		slog.Debug("qdrant_no_visible_results_retrying_unfiltered",
			slog.String("collection", s.collection))
		return s.query(ctx, embedding, limit, scoreThreshold, nil)
	}

	return candidates, nil
}

// Close releases idle connections.
func (s *QdrantStore) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// query executes one points/query call with bounded retries.
func (s *QdrantStore) query(ctx context.Context, embedding []float32, limit int, scoreThreshold float64, filter *queryFilter) ([]*AnswerCandidate, error) {
	payload, err := json.Marshal(queryRequest{
		Query:          embedding,
		Limit:          limit,
		ScoreThreshold: scoreThreshold,
		Filter:         filter,
		WithPayload:    true,
	})
	if err != nil {
		return nil, ferrors.New(ferrors.ErrCodeInternal, "marshal qdrant query", err)
	}

	endpoint := s.baseURL + fmt.Sprintf(qdrantQueryPath, url.PathEscape(s.collection))

	var (
		lastErr error
		backoff = minBackoff
	)

	for attempt := 0; ; attempt++ {
		body, status, err := s.doRequest(ctx, endpoint, payload)
		switch {
		case err == nil && status < 400:
			return decodeCandidates(body)
		case err == nil && status < 500:
			// Client errors are not retryable: wrong collection, bad vector size.
			return nil, ferrors.CollaboratorError(ferrors.ErrCodeSearchFailed, "qdrant",
				fmt.Errorf("qdrant returned %d: %s", status, strings.TrimSpace(string(body))))
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			if err != nil {
				lastErr = err
			} else {
				lastErr = fmt.Errorf("qdrant returned %d: %s", status, strings.TrimSpace(string(body)))
			}
		}

		if attempt >= s.retryMax {
			return nil, ferrors.CollaboratorError(ferrors.ErrCodeCollaboratorUnavailable, "qdrant", lastErr)
		}

		if !sleepWithContext(ctx, backoff) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff)
	}
}

// doRequest performs a single HTTP round trip.
func (s *QdrantStore) doRequest(ctx context.Context, endpoint string, payload []byte) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", contentTypeJSON)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	return body, resp.StatusCode, nil
}

// decodeCandidates converts a Qdrant response into candidates, preserving
// the collaborator-returned order (descending by score).
func decodeCandidates(body []byte) ([]*AnswerCandidate, error) {
	var parsed queryResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, ferrors.CollaboratorError(ferrors.ErrCodeSearchFailed, "qdrant",
			fmt.Errorf("decode response: %w", err))
	}

	candidates := make([]*AnswerCandidate, 0, len(parsed.Result.Points))
	for _, p := range parsed.Result.Points {
		c := &AnswerCandidate{Score: p.Score}

		if v, ok := p.Payload["answer"].(string); ok {
			c.Text = v
		}
		if v, ok := p.Payload["answer_id"].(string); ok && v != "" {
			c.AnswerID = v
		} else {
			// Fall back to the point id for collections without answer_id payloads.
			c.AnswerID = strings.Trim(string(p.ID), `"`)
		}

		if c.AnswerID == "" || c.Text == "" {
			slog.Warn("qdrant_point_missing_payload", slog.String("id", string(p.ID)))
			continue
		}

		candidates = append(candidates, c)
	}

	return candidates, nil
}

func nextBackoff(current time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
