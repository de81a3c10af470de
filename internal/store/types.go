// Package store provides the vector search collaborator client.
// The index itself is remote (Qdrant); this package only queries it.
package store

import (
	"context"
)

// AnswerCandidate is the output of one vector search call: a stored answer
// together with its similarity score for the searched embedding.
// Candidates are produced fresh per search call and are owned by the caller.
type AnswerCandidate struct {
	// AnswerID is the stable identifier of the answer.
	AnswerID string `json:"answer_id"`

	// Text is the answer text.
	Text string `json:"text"`

	// Score is the similarity score, conventionally in [0,1], higher is
	// more relevant.
	Score float64 `json:"score"`
}

// VectorStore searches a remote vector index for answers similar to an
// embedding. Implementations must be safe for concurrent use: the fanout
// coordinator issues one search per paraphrase in parallel.
type VectorStore interface {
	// Search returns up to limit candidates with Score >= scoreThreshold,
	// ordered by descending score. A zero threshold disables filtering.
	Search(ctx context.Context, embedding []float32, limit int, scoreThreshold float64) ([]*AnswerCandidate, error)

	// Close releases client resources.
	Close() error
}
