// Package paraphrase provides the paraphrase source collaborator.
// A source rephrases a user query into alternative formulations; the
// search fanout runs one vector search per formulation to improve recall.
package paraphrase

import (
	"context"
)

// DefaultCount is the default number of paraphrases requested per query.
const DefaultCount = 5

// Source generates paraphrases of a query.
//
// A source returns 0..count distinct, non-empty strings. Echoes of the
// original query may appear in the output; deciding whether the set is
// useful is the caller's job, not the source's.
type Source interface {
	Generate(ctx context.Context, query string, count int) ([]string, error)
}
