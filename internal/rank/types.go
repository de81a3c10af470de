// Package rank fuses per-paraphrase search result lists into one ranking.
// Answers that several paraphrases agree on rise above answers that only a
// single formulation surfaced.
package rank

import (
	"github.com/answerdesk/parafuse/internal/store"
)

// VotingMethod selects the fusion algorithm.
type VotingMethod string

const (
	// VotingSimple counts votes across paraphrase lists and rewards early
	// positions.
	VotingSimple VotingMethod = "simple"

	// VotingWeighted blends similarity scores, rank consistency, and
	// breadth of agreement (40/40/20). Primary production method.
	VotingWeighted VotingMethod = "weighted"

	// VotingEnsemble combines the normalized simple and weighted rankings
	// (40/60).
	VotingEnsemble VotingMethod = "ensemble"
)

// FusedAnswer is one answer in the final fused ranking.
type FusedAnswer struct {
	// AnswerID is the stable answer identifier.
	AnswerID string `json:"answer_id"`

	// Text is the answer text, taken from the first appearance of the
	// answer across paraphrase lists in dispatch order.
	Text string `json:"text"`

	// AvgScore is the mean raw similarity score across appearances.
	// For the ensemble method it reports the normalized simple score.
	AvgScore float64 `json:"avg_score"`

	// MaxScore is the highest raw similarity score across appearances.
	MaxScore float64 `json:"max_score"`

	// RankingScore is the fusion score the output is ordered by.
	RankingScore float64 `json:"ranking_score"`
}

// ResultSet holds per-paraphrase search results in dispatch order.
//
// The order is load-bearing: first-seen answer text and score ties both
// resolve by it, which is what makes fusion deterministic. A map would not
// give that guarantee.
type ResultSet struct {
	entries []resultEntry
}

type resultEntry struct {
	paraphrase string
	candidates []*store.AnswerCandidate
}

// NewResultSet creates an empty result set.
func NewResultSet() *ResultSet {
	return &ResultSet{}
}

// Add appends one paraphrase's ranked candidates. Candidates must already be
// ordered by descending score, as the vector store returns them; a
// candidate's 1-indexed position in the list is its branch-local rank.
func (rs *ResultSet) Add(paraphrase string, candidates []*store.AnswerCandidate) {
	rs.entries = append(rs.entries, resultEntry{paraphrase: paraphrase, candidates: candidates})
}

// Len returns the number of paraphrase lists.
func (rs *ResultSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.entries)
}

// Paraphrases returns the paraphrases in dispatch order.
func (rs *ResultSet) Paraphrases() []string {
	out := make([]string, len(rs.entries))
	for i, e := range rs.entries {
		out[i] = e.paraphrase
	}
	return out
}

// Candidates returns the candidate list for the i-th paraphrase.
func (rs *ResultSet) Candidates(i int) []*store.AnswerCandidate {
	return rs.entries[i].candidates
}
