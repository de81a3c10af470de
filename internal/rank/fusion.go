package rank

import (
	"sort"

	ferrors "github.com/answerdesk/parafuse/internal/errors"
)

// Weighted method blend: similarity, rank consistency, agreement breadth.
const (
	weightAvgScore    = 0.4
	weightAvgPosition = 0.4
	weightCount       = 0.2
)

// Ensemble blend of the two normalized rankings.
const (
	ensembleSimpleWeight   = 0.4
	ensembleWeightedWeight = 0.6
)

// Fuser merges per-paraphrase result lists into a single fused ranking.
type Fuser struct{}

// NewFuser creates a fuser.
func NewFuser() *Fuser {
	return &Fuser{}
}

// Fuse merges the result set with the given voting method. Every answer that
// appears in any list appears in the output; the output is sorted by
// descending ranking score, with ties broken by first appearance across
// lists in dispatch order. An unknown method is a configuration error.
func (f *Fuser) Fuse(set *ResultSet, method VotingMethod) ([]*FusedAnswer, error) {
	switch method {
	case VotingSimple:
		return f.fuseSimple(set), nil
	case VotingWeighted:
		return f.fuseWeighted(set), nil
	case VotingEnsemble:
		return f.fuseEnsemble(set), nil
	default:
		return nil, ferrors.UnknownVotingMethod(string(method))
	}
}

// answerStats accumulates one answer's appearances across all lists.
type answerStats struct {
	id        string
	text      string
	firstSeen int
	scores    []float64
	positions []int
}

// accumulate walks the set in dispatch order and gathers per-answer stats.
// The returned slice is ordered by first appearance.
func accumulate(set *ResultSet) []*answerStats {
	if set == nil {
		return nil
	}
	byID := make(map[string]*answerStats)
	var ordered []*answerStats
	for i := 0; i < set.Len(); i++ {
		for pos, c := range set.Candidates(i) {
			st, ok := byID[c.AnswerID]
			if !ok {
				st = &answerStats{
					id:        c.AnswerID,
					text:      c.Text,
					firstSeen: len(ordered),
				}
				byID[c.AnswerID] = st
				ordered = append(ordered, st)
			}
			st.scores = append(st.scores, c.Score)
			st.positions = append(st.positions, pos+1)
		}
	}
	return ordered
}

func (f *Fuser) fuseSimple(set *ResultSet) []*FusedAnswer {
	stats := accumulate(set)
	out := make([]*FusedAnswer, 0, len(stats))
	for _, st := range stats {
		votes := float64(len(st.scores))
		score := votes + inverseMeanPosition(st.positions)
		out = append(out, &FusedAnswer{
			AnswerID:     st.id,
			Text:         st.text,
			AvgScore:     score,
			MaxScore:     score,
			RankingScore: score,
		})
	}
	sortFused(out, stats)
	return out
}

func (f *Fuser) fuseWeighted(set *ResultSet) []*FusedAnswer {
	stats := accumulate(set)
	lists := 0
	if set != nil {
		lists = set.Len()
	}
	out := make([]*FusedAnswer, 0, len(stats))
	for _, st := range stats {
		avg := mean(st.scores)
		posWeight := meanInverse(st.positions)
		countBonus := 0.0
		if lists > 0 {
			countBonus = float64(len(st.scores)) / float64(lists)
		}
		ranking := weightAvgScore*avg + weightAvgPosition*posWeight + weightCount*countBonus
		out = append(out, &FusedAnswer{
			AnswerID:     st.id,
			Text:         st.text,
			AvgScore:     avg,
			MaxScore:     maxOf(st.scores),
			RankingScore: ranking,
		})
	}
	sortFused(out, stats)
	return out
}

// fuseEnsemble normalizes each method's scores by that method's maximum and
// blends them. AvgScore reports the normalized simple score and MaxScore the
// weighted method's raw maximum, matching the method's historical reporting.
func (f *Fuser) fuseEnsemble(set *ResultSet) []*FusedAnswer {
	stats := accumulate(set)
	simple := f.fuseSimple(set)
	weighted := f.fuseWeighted(set)

	simpleByID := make(map[string]*FusedAnswer, len(simple))
	for _, a := range simple {
		simpleByID[a.AnswerID] = a
	}
	weightedByID := make(map[string]*FusedAnswer, len(weighted))
	for _, a := range weighted {
		weightedByID[a.AnswerID] = a
	}

	maxSimple := 0.0
	for _, a := range simple {
		if a.RankingScore > maxSimple {
			maxSimple = a.RankingScore
		}
	}
	maxWeighted := 0.0
	for _, a := range weighted {
		if a.RankingScore > maxWeighted {
			maxWeighted = a.RankingScore
		}
	}

	out := make([]*FusedAnswer, 0, len(stats))
	for _, st := range stats {
		normSimple := 0.0
		if maxSimple > 0 {
			normSimple = simpleByID[st.id].RankingScore / maxSimple
		}
		normWeighted := 0.0
		if maxWeighted > 0 {
			normWeighted = weightedByID[st.id].RankingScore / maxWeighted
		}
		out = append(out, &FusedAnswer{
			AnswerID:     st.id,
			Text:         st.text,
			AvgScore:     normSimple,
			MaxScore:     weightedByID[st.id].MaxScore,
			RankingScore: ensembleSimpleWeight*normSimple + ensembleWeightedWeight*normWeighted,
		})
	}
	sortFused(out, stats)
	return out
}

// sortFused orders by descending ranking score, breaking ties by first
// appearance. stats must be in first-seen order and parallel to out before
// sorting.
func sortFused(out []*FusedAnswer, stats []*answerStats) {
	firstSeen := make(map[string]int, len(stats))
	for _, st := range stats {
		firstSeen[st.id] = st.firstSeen
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RankingScore != out[j].RankingScore {
			return out[i].RankingScore > out[j].RankingScore
		}
		return firstSeen[out[i].AnswerID] < firstSeen[out[j].AnswerID]
	})
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func maxOf(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := xs[0]
	for _, x := range xs[1:] {
		if x > m {
			m = x
		}
	}
	return m
}

// inverseMeanPosition returns 1 / mean(positions), 0 when empty.
func inverseMeanPosition(positions []int) float64 {
	if len(positions) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range positions {
		sum += float64(p)
	}
	if sum == 0 {
		return 0
	}
	return float64(len(positions)) / sum
}

// meanInverse returns mean(1/position), 0 when empty. Positions are
// 1-indexed so the terms are defined.
func meanInverse(positions []int) float64 {
	if len(positions) == 0 {
		return 0
	}
	sum := 0.0
	for _, p := range positions {
		sum += 1.0 / float64(p)
	}
	return sum / float64(len(positions))
}
