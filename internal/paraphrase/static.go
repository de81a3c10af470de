package paraphrase

import (
	"context"
	"strings"
)

// StaticSource produces trivial query variations without a model: the query
// itself plus question-mark variants. It serves as a degraded-mode source
// when no chat model is reachable; most of its output triggers the caller's
// baseline rule, which is the intended behavior.
type StaticSource struct{}

// Verify interface implementation at compile time
var _ Source = (*StaticSource)(nil)

// NewStaticSource creates a static paraphrase source.
func NewStaticSource() *StaticSource {
	return &StaticSource{}
}

// Generate returns up to count simple variants of the query.
func (s *StaticSource) Generate(_ context.Context, query string, count int) ([]string, error) {
	query = strings.TrimSpace(query)
	if query == "" || count <= 0 {
		return []string{}, nil
	}

	variants := []string{query}
	if strings.HasSuffix(query, "?") {
		variants = append(variants, strings.TrimSpace(strings.TrimSuffix(query, "?")))
	} else {
		variants = append(variants, query+"?")
	}

	seen := make(map[string]bool, len(variants))
	result := make([]string, 0, count)
	for _, v := range variants {
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		result = append(result, v)
		if len(result) == count {
			break
		}
	}

	return result, nil
}
