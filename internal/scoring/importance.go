// Package scoring computes importance at write time and similarity at query time.
//
// Both are pluggable: the engine depends only on ImportanceScorer and
// SimilarityProvider. The implementations here are a keyword heuristic for
// importance, and lexical or embedding cosine for similarity.
package scoring

import (
	"context"
	"math"
	"strings"

	"github.com/scrypster/memvault/pkg/types"
)

// ImportanceScorer produces an importance value in [0,1] for new content.
type ImportanceScorer interface {
	Score(ctx context.Context, m *types.Memory) (float64, error)
}

// RuleScorer scores importance with keyword and shape heuristics.
type RuleScorer struct {
	// Base is the starting score before any factor is applied.
	Base float64

	// Keywords each add KeywordWeight when present in the content.
	Keywords      []string
	KeywordWeight float64
}

// DefaultKeywords signal content a user is likely to want remembered.
var DefaultKeywords = []string{
	"important", "critical", "urgent", "remember", "note",
	"preference", "prefer", "like", "dislike", "hate", "love",
	"always", "never", "allergic", "allergy", "birthday", "anniversary",
	"deadline", "password", "secret", "private", "confidential",
}

// NewRuleScorer returns a RuleScorer with the default keyword set.
func NewRuleScorer() *RuleScorer {
	return &RuleScorer{
		Base:          0.3,
		Keywords:      DefaultKeywords,
		KeywordWeight: 0.1,
	}
}

// Score implements ImportanceScorer.
func (s *RuleScorer) Score(ctx context.Context, m *types.Memory) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	content := m.Content
	contentLower := strings.ToLower(content)
	score := s.Base

	// Length factor
	if len(content) > 200 {
		score += 0.15
	} else if len(content) > 100 {
		score += 0.1
	} else if len(content) > 50 {
		score += 0.05
	}

	for _, keyword := range s.Keywords {
		if strings.Contains(contentLower, keyword) {
			score += s.KeywordWeight
		}
	}

	if strings.Contains(content, "?") {
		score += 0.05
	}
	if strings.Contains(content, "!") {
		score += 0.05
	}

	if len(m.Tags) > 0 {
		score += 0.05
	}

	switch types.NormalizeMemoryType(string(m.MemoryType)) {
	case types.MemoryTypeLongTerm:
		score += 0.1
	case types.MemoryTypeImmediate:
		score -= 0.1
	}

	return math.Round(types.ClampUnit(score)*1000) / 1000, nil
}

// FixedScorer always returns the same importance. Useful in tests.
type FixedScorer float64

// Score implements ImportanceScorer.
func (f FixedScorer) Score(context.Context, *types.Memory) (float64, error) {
	return types.ClampUnit(float64(f)), nil
}
