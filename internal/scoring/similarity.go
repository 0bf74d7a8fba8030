package scoring

import (
	"context"
	"math"
	"strings"
	"unicode"

	"github.com/scrypster/memvault/pkg/types"
)

// SimilarityProvider scores how relevant m is to a free-text query, in [0,1].
type SimilarityProvider interface {
	Similarity(ctx context.Context, query string, m *types.Memory) (float64, error)
}

// LexicalSimilarity is the term-frequency cosine between query and content.
// It needs no external service.
type LexicalSimilarity struct{}

// Similarity implements SimilarityProvider.
func (LexicalSimilarity) Similarity(ctx context.Context, query string, m *types.Memory) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	q := termFrequencies(query)
	c := termFrequencies(m.Content)
	if len(q) == 0 || len(c) == 0 {
		return 0, nil
	}

	var dot, nq, nc float64
	for term, fq := range q {
		nq += fq * fq
		if fc, ok := c[term]; ok {
			dot += fq * fc
		}
	}
	for _, fc := range c {
		nc += fc * fc
	}

	return types.ClampUnit(dot / (math.Sqrt(nq) * math.Sqrt(nc))), nil
}

// tokenize lowercases s and splits it on anything that is not a letter or digit.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termFrequencies(s string) map[string]float64 {
	tf := make(map[string]float64)
	for _, tok := range tokenize(s) {
		tf[tok]++
	}
	return tf
}

// Cosine returns the cosine similarity of a and b clamped to [0,1].
// Mismatched lengths and zero vectors score 0.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return types.ClampUnit(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// StaticSimilarity returns a preset score per memory ID. Useful in tests.
type StaticSimilarity map[string]float64

// Similarity implements SimilarityProvider.
func (s StaticSimilarity) Similarity(_ context.Context, _ string, m *types.Memory) (float64, error) {
	return s[m.ID], nil
}
