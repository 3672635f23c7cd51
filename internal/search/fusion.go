package search

import (
	"sort"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// FusedResult represents a single result after score fusion.
type FusedResult struct {
	ID               string  // Record identifier
	Score            float64 // Weighted blend of the two normalized scores
	VectorSimilarity float64 // 1 - min-max normalized distance (0 if absent)
	LexicalScore     float64 // Min-max normalized BM25 score (0 if absent)
	VectorRank       int     // Position in vector list (1-indexed, 0 if absent)
	LexicalRank      int     // Position in lexical list (1-indexed, 0 if absent)
	InBothLists      bool    // Record appeared in both candidate lists
}

// MinMaxFusion combines vector and lexical candidates with weighted score
// blending.
//
// Each source's raw scores are min-max normalized over that source's
// candidate set, so the two sides are comparable regardless of distance
// metric or BM25 scale:
//
//	similarity(d) = 1 - (dist(d) - min_dist) / (max_dist - min_dist)
//	lexical(d)    = (score(d) - min_score) / (max_score - min_score)
//	final(d)      = w_vec * similarity(d) + w_lex * lexical(d)
//
// A record missing from one list contributes 0 for that side.
type MinMaxFusion struct{}

// NewMinMaxFusion creates a new fusion instance.
func NewMinMaxFusion() *MinMaxFusion {
	return &MinMaxFusion{}
}

// Fuse blends the two candidate lists and returns the top k fused results.
//
// Results are sorted by Score descending, ties by ID ascending.
// Two empty inputs produce an empty slice, not nil.
func (f *MinMaxFusion) Fuse(
	vec []store.VectorResult,
	lex []store.LexicalResult,
	weights Weights,
	k int,
) []*FusedResult {
	if len(vec) == 0 && len(lex) == 0 {
		return []*FusedResult{}
	}

	capacity := len(vec) + len(lex)
	fused := make(map[string]*FusedResult, capacity)

	minDist, maxDist := distanceBounds(vec)
	for rank, r := range vec {
		result := f.getOrCreate(fused, r.ID)
		result.VectorSimilarity = 1 - normalizeScore(float64(r.Distance), minDist, maxDist)
		result.VectorRank = rank + 1
	}

	minScore, maxScore := lexicalBounds(lex)
	for rank, r := range lex {
		result := f.getOrCreate(fused, r.ID)
		if maxScore == minScore {
			// Degenerate candidate set: every present record gets full
			// credit, mirroring the vector side where equal distances
			// normalize to similarity 1.
			result.LexicalScore = 1
		} else {
			result.LexicalScore = normalizeScore(r.Score, minScore, maxScore)
		}
		result.LexicalRank = rank + 1
		if result.VectorRank > 0 {
			result.InBothLists = true
		}
	}

	results := make([]*FusedResult, 0, len(fused))
	for _, r := range fused {
		r.Score = weights.Vector*r.VectorSimilarity + weights.Lexical*r.LexicalScore
		results = append(results, r)
	}

	sort.Slice(results, func(i, j int) bool {
		return f.compare(results[i], results[j])
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// getOrCreate returns the existing entry or creates a new one.
func (f *MinMaxFusion) getOrCreate(m map[string]*FusedResult, id string) *FusedResult {
	if r, ok := m[id]; ok {
		return r
	}
	r := &FusedResult{ID: id}
	m[id] = r
	return r
}

// compare orders by fused score descending, ties by id ascending. Presence
// in both candidate lists is reported on the result but never reorders it.
func (f *MinMaxFusion) compare(a, b *FusedResult) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.ID < b.ID
}

// distanceBounds returns the min and max distance over the candidate set.
func distanceBounds(vec []store.VectorResult) (min, max float64) {
	if len(vec) == 0 {
		return 0, 0
	}
	min, max = float64(vec[0].Distance), float64(vec[0].Distance)
	for _, r := range vec[1:] {
		d := float64(r.Distance)
		if d < min {
			min = d
		}
		if d > max {
			max = d
		}
	}
	return min, max
}

// lexicalBounds returns the min and max BM25 score over the candidate set.
func lexicalBounds(lex []store.LexicalResult) (min, max float64) {
	if len(lex) == 0 {
		return 0, 0
	}
	min, max = lex[0].Score, lex[0].Score
	for _, r := range lex[1:] {
		if r.Score < min {
			min = r.Score
		}
		if r.Score > max {
			max = r.Score
		}
	}
	return min, max
}

// normalizeScore maps v into [0, 1] over [min, max]. Degenerate candidate
// sets where all scores are equal normalize to 0 here; callers decide what
// full credit means for their side.
func normalizeScore(v, min, max float64) float64 {
	if max == min {
		return 0
	}
	return (v - min) / (max - min)
}
