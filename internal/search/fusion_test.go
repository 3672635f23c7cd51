package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

func TestFuse_BothEmpty(t *testing.T) {
	// When: both candidate lists are empty
	results := NewMinMaxFusion().Fuse(nil, nil, DefaultWeights(), 10)

	// Then: the result is an empty slice, not nil
	require.NotNil(t, results)
	assert.Empty(t, results)
}

func TestFuse_OverlapOutranksSingleSource(t *testing.T) {
	// Given: doc1 strong on both sides, doc2 lexical-only, doc3 vector-only
	vec := []store.VectorResult{
		{ID: "doc1", Distance: 0.1},
		{ID: "doc3", Distance: 0.2},
		{ID: "doc4", Distance: 0.9},
	}
	lex := []store.LexicalResult{
		{ID: "doc1", Score: 8.0},
		{ID: "doc2", Score: 6.0},
		{ID: "doc5", Score: 1.0},
	}

	// When: fused with default weights
	results := NewMinMaxFusion().Fuse(vec, lex, DefaultWeights(), 10)

	// Then: the record present in both lists ranks first
	require.NotEmpty(t, results)
	assert.Equal(t, "doc1", results[0].ID)
	assert.True(t, results[0].InBothLists)

	// And: its blend is full credit on both sides
	assert.InDelta(t, 1.0, results[0].VectorSimilarity, 1e-9)
	assert.InDelta(t, 1.0, results[0].LexicalScore, 1e-9)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
}

func TestFuse_MissingSideContributesZero(t *testing.T) {
	// Given: a record present only in the vector list
	vec := []store.VectorResult{
		{ID: "only-vec", Distance: 0.1},
		{ID: "shared", Distance: 0.5},
	}
	lex := []store.LexicalResult{
		{ID: "shared", Score: 3.0},
		{ID: "only-lex", Score: 1.0},
	}
	w := Weights{Vector: 0.7, Lexical: 0.3}

	results := NewMinMaxFusion().Fuse(vec, lex, w, 10)
	byID := map[string]*FusedResult{}
	for _, r := range results {
		byID[r.ID] = r
	}

	// Then: the absent side is exactly zero in the blend
	require.Contains(t, byID, "only-vec")
	assert.Equal(t, 0.0, byID["only-vec"].LexicalScore)
	assert.InDelta(t, 0.7*1.0, byID["only-vec"].Score, 1e-9)

	require.Contains(t, byID, "only-lex")
	assert.Equal(t, 0.0, byID["only-lex"].VectorSimilarity)
	assert.InDelta(t, 0.3*0.0, byID["only-lex"].Score, 1e-9)
}

func TestFuse_NormalizationOverCandidateSet(t *testing.T) {
	// Given: three vector candidates with spread distances
	vec := []store.VectorResult{
		{ID: "a", Distance: 0.2},
		{ID: "b", Distance: 0.4},
		{ID: "c", Distance: 0.6},
	}

	results := NewMinMaxFusion().Fuse(vec, nil, Weights{Vector: 1, Lexical: 0}, 10)

	// Then: min distance maps to similarity 1, max to 0, midpoints linearly
	require.Len(t, results, 3)
	assert.Equal(t, "a", results[0].ID)
	assert.InDelta(t, 1.0, results[0].VectorSimilarity, 1e-9)
	assert.InDelta(t, 0.5, results[1].VectorSimilarity, 1e-9)
	assert.InDelta(t, 0.0, results[2].VectorSimilarity, 1e-9)
}

func TestFuse_DegenerateSetsGetFullCredit(t *testing.T) {
	// Given: all candidates share one distance, and one lexical score
	vec := []store.VectorResult{
		{ID: "a", Distance: 0.3},
		{ID: "b", Distance: 0.3},
	}
	lex := []store.LexicalResult{
		{ID: "a", Score: 2.0},
		{ID: "b", Score: 2.0},
	}

	results := NewMinMaxFusion().Fuse(vec, lex, DefaultWeights(), 10)

	// Then: both sides normalize to full credit, symmetrically
	require.Len(t, results, 2)
	for _, r := range results {
		assert.InDelta(t, 1.0, r.VectorSimilarity, 1e-9)
		assert.InDelta(t, 1.0, r.LexicalScore, 1e-9)
		assert.InDelta(t, 1.0, r.Score, 1e-9)
	}

	// And: the tie resolves by ID ascending
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestFuse_TieBreaksByIDNotEvidence(t *testing.T) {
	// Given: three candidates landing on the same fused score, one of them
	// present in both lists
	vec := []store.VectorResult{
		{ID: "a", Distance: 0},
		{ID: "b", Distance: 0.5},
		{ID: "c", Distance: 1},
	}
	lex := []store.LexicalResult{
		{ID: "m", Score: 4},
		{ID: "b", Score: 3},
		{ID: "z", Score: 2},
	}

	results := NewMinMaxFusion().Fuse(vec, lex, Weights{Vector: 0.5, Lexical: 0.5}, 10)

	// Then: a, b, and m all score 0.5 and the tie resolves by id ascending,
	// with dual-list presence carrying no rank weight
	require.True(t, len(results) >= 3)
	assert.InDelta(t, 0.5, results[0].Score, 1e-9)
	assert.InDelta(t, 0.5, results[2].Score, 1e-9)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
	assert.Equal(t, "m", results[2].ID)
	assert.True(t, results[1].InBothLists)
	assert.False(t, results[0].InBothLists)
}

func TestFuse_Deterministic(t *testing.T) {
	// Given: candidate lists with score ties across sources
	vec := []store.VectorResult{
		{ID: "x", Distance: 0.1},
		{ID: "y", Distance: 0.5},
		{ID: "z", Distance: 0.9},
	}
	lex := []store.LexicalResult{
		{ID: "y", Score: 4.0},
		{ID: "w", Score: 2.0},
	}

	// When: the same inputs are fused repeatedly
	first := NewMinMaxFusion().Fuse(vec, lex, DefaultWeights(), 10)
	for i := 0; i < 20; i++ {
		again := NewMinMaxFusion().Fuse(vec, lex, DefaultWeights(), 10)
		require.Equal(t, len(first), len(again))
		for j := range first {
			assert.Equal(t, first[j].ID, again[j].ID)
			assert.Equal(t, first[j].Score, again[j].Score)
		}
	}
}

func TestFuse_TruncatesToK(t *testing.T) {
	// Given: more candidates than requested
	vec := []store.VectorResult{
		{ID: "a", Distance: 0.1},
		{ID: "b", Distance: 0.2},
		{ID: "c", Distance: 0.3},
		{ID: "d", Distance: 0.4},
	}

	results := NewMinMaxFusion().Fuse(vec, nil, Weights{Vector: 1, Lexical: 0}, 2)

	// Then: only the top k survive, best first
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestFuse_CustomWeights(t *testing.T) {
	// Given: a vector-favored record and a lexical-favored record
	vec := []store.VectorResult{
		{ID: "vec-doc", Distance: 0.1},
		{ID: "other", Distance: 0.9},
	}
	lex := []store.LexicalResult{
		{ID: "lex-doc", Score: 9.0},
		{ID: "other", Score: 1.0},
	}

	// When: weights flip to favor the lexical side
	results := NewMinMaxFusion().Fuse(vec, lex, Weights{Vector: 0.2, Lexical: 0.8}, 10)

	// Then: the lexical-only record outranks the vector-only record
	require.NotEmpty(t, results)
	assert.Equal(t, "lex-doc", results[0].ID)
}

func TestWeights_Valid(t *testing.T) {
	assert.True(t, Weights{Vector: 0.7, Lexical: 0.3}.Valid())
	assert.True(t, Weights{Vector: 1, Lexical: 0}.Valid())
	assert.False(t, Weights{Vector: 0.7, Lexical: 0.7}.Valid())
	assert.False(t, Weights{Vector: -0.2, Lexical: 1.2}.Valid())
}
