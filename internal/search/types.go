// Package search provides hybrid retrieval over the vector index partitions
// and the lexical indexes. The two candidate lists are fused with weighted
// min-max score blending into a single deterministic ranking.
package search

import (
	"context"
	"time"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// Weights configures the relative importance of vector vs lexical evidence.
type Weights struct {
	// Vector is the weight for embedding similarity (0-1, default: 0.7).
	Vector float64

	// Lexical is the weight for BM25 keyword match (0-1, default: 0.3).
	Lexical float64
}

// DefaultWeights returns the default fusion weights.
func DefaultWeights() Weights {
	return Weights{
		Vector:  0.7,
		Lexical: 0.3,
	}
}

// Valid reports whether the weights are non-negative and sum to 1.0
// within floating point tolerance.
func (w Weights) Valid() bool {
	if w.Vector < 0 || w.Lexical < 0 {
		return false
	}
	sum := w.Vector + w.Lexical
	return sum > 0.999 && sum < 1.001
}

// QueryOptions configures a single hybrid query.
type QueryOptions struct {
	// K is the number of results to return (default: 10, max: MaxK).
	K int

	// Weights overrides the engine's default fusion weights.
	Weights *Weights

	// VectorOnly skips the lexical lookup; the lexical side contributes zero.
	VectorOnly bool

	// LexicalOnly skips the vector lookup; the vector side contributes zero.
	LexicalOnly bool
}

// QueryResult is a single ranked hit with its per-source evidence.
type QueryResult struct {
	// ID is the record identifier.
	ID string

	// Score is the fused score used for the final ranking.
	Score float64

	// VectorSimilarity is the min-max normalized similarity (0-1),
	// zero when the record was absent from the vector candidates.
	VectorSimilarity float64

	// LexicalScore is the min-max normalized BM25 score (0-1),
	// zero when the record was absent from the lexical candidates.
	LexicalScore float64

	// InBothLists indicates the record surfaced from both sources.
	InBothLists bool

	// Record carries the stored metadata and text for the hit.
	// Nil when the record was deleted between search and enrichment.
	Record *store.EmbeddingRecord
}

// LexicalProvider resolves the lexical index for a model tag.
type LexicalProvider interface {
	LexicalFor(modelTag string) (store.LexicalIndex, error)
}

// EngineConfig configures the query engine.
type EngineConfig struct {
	// DefaultK is the default number of results (default: 10).
	DefaultK int

	// MaxK is the maximum allowed results (default: 100).
	MaxK int

	// Overfetch is the per-source candidate floor. Each source is asked
	// for max(K, Overfetch) candidates before fusion (default: 50).
	Overfetch int

	// DefaultWeights are the default vector/lexical fusion weights.
	DefaultWeights Weights

	// QueryTimeout bounds a single query (default: 5s).
	QueryTimeout time.Duration

	// CacheSize is the record cache capacity used for result
	// enrichment (default: 1024).
	CacheSize int
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() EngineConfig {
	return EngineConfig{
		DefaultK:       10,
		MaxK:           100,
		Overfetch:      50,
		DefaultWeights: DefaultWeights(),
		QueryTimeout:   5 * time.Second,
		CacheSize:      1024,
	}
}

// Querier executes hybrid queries.
type Querier interface {
	Query(ctx context.Context, modelTag string, vector []float32, text string, opts QueryOptions) ([]*QueryResult, error)
}
