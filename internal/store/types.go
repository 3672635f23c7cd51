// Package store provides the canonical embedding record store (SQLite),
// the vector index backends (HNSW, IVF), and the lexical index backends
// (Bleve, SQLite FTS5). This is the persistence layer for all indexed data.
package store

import (
	"context"
	"fmt"
	"time"
)

// Metric is the distance metric used by a vector index instance.
// It is fixed per index; mixing metrics within one index is rejected.
type Metric string

const (
	MetricCosine    Metric = "cos"
	MetricEuclidean Metric = "l2"
)

// Valid reports whether the metric is one of the supported values.
func (m Metric) Valid() bool {
	return m == MetricCosine || m == MetricEuclidean
}

// EmbeddingRecord is one live record per distinct content unit.
// Exactly one live record exists per (ID, ModelTag) pair at any time.
type EmbeddingRecord struct {
	ID          string                   // Stable external identifier, immutable after creation
	ModelTag    string                   // Embedding model that produced Vector
	ContentHash string                   // Hex SHA-256 of the normalized content
	Vector      []float32                // Fixed dimensionality per ModelTag
	Text        string                   // Normalized source text, retained for lexical indexing
	Metadata    map[string]MetadataValue // Opaque pass-through mapping
	Version     int64                    // Monotonic, incremented on every successful update
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Clone returns a deep copy so callers can mutate results safely.
func (r *EmbeddingRecord) Clone() *EmbeddingRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Vector = append([]float32(nil), r.Vector...)
	if r.Metadata != nil {
		cp.Metadata = make(map[string]MetadataValue, len(r.Metadata))
		for k, v := range r.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}

// RecordKey identifies a live record.
type RecordKey struct {
	ID       string
	ModelTag string
}

func (k RecordKey) String() string {
	return k.ModelTag + "/" + k.ID
}

// RecordStore persists canonical embedding records.
// The store exclusively owns the canonical record; the indexes hold derived
// references back to record IDs, never copies of content that could drift.
type RecordStore interface {
	// Get returns the live record for (id, modelTag), or a NotFound error.
	Get(ctx context.Context, id, modelTag string) (*EmbeddingRecord, error)

	// Put inserts or replaces the record and returns the previous version
	// (0 if none existed). Put is atomic with respect to Version: concurrent
	// puts of the same key resolve last-writer-wins by submission order.
	Put(ctx context.Context, record *EmbeddingRecord) (prevVersion int64, err error)

	// Delete removes the live record. Returns a NotFound error if absent.
	Delete(ctx context.Context, id, modelTag string) error

	// AllIDs returns the IDs of all live records for a model tag,
	// for consistency checks against the indexes.
	AllIDs(ctx context.Context, modelTag string) ([]string, error)

	// ForEach streams all live records for a model tag, for index rebuilds.
	// Iteration stops on the first error returned by fn.
	ForEach(ctx context.Context, modelTag string, fn func(*EmbeddingRecord) error) error

	// Count returns the number of live records for a model tag.
	Count(ctx context.Context, modelTag string) (int, error)

	// MaxVersion returns the highest version among live records for a model
	// tag (0 if empty). Used to stamp index snapshots for staleness checks.
	MaxVersion(ctx context.Context, modelTag string) (int64, error)

	// ModelTags returns all model tags with at least one live record.
	ModelTags(ctx context.Context) ([]string, error)

	// Lifecycle
	Close() error
}

// VectorResult is a single vector search result, ascending by distance.
type VectorResult struct {
	ID       string
	Distance float32 // Lower is more similar
}

// VectorIndex is an approximate nearest-neighbor structure over all live
// vectors of one model tag. Implementations: HNSWIndex, IVFIndex.
type VectorIndex interface {
	// Insert adds or replaces the vector for id.
	Insert(id string, vector []float32) error

	// Remove deletes id from the index. Removing a nonexistent id is a
	// no-op, supporting idempotent deletes from the upsert pipeline.
	Remove(id string)

	// Search returns up to k results ordered ascending by distance.
	Search(ctx context.Context, query []float32, k int) ([]VectorResult, error)

	// AllIDs returns all live IDs, for consistency checks.
	AllIDs() []string

	// Contains reports whether id is live in the index.
	Contains(id string) bool

	// Count returns the number of live vectors.
	Count() int

	// Metric returns the distance metric this instance was built with.
	Metric() Metric

	// Dimensions returns the configured vector dimensionality.
	Dimensions() int
}

// LexicalResult is a single lexical search result, descending by score.
// Ties in score are broken by ID ascending for determinism.
type LexicalResult struct {
	ID    string
	Score float64
}

// LexicalStats provides statistics about a lexical index.
type LexicalStats struct {
	DocumentCount int
}

// LexicalIndex maintains a tokenized, BM25-rankable text index.
// Tokenization is identical between index time and query time.
type LexicalIndex interface {
	// Insert adds or replaces the document text for id.
	Insert(ctx context.Context, id, text string) error

	// Remove deletes ids from the index. Absent ids are ignored.
	Remove(ctx context.Context, ids []string) error

	// Search returns up to k results descending by score, ties by ID asc.
	Search(ctx context.Context, query string, k int) ([]LexicalResult, error)

	// AllIDs returns all document IDs, for consistency checks.
	AllIDs() ([]string, error)

	// Stats returns index statistics.
	Stats() LexicalStats

	// Lifecycle
	Close() error
}

// VectorIndexConfig configures a vector index instance.
type VectorIndexConfig struct {
	// Dimensions is the vector dimensionality for the model tag.
	Dimensions int

	// Metric is the distance metric: cos (default) or l2.
	Metric Metric

	// M is HNSW max connections per layer (default: 16).
	M int

	// EfSearch is HNSW query-time search width (default: 20).
	EfSearch int

	// Partitions is the IVF coarse cluster count (default: 64).
	Partitions int

	// Probes is the IVF query-time cluster probe count (default: 8).
	Probes int
}

// DefaultVectorIndexConfig returns sensible defaults for the given dimensionality.
func DefaultVectorIndexConfig(dimensions int) VectorIndexConfig {
	return VectorIndexConfig{
		Dimensions: dimensions,
		Metric:     MetricCosine,
		M:          16,
		EfSearch:   20,
		Partitions: 64,
		Probes:     8,
	}
}

// LexicalConfig configures a lexical index.
type LexicalConfig struct {
	// StopWords is a list of words filtered out during tokenization.
	StopWords []string

	// MinTokenLength is the minimum token length to index (default: 2).
	MinTokenLength int
}

// DefaultLexicalConfig returns default lexical index configuration.
func DefaultLexicalConfig() LexicalConfig {
	return LexicalConfig{
		StopWords:      DefaultStopWords,
		MinTokenLength: 2,
	}
}

// DefaultStopWords contains common English words carrying no ranking signal.
var DefaultStopWords = []string{
	"a", "an", "and", "are", "as", "at", "be", "by", "for", "from",
	"has", "in", "is", "it", "of", "on", "or", "that", "the", "to",
	"was", "were", "will", "with",
}

// ErrDimensionMismatch indicates vector dimension mismatch.
// Violations are rejected, never silently truncated or padded.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
