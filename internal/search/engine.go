package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// Engine executes hybrid queries against one vector partition and one
// lexical index per model tag, fusing the candidate lists into a single
// ranking. Reads never block writers: the vector manager hands out immutable
// search handles and the record store serves concurrent readers.
type Engine struct {
	vectors *index.Manager
	lexical LexicalProvider
	records store.RecordStore
	config  EngineConfig
	fusion  *MinMaxFusion
	cache   *lru.Cache[store.RecordKey, *store.EmbeddingRecord]
}

var _ Querier = (*Engine)(nil)

// NewEngine creates a hybrid query engine. All dependencies are required.
func NewEngine(
	vectors *index.Manager,
	lexical LexicalProvider,
	records store.RecordStore,
	config EngineConfig,
) (*Engine, error) {
	if vectors == nil {
		return nil, cerrors.Validation("vector index manager is required")
	}
	if lexical == nil {
		return nil, cerrors.Validation("lexical provider is required")
	}
	if records == nil {
		return nil, cerrors.Validation("record store is required")
	}
	if config.DefaultK <= 0 {
		config.DefaultK = DefaultConfig().DefaultK
	}
	if config.MaxK <= 0 {
		config.MaxK = DefaultConfig().MaxK
	}
	if config.Overfetch <= 0 {
		config.Overfetch = DefaultConfig().Overfetch
	}
	if !config.DefaultWeights.Valid() {
		config.DefaultWeights = DefaultWeights()
	}
	if config.QueryTimeout <= 0 {
		config.QueryTimeout = DefaultConfig().QueryTimeout
	}
	if config.CacheSize <= 0 {
		config.CacheSize = DefaultConfig().CacheSize
	}

	cache, err := lru.New[store.RecordKey, *store.EmbeddingRecord](config.CacheSize)
	if err != nil {
		return nil, cerrors.Internal("create record cache", err)
	}

	return &Engine{
		vectors: vectors,
		lexical: lexical,
		records: records,
		config:  config,
		fusion:  NewMinMaxFusion(),
		cache:   cache,
	}, nil
}

// Query runs the hybrid retrieval pipeline: overfetch candidates from both
// sources in parallel, fuse, truncate to k, enrich with stored records.
//
// An entirely empty query (no vector and no text) is a validation error.
// Both sources returning zero candidates yields an empty result, not an
// error. When the deadline passes mid-query the error is a Timeout.
func (e *Engine) Query(ctx context.Context, modelTag string, vector []float32, text string, opts QueryOptions) ([]*QueryResult, error) {
	start := time.Now()

	text = strings.TrimSpace(text)
	if opts.LexicalOnly {
		vector = nil
	}
	if opts.VectorOnly {
		text = ""
	}
	if len(vector) == 0 && text == "" {
		return nil, cerrors.New(cerrors.ErrCodeEmptyQuery,
			"query needs a vector, text, or both", nil)
	}
	if modelTag == "" {
		return nil, cerrors.Validation("model tag is required")
	}

	opts = e.applyDefaults(opts)
	overfetch := opts.K
	if e.config.Overfetch > overfetch {
		overfetch = e.config.Overfetch
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.QueryTimeout)
	defer cancel()

	vecResults, lexResults, err := e.parallelSearch(ctx, modelTag, vector, text, overfetch)
	if err != nil {
		return nil, err
	}

	fused := e.fusion.Fuse(vecResults, lexResults, *opts.Weights, opts.K)

	results, err := e.enrichResults(ctx, modelTag, fused)
	if err != nil {
		return nil, err
	}

	slog.Debug("hybrid_query_complete",
		slog.String("model_tag", modelTag),
		slog.Int("vector_candidates", len(vecResults)),
		slog.Int("lexical_candidates", len(lexResults)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))

	return results, nil
}

// applyDefaults fills in default values for query options.
func (e *Engine) applyDefaults(opts QueryOptions) QueryOptions {
	if opts.K <= 0 {
		opts.K = e.config.DefaultK
	}
	if opts.K > e.config.MaxK {
		opts.K = e.config.MaxK
	}
	if opts.Weights == nil || !opts.Weights.Valid() {
		w := e.config.DefaultWeights
		opts.Weights = &w
	}
	return opts
}

// parallelSearch runs the vector and lexical lookups concurrently. A skipped
// source returns nil candidates; a failed source fails the whole query since
// silently dropping one side would change the ranking contract.
func (e *Engine) parallelSearch(ctx context.Context, modelTag string, vector []float32, text string, k int) (
	vecResults []store.VectorResult,
	lexResults []store.LexicalResult,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)

	if len(vector) > 0 {
		g.Go(func() error {
			var searchErr error
			vecResults, searchErr = e.vectors.Search(gctx, modelTag, vector, k)
			return searchErr
		})
	}

	if text != "" {
		g.Go(func() error {
			lexIdx, provErr := e.lexical.LexicalFor(modelTag)
			if provErr != nil {
				return provErr
			}
			var searchErr error
			lexResults, searchErr = lexIdx.Search(gctx, text, k)
			return searchErr
		})
	}

	if waitErr := g.Wait(); waitErr != nil {
		if errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, nil, cerrors.Timeout("hybrid query", waitErr)
		}
		return nil, nil, waitErr
	}
	return vecResults, lexResults, nil
}

// enrichResults attaches stored records to the fused ranking. Records are
// served from an LRU cache keyed by (id, model tag); misses fall through to
// the record store. A record deleted after it surfaced from an index is
// dropped from the results rather than failing the query.
func (e *Engine) enrichResults(ctx context.Context, modelTag string, fused []*FusedResult) ([]*QueryResult, error) {
	results := make([]*QueryResult, 0, len(fused))
	for _, f := range fused {
		rec, err := e.lookupRecord(ctx, f.ID, modelTag)
		if err != nil {
			if cerrors.HasCode(err, cerrors.ErrCodeNotFound) {
				continue
			}
			return nil, err
		}
		results = append(results, &QueryResult{
			ID:               f.ID,
			Score:            f.Score,
			VectorSimilarity: f.VectorSimilarity,
			LexicalScore:     f.LexicalScore,
			InBothLists:      f.InBothLists,
			Record:           rec,
		})
	}
	return results, nil
}

// lookupRecord returns a copy of the record so callers cannot mutate cached
// state.
func (e *Engine) lookupRecord(ctx context.Context, id, modelTag string) (*store.EmbeddingRecord, error) {
	key := store.RecordKey{ID: id, ModelTag: modelTag}
	if rec, ok := e.cache.Get(key); ok {
		return rec.Clone(), nil
	}

	rec, err := e.records.Get(ctx, id, modelTag)
	if err != nil {
		return nil, err
	}
	e.cache.Add(key, rec.Clone())
	return rec, nil
}

// InvalidateRecord evicts a record from the enrichment cache. The upsert
// pipeline calls this on every write and delete so queries never serve a
// stale record body.
func (e *Engine) InvalidateRecord(id, modelTag string) {
	e.cache.Remove(store.RecordKey{ID: id, ModelTag: modelTag})
}
