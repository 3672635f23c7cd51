// Package hub is the embedding storage and hybrid retrieval facade. It wires
// the record store, the vector index partitions, and the lexical indexes
// behind one handle with upsert, delete, query, and rebuild operations.
package hub

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/config"
	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/pipeline"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/search"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// Hub is a single-process embedding storage and retrieval engine over one
// data directory. One Hub owns the directory exclusively; a second process
// opening the same directory fails at Open.
type Hub struct {
	cfg     *config.Config
	lock    *dirLock
	records store.RecordStore
	vectors *index.Manager
	engine  *search.Engine
	writer  *pipeline.Pipeline
	checker *pipeline.ConsistencyChecker

	mu      sync.Mutex
	lexical map[string]store.LexicalIndex
	closed  bool
}

// Open opens (creating if needed) the hub over cfg.DataDir. Model tags with
// stored records get their vector partitions restored from snapshot
// artifacts; a missing or stale artifact triggers an asynchronous rebuild
// and queries against that tag return IndexUnavailable until it finishes.
func Open(cfg *config.Config) (*Hub, error) {
	if cfg == nil {
		return nil, cerrors.Validation("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, cerrors.New(cerrors.ErrCodeConfigInvalid, err.Error(), err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, cerrors.Internal("create data directory", err)
	}

	lock := newDirLock(cfg.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, cerrors.Internal("lock data directory", err)
	}
	if !acquired {
		return nil, cerrors.Validation("data directory is in use by another process")
	}

	h := &Hub{
		cfg:     cfg,
		lock:    lock,
		lexical: make(map[string]store.LexicalIndex),
	}

	records, err := store.NewSQLiteRecordStore(filepath.Join(cfg.DataDir, "records.db"))
	if err != nil {
		_ = lock.Unlock()
		return nil, err
	}
	h.records = records

	rebuildInterval, _ := time.ParseDuration(cfg.Index.RebuildInterval)
	vectors, err := index.NewManager(records, index.ManagerConfig{
		Backend:         cfg.Index.VectorBackend,
		ConfigFor:       h.vectorConfigFor,
		OrphanRatio:     cfg.Index.OrphanRatio,
		RebuildInterval: rebuildInterval,
	})
	if err != nil {
		_ = records.Close()
		_ = lock.Unlock()
		return nil, err
	}
	h.vectors = vectors

	queryTimeout, _ := time.ParseDuration(cfg.Search.QueryTimeout)
	engine, err := search.NewEngine(vectors, h, records, search.EngineConfig{
		DefaultK:  cfg.Search.DefaultK,
		MaxK:      cfg.Search.MaxK,
		Overfetch: cfg.Search.Overfetch,
		DefaultWeights: search.Weights{
			Vector:  cfg.Search.VectorWeight,
			Lexical: cfg.Search.LexicalWeight,
		},
		QueryTimeout: queryTimeout,
		CacheSize:    cfg.Search.CacheSize,
	})
	if err != nil {
		_ = records.Close()
		_ = lock.Unlock()
		return nil, err
	}
	h.engine = engine

	writer, err := pipeline.New(records, vectors, h,
		pipeline.WithCacheInvalidator(engine.InvalidateRecord))
	if err != nil {
		_ = records.Close()
		_ = lock.Unlock()
		return nil, err
	}
	h.writer = writer
	h.checker = pipeline.NewConsistencyChecker(records, vectors, h)

	if err := h.restorePartitions(context.Background()); err != nil {
		_ = records.Close()
		_ = lock.Unlock()
		return nil, err
	}
	return h, nil
}

// restorePartitions loads the ANN artifact for every model tag with stored
// records. Stale or missing artifacts leave the partition unavailable and
// kick off an asynchronous rebuild.
func (h *Hub) restorePartitions(ctx context.Context) error {
	tags, err := h.records.ModelTags(ctx)
	if err != nil {
		return err
	}
	for _, tag := range tags {
		stale, err := h.vectors.LoadSnapshot(ctx, tag, index.SnapshotPath(h.cfg.DataDir, tag))
		if err != nil {
			return err
		}
		if !stale {
			continue
		}
		slog.Info("index_restore_rebuilding", slog.String("model_tag", tag))
		if _, err := h.vectors.Rebuild(ctx, tag); err != nil {
			return err
		}
	}
	return nil
}

// vectorConfigFor derives a partition's index configuration from the
// configured model tag. Dimensionality and metric are part of a tag's
// identity, so unknown tags are rejected rather than guessed.
func (h *Hub) vectorConfigFor(modelTag string) (store.VectorIndexConfig, error) {
	m, ok := h.cfg.Model(modelTag)
	if !ok {
		return store.VectorIndexConfig{}, cerrors.Validation(
			"unknown model tag " + modelTag + "; declare it under models in the configuration")
	}
	metric := store.MetricCosine
	if strings.EqualFold(m.Metric, string(store.MetricEuclidean)) {
		metric = store.MetricEuclidean
	}
	return store.VectorIndexConfig{
		Dimensions: m.Dimensions,
		Metric:     metric,
		M:          h.cfg.Index.M,
		EfSearch:   h.cfg.Index.EfSearch,
		Partitions: h.cfg.Index.Partitions,
		Probes:     h.cfg.Index.Probes,
	}, nil
}

// LexicalFor returns (opening if needed) the lexical index for a model tag.
func (h *Hub) LexicalFor(modelTag string) (store.LexicalIndex, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, cerrors.New(cerrors.ErrCodeStoreClosed, "hub is closed", nil)
	}
	if idx, ok := h.lexical[modelTag]; ok {
		return idx, nil
	}

	basePath := store.LexicalIndexPath(h.cfg.DataDir, modelTag, h.cfg.Search.LexicalBackend)
	idx, err := store.NewLexicalIndex(h.cfg.Search.LexicalBackend, basePath, store.DefaultLexicalConfig())
	if err != nil {
		return nil, err
	}
	h.lexical[modelTag] = idx
	return idx, nil
}

// Upsert writes one record through the change-detecting pipeline. The
// incoming vector dimensionality must match the model tag's configuration.
func (h *Hub) Upsert(ctx context.Context, req pipeline.UpsertRequest) (*pipeline.UpsertResult, error) {
	if len(req.Vector) > 0 {
		cfg, err := h.vectorConfigFor(req.ModelTag)
		if err != nil {
			return nil, err
		}
		if len(req.Vector) != cfg.Dimensions {
			return nil, cerrors.DimensionMismatch(cfg.Dimensions, len(req.Vector))
		}
	}
	return h.writer.Upsert(ctx, req)
}

// Delete removes a record and its index entries. Unknown keys return NotFound.
func (h *Hub) Delete(ctx context.Context, id, modelTag string) error {
	return h.writer.Delete(ctx, id, modelTag)
}

// Query runs a hybrid retrieval over one model tag.
func (h *Hub) Query(ctx context.Context, modelTag string, vector []float32, text string, opts search.QueryOptions) ([]*search.QueryResult, error) {
	if len(vector) > 0 {
		cfg, err := h.vectorConfigFor(modelTag)
		if err != nil {
			return nil, err
		}
		if len(vector) != cfg.Dimensions {
			return nil, cerrors.DimensionMismatch(cfg.Dimensions, len(vector))
		}
	}
	return h.engine.Query(ctx, modelTag, vector, text, opts)
}

// RebuildIndex starts an asynchronous rebuild of one partition. Returns
// RebuildAlreadyInProgress when one is running; the running rebuild is
// never abandoned.
func (h *Hub) RebuildIndex(ctx context.Context, modelTag string) (index.RebuildStatus, error) {
	return h.vectors.Rebuild(ctx, modelTag)
}

// RebuildIndexAndWait rebuilds one partition synchronously.
func (h *Hub) RebuildIndexAndWait(ctx context.Context, modelTag string) error {
	return h.vectors.RebuildAndWait(ctx, modelTag)
}

// CheckConsistency scans one model tag's indexes against the record store.
func (h *Hub) CheckConsistency(ctx context.Context, modelTag string) (*pipeline.CheckResult, error) {
	return h.checker.Check(ctx, modelTag)
}

// RepairConsistency fixes previously detected inconsistencies.
func (h *Hub) RepairConsistency(ctx context.Context, issues []pipeline.Inconsistency) error {
	return h.checker.Repair(ctx, issues)
}

// TagStats describes one model tag's stores.
type TagStats struct {
	ModelTag     string
	Records      int
	IndexReady   bool
	IndexCount   int
	IndexOrphans int
	LexicalDocs  int
}

// Stats returns per-model-tag statistics.
func (h *Hub) Stats(ctx context.Context) ([]TagStats, error) {
	tags, err := h.records.ModelTags(ctx)
	if err != nil {
		return nil, err
	}

	stats := make([]TagStats, 0, len(tags))
	for _, tag := range tags {
		count, err := h.records.Count(ctx, tag)
		if err != nil {
			return nil, err
		}
		ps := h.vectors.PartitionStats(tag)
		ts := TagStats{
			ModelTag:     tag,
			Records:      count,
			IndexReady:   ps.Ready,
			IndexCount:   ps.Count,
			IndexOrphans: ps.Orphans,
		}
		if lexIdx, err := h.LexicalFor(tag); err == nil {
			ts.LexicalDocs = lexIdx.Stats().DocumentCount
		}
		stats = append(stats, ts)
	}
	return stats, nil
}

// Close persists ANN artifacts for every ready partition, closes the
// stores, and releases the directory lock.
func (h *Hub) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	lexical := h.lexical
	h.lexical = nil
	h.mu.Unlock()

	ctx := context.Background()
	var firstErr error
	for _, tag := range h.vectors.ModelTags() {
		if !h.vectors.Ready(tag) {
			continue
		}
		if err := h.vectors.SaveSnapshot(ctx, tag, index.SnapshotPath(h.cfg.DataDir, tag)); err != nil {
			slog.Warn("index_snapshot_save_failed",
				slog.String("model_tag", tag),
				slog.String("error", err.Error()))
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	for tag, idx := range lexical {
		if err := idx.Close(); err != nil && firstErr == nil {
			firstErr = err
			slog.Warn("lexical_close_failed", slog.String("model_tag", tag))
		}
	}
	if err := h.records.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := h.lock.Unlock(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
