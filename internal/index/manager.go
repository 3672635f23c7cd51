// Package index maintains the approximate nearest-neighbor structures, one
// partition per model tag. Rebuilds run against a snapshot of live records
// while the previous structure keeps serving searches; the swap to the new
// structure is a single atomic pointer replacement.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// RebuildStatus is the outcome of a rebuild request.
type RebuildStatus string

const (
	RebuildStarted           RebuildStatus = "started"
	RebuildAlreadyInProgress RebuildStatus = "already_in_progress"
)

// DefaultOrphanRatio is the orphaned-entry share past which incremental
// churn is considered to have degraded recall enough to rebuild.
const DefaultOrphanRatio = 0.3

// ManagerConfig configures the vector index manager.
type ManagerConfig struct {
	// Backend selects the ANN structure: "hnsw" (default) or "ivf".
	Backend string

	// ConfigFor returns the index configuration for a model tag.
	// Dimensionality is part of a model tag's identity, so this is required.
	ConfigFor func(modelTag string) (store.VectorIndexConfig, error)

	// OrphanRatio overrides DefaultOrphanRatio when > 0.
	OrphanRatio float64

	// RebuildInterval rate-limits automatic rebuild triggers
	// (default: one per minute).
	RebuildInterval time.Duration
}

// orphanCounter is implemented by backends that track lazily deleted entries.
type orphanCounter interface {
	Orphans() int
}

// mutation records a write applied while a rebuild is in flight, replayed
// onto the new structure before the swap so no update is lost.
type mutation struct {
	id     string
	vector []float32 // nil means remove
}

// partition is the per-model-tag index state. current is nil until the
// partition has been built (fresh tag) or loaded (restart), and searches
// against a nil partition fail with IndexUnavailable.
type partition struct {
	modelTag string
	current  atomic.Pointer[handle]

	mu         sync.Mutex // serializes writes and rebuild bookkeeping
	rebuilding bool
	rebuildErr error // outcome of the most recent rebuild
	pending    []mutation
	inserts    int64
	removes    int64
}

// handle wraps the interface value so it fits atomic.Pointer.
type handle struct {
	idx store.VectorIndex
}

// Manager owns all vector index partitions. There is no process-wide
// singleton; the upsert pipeline and the query engine share one explicit
// Manager handle.
type Manager struct {
	records store.RecordStore
	config  ManagerConfig
	limiter *rate.Limiter

	mu         sync.RWMutex
	partitions map[string]*partition
}

// NewManager creates a vector index manager over the given record store.
func NewManager(records store.RecordStore, cfg ManagerConfig) (*Manager, error) {
	if records == nil {
		return nil, cerrors.Validation("record store is required")
	}
	if cfg.ConfigFor == nil {
		return nil, cerrors.Validation("per-model index configuration is required")
	}
	if cfg.OrphanRatio <= 0 {
		cfg.OrphanRatio = DefaultOrphanRatio
	}
	if cfg.RebuildInterval <= 0 {
		cfg.RebuildInterval = time.Minute
	}

	return &Manager{
		records:    records,
		config:     cfg,
		limiter:    rate.NewLimiter(rate.Every(cfg.RebuildInterval), 1),
		partitions: make(map[string]*partition),
	}, nil
}

// partitionFor returns (creating if needed) the partition for a model tag.
func (m *Manager) partitionFor(modelTag string) *partition {
	m.mu.RLock()
	p, ok := m.partitions[modelTag]
	m.mu.RUnlock()
	if ok {
		return p
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok = m.partitions[modelTag]; ok {
		return p
	}
	p = &partition{modelTag: modelTag}
	m.partitions[modelTag] = p
	return p
}

// ModelTags returns the model tags with a known partition.
func (m *Manager) ModelTags() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tags := make([]string, 0, len(m.partitions))
	for tag := range m.partitions {
		tags = append(tags, tag)
	}
	return tags
}

// newBackend constructs an empty index for a model tag.
func (m *Manager) newBackend(modelTag string) (store.VectorIndex, error) {
	cfg, err := m.config.ConfigFor(modelTag)
	if err != nil {
		return nil, err
	}
	return store.NewVectorIndex(m.config.Backend, cfg)
}

// EnsureReady makes the partition servable, creating an empty structure for
// a previously unseen model tag. Existing partitions are untouched.
func (m *Manager) EnsureReady(modelTag string) error {
	p := m.partitionFor(modelTag)
	if p.current.Load() != nil {
		return nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current.Load() != nil {
		return nil
	}
	// A rebuild already owns this partition. Installing an empty structure
	// here would make it servable before the swap and queries would see a
	// near-empty index. Writes land in the pending log instead, and searches
	// keep failing with IndexUnavailable until the rebuild swaps in.
	if p.rebuilding {
		return nil
	}

	idx, err := m.newBackend(modelTag)
	if err != nil {
		return err
	}
	p.current.Store(&handle{idx: idx})
	return nil
}

// Ready reports whether the partition can serve searches.
func (m *Manager) Ready(modelTag string) bool {
	return m.partitionFor(modelTag).current.Load() != nil
}

// Insert adds or replaces a vector. While a rebuild is in flight the write
// also lands in the pending log so the new structure replays it pre-swap.
func (m *Manager) Insert(modelTag, id string, vector []float32) error {
	p := m.partitionFor(modelTag)

	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.current.Load()
	if h == nil {
		// The partition is being built for the first time. The write joins
		// the pending log and is replayed onto the new structure pre-swap.
		if p.rebuilding {
			vec := append([]float32(nil), vector...)
			p.pending = append(p.pending, mutation{id: id, vector: vec})
			return nil
		}
		return cerrors.IndexUnavailable(modelTag)
	}
	if err := h.idx.Insert(id, vector); err != nil {
		return err
	}
	p.inserts++
	if p.rebuilding {
		vec := append([]float32(nil), vector...)
		p.pending = append(p.pending, mutation{id: id, vector: vec})
	}
	return nil
}

// Remove deletes a vector. Removing a nonexistent id is a no-op.
func (m *Manager) Remove(modelTag, id string) {
	p := m.partitionFor(modelTag)

	p.mu.Lock()
	defer p.mu.Unlock()

	h := p.current.Load()
	if h == nil {
		if p.rebuilding {
			p.pending = append(p.pending, mutation{id: id})
		}
		return
	}
	h.idx.Remove(id)
	p.removes++
	if p.rebuilding {
		p.pending = append(p.pending, mutation{id: id})
	}
}

// Contains reports whether id is live in the partition.
func (m *Manager) Contains(modelTag, id string) bool {
	h := m.partitionFor(modelTag).current.Load()
	if h == nil {
		return false
	}
	return h.idx.Contains(id)
}

// Search queries the current structure. The loaded handle stays valid for
// the whole call even if a rebuild swaps the partition mid-search: swapped
// out structures are never mutated afterwards, only dropped once unreferenced.
func (m *Manager) Search(ctx context.Context, modelTag string, query []float32, k int) ([]store.VectorResult, error) {
	h := m.partitionFor(modelTag).current.Load()
	if h == nil {
		return nil, cerrors.IndexUnavailable(modelTag)
	}
	return h.idx.Search(ctx, query, k)
}

// AllIDs returns all live ids in the partition, for consistency checks.
func (m *Manager) AllIDs(modelTag string) []string {
	h := m.partitionFor(modelTag).current.Load()
	if h == nil {
		return nil
	}
	return h.idx.AllIDs()
}

// Count returns the number of live vectors in the partition.
func (m *Manager) Count(modelTag string) int {
	h := m.partitionFor(modelTag).current.Load()
	if h == nil {
		return 0
	}
	return h.idx.Count()
}

// Stats describes one partition's health.
type Stats struct {
	ModelTag string
	Ready    bool
	Count    int
	Orphans  int
	Inserts  int64
	Removes  int64
}

// PartitionStats returns health counters for a model tag.
func (m *Manager) PartitionStats(modelTag string) Stats {
	p := m.partitionFor(modelTag)
	s := Stats{ModelTag: modelTag}

	h := p.current.Load()
	if h == nil {
		return s
	}
	s.Ready = true
	s.Count = h.idx.Count()
	if oc, ok := h.idx.(orphanCounter); ok {
		s.Orphans = oc.Orphans()
	}

	p.mu.Lock()
	s.Inserts = p.inserts
	s.Removes = p.removes
	p.mu.Unlock()

	return s
}

// MaybeRebuild triggers an automatic rebuild when the orphan share exceeds
// the configured ratio, rate-limited so churny workloads do not rebuild in
// a loop. Returns true if a rebuild was started.
func (m *Manager) MaybeRebuild(ctx context.Context, modelTag string) bool {
	s := m.PartitionStats(modelTag)
	if !s.Ready || s.Count == 0 {
		return false
	}
	total := s.Count + s.Orphans
	if float64(s.Orphans)/float64(total) < m.config.OrphanRatio {
		return false
	}
	if !m.limiter.Allow() {
		return false
	}

	status, err := m.Rebuild(ctx, modelTag)
	if err != nil {
		slog.Warn("automatic rebuild failed to start",
			slog.String("model_tag", modelTag),
			slog.String("error", err.Error()))
		return false
	}
	return status == RebuildStarted
}

// Rebuild starts an asynchronous full rebuild of one partition from the
// canonical record set. Returns RebuildAlreadyInProgress if one is running.
func (m *Manager) Rebuild(ctx context.Context, modelTag string) (RebuildStatus, error) {
	p := m.partitionFor(modelTag)

	p.mu.Lock()
	if p.rebuilding {
		p.mu.Unlock()
		return RebuildAlreadyInProgress, nil
	}
	p.rebuilding = true
	p.pending = nil
	p.mu.Unlock()

	jobID := uuid.NewString()
	slog.Info("index_rebuild_started",
		slog.String("model_tag", modelTag),
		slog.String("job_id", jobID))

	go func() {
		if err := m.rebuild(context.WithoutCancel(ctx), p, jobID); err != nil {
			slog.Error("index_rebuild_failed",
				slog.String("model_tag", modelTag),
				slog.String("job_id", jobID),
				slog.String("error", err.Error()))
		}
	}()

	return RebuildStarted, nil
}

// RebuildAndWait rebuilds one partition synchronously. Used at startup when
// index artifacts are missing or stale, and by tests.
func (m *Manager) RebuildAndWait(ctx context.Context, modelTag string) error {
	status, err := m.Rebuild(ctx, modelTag)
	if err != nil {
		return err
	}
	if status == RebuildAlreadyInProgress {
		return cerrors.New(cerrors.ErrCodeRebuildFailed,
			fmt.Sprintf("rebuild already in progress for %q", modelTag), nil)
	}

	// Poll for the worker goroutine to finish. Rebuilds flip the flag off
	// under p.mu on every exit path.
	p := m.partitionFor(modelTag)
	for {
		p.mu.Lock()
		done := !p.rebuilding
		rebuildErr := p.rebuildErr
		p.mu.Unlock()
		if done {
			return rebuildErr
		}
		select {
		case <-ctx.Done():
			return cerrors.Timeout("waiting for rebuild", ctx.Err())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

// rebuild builds the replacement structure from a record snapshot, replays
// writes that raced the build, and swaps it in.
func (m *Manager) rebuild(ctx context.Context, p *partition, jobID string) (err error) {
	defer func() {
		p.mu.Lock()
		p.rebuilding = false
		p.rebuildErr = err
		p.pending = nil
		p.mu.Unlock()
	}()

	start := time.Now()
	fresh, err := m.newBackend(p.modelTag)
	if err != nil {
		return err
	}

	var built int
	err = m.records.ForEach(ctx, p.modelTag, func(rec *store.EmbeddingRecord) error {
		if err := fresh.Insert(rec.ID, rec.Vector); err != nil {
			return fmt.Errorf("insert %s: %w", rec.ID, err)
		}
		built++
		return nil
	})
	if err != nil {
		return cerrors.Wrap(cerrors.ErrCodeRebuildFailed, err)
	}

	// Drain writes that arrived during the build, then swap under the same
	// lock so nothing slips between replay and swap.
	p.mu.Lock()
	for _, mut := range p.pending {
		if mut.vector == nil {
			fresh.Remove(mut.id)
			continue
		}
		if err := fresh.Insert(mut.id, mut.vector); err != nil {
			p.mu.Unlock()
			return cerrors.Wrap(cerrors.ErrCodeRebuildFailed, err)
		}
	}
	replayed := len(p.pending)
	p.current.Store(&handle{idx: fresh})
	p.inserts = 0
	p.removes = 0
	p.mu.Unlock()

	slog.Info("index_rebuild_complete",
		slog.String("model_tag", p.modelTag),
		slog.String("job_id", jobID),
		slog.Int("records", built),
		slog.Int("replayed", replayed),
		slog.Duration("duration", time.Since(start)))

	return nil
}
