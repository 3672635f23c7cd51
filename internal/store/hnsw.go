package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
)

// HNSWIndex implements VectorIndex on the coder/hnsw pure Go layered
// proximity graph. Higher build cost than IVF, better recall at high
// dimensionality.
type HNSWIndex struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorIndexConfig

	// ID mapping (string <-> uint64 graph key)
	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

var _ VectorIndex = (*HNSWIndex)(nil)

// NewHNSWIndex creates an empty HNSW index for the given configuration.
func NewHNSWIndex(cfg VectorIndexConfig) (*HNSWIndex, error) {
	if cfg.Dimensions <= 0 {
		return nil, cerrors.Validation("vector index requires positive dimensions")
	}
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}
	if !cfg.Metric.Valid() {
		return nil, cerrors.New(cerrors.ErrCodeMetricMismatch,
			fmt.Sprintf("unsupported metric %q", cfg.Metric), nil)
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case MetricCosine:
		graph.Distance = hnsw.CosineDistance
	case MetricEuclidean:
		graph.Distance = hnsw.EuclideanDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &HNSWIndex{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Insert adds or replaces the vector for id.
//
// Replacement uses lazy deletion: the old graph node is orphaned rather than
// removed, which sidesteps coder/hnsw breakage when the last node is deleted.
// Orphans are shed on the next rebuild.
func (h *HNSWIndex) Insert(id string, vector []float32) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(vector) != h.config.Dimensions {
		return ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(vector)}
	}

	if existingKey, exists := h.idMap[id]; exists {
		delete(h.keyMap, existingKey)
		delete(h.idMap, id)
	}

	key := h.nextKey
	h.nextKey++

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if h.config.Metric == MetricCosine {
		normalizeVectorInPlace(vec)
	}

	h.graph.Add(hnsw.MakeNode(key, vec))
	h.idMap[id] = key
	h.keyMap[key] = id

	return nil
}

// Remove deletes id from the index. Removing a nonexistent id is a no-op.
func (h *HNSWIndex) Remove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if key, exists := h.idMap[id]; exists {
		delete(h.keyMap, key)
		delete(h.idMap, id)
	}
}

// Search returns up to k live results ordered ascending by distance,
// ties broken by ID ascending.
func (h *HNSWIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, cerrors.Timeout("vector search cancelled", err)
	}
	if len(query) != h.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: h.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || h.graph.Len() == 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if h.config.Metric == MetricCosine {
		normalizeVectorInPlace(normalized)
	}

	// Orphaned nodes from lazy deletion still come back from the graph;
	// over-request so filtering them does not starve the result set.
	ask := k + (h.graph.Len() - len(h.idMap))
	if ask > h.graph.Len() {
		ask = h.graph.Len()
	}

	nodes := h.graph.Search(normalized, ask)

	results := make([]VectorResult, 0, min(k, len(nodes)))
	for _, node := range nodes {
		id, live := h.keyMap[node.Key]
		if !live {
			continue
		}
		results = append(results, VectorResult{
			ID:       id,
			Distance: h.graph.Distance(normalized, node.Value),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// AllIDs returns all live IDs in the index.
func (h *HNSWIndex) AllIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.idMap))
	for id := range h.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether id is live.
func (h *HNSWIndex) Contains(id string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.idMap)
}

// Metric returns the configured distance metric.
func (h *HNSWIndex) Metric() Metric { return h.config.Metric }

// Dimensions returns the configured dimensionality.
func (h *HNSWIndex) Dimensions() int { return h.config.Dimensions }

// Orphans returns the count of lazily deleted graph nodes. The index manager
// uses this to decide when incremental churn has degraded recall enough to
// warrant a rebuild.
func (h *HNSWIndex) Orphans() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return h.graph.Len() - len(h.idMap)
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
