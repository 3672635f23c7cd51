package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
)

// ivfTrainFactor controls when the coarse quantizer trains: the index
// brute-forces searches until it holds Partitions*ivfTrainFactor vectors.
const ivfTrainFactor = 4

// ivfMaxIter bounds Lloyd's algorithm during quantizer training.
const ivfMaxIter = 25

// IVFIndex implements VectorIndex as an inverted-file index: vectors are
// bucketed into coarse clusters by a trained k-means quantizer and queries
// probe a bounded number of nearest clusters. Cheaper to build than HNSW,
// lower recall unless Probes is tuned.
//
// Before the quantizer has trained (too few vectors), searches scan all
// vectors exactly, so small indexes lose no recall.
type IVFIndex struct {
	mu     sync.RWMutex
	config VectorIndexConfig
	dist   DistanceFunc
	rng    *rand.Rand

	vectors map[uint32][]float32 // internal key -> (normalized) vector
	idMap   map[string]uint32
	keyMap  map[uint32]string
	nextKey uint32

	centroids  []float32   // Partitions * Dimensions, nil until trained
	partitions [][]uint32  // posting lists of internal keys per centroid
	tombstones *roaring.Bitmap
}

var _ VectorIndex = (*IVFIndex)(nil)

// NewIVFIndex creates an empty IVF index for the given configuration.
func NewIVFIndex(cfg VectorIndexConfig) (*IVFIndex, error) {
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
	if cfg.Partitions == 0 {
		cfg.Partitions = 64
	}
	if cfg.Probes == 0 {
		cfg.Probes = 8
	}

	return &IVFIndex{
		config:     cfg,
		dist:       distanceFor(cfg.Metric),
		rng:        rand.New(rand.NewSource(1)),
		vectors:    make(map[uint32][]float32),
		idMap:      make(map[string]uint32),
		keyMap:     make(map[uint32]string),
		tombstones: roaring.New(),
	}, nil
}

// Insert adds or replaces the vector for id. Replaced entries are tombstoned
// in their old posting list and skipped at query time.
func (ix *IVFIndex) Insert(id string, vector []float32) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if len(vector) != ix.config.Dimensions {
		return ErrDimensionMismatch{Expected: ix.config.Dimensions, Got: len(vector)}
	}

	if oldKey, exists := ix.idMap[id]; exists {
		ix.tombstones.Add(oldKey)
		delete(ix.vectors, oldKey)
		delete(ix.keyMap, oldKey)
		delete(ix.idMap, id)
	}

	vec := make([]float32, len(vector))
	copy(vec, vector)
	if ix.config.Metric == MetricCosine {
		normalizeVectorInPlace(vec)
	}

	key := ix.nextKey
	ix.nextKey++
	ix.vectors[key] = vec
	ix.idMap[id] = key
	ix.keyMap[key] = id

	if ix.centroids == nil {
		if len(ix.vectors) >= ix.config.Partitions*ivfTrainFactor {
			ix.train()
		}
		return nil
	}

	p := nearestCentroid(vec, ix.centroids, ix.config.Dimensions, ix.dist)
	ix.partitions[p] = append(ix.partitions[p], key)
	return nil
}

// Remove deletes id from the index. Removing a nonexistent id is a no-op.
func (ix *IVFIndex) Remove(id string) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	key, exists := ix.idMap[id]
	if !exists {
		return
	}
	ix.tombstones.Add(key)
	delete(ix.vectors, key)
	delete(ix.keyMap, key)
	delete(ix.idMap, id)
}

// Search returns up to k live results ordered ascending by distance,
// ties broken by ID ascending.
func (ix *IVFIndex) Search(ctx context.Context, query []float32, k int) ([]VectorResult, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, cerrors.Timeout("vector search cancelled", err)
	}
	if len(query) != ix.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: ix.config.Dimensions, Got: len(query)}
	}
	if k <= 0 || len(ix.idMap) == 0 {
		return []VectorResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	if ix.config.Metric == MetricCosine {
		normalizeVectorInPlace(normalized)
	}

	var results []VectorResult
	if ix.centroids == nil {
		// Quantizer untrained: exact scan over everything.
		results = make([]VectorResult, 0, len(ix.vectors))
		for key, vec := range ix.vectors {
			results = append(results, VectorResult{
				ID:       ix.keyMap[key],
				Distance: ix.dist(normalized, vec),
			})
		}
	} else {
		probes := closestCentroids(normalized, ix.centroids, ix.config.Dimensions,
			ix.config.Probes, ix.dist)
		results = make([]VectorResult, 0, k*2)
		for _, p := range probes {
			for _, key := range ix.partitions[p] {
				if ix.tombstones.Contains(key) {
					continue
				}
				vec, live := ix.vectors[key]
				if !live {
					continue
				}
				results = append(results, VectorResult{
					ID:       ix.keyMap[key],
					Distance: ix.dist(normalized, vec),
				})
			}
		}
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
func (ix *IVFIndex) AllIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids := make([]string, 0, len(ix.idMap))
	for id := range ix.idMap {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Contains reports whether id is live.
func (ix *IVFIndex) Contains(id string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	_, exists := ix.idMap[id]
	return exists
}

// Count returns the number of live vectors.
func (ix *IVFIndex) Count() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return len(ix.idMap)
}

// Metric returns the configured distance metric.
func (ix *IVFIndex) Metric() Metric { return ix.config.Metric }

// Dimensions returns the configured dimensionality.
func (ix *IVFIndex) Dimensions() int { return ix.config.Dimensions }

// Orphans returns the count of tombstoned posting-list entries, feeding the
// index manager's rebuild trigger.
func (ix *IVFIndex) Orphans() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	return int(ix.tombstones.GetCardinality())
}

// train builds the coarse quantizer from the current vectors and assigns
// every live vector to its nearest partition. Caller holds the write lock.
func (ix *IVFIndex) train() {
	dim := ix.config.Dimensions
	flat := make([]float32, 0, len(ix.vectors)*dim)
	keys := make([]uint32, 0, len(ix.vectors))
	for key, vec := range ix.vectors {
		flat = append(flat, vec...)
		keys = append(keys, key)
	}

	centroids := trainKMeans(flat, dim, ix.config.Partitions, ivfMaxIter, ix.dist, ix.rng)
	if centroids == nil {
		return
	}

	ix.centroids = centroids
	ix.partitions = make([][]uint32, ix.config.Partitions)
	for i, key := range keys {
		p := nearestCentroid(flat[i*dim:(i+1)*dim], centroids, dim, ix.dist)
		ix.partitions[p] = append(ix.partitions[p], key)
	}
	ix.tombstones = roaring.New()
}
