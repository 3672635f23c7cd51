package store

import (
	"math"
	"math/rand"
	"sort"
)

// trainKMeans trains k centroids from the flattened vectors (n*dim) using
// Lloyd's algorithm. Returns nil when there are fewer vectors than clusters.
func trainKMeans(vectors []float32, dim, k, maxIter int, dist DistanceFunc, rng *rand.Rand) []float32 {
	n := len(vectors) / dim
	if n < k {
		return nil
	}

	centroids := make([]float32, k*dim)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		changed := false

		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := nearestCentroid(vec, centroids, dim, dist)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1.0 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed empty clusters with a random point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	return centroids
}

// nearestCentroid returns the index of the centroid closest to vec.
func nearestCentroid(vec, centroids []float32, dim int, dist DistanceFunc) int {
	k := len(centroids) / dim
	best := 0
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := dist(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// closestCentroids returns the indices of the n centroids closest to query,
// ascending by distance.
func closestCentroids(query, centroids []float32, dim, n int, dist DistanceFunc) []int {
	k := len(centroids) / dim
	if n > k {
		n = k
	}

	type centroidDist struct {
		id   int
		dist float32
	}
	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: dist(query, centroids[i*dim:(i+1)*dim])}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}
	return result
}
