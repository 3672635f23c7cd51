package store

import "math"

// DistanceFunc computes the distance between two equal-length vectors.
type DistanceFunc func(a, b []float32) float32

// distanceFor returns the distance function for a metric. Cosine distance
// assumes both inputs are unit-normalized and reduces to 1 - dot.
func distanceFor(m Metric) DistanceFunc {
	if m == MetricEuclidean {
		return euclideanDistance
	}
	return cosineDistance
}

func cosineDistance(a, b []float32) float32 {
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return 1 - dot
}

func euclideanDistance(a, b []float32) float32 {
	var sum float64
	for i := range a {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}
