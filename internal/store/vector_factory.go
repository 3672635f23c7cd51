package store

import (
	"fmt"
)

// VectorBackend selects the ANN structure behind a VectorIndex.
type VectorBackend string

const (
	// VectorBackendHNSW is the layered proximity graph (default).
	VectorBackendHNSW VectorBackend = "hnsw"

	// VectorBackendIVF is the partition-based inverted-file index.
	VectorBackendIVF VectorBackend = "ivf"
)

// NewVectorIndex creates a VectorIndex using the named backend.
//
// backend options:
//   - "hnsw" (default): better recall, higher build cost
//   - "ivf": cheaper builds, recall governed by the probe count
func NewVectorIndex(backend string, cfg VectorIndexConfig) (VectorIndex, error) {
	switch VectorBackend(backend) {
	case VectorBackendHNSW, "":
		return NewHNSWIndex(cfg)
	case VectorBackendIVF:
		return NewIVFIndex(cfg)
	default:
		return nil, fmt.Errorf("unknown vector backend: %s (valid options: hnsw, ivf)", backend)
	}
}
