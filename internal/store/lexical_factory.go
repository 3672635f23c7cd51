package store

import (
	"fmt"
	"path/filepath"
)

// LexicalBackend selects the full-text engine behind a LexicalIndex.
type LexicalBackend string

const (
	// LexicalBackendFTS5 uses SQLite FTS5 (default).
	// WAL mode allows concurrent multi-process readers.
	LexicalBackendFTS5 LexicalBackend = "sqlite"

	// LexicalBackendBleve uses Bleve v2.
	// BoltDB file locking limits it to a single process.
	LexicalBackendBleve LexicalBackend = "bleve"
)

// NewLexicalIndex creates a LexicalIndex using the named backend. basePath
// is the path without extension; the extension is added per backend (.db for
// SQLite, .bleve for Bleve). An empty basePath yields an in-memory index.
func NewLexicalIndex(backend string, basePath string, config LexicalConfig) (LexicalIndex, error) {
	switch LexicalBackend(backend) {
	case LexicalBackendFTS5, "":
		var path string
		if basePath != "" {
			path = basePath + ".db"
		}
		return NewFTS5LexicalIndex(path, config)

	case LexicalBackendBleve:
		var path string
		if basePath != "" {
			path = basePath + ".bleve"
		}
		return NewBleveLexicalIndex(path, config)

	default:
		return nil, fmt.Errorf("unknown lexical backend: %s (valid options: sqlite, bleve)", backend)
	}
}

// LexicalIndexPath returns the on-disk artifact path for a backend under dataDir.
func LexicalIndexPath(dataDir, modelTag, backend string) string {
	basePath := filepath.Join(dataDir, "lexical-"+modelTag)
	if LexicalBackend(backend) == LexicalBackendBleve {
		return basePath + ".bleve"
	}
	return basePath + ".db"
}
