// Package pipeline implements the write path: change detection against
// stored content hashes, the upsert state machine that keeps the record
// store and both indexes aligned, and cross-store consistency checking.
package pipeline

import (
	"context"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// Decision is the change detector's verdict for an incoming record.
type Decision string

const (
	// DecisionInsert means no record exists under the (id, model tag) key.
	DecisionInsert Decision = "insert"

	// DecisionUpdate means a record exists and its content changed.
	DecisionUpdate Decision = "update"

	// DecisionSkip means a record exists with identical content. Skips do
	// not touch the store or the indexes and do not bump the version.
	DecisionSkip Decision = "skip"
)

// Detector decides whether incoming content is new, changed, or unchanged
// relative to the stored record. Content is normalized before hashing so
// whitespace and line-ending churn does not force re-embedding.
type Detector struct {
	records store.RecordStore
}

// NewDetector creates a change detector over the given record store.
func NewDetector(records store.RecordStore) *Detector {
	return &Detector{records: records}
}

// Detect normalizes and hashes text, then compares against the stored
// record. Returns the decision, the existing record (nil for inserts), and
// the content hash the caller should stamp on the record it writes.
func (d *Detector) Detect(ctx context.Context, id, modelTag, text string) (Decision, *store.EmbeddingRecord, string, error) {
	hash := store.HashContent(store.NormalizeContent(text))

	existing, err := d.records.Get(ctx, id, modelTag)
	if err != nil {
		if cerrors.HasCode(err, cerrors.ErrCodeNotFound) {
			return DecisionInsert, nil, hash, nil
		}
		return "", nil, "", err
	}

	if existing.ContentHash == hash {
		return DecisionSkip, existing, hash, nil
	}
	return DecisionUpdate, existing, hash, nil
}
