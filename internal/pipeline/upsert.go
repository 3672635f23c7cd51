package pipeline

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// UpsertStatus is the terminal outcome of an acknowledged upsert.
type UpsertStatus string

const (
	StatusInserted UpsertStatus = "inserted"
	StatusUpdated  UpsertStatus = "updated"
	StatusSkipped  UpsertStatus = "skipped"
)

// upsertState names the stages a request moves through. Emitted in debug
// logs so a stuck request can be located.
type upsertState string

const (
	stateReceived       upsertState = "received"
	stateHashChecked    upsertState = "hash_checked"
	stateStored         upsertState = "stored"
	stateIndexesUpdated upsertState = "indexes_updated"
	stateAcknowledged   upsertState = "acknowledged"
)

// UpsertRequest is one incoming record write.
type UpsertRequest struct {
	ID       string
	ModelTag string
	Text     string
	Vector   []float32
	Metadata map[string]store.MetadataValue
}

// UpsertResult is the acknowledgement returned to the caller.
type UpsertResult struct {
	ID       string
	ModelTag string
	Status   UpsertStatus
	Version  int64
}

// LexicalProvider resolves the lexical index for a model tag.
type LexicalProvider interface {
	LexicalFor(modelTag string) (store.LexicalIndex, error)
}

// keyLockCount is the number of lock stripes for per-key write
// serialization. Writes to the same (id, model tag) key always hash to the
// same stripe, so they are linearized; writes to different keys usually
// proceed in parallel.
const keyLockCount = 64

// Pipeline owns the write path. All mutations of a record key flow through
// Upsert or Delete under that key's stripe lock; readers are never blocked
// because neither the record store nor the index search paths take these
// locks.
type Pipeline struct {
	records  store.RecordStore
	vectors  *index.Manager
	lexical  LexicalProvider
	detector *Detector

	// invalidate evicts a record from the query engine's enrichment cache.
	// Optional.
	invalidate func(id, modelTag string)

	keyLocks [keyLockCount]sync.Mutex
}

// Option configures the pipeline.
type Option func(*Pipeline)

// WithCacheInvalidator registers a hook called after every successful write
// or delete.
func WithCacheInvalidator(fn func(id, modelTag string)) Option {
	return func(p *Pipeline) {
		p.invalidate = fn
	}
}

// New creates the upsert pipeline. All dependencies are required.
func New(records store.RecordStore, vectors *index.Manager, lexical LexicalProvider, opts ...Option) (*Pipeline, error) {
	if records == nil {
		return nil, cerrors.Validation("record store is required")
	}
	if vectors == nil {
		return nil, cerrors.Validation("vector index manager is required")
	}
	if lexical == nil {
		return nil, cerrors.Validation("lexical provider is required")
	}
	p := &Pipeline{
		records:  records,
		vectors:  vectors,
		lexical:  lexical,
		detector: NewDetector(records),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *Pipeline) lockKey(id, modelTag string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	h.Write([]byte{0})
	h.Write([]byte(modelTag))
	return &p.keyLocks[h.Sum32()%keyLockCount]
}

// Upsert runs one record through the write state machine:
//
//	received → hash_checked → skipped             (content unchanged)
//	received → hash_checked → stored → indexes_updated → acknowledged
//
// A new or changed record without a vector fails with MissingVector before
// anything is written. On update the old vector is removed from the index
// before the new one is inserted so the index never holds two entries for
// one key. Index updates are retried once; a second failure surfaces as
// IndexInconsistency with the record store already holding the new truth,
// which the consistency checker can repair.
func (p *Pipeline) Upsert(ctx context.Context, req UpsertRequest) (*UpsertResult, error) {
	start := time.Now()
	if req.ID == "" {
		return nil, cerrors.Validation("record id is required")
	}
	if req.ModelTag == "" {
		return nil, cerrors.Validation("model tag is required")
	}
	p.logState(stateReceived, req.ID, req.ModelTag)

	mu := p.lockKey(req.ID, req.ModelTag)
	mu.Lock()
	defer mu.Unlock()

	decision, existing, hash, err := p.detector.Detect(ctx, req.ID, req.ModelTag, req.Text)
	if err != nil {
		return nil, err
	}
	p.logState(stateHashChecked, req.ID, req.ModelTag)

	if decision == DecisionSkip {
		slog.Debug("upsert_skipped",
			slog.String("id", req.ID),
			slog.String("model_tag", req.ModelTag),
			slog.Int64("version", existing.Version))
		return &UpsertResult{
			ID:       req.ID,
			ModelTag: req.ModelTag,
			Status:   StatusSkipped,
			Version:  existing.Version,
		}, nil
	}

	if len(req.Vector) == 0 {
		return nil, cerrors.MissingVector(req.ID)
	}

	record := &store.EmbeddingRecord{
		ID:          req.ID,
		ModelTag:    req.ModelTag,
		ContentHash: hash,
		Vector:      req.Vector,
		Text:        store.NormalizeContent(req.Text),
		Metadata:    req.Metadata,
	}
	if _, err := p.records.Put(ctx, record); err != nil {
		return nil, err
	}
	p.logState(stateStored, req.ID, req.ModelTag)

	if err := p.updateIndexes(ctx, decision, record); err != nil {
		return nil, err
	}
	p.logState(stateIndexesUpdated, req.ID, req.ModelTag)

	if p.invalidate != nil {
		p.invalidate(req.ID, req.ModelTag)
	}
	p.vectors.MaybeRebuild(ctx, req.ModelTag)

	status := StatusInserted
	if decision == DecisionUpdate {
		status = StatusUpdated
	}
	p.logState(stateAcknowledged, req.ID, req.ModelTag)
	slog.Debug("upsert_complete",
		slog.String("id", req.ID),
		slog.String("model_tag", req.ModelTag),
		slog.String("status", string(status)),
		slog.Int64("version", record.Version),
		slog.Duration("duration", time.Since(start)))

	return &UpsertResult{
		ID:       req.ID,
		ModelTag: req.ModelTag,
		Status:   status,
		Version:  record.Version,
	}, nil
}

// updateIndexes applies one record's write to both indexes, retrying once.
func (p *Pipeline) updateIndexes(ctx context.Context, decision Decision, record *store.EmbeddingRecord) error {
	apply := func() error {
		if err := p.vectors.EnsureReady(record.ModelTag); err != nil {
			return err
		}
		if decision == DecisionUpdate {
			// Remove before insert so the partition never holds two live
			// entries under one id.
			p.vectors.Remove(record.ModelTag, record.ID)
		}
		if err := p.vectors.Insert(record.ModelTag, record.ID, record.Vector); err != nil {
			return err
		}

		lexIdx, err := p.lexical.LexicalFor(record.ModelTag)
		if err != nil {
			return err
		}
		return lexIdx.Insert(ctx, record.ID, record.Text)
	}

	err := apply()
	if err == nil {
		return nil
	}
	slog.Warn("index_update_retry",
		slog.String("id", record.ID),
		slog.String("model_tag", record.ModelTag),
		slog.String("error", err.Error()))

	if err = apply(); err != nil {
		return cerrors.IndexInconsistency(
			"record stored but index update failed twice for "+record.ID, err)
	}
	return nil
}

// Delete removes a record and its index entries. Deleting an unknown key
// returns NotFound; a repeated delete of the same key therefore also
// reports NotFound rather than succeeding silently.
func (p *Pipeline) Delete(ctx context.Context, id, modelTag string) error {
	if id == "" {
		return cerrors.Validation("record id is required")
	}
	if modelTag == "" {
		return cerrors.Validation("model tag is required")
	}

	mu := p.lockKey(id, modelTag)
	mu.Lock()
	defer mu.Unlock()

	if err := p.records.Delete(ctx, id, modelTag); err != nil {
		return err
	}

	p.vectors.Remove(modelTag, id)
	if err := p.removeLexical(ctx, id, modelTag); err != nil {
		return err
	}

	if p.invalidate != nil {
		p.invalidate(id, modelTag)
	}
	p.vectors.MaybeRebuild(ctx, modelTag)

	slog.Debug("delete_complete",
		slog.String("id", id),
		slog.String("model_tag", modelTag))
	return nil
}

// removeLexical drops the lexical entry for a deleted record, retrying once.
// A second failure surfaces as IndexInconsistency with the record already
// gone from the source of truth; the stale entry is an orphan the
// consistency checker removes, and queries filter it at enrichment.
func (p *Pipeline) removeLexical(ctx context.Context, id, modelTag string) error {
	remove := func() error {
		lexIdx, err := p.lexical.LexicalFor(modelTag)
		if err != nil {
			return err
		}
		return lexIdx.Remove(ctx, []string{id})
	}

	err := remove()
	if err == nil {
		return nil
	}
	slog.Warn("lexical_delete_retry",
		slog.String("id", id),
		slog.String("model_tag", modelTag),
		slog.String("error", err.Error()))

	if err = remove(); err != nil {
		return cerrors.IndexInconsistency(
			"record deleted but lexical removal failed twice for "+id, err)
	}
	return nil
}

func (p *Pipeline) logState(s upsertState, id, modelTag string) {
	slog.Debug("upsert_state",
		slog.String("state", string(s)),
		slog.String("id", id),
		slog.String("model_tag", modelTag))
}
