package pipeline

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/index"
	"github.com/Punky2280/dat-bitch-cartrita-sub005/internal/store"
)

// staticLexProvider serves one shared in-memory lexical index for every tag.
type staticLexProvider struct {
	idx store.LexicalIndex
	err error
}

func (p *staticLexProvider) LexicalFor(string) (store.LexicalIndex, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.idx, nil
}

type pipelineFixture struct {
	pipeline    *Pipeline
	records     *store.SQLiteRecordStore
	vectors     *index.Manager
	lexical     store.LexicalIndex
	invalidated []string
	mu          sync.Mutex
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	vectors, err := index.NewManager(records, index.ManagerConfig{
		Backend: "hnsw",
		ConfigFor: func(string) (store.VectorIndexConfig, error) {
			return store.DefaultVectorIndexConfig(3), nil
		},
	})
	require.NoError(t, err)

	lexical, err := store.NewFTS5LexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	f := &pipelineFixture{records: records, vectors: vectors, lexical: lexical}
	p, err := New(records, vectors, &staticLexProvider{idx: lexical},
		WithCacheInvalidator(func(id, modelTag string) {
			f.mu.Lock()
			f.invalidated = append(f.invalidated, modelTag+"/"+id)
			f.mu.Unlock()
		}))
	require.NoError(t, err)
	f.pipeline = p
	return f
}

func upsertReq(id, text string, vector []float32) UpsertRequest {
	return UpsertRequest{ID: id, ModelTag: "minilm", Text: text, Vector: vector}
}

func TestPipeline_InsertNewRecord(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// When: a new record is upserted
	result, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "hello embedding world", []float32{1, 0, 0}))
	require.NoError(t, err)

	// Then: it is acknowledged as inserted at version 1
	assert.Equal(t, StatusInserted, result.Status)
	assert.Equal(t, int64(1), result.Version)

	// And: record store and both indexes hold it
	rec, err := f.records.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.True(t, f.vectors.Contains("minilm", "doc1"))

	lexHits, err := f.lexical.Search(ctx, "embedding", 5)
	require.NoError(t, err)
	require.Len(t, lexHits, 1)
	assert.Equal(t, "doc1", lexHits[0].ID)

	// And: the enrichment cache was invalidated
	assert.Contains(t, f.invalidated, "minilm/doc1")
}

func TestPipeline_DoubleUpsertSkips(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// Given: a record upserted once
	first, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "stable content", []float32{1, 0, 0}))
	require.NoError(t, err)
	require.Equal(t, int64(1), first.Version)

	// When: the identical payload is upserted again
	second, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "stable content", []float32{1, 0, 0}))
	require.NoError(t, err)

	// Then: the second call is a skip and the version stays 1
	assert.Equal(t, StatusSkipped, second.Status)
	assert.Equal(t, int64(1), second.Version)

	rec, err := f.records.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
}

func TestPipeline_SkipIsIdempotentAcrossWhitespace(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "line one\nline two", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: the same content arrives with CRLF endings and trailing spaces
	result, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "line one  \r\nline two\r\n", nil))
	require.NoError(t, err)

	// Then: normalization makes it a skip even without a vector
	assert.Equal(t, StatusSkipped, result.Status)
	assert.Equal(t, int64(1), result.Version)
}

func TestPipeline_UpdateChangedContent(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "about kafka streams", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: the content and vector change
	result, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "about postgres storage", []float32{0, 1, 0}))
	require.NoError(t, err)

	// Then: the record is updated to version 2
	assert.Equal(t, StatusUpdated, result.Status)
	assert.Equal(t, int64(2), result.Version)

	// And: the index holds exactly one live entry under the key
	assert.True(t, f.vectors.Contains("minilm", "doc1"))
	assert.Equal(t, 1, f.vectors.Count("minilm"))

	// And: queries reflect only the new content
	oldHits, err := f.lexical.Search(ctx, "kafka", 5)
	require.NoError(t, err)
	assert.Empty(t, oldHits)

	newHits, err := f.lexical.Search(ctx, "postgres", 5)
	require.NoError(t, err)
	require.Len(t, newHits, 1)
	assert.Equal(t, "doc1", newHits[0].ID)

	results, err := f.vectors.Search(ctx, "minilm", []float32{0, 1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Less(t, results[0].Distance, float32(1e-4))
}

func TestPipeline_MissingVectorRejected(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// When: a new record arrives without a vector
	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "needs an embedding", nil))

	// Then: the request fails with MissingVector and nothing is written
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeMissingVector))

	_, err = f.records.Get(ctx, "doc1", "minilm")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))
	assert.False(t, f.vectors.Contains("minilm", "doc1"))
}

func TestPipeline_ChangedContentWithoutVectorRejected(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "original", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: changed content arrives without a fresh vector
	_, err = f.pipeline.Upsert(ctx, upsertReq("doc1", "changed", nil))

	// Then: the update is rejected and the old record stays intact
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeMissingVector))

	rec, err := f.records.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, int64(1), rec.Version)
	assert.Equal(t, "original", rec.Text)
}

func TestPipeline_ValidationErrors(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, UpsertRequest{ModelTag: "minilm", Text: "x", Vector: []float32{1, 0, 0}})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidInput))

	_, err = f.pipeline.Upsert(ctx, UpsertRequest{ID: "doc1", Text: "x", Vector: []float32{1, 0, 0}})
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidInput))

	err = f.pipeline.Delete(ctx, "", "minilm")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeInvalidInput))
}

func TestPipeline_DeleteRemovesEverywhere(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "ephemeral content", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: the record is deleted
	require.NoError(t, f.pipeline.Delete(ctx, "doc1", "minilm"))

	// Then: it is gone from the store and both indexes
	_, err = f.records.Get(ctx, "doc1", "minilm")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))
	assert.False(t, f.vectors.Contains("minilm", "doc1"))

	hits, err := f.lexical.Search(ctx, "ephemeral", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPipeline_DeleteGhostReturnsNotFound(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "content", []float32{1, 0, 0}))
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Delete(ctx, "doc1", "minilm"))

	// When: the same key is deleted again
	err = f.pipeline.Delete(ctx, "doc1", "minilm")

	// Then: the repeat reports NotFound instead of silently succeeding
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))
}

func TestPipeline_ReinsertAfterDelete(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	_, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "first life", []float32{1, 0, 0}))
	require.NoError(t, err)
	require.NoError(t, f.pipeline.Delete(ctx, "doc1", "minilm"))

	// When: the key is upserted again after deletion
	result, err := f.pipeline.Upsert(ctx, upsertReq("doc1", "second life", []float32{0, 1, 0}))
	require.NoError(t, err)

	// Then: it is a fresh insert starting over at version 1
	assert.Equal(t, StatusInserted, result.Status)
	assert.Equal(t, int64(1), result.Version)
}

func TestPipeline_ConcurrentUpsertsSameKey(t *testing.T) {
	f := newPipelineFixture(t)
	ctx := context.Background()

	// When: many goroutines write the same key with distinct content
	const writers = 12
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := f.pipeline.Upsert(ctx, upsertReq("doc1",
				fmt.Sprintf("content revision %d", n), []float32{float32(n), 1, 0}))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Then: one live record remains and the index agrees with it
	rec, err := f.records.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, 1, f.vectors.Count("minilm"))
	assert.True(t, f.vectors.Contains("minilm", "doc1"))

	n, err := f.records.Count(ctx, "minilm")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.GreaterOrEqual(t, rec.Version, int64(1))
}

// flakyLexicalIndex fails Remove a configured number of times, then delegates.
type flakyLexicalIndex struct {
	store.LexicalIndex
	removeFailures int
}

func (f *flakyLexicalIndex) Remove(ctx context.Context, ids []string) error {
	if f.removeFailures > 0 {
		f.removeFailures--
		return fmt.Errorf("lexical backend hiccup")
	}
	return f.LexicalIndex.Remove(ctx, ids)
}

func newFlakyDeleteFixture(t *testing.T, removeFailures int) (*Pipeline, *store.SQLiteRecordStore, store.LexicalIndex) {
	t.Helper()

	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	vectors, err := index.NewManager(records, index.ManagerConfig{
		Backend: "hnsw",
		ConfigFor: func(string) (store.VectorIndexConfig, error) {
			return store.DefaultVectorIndexConfig(3), nil
		},
	})
	require.NoError(t, err)

	lexical, err := store.NewFTS5LexicalIndex("", store.DefaultLexicalConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lexical.Close() })

	flaky := &flakyLexicalIndex{LexicalIndex: lexical, removeFailures: removeFailures}
	p, err := New(records, vectors, &staticLexProvider{idx: flaky})
	require.NoError(t, err)
	return p, records, lexical
}

func TestPipeline_DeleteRetriesLexicalRemoval(t *testing.T) {
	// Given: a lexical backend that fails the first removal attempt
	p, _, lexical := newFlakyDeleteFixture(t, 1)
	ctx := context.Background()
	_, err := p.Upsert(ctx, upsertReq("doc1", "transient content", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: the record is deleted
	require.NoError(t, p.Delete(ctx, "doc1", "minilm"))

	// Then: the retry removed the lexical entry before the call returned
	hits, err := lexical.Search(ctx, "transient", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPipeline_DeleteSurfacesInconsistencyAfterTwoLexicalFailures(t *testing.T) {
	// Given: a lexical backend that fails both removal attempts
	p, records, _ := newFlakyDeleteFixture(t, 2)
	ctx := context.Background()
	_, err := p.Upsert(ctx, upsertReq("doc1", "stubborn content", []float32{1, 0, 0}))
	require.NoError(t, err)

	// When: the record is deleted
	err = p.Delete(ctx, "doc1", "minilm")

	// Then: the caller learns the indexes are behind the record store
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeIndexInconsistency))

	// And: the record itself is gone, leaving an orphan for the checker
	_, getErr := records.Get(ctx, "doc1", "minilm")
	assert.True(t, cerrors.HasCode(getErr, cerrors.ErrCodeNotFound))
}

func TestPipeline_IndexFailureSurfacesInconsistency(t *testing.T) {
	// Given: a lexical provider that always fails
	records, err := store.NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = records.Close() })

	vectors, err := index.NewManager(records, index.ManagerConfig{
		Backend: "hnsw",
		ConfigFor: func(string) (store.VectorIndexConfig, error) {
			return store.DefaultVectorIndexConfig(3), nil
		},
	})
	require.NoError(t, err)

	p, err := New(records, vectors, &staticLexProvider{
		err: fmt.Errorf("lexical backend offline"),
	})
	require.NoError(t, err)

	// When: an upsert's index phase fails on both attempts
	_, err = p.Upsert(context.Background(), upsertReq("doc1", "content", []float32{1, 0, 0}))

	// Then: the error is an index inconsistency, and the record store kept
	// the new truth for the checker to repair from
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeIndexInconsistency))

	rec, getErr := records.Get(context.Background(), "doc1", "minilm")
	require.NoError(t, getErr)
	assert.Equal(t, int64(1), rec.Version)
}
