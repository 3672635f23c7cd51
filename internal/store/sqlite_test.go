package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
)

func newTestRecordStore(t *testing.T) *SQLiteRecordStore {
	t.Helper()
	s, err := NewSQLiteRecordStore("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(id, modelTag, text string) *EmbeddingRecord {
	normalized := NormalizeContent(text)
	return &EmbeddingRecord{
		ID:          id,
		ModelTag:    modelTag,
		ContentHash: HashContent(normalized),
		Vector:      []float32{0.1, 0.2, 0.3},
		Text:        normalized,
	}
}

func TestSQLiteRecordStore_PutAndGet(t *testing.T) {
	// Given: an empty store
	s := newTestRecordStore(t)
	ctx := context.Background()

	// When: a record is put for the first time
	rec := testRecord("doc1", "minilm", "hello world")
	rec.Metadata = map[string]MetadataValue{"source": StringValue("unit")}
	prev, err := s.Put(ctx, rec)
	require.NoError(t, err)

	// Then: the previous version is 0 and the stored version is 1
	assert.Equal(t, int64(0), prev)
	assert.Equal(t, int64(1), rec.Version)

	// And: Get returns the same content
	got, err := s.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, rec.ContentHash, got.ContentHash)
	assert.Equal(t, rec.Vector, got.Vector)
	assert.Equal(t, rec.Text, got.Text)
	assert.Equal(t, int64(1), got.Version)
	assert.Equal(t, "unit", got.Metadata["source"].String())
	assert.False(t, got.CreatedAt.IsZero())
}

func TestSQLiteRecordStore_PutIncrementsVersion(t *testing.T) {
	// Given: a record at version 1
	s := newTestRecordStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, testRecord("doc1", "minilm", "first"))
	require.NoError(t, err)

	// When: the same key is put again with new content
	rec := testRecord("doc1", "minilm", "second")
	prev, err := s.Put(ctx, rec)
	require.NoError(t, err)

	// Then: the previous version is reported and the version advanced
	assert.Equal(t, int64(1), prev)
	assert.Equal(t, int64(2), rec.Version)

	// And: only the latest content is live
	got, err := s.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, "second", got.Text)
}

func TestSQLiteRecordStore_KeyIsIDPlusModelTag(t *testing.T) {
	// Given: the same ID under two model tags
	s := newTestRecordStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, testRecord("doc1", "minilm", "small model text"))
	require.NoError(t, err)
	_, err = s.Put(ctx, testRecord("doc1", "mpnet", "large model text"))
	require.NoError(t, err)

	// Then: both live independently
	a, err := s.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	b, err := s.Get(ctx, "doc1", "mpnet")
	require.NoError(t, err)
	assert.NotEqual(t, a.Text, b.Text)

	tags, err := s.ModelTags(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"minilm", "mpnet"}, tags)
}

func TestSQLiteRecordStore_GetMissing(t *testing.T) {
	// Given: an empty store
	s := newTestRecordStore(t)

	// When: a nonexistent record is fetched
	_, err := s.Get(context.Background(), "ghost", "minilm")

	// Then: a not-found error is returned
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))
}

func TestSQLiteRecordStore_DeleteMissing(t *testing.T) {
	// Given: an empty store
	s := newTestRecordStore(t)

	// When: a nonexistent record is deleted
	err := s.Delete(context.Background(), "ghost", "minilm")

	// Then: a not-found error is returned, nothing else changes
	require.Error(t, err)
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))
}

func TestSQLiteRecordStore_Delete(t *testing.T) {
	// Given: a stored record
	s := newTestRecordStore(t)
	ctx := context.Background()
	_, err := s.Put(ctx, testRecord("doc1", "minilm", "to be removed"))
	require.NoError(t, err)

	// When: it is deleted
	require.NoError(t, s.Delete(ctx, "doc1", "minilm"))

	// Then: Get reports not found and the count drops to zero
	_, err = s.Get(ctx, "doc1", "minilm")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeNotFound))

	n, err := s.Count(ctx, "minilm")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSQLiteRecordStore_ForEachAndMaxVersion(t *testing.T) {
	// Given: three records, one updated once
	s := newTestRecordStore(t)
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		_, err := s.Put(ctx, testRecord(id, "minilm", "text for "+id))
		require.NoError(t, err)
	}
	_, err := s.Put(ctx, testRecord("b", "minilm", "updated text"))
	require.NoError(t, err)

	// When: all records are streamed
	var seen []string
	err = s.ForEach(ctx, "minilm", func(r *EmbeddingRecord) error {
		seen = append(seen, r.ID)
		return nil
	})
	require.NoError(t, err)

	// Then: iteration is in id order and complete
	assert.Equal(t, []string{"a", "b", "c"}, seen)

	// And: MaxVersion reflects the update
	maxVer, err := s.MaxVersion(ctx, "minilm")
	require.NoError(t, err)
	assert.Equal(t, int64(2), maxVer)

	ids, err := s.AllIDs(ctx, "minilm")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ids)
}

func TestSQLiteRecordStore_ConcurrentPutsSameKey(t *testing.T) {
	// Given: a shared store
	s := newTestRecordStore(t)
	ctx := context.Background()

	// When: 16 goroutines put the same key concurrently
	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := s.Put(ctx, testRecord("doc1", "minilm", fmt.Sprintf("write %d", n)))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	// Then: exactly one live record exists with version equal to the write count
	got, err := s.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, int64(writers), got.Version)

	n, err := s.Count(ctx, "minilm")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSQLiteRecordStore_PersistsAcrossReopen(t *testing.T) {
	// Given: a store on disk with one record
	path := filepath.Join(t.TempDir(), "records.db")
	s, err := NewSQLiteRecordStore(path)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = s.Put(ctx, testRecord("doc1", "minilm", "durable text"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// When: the store is reopened
	s2, err := NewSQLiteRecordStore(path)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	// Then: the record survived
	got, err := s2.Get(ctx, "doc1", "minilm")
	require.NoError(t, err)
	assert.Equal(t, "durable text", got.Text)
	assert.Equal(t, int64(1), got.Version)
}

func TestSQLiteRecordStore_ClosedStore(t *testing.T) {
	// Given: a closed store
	s := newTestRecordStore(t)
	require.NoError(t, s.Close())

	// Then: operations fail with a store-closed error
	_, err := s.Get(context.Background(), "doc1", "minilm")
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeStoreClosed))

	_, err = s.Put(context.Background(), testRecord("doc1", "minilm", "x"))
	assert.True(t, cerrors.HasCode(err, cerrors.ErrCodeStoreClosed))
}
