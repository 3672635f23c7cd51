package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	cerrors "github.com/Punky2280/dat-bitch-cartrita-sub005/internal/errors"
)

// SQLiteRecordStore implements RecordStore on SQLite with WAL mode.
// One row per live (id, model_tag); version increments inside the same
// transaction that writes the row, so Put is atomic per key.
type SQLiteRecordStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

var _ RecordStore = (*SQLiteRecordStore)(nil)

const recordSchema = `
CREATE TABLE IF NOT EXISTS records (
    id           TEXT NOT NULL,
    model_tag    TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    vector       BLOB NOT NULL,
    text         TEXT NOT NULL,
    metadata     TEXT NOT NULL DEFAULT '{}',
    version      INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    updated_at   INTEGER NOT NULL,
    PRIMARY KEY (id, model_tag)
);
CREATE INDEX IF NOT EXISTS idx_records_model ON records(model_tag);
`

// NewSQLiteRecordStore opens (or creates) the record store at path.
// If path is empty, an in-memory database is used (testing).
func NewSQLiteRecordStore(path string) (*SQLiteRecordStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open record store: %w", err)
	}

	// The modernc driver serializes per connection; a single connection
	// keeps the in-memory database coherent and avoids SQLITE_BUSY on disk.
	db.SetMaxOpenConns(1)

	if path != "" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("enable WAL: %w", err)
		}
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if _, err := db.Exec(recordSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &SQLiteRecordStore{db: db, path: path}, nil
}

// Get returns the live record for (id, modelTag).
func (s *SQLiteRecordStore) Get(ctx context.Context, id, modelTag string) (*EmbeddingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	row := s.db.QueryRowContext(ctx, `
        SELECT content_hash, vector, text, metadata, version, created_at, updated_at
        FROM records WHERE id = ? AND model_tag = ?`, id, modelTag)

	var (
		rec      = EmbeddingRecord{ID: id, ModelTag: modelTag}
		vecBlob  []byte
		metaBlob []byte
		created  int64
		updated  int64
	)
	err := row.Scan(&rec.ContentHash, &vecBlob, &rec.Text, &metaBlob, &rec.Version, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, cerrors.NotFound(fmt.Sprintf("record %s/%s", modelTag, id))
	}
	if err != nil {
		return nil, fmt.Errorf("get record: %w", err)
	}

	rec.Vector = decodeVector(vecBlob)
	rec.Metadata, err = DecodeMetadata(metaBlob)
	if err != nil {
		return nil, cerrors.Wrap(cerrors.ErrCodeStoreCorrupt, err)
	}
	rec.CreatedAt = time.UnixMilli(created).UTC()
	rec.UpdatedAt = time.UnixMilli(updated).UTC()

	return &rec, nil
}

// Put inserts or replaces the record, returning the previous version (0 if
// none). The read-increment-write runs in one transaction, so two concurrent
// puts of the same key serialize and exactly one observes the other's version.
func (s *SQLiteRecordStore) Put(ctx context.Context, record *EmbeddingRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}
	if record.ID == "" || record.ModelTag == "" {
		return 0, cerrors.Validation("record requires id and model_tag")
	}

	metaBlob, err := EncodeMetadata(record.Metadata)
	if err != nil {
		return 0, fmt.Errorf("encode metadata: %w", err)
	}
	vecBlob := encodeVector(record.Vector)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin put: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var prevVersion int64
	var createdAt int64
	now := time.Now().UTC().UnixMilli()

	row := tx.QueryRowContext(ctx,
		`SELECT version, created_at FROM records WHERE id = ? AND model_tag = ?`,
		record.ID, record.ModelTag)
	switch err := row.Scan(&prevVersion, &createdAt); err {
	case nil:
	case sql.ErrNoRows:
		prevVersion = 0
		createdAt = now
	default:
		return 0, fmt.Errorf("read previous version: %w", err)
	}

	newVersion := prevVersion + 1
	_, err = tx.ExecContext(ctx, `
        INSERT INTO records (id, model_tag, content_hash, vector, text, metadata, version, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id, model_tag) DO UPDATE SET
            content_hash = excluded.content_hash,
            vector       = excluded.vector,
            text         = excluded.text,
            metadata     = excluded.metadata,
            version      = excluded.version,
            updated_at   = excluded.updated_at`,
		record.ID, record.ModelTag, record.ContentHash, vecBlob, record.Text,
		string(metaBlob), newVersion, createdAt, now)
	if err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit put: %w", err)
	}

	record.Version = newVersion
	record.CreatedAt = time.UnixMilli(createdAt).UTC()
	record.UpdatedAt = time.UnixMilli(now).UTC()

	return prevVersion, nil
}

// Delete removes the live record for (id, modelTag).
func (s *SQLiteRecordStore) Delete(ctx context.Context, id, modelTag string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE id = ? AND model_tag = ?`, id, modelTag)
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete record: %w", err)
	}
	if n == 0 {
		return cerrors.NotFound(fmt.Sprintf("record %s/%s", modelTag, id))
	}
	return nil
}

// AllIDs returns the IDs of all live records for a model tag.
func (s *SQLiteRecordStore) AllIDs(ctx context.Context, modelTag string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM records WHERE model_tag = ? ORDER BY id`, modelTag)
	if err != nil {
		return nil, fmt.Errorf("list record ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ForEach streams all live records for a model tag in id order.
func (s *SQLiteRecordStore) ForEach(ctx context.Context, modelTag string, fn func(*EmbeddingRecord) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, content_hash, vector, text, metadata, version, created_at, updated_at
        FROM records WHERE model_tag = ? ORDER BY id`, modelTag)
	if err != nil {
		return fmt.Errorf("scan records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			rec      = EmbeddingRecord{ModelTag: modelTag}
			vecBlob  []byte
			metaBlob []byte
			created  int64
			updated  int64
		)
		if err := rows.Scan(&rec.ID, &rec.ContentHash, &vecBlob, &rec.Text,
			&metaBlob, &rec.Version, &created, &updated); err != nil {
			return fmt.Errorf("scan record: %w", err)
		}
		rec.Vector = decodeVector(vecBlob)
		rec.Metadata, err = DecodeMetadata(metaBlob)
		if err != nil {
			return cerrors.Wrap(cerrors.ErrCodeStoreCorrupt, err)
		}
		rec.CreatedAt = time.UnixMilli(created).UTC()
		rec.UpdatedAt = time.UnixMilli(updated).UTC()

		if err := fn(&rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of live records for a model tag.
func (s *SQLiteRecordStore) Count(ctx context.Context, modelTag string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM records WHERE model_tag = ?`, modelTag).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// MaxVersion returns the highest live version for a model tag (0 if empty).
func (s *SQLiteRecordStore) MaxVersion(ctx context.Context, modelTag string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return 0, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx,
		`SELECT MAX(version) FROM records WHERE model_tag = ?`, modelTag).Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("max version: %w", err)
	}
	return v.Int64, nil
}

// ModelTags returns all model tags with at least one live record.
func (s *SQLiteRecordStore) ModelTags(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, cerrors.New(cerrors.ErrCodeStoreClosed, "record store is closed", nil)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT model_tag FROM records ORDER BY model_tag`)
	if err != nil {
		return nil, fmt.Errorf("list model tags: %w", err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan model tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// Close releases the underlying database handle.
func (s *SQLiteRecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// encodeVector packs float32 components little-endian.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
