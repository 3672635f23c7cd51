package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FTS5LexicalIndex implements LexicalIndex on SQLite FTS5. The bm25()
// auxiliary function scores matches; WAL mode allows concurrent readers.
// Content is pre-tokenized with Tokenize so the corpus and queries pass
// through identical analysis.
type FTS5LexicalIndex struct {
	mu        sync.RWMutex
	db        *sql.DB
	path      string
	config    LexicalConfig
	closed    bool
	stopWords map[string]struct{}
}

var _ LexicalIndex = (*FTS5LexicalIndex)(nil)

// NewFTS5LexicalIndex creates a new FTS5-backed lexical index.
// If path is empty, creates an in-memory index (testing).
func NewFTS5LexicalIndex(path string, config LexicalConfig) (*FTS5LexicalIndex, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open lexical database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	idx := &FTS5LexicalIndex{
		db:        db,
		path:      path,
		config:    config,
		stopWords: BuildStopWordMap(config.StopWords),
	}
	if err := idx.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return idx, nil
}

// initSchema creates the FTS5 virtual table and the id tracking table.
func (s *FTS5LexicalIndex) initSchema() error {
	schema := `
	CREATE VIRTUAL TABLE IF NOT EXISTS fts_content USING fts5(
		doc_id UNINDEXED,
		content,
		tokenize='unicode61'
	);

	-- FTS5 does not expose rowids reliably; track ids separately for AllIDs.
	CREATE TABLE IF NOT EXISTS doc_ids (
		doc_id TEXT PRIMARY KEY
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// preprocess runs the shared tokenizer and stop word filter over text.
func (s *FTS5LexicalIndex) preprocess(text string) string {
	tokens := Tokenize(text, s.config.MinTokenLength)
	tokens = FilterStopWords(tokens, s.stopWords)
	return strings.Join(tokens, " ")
}

// Insert adds or replaces the document text for id.
func (s *FTS5LexicalIndex) Insert(ctx context.Context, id, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// FTS5 virtual tables do not support REPLACE; delete first.
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM fts_content WHERE doc_id = ?`, id); err != nil {
		return fmt.Errorf("delete existing document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO fts_content(doc_id, content) VALUES (?, ?)`,
		id, s.preprocess(text)); err != nil {
		return fmt.Errorf("index document %s: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO doc_ids(doc_id) VALUES (?)`, id); err != nil {
		return fmt.Errorf("track document id %s: %w", id, err)
	}

	return tx.Commit()
}

// Remove deletes ids from the index. Absent ids are ignored.
func (s *FTS5LexicalIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("lexical index is closed")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	inClause := strings.Join(placeholders, ",")

	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM fts_content WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete from FTS: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		fmt.Sprintf("DELETE FROM doc_ids WHERE doc_id IN (%s)", inClause), args...); err != nil {
		return fmt.Errorf("delete from doc_ids: %w", err)
	}

	return tx.Commit()
}

// Search returns up to k results descending by score, ties by ID ascending.
func (s *FTS5LexicalIndex) Search(ctx context.Context, queryStr string, k int) ([]LexicalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" || k <= 0 {
		return []LexicalResult{}, nil
	}

	processedQuery := s.preprocess(queryStr)
	if processedQuery == "" {
		return []LexicalResult{}, nil
	}

	// bm25() returns negative values where lower is a better match;
	// tie-break on doc_id keeps the ordering deterministic.
	rows, err := s.db.QueryContext(ctx, `
		SELECT doc_id, bm25(fts_content) AS score
		FROM fts_content
		WHERE content MATCH ?
		ORDER BY score, doc_id
		LIMIT ?`, ftsOrQuery(processedQuery), k)
	if err != nil {
		// FTS5 errors on malformed match expressions; treat as no results.
		if strings.Contains(err.Error(), "fts5:") || strings.Contains(err.Error(), "syntax error") {
			return []LexicalResult{}, nil
		}
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()

	var results []LexicalResult
	for rows.Next() {
		var id string
		var score float64
		if err := rows.Scan(&id, &score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		// Negate: higher positive = better match, consistent with Bleve.
		results = append(results, LexicalResult{ID: id, Score: -score})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if results == nil {
		results = []LexicalResult{}
	}
	sortLexicalResults(results)
	return results, nil
}

// ftsOrQuery joins tokens with OR so any-term matches rank like Bleve's
// default match semantics instead of requiring every term.
func ftsOrQuery(processed string) string {
	tokens := strings.Fields(processed)
	if len(tokens) <= 1 {
		return processed
	}
	quoted := make([]string, len(tokens))
	for i, t := range tokens {
		quoted[i] = `"` + t + `"`
	}
	return strings.Join(quoted, " OR ")
}

// AllIDs returns all document IDs in the index.
func (s *FTS5LexicalIndex) AllIDs() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	rows, err := s.db.Query(`SELECT doc_id FROM doc_ids ORDER BY doc_id`)
	if err != nil {
		return nil, fmt.Errorf("query IDs: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan ID: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns index statistics.
func (s *FTS5LexicalIndex) Stats() LexicalStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return LexicalStats{}
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM doc_ids`).Scan(&count); err != nil {
		return LexicalStats{}
	}
	return LexicalStats{DocumentCount: count}
}

// Close closes the index.
func (s *FTS5LexicalIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
