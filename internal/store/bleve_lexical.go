package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
)

const (
	// textTokenizerType is the registered tokenizer type.
	textTokenizerType = "record_text_tokenizer"

	// textStopFilterType is the registered stop word filter type.
	textStopFilterType = "record_text_stop"

	// textTokenizerName names the configured tokenizer instance in a mapping.
	textTokenizerName = "record_text"

	// textStopFilterName names the configured stop filter instance.
	textStopFilterName = "record_stop"

	// textAnalyzerName is the name of our registered analyzer.
	textAnalyzerName = "record_text_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(textTokenizerType, textTokenizerConstructor)
	_ = registry.RegisterTokenFilter(textStopFilterType, textStopFilterConstructor)
}

// BleveLexicalIndex implements LexicalIndex on Bleve v2 with BM25 scoring.
// The same registered analyzer runs at index time and query time, so
// matching stays symmetric.
type BleveLexicalIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config LexicalConfig
	closed bool
}

var _ LexicalIndex = (*BleveLexicalIndex)(nil)

// bleveDocument is the document structure for Bleve indexing.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveLexicalIndex creates a new lexical index.
// If path is empty, creates an in-memory index (testing).
func NewBleveLexicalIndex(path string, config LexicalConfig) (*BleveLexicalIndex, error) {
	indexMapping, err := createIndexMapping(config)
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if mkErr := os.MkdirAll(filepath.Dir(path), 0o755); mkErr != nil {
			return nil, fmt.Errorf("create directory: %w", mkErr)
		}
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create/open index: %w", err)
	}

	return &BleveLexicalIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createIndexMapping wires the custom analyzer into a Bleve index mapping.
// Tokenizer and stop filter are defined per mapping so the configured
// MinTokenLength and StopWords reach the analysis chain; the mapping (and
// with it the config) persists inside the index and survives reopen.
func createIndexMapping(config LexicalConfig) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	if err := indexMapping.AddCustomTokenizer(textTokenizerName, map[string]interface{}{
		"type":             textTokenizerType,
		"min_token_length": config.MinTokenLength,
	}); err != nil {
		return nil, fmt.Errorf("add custom tokenizer: %w", err)
	}

	stopWords := make([]interface{}, len(config.StopWords))
	for i, w := range config.StopWords {
		stopWords[i] = w
	}
	if err := indexMapping.AddCustomTokenFilter(textStopFilterName, map[string]interface{}{
		"type":       textStopFilterType,
		"stop_words": stopWords,
	}); err != nil {
		return nil, fmt.Errorf("add custom token filter: %w", err)
	}

	err := indexMapping.AddCustomAnalyzer(textAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": textTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			textStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = textAnalyzerName
	return indexMapping, nil
}

// Insert adds or replaces the document text for id.
func (b *BleveLexicalIndex) Insert(ctx context.Context, id, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	return b.index.Index(id, bleveDocument{Content: text})
}

// Remove deletes ids from the index. Absent ids are ignored.
func (b *BleveLexicalIndex) Remove(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("lexical index is closed")
	}

	batch := b.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("delete documents: %w", err)
	}
	return nil
}

// Search returns up to k results descending by score, ties by ID ascending.
func (b *BleveLexicalIndex) Search(ctx context.Context, queryStr string, k int) ([]LexicalResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}
	if strings.TrimSpace(queryStr) == "" || k <= 0 {
		return []LexicalResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = k

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}

	results := make([]LexicalResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, LexicalResult{ID: hit.ID, Score: hit.Score})
	}
	sortLexicalResults(results)
	return results, nil
}

// AllIDs returns all document IDs in the index.
func (b *BleveLexicalIndex) AllIDs() ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("lexical index is closed")
	}

	docCount, _ := b.index.DocCount()

	req := bleve.NewSearchRequest(bleve.NewMatchAllQuery())
	req.Size = int(docCount)
	req.Fields = []string{}

	result, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search for all IDs: %w", err)
	}

	ids := make([]string, len(result.Hits))
	for i, hit := range result.Hits {
		ids[i] = hit.ID
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns index statistics.
func (b *BleveLexicalIndex) Stats() LexicalStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return LexicalStats{}
	}

	docCount, _ := b.index.DocCount()
	return LexicalStats{DocumentCount: int(docCount)}
}

// Close closes the index.
func (b *BleveLexicalIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// sortLexicalResults orders by score descending, ID ascending on ties.
func sortLexicalResults(results []LexicalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
}

// textTokenizerConstructor creates the record text tokenizer for Bleve.
// The config map round-trips through JSON when a persisted mapping is
// reloaded, so numbers arrive as float64.
func textTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	minLen := DefaultLexicalConfig().MinTokenLength
	switch v := config["min_token_length"].(type) {
	case int:
		minLen = v
	case float64:
		minLen = int(v)
	}
	return &bleveTextTokenizer{minTokenLength: minLen}, nil
}

// bleveTextTokenizer implements analysis.Tokenizer over Tokenize, so Bleve
// indexes exactly the tokens every other backend sees.
type bleveTextTokenizer struct {
	minTokenLength int
}

// Tokenize implements analysis.Tokenizer.
func (t *bleveTextTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	tokens := Tokenize(text, t.minTokenLength)

	result := make(analysis.TokenStream, 0, len(tokens))
	pos := 1
	offset := 0

	for _, token := range tokens {
		start := strings.Index(strings.ToLower(text[offset:]), token)
		if start == -1 {
			start = offset
		} else {
			start += offset
		}
		end := start + len(token)

		result = append(result, &analysis.Token{
			Term:     []byte(token),
			Start:    start,
			End:      end,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
		if end <= len(text) {
			offset = end
		}
	}

	return result
}

// textStopFilterConstructor creates the stop word filter for Bleve. The
// configured word list wins over the default, including an explicitly empty
// list, which disables stop word filtering.
func textStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	words := DefaultStopWords
	if raw, ok := config["stop_words"]; ok {
		switch v := raw.(type) {
		case []string:
			words = v
		case []interface{}:
			words = make([]string, 0, len(v))
			for _, w := range v {
				if s, ok := w.(string); ok {
					words = append(words, s)
				}
			}
		}
	}
	return &bleveTextStopFilter{
		stopWords: BuildStopWordMap(words),
	}, nil
}

// bleveTextStopFilter implements analysis.TokenFilter for stop words.
type bleveTextStopFilter struct {
	stopWords map[string]struct{}
}

// Filter implements analysis.TokenFilter.
func (f *bleveTextStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		term := strings.ToLower(string(token.Term))
		if _, isStop := f.stopWords[term]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
