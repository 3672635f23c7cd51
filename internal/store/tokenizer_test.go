package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenize_LowercasesAndSplits(t *testing.T) {
	// Given: mixed-case text with punctuation and an identifier
	tokens := Tokenize("Parse JSON-Config, then retry_count++", 2)

	// Then: tokens are lowercased, punctuation dropped, underscores split
	assert.Equal(t, []string{"parse", "json", "config", "then", "retry", "count"}, tokens)
}

func TestTokenize_MinLength(t *testing.T) {
	// Given: text with one-character words
	tokens := Tokenize("a b cd efg", 2)

	// Then: short tokens are filtered out
	assert.Equal(t, []string{"cd", "efg"}, tokens)

	// And: minLen 0 keeps everything
	all := Tokenize("a b cd", 0)
	assert.Equal(t, []string{"a", "b", "cd"}, all)
}

func TestTokenize_SymmetricWithQuery(t *testing.T) {
	// Given: document text and a query phrased differently
	doc := Tokenize("HTTP/2 Server-Push support", 2)
	query := Tokenize("http 2 server push SUPPORT", 2)

	// Then: both sides produce identical tokens
	assert.Equal(t, doc, query)
}

func TestFilterStopWords(t *testing.T) {
	// Given: a token list containing stop words
	stops := BuildStopWordMap(DefaultStopWords)
	tokens := []string{"the", "quick", "fox", "is", "fast"}

	// When: stop words are filtered
	got := FilterStopWords(tokens, stops)

	// Then: only content words remain
	assert.Equal(t, []string{"quick", "fox", "fast"}, got)
}
