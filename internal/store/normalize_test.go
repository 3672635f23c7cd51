package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeContent_LineEndings(t *testing.T) {
	// Given: the same content with CRLF, CR, and LF line endings
	crlf := "line one\r\nline two\r\n"
	cr := "line one\rline two\r"
	lf := "line one\nline two\n"

	// When: each variant is normalized
	// Then: all three produce identical output
	assert.Equal(t, NormalizeContent(lf), NormalizeContent(crlf))
	assert.Equal(t, NormalizeContent(lf), NormalizeContent(cr))
	assert.Equal(t, "line one\nline two", NormalizeContent(lf))
}

func TestNormalizeContent_WhitespaceRuns(t *testing.T) {
	// Given: content with tab runs and trailing whitespace
	text := "hello\t\tworld   again  \n  indented\t"

	// When: normalized
	got := NormalizeContent(text)

	// Then: runs collapse to one space and trailing whitespace is gone
	assert.Equal(t, "hello world again\nindented", got)
}

func TestNormalizeContent_UnicodeComposition(t *testing.T) {
	// Given: "é" as a precomposed rune and as e plus combining acute
	precomposed := "café"
	decomposed := "café"

	// Then: both normalize to the same bytes and hash identically
	assert.Equal(t, NormalizeContent(precomposed), NormalizeContent(decomposed))
	assert.Equal(t,
		HashContent(NormalizeContent(precomposed)),
		HashContent(NormalizeContent(decomposed)))
}

func TestHashContent_Deterministic(t *testing.T) {
	// Given: two semantically identical byte representations
	a := HashContent(NormalizeContent("some   text\r\n"))
	b := HashContent(NormalizeContent("some text\n"))

	// Then: hashes match and look like hex SHA-256
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	// And: different content produces a different hash
	c := HashContent(NormalizeContent("other text"))
	assert.NotEqual(t, a, c)
}
