package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercased tokens. Index and query paths share
// this function so a document always matches its own terms. Any rune that is
// not a letter or digit separates tokens, so identifiers like retry_count
// yield their parts. Tokens shorter than minLen are dropped (0 keeps all).
func Tokenize(text string, minLen int) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	tokens := make([]string, 0, len(fields))
	for _, field := range fields {
		token := strings.ToLower(field)
		if len(token) >= minLen && token != "" {
			tokens = append(tokens, token)
		}
	}
	return tokens
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	kept := tokens[:0:0]
	for _, token := range tokens {
		if _, stop := stopWords[strings.ToLower(token)]; !stop {
			kept = append(kept, token)
		}
	}
	return kept
}

// BuildStopWordMap lowercases a stop word list into a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, word := range words {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}
