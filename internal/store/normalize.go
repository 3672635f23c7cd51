package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeContent canonicalizes source text before hashing and indexing so
// that semantically identical content in different byte representations
// hashes identically. Applied transformations:
//   - Unicode NFC normalization
//   - CRLF and CR line endings folded to LF
//   - runs of spaces and tabs collapsed to a single space
//   - trailing whitespace stripped per line, outer whitespace trimmed
func NormalizeContent(text string) string {
	text = norm.NFC.String(text)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = collapseSpaces(strings.TrimRightFunc(line, unicode.IsSpace))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// collapseSpaces folds runs of horizontal whitespace into a single space.
func collapseSpaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range s {
		if r == ' ' || r == '\t' || r == ' ' {
			inRun = true
			continue
		}
		if inRun {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			inRun = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// HashContent computes the hex SHA-256 digest of already-normalized content.
func HashContent(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
