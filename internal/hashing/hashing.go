// Package hashing implements the two cheap identity layers: streamed exact
// byte hashing and normalized-text content hashing, plus the tokenizer that
// feeds the near-duplicate index.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// DefaultChunkSize is the read size for byte hashing. Bounds memory
// independent of file size.
const DefaultChunkSize = 8 * 1024

// HashBytes streams r in fixed-size chunks and returns the hex SHA-256
// digest of its contents. The only failure mode is a read error, which is
// fatal for the entry being fingerprinted but not for the batch.
func HashBytes(r io.Reader, chunkSize int) (string, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	h := sha256.New()
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("read for byte hash: %w", err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Normalize canonicalizes text so superficial formatting differences do not
// defeat hashing: ASCII case folding, punctuation stripped, runs of
// whitespace collapsed to a single space, ends trimmed.
//
// The function is pure and locale-independent; identical input always yields
// identical output across runs and platforms.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true // leading whitespace collapses to nothing
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		case unicode.IsPunct(r) || unicode.IsSymbol(r) || unicode.IsControl(r):
			// stripped
		default:
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
			b.WriteRune(r)
			lastSpace = false
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// HashContent returns the hex SHA-256 digest of the normalized text, or ""
// when the text is empty after normalization.
func HashContent(text string) string {
	normalized := Normalize(text)
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}

// Tokenize splits normalized text on whitespace. Returns nil when nothing
// survives normalization.
func Tokenize(text string) []string {
	normalized := Normalize(text)
	if normalized == "" {
		return nil
	}
	return strings.Fields(normalized)
}

// TokenSet returns the distinct tokens of text.
func TokenSet(text string) map[string]struct{} {
	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}
