// Package extract provides the built-in text extraction collaborator.
// Format-specific extraction (PDF, DOCX, OCR) is out of scope; PlainText
// covers the CLI case of documents that are already text.
package extract

import (
	"context"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/docstream/dedupe/internal/types"
)

// MaxTextBytes caps how much of a source is read as text.
const MaxTextBytes = 4 * 1024 * 1024

// PlainText reads the entry's byte source and returns it as text when it is
// valid UTF-8. Binary content yields empty text, which disables layers 2-3
// for the entry while layer 1 still applies.
type PlainText struct{}

// ExtractText implements engine.TextExtractor.
func (PlainText) ExtractText(_ context.Context, entry *types.DocumentEntry) (string, error) {
	if entry.Source == nil {
		return "", nil
	}
	rc, err := entry.Source.Open()
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxTextBytes))
	if err != nil {
		return "", fmt.Errorf("read source: %w", err)
	}
	if !utf8.Valid(data) {
		return "", nil
	}
	return string(data), nil
}
