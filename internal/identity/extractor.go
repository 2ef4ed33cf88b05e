// Package identity implements the final arbitration layer of the pipeline:
// given two documents flagged as textual duplicates, decide whether they are
// the same real-world document or legally distinct (e.g., a base agreement
// and its amendment, or two invoices off the same template).
//
// The decision uses two tiers: a structural fingerprint hashed from
// caller-supplied metadata, and lazily extracted blocking-key fields
// (vendor, PO/invoice number, amount, date) compared in strict priority
// order. Blocking keys come from an injected Extractor, typically the
// model-backed implementation with the deterministic regex extractor as
// fallback.
package identity

import (
	"context"
	"errors"

	"github.com/docstream/dedupe/internal/types"
)

// DefaultMaxExtractChars is the default cap on text sent to an extractor.
const DefaultMaxExtractChars = 4000

// ErrUnavailable is returned by an Extractor that cannot currently produce
// blocking keys (missing credentials, remote failure after retries). The
// Guard degrades to the regex fallback on any extractor error.
var ErrUnavailable = errors.New("identity extractor unavailable")

// Extractor produces blocking-key fields from a document text prefix.
//
// Implementations may be remote (model inference) and must honor ctx
// cancellation. Returning an error never fails the batch; it only triggers
// the fallback path.
type Extractor interface {
	ExtractBlockingKeys(ctx context.Context, text string) (*types.BlockingKeys, error)
}
