// Package types defines the data model shared by the deduplication pipeline:
// document entries, computed fingerprints, blocking-key records, and verdicts.
package types

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"
)

// Layer identifies which pipeline layer produced a duplicate verdict.
type Layer int

const (
	// LayerNone means no layer matched (unique entry).
	LayerNone Layer = 0

	// LayerByteHash is exact byte-level identity (layer 1).
	LayerByteHash Layer = 1

	// LayerContentHash is normalized-text identity (layer 2).
	LayerContentHash Layer = 2

	// LayerNearDuplicate is MinHash/LSH approximate identity (layer 3).
	LayerNearDuplicate Layer = 3
)

func (l Layer) String() string {
	switch l {
	case LayerByteHash:
		return "byte-hash"
	case LayerContentHash:
		return "content-hash"
	case LayerNearDuplicate:
		return "near-duplicate"
	default:
		return "none"
	}
}

// ByteSource provides the raw bytes of a document. Sources are opened once
// per fingerprint computation and read in bounded chunks.
type ByteSource interface {
	Open() (io.ReadCloser, error)
}

// FileSource is a ByteSource backed by a file on disk.
type FileSource string

// Open opens the underlying file for reading.
func (f FileSource) Open() (io.ReadCloser, error) {
	return os.Open(string(f))
}

// BytesSource is an in-memory ByteSource, used by callers that already hold
// the document bytes and heavily by tests.
type BytesSource []byte

// Open returns a reader over the in-memory bytes.
func (b BytesSource) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(b)), nil
}

// Metadata is caller-supplied structured document metadata. Any field may be
// empty; missing fields are treated as "not provided", never as an error.
type Metadata struct {
	DocType string   `json:"doc_type,omitempty" yaml:"doc_type,omitempty"`
	Date    string   `json:"date,omitempty" yaml:"date,omitempty"`
	Parties []string `json:"parties,omitempty" yaml:"parties,omitempty"`
}

// Empty reports whether the metadata carries no usable identity signal.
func (m *Metadata) Empty() bool {
	return m == nil || (m.DocType == "" && m.Date == "" && len(m.Parties) == 0)
}

// DocumentEntry is one batch input: a stable identifier, a byte source,
// optional pre-extracted text, and optional metadata.
//
// If ID is empty the engine assigns a UUID at run start. Entries with no
// Source hash their text bytes at layer 1; entries with no Text and no text
// extractor skip layers 2-3.
type DocumentEntry struct {
	ID       string
	Source   ByteSource
	Text     string
	Metadata *Metadata
}

// Validate checks that the entry carries at least one content source.
func (e *DocumentEntry) Validate() error {
	if e.Source == nil && e.Text == "" {
		return fmt.Errorf("entry must have a byte source or pre-extracted text")
	}
	return nil
}

// FingerprintSet holds everything computed about a single entry. Computed
// once per entry and immutable afterwards.
//
// ContentHash and Signature are set iff the normalized text is non-empty.
// StructuralFingerprint is set iff the entry carried non-empty metadata.
type FingerprintSet struct {
	ByteHash              string   `json:"byte_hash"`
	ContentHash           string   `json:"content_hash,omitempty"`
	Signature             []uint64 `json:"minhash_signature,omitempty"`
	StructuralFingerprint string   `json:"structural_fingerprint,omitempty"`
	TokenCount            int      `json:"token_count"`
}

// BlockingKeys are structured identifying fields extracted from document
// text, used to distinguish template-similar but business-distinct documents.
// Every field is independently optional.
type BlockingKeys struct {
	DocumentTitle     string `json:"document_title,omitempty"`
	VendorName        string `json:"vendor_name,omitempty"`
	ClientName        string `json:"client_name,omitempty"`
	InvoiceNumber     string `json:"invoice_number,omitempty"`
	PONumber          string `json:"po_number,omitempty"`
	TotalAmount       string `json:"total_amount,omitempty"`
	DocumentDate      string `json:"document_date,omitempty"`
	ContractReference string `json:"contract_reference,omitempty"`
}

// Empty reports whether no field was extracted.
func (k *BlockingKeys) Empty() bool {
	if k == nil {
		return true
	}
	return *k == BlockingKeys{}
}

// Verdict is the engine's decision for one entry.
type Verdict struct {
	// IsDuplicate is true when the entry duplicates an earlier kept entry.
	IsDuplicate bool `json:"is_duplicate"`

	// DuplicateOf is the ID of the canonical entry. Set iff IsDuplicate.
	DuplicateOf string `json:"duplicate_of,omitempty"`

	// MatchedLayer is the pipeline layer that matched. Set iff IsDuplicate.
	MatchedLayer Layer `json:"matched_layer,omitempty"`
}

// Validate checks the verdict invariant: duplicate verdicts carry a canonical
// ID and a layer, unique verdicts carry neither.
func (v *Verdict) Validate() error {
	if v.IsDuplicate {
		if v.DuplicateOf == "" {
			return fmt.Errorf("duplicate_of must be set when is_duplicate is true")
		}
		if v.MatchedLayer < LayerByteHash || v.MatchedLayer > LayerNearDuplicate {
			return fmt.Errorf("matched_layer must be 1-3 when is_duplicate is true (got %d)", v.MatchedLayer)
		}
		return nil
	}
	if v.DuplicateOf != "" {
		return fmt.Errorf("duplicate_of should not be set when is_duplicate is false")
	}
	if v.MatchedLayer != LayerNone {
		return fmt.Errorf("matched_layer should not be set when is_duplicate is false")
	}
	return nil
}

// EntryResult pairs one input entry with its verdict and computed
// fingerprints. Results are returned in the caller-supplied input order.
type EntryResult struct {
	Entry        *DocumentEntry `json:"-"`
	ID           string         `json:"id"`
	Fingerprints FingerprintSet `json:"fingerprints"`
	Verdict      Verdict        `json:"verdict"`

	// Err is set when the entry failed fatally (unreadable bytes). Failed
	// entries are neither kept nor registered in the accumulator.
	Err error `json:"-"`
}

// BatchStats summarizes one engine run.
type BatchStats struct {
	TotalEntries   int           `json:"total_entries"`
	UniqueCount    int           `json:"unique_count"`
	DuplicateCount int           `json:"duplicate_count"`
	LayerCounts    [4]int        `json:"layer_counts"` // indexed by Layer
	GuardVetoes    int           `json:"guard_vetoes"`
	ExtractorCalls int           `json:"extractor_calls"`
	FailedEntries  int           `json:"failed_entries"`
	ProcessingTime time.Duration `json:"processing_time"`
}

// BatchResult is the full outcome of one engine run: one result per input in
// input order, plus the kept (unique) subset for convenience.
type BatchResult struct {
	Results []*EntryResult   `json:"results"`
	Kept    []*DocumentEntry `json:"-"`
	Stats   BatchStats       `json:"stats"`
}

// Validate checks internal consistency of the batch result.
func (r *BatchResult) Validate() error {
	if r.Stats.TotalEntries != len(r.Results) {
		return fmt.Errorf("stats.total_entries (%d) does not match results length (%d)",
			r.Stats.TotalEntries, len(r.Results))
	}
	if r.Stats.UniqueCount != len(r.Kept) {
		return fmt.Errorf("stats.unique_count (%d) does not match kept length (%d)",
			r.Stats.UniqueCount, len(r.Kept))
	}
	unique, dup, failed := 0, 0, 0
	for i, res := range r.Results {
		if res == nil {
			return fmt.Errorf("result at index %d is nil", i)
		}
		if err := res.Verdict.Validate(); err != nil {
			return fmt.Errorf("invalid verdict for %s: %w", res.ID, err)
		}
		switch {
		case res.Err != nil:
			failed++
		case res.Verdict.IsDuplicate:
			dup++
		default:
			unique++
		}
	}
	if unique != r.Stats.UniqueCount {
		return fmt.Errorf("stats.unique_count (%d) does not match unique results (%d)", r.Stats.UniqueCount, unique)
	}
	if dup != r.Stats.DuplicateCount {
		return fmt.Errorf("stats.duplicate_count (%d) does not match duplicate results (%d)", r.Stats.DuplicateCount, dup)
	}
	if failed != r.Stats.FailedEntries {
		return fmt.Errorf("stats.failed_entries (%d) does not match failed results (%d)", r.Stats.FailedEntries, failed)
	}
	return nil
}
