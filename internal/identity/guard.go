package identity

import (
	"context"
	"log"
	"unicode/utf8"

	"github.com/docstream/dedupe/internal/types"
)

// Subject is one side of an arbitration: the entry's ID, its extracted text,
// and its structural fingerprint ("" when no metadata was supplied).
type Subject struct {
	ID          string
	Text        string
	Fingerprint string
}

// Guard arbitrates whether two textual-duplicate candidates are the same
// real-world document.
//
// Tier A: if both subjects carry a structural fingerprint, fingerprint
// equality is the decision and nothing else is consulted.
//
// Tier B: otherwise blocking keys are extracted (lazily, cached for the
// run's lifetime) and compared in strict priority order: PO number, invoice
// number, vendor+amount, vendor+date. Absent any contrary evidence the Guard
// returns true: "no evidence" resolves to "same document".
//
// A Guard holds per-run caches; create one per engine run and discard it.
type Guard struct {
	extractor Extractor // primary, may be nil
	fallback  Extractor // deterministic, never nil
	maxChars  int

	keys  map[string]*types.BlockingKeys // id -> extracted keys (nil entry = nothing extractable)
	calls int
}

// NewGuard creates a per-run Guard. extractor may be nil, in which case only
// the regex fallback runs. maxChars caps the text prefix sent to extractors
// (<=0 selects DefaultMaxExtractChars).
func NewGuard(extractor Extractor, maxChars int) *Guard {
	if maxChars <= 0 {
		maxChars = DefaultMaxExtractChars
	}
	return &Guard{
		extractor: extractor,
		fallback:  NewRegexExtractor(),
		maxChars:  maxChars,
		keys:      make(map[string]*types.BlockingKeys),
	}
}

// ExtractorCalls returns how many extractor invocations this run made
// (cache misses only).
func (g *Guard) ExtractorCalls() int { return g.calls }

// SameDocument reports whether candidate and canonical are the same
// real-world document. true upholds the duplicate verdict; false protects
// the candidate and lets it continue down the pipeline.
func (g *Guard) SameDocument(ctx context.Context, candidate, canonical Subject) bool {
	// Tier A: structural fingerprints, when both sides have one.
	if candidate.Fingerprint != "" && canonical.Fingerprint != "" {
		return candidate.Fingerprint == canonical.Fingerprint
	}

	// Tier B: blocking keys.
	a := g.blockingKeys(ctx, candidate)
	b := g.blockingKeys(ctx, canonical)
	return compareBlockingKeys(a, b)
}

// BlockingKeys exposes the cached keys for an entry, extracting on first
// use. Used by the engine for reporting and by the compare command.
func (g *Guard) BlockingKeys(ctx context.Context, s Subject) *types.BlockingKeys {
	return g.blockingKeys(ctx, s)
}

func (g *Guard) blockingKeys(ctx context.Context, s Subject) *types.BlockingKeys {
	if keys, ok := g.keys[s.ID]; ok {
		return keys
	}

	prefix := s.Text
	if len(prefix) > g.maxChars {
		// Back off to a rune boundary so the prefix stays valid UTF-8.
		cut := g.maxChars
		for cut > 0 && !utf8.RuneStart(prefix[cut]) {
			cut--
		}
		prefix = prefix[:cut]
	}

	var keys *types.BlockingKeys
	if prefix != "" {
		g.calls++
		if g.extractor != nil {
			extracted, err := g.extractor.ExtractBlockingKeys(ctx, prefix)
			if err != nil {
				log.Printf("[GUARD] extractor failed for %s: %v (falling back to regex)", s.ID, err)
			} else {
				keys = extracted
			}
		}
		if keys == nil {
			extracted, err := g.fallback.ExtractBlockingKeys(ctx, prefix)
			if err != nil {
				log.Printf("[GUARD] fallback extraction failed for %s: %v", s.ID, err)
			} else {
				keys = extracted
			}
		}
	}
	if keys.Empty() {
		keys = nil
	}

	g.keys[s.ID] = keys
	return keys
}

// compareBlockingKeys applies the tier-B field comparisons in strict
// priority order. Each numbered rule stops the decision when it fires.
func compareBlockingKeys(a, b *types.BlockingKeys) bool {
	if a == nil {
		a = &types.BlockingKeys{}
	}
	if b == nil {
		b = &types.BlockingKeys{}
	}

	// 1. PO number present on both sides decides outright.
	if av, bv := NormalizeIdent(a.PONumber), NormalizeIdent(b.PONumber); av != "" && bv != "" {
		return av == bv
	}

	// 2. Invoice number: same rule.
	if av, bv := NormalizeIdent(a.InvoiceNumber), NormalizeIdent(b.InvoiceNumber); av != "" && bv != "" {
		return av == bv
	}

	av, bv := NormalizeVendor(a.VendorName), NormalizeVendor(b.VendorName)
	sameVendor := av != "" && av == bv

	// 3. Same vendor but different totals: distinct documents.
	if sameVendor {
		aAmt, aOK := ParseAmount(a.TotalAmount)
		bAmt, bOK := ParseAmount(b.TotalAmount)
		if aOK && bOK && aAmt != bAmt {
			return false
		}
	}

	// 4. Same vendor but different dates: distinct documents.
	if sameVendor {
		aDate, aOK := NormalizeDate(a.DocumentDate)
		bDate, bOK := NormalizeDate(b.DocumentDate)
		if aOK && bOK && aDate != bDate {
			return false
		}
	}

	// 5. No distinguishing field on either side: treat as the same document.
	return true
}
