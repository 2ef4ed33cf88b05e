// Package engine drives each batch entry through the four identity layers in
// increasing cost order: exact byte hash, normalized content hash, MinHash
// near-duplicate lookup, and Identity Guard arbitration before any duplicate
// verdict is finalized.
//
// One Run owns all shared accumulator state; nothing survives between runs
// and independent runs never share state. Fingerprint computation fans out
// to a bounded worker pool, then match/insert decisions apply strictly
// sequentially in the caller-supplied order. The earliest entry establishes
// the canonical record for any identity (first-seen wins), so input order is
// part of the contract.
package engine

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/docstream/dedupe/internal/hashing"
	"github.com/docstream/dedupe/internal/identity"
	"github.com/docstream/dedupe/internal/minhash"
	"github.com/docstream/dedupe/internal/types"
)

// TextExtractor supplies document text for entries that arrive without
// pre-extracted text. Format-specific extraction (PDF, DOCX, OCR) lives
// behind this interface; an empty result or an error degrades the entry to
// "no text" and skips layers 2-3.
type TextExtractor interface {
	ExtractText(ctx context.Context, entry *types.DocumentEntry) (string, error)
}

// Engine is the pipeline orchestrator. Safe for concurrent independent
// Runs; each Run builds its own accumulator and guard.
type Engine struct {
	cfg Config
	gen *minhash.Generator
}

// New creates an engine with the given configuration.
func New(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	gen, err := minhash.NewGenerator(cfg.Permutations)
	if err != nil {
		return nil, err
	}
	return &Engine{cfg: cfg, gen: gen}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// EstimateSimilarity estimates the Jaccard similarity between two computed
// signatures as carried on a FingerprintSet. Exposed for reporting and
// pairwise diagnosis.
func EstimateSimilarity(a, b []uint64) float64 {
	return minhash.Estimate(minhash.Signature(a), minhash.Signature(b))
}

// fingerprinted is the per-entry output of the parallel stage.
type fingerprinted struct {
	entry *types.DocumentEntry
	text  string // extracted or pre-supplied text
	fp    types.FingerprintSet
	sig   minhash.Signature
	err   error // fatal for this entry only
}

// accumulator is the shared mutable state of one run: hash maps, the LSH
// index, kept signatures, and the guard subjects of canonical entries.
// Mutated only by the sequential apply stage.
type accumulator struct {
	byteHashes    map[string]string
	contentHashes map[string]string
	index         *minhash.Index
	signatures    map[string]minhash.Signature
	subjects      map[string]identity.Subject
}

// Run deduplicates one ordered batch. It returns one EntryResult per input
// in input order plus the kept subset. Entries with an empty ID are assigned
// a UUID before processing.
//
// Cancellation is checked at each entry boundary during the apply stage;
// on cancellation the already-committed results are returned alongside the
// context error.
func (e *Engine) Run(ctx context.Context, entries []*types.DocumentEntry) (*types.BatchResult, error) {
	startTime := time.Now()

	seen := make(map[string]int, len(entries))
	for i, entry := range entries {
		if entry == nil {
			return nil, fmt.Errorf("entry at index %d is nil", i)
		}
		if entry.ID == "" {
			entry.ID = uuid.NewString()
		}
		if prev, ok := seen[entry.ID]; ok {
			return nil, fmt.Errorf("duplicate entry ID %q at indexes %d and %d", entry.ID, prev, i)
		}
		seen[entry.ID] = i
	}

	states := e.fingerprintAll(ctx, entries)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	acc, err := e.newAccumulator()
	if err != nil {
		return nil, err
	}
	guard := identity.NewGuard(e.cfg.IdentityExtractor, e.cfg.MaxExtractChars)

	result := &types.BatchResult{}
	for _, st := range states {
		// Entry boundary: cooperative cancellation. Committed verdicts stand.
		if err := ctx.Err(); err != nil {
			e.finalize(result, guard, startTime)
			return result, err
		}
		res := e.apply(ctx, st, acc, guard, &result.Stats)
		result.Results = append(result.Results, res)
		if res.Err == nil && !res.Verdict.IsDuplicate {
			result.Kept = append(result.Kept, st.entry)
		}
	}
	e.finalize(result, guard, startTime)
	return result, nil
}

// fingerprintAll computes every entry's fingerprints on a bounded worker
// pool. Per-entry errors are recorded, never propagated.
func (e *Engine) fingerprintAll(ctx context.Context, entries []*types.DocumentEntry) []*fingerprinted {
	states := make([]*fingerprinted, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxWorkers)
	for i, entry := range entries {
		i, entry := i, entry
		g.Go(func() error {
			states[i] = e.fingerprint(gctx, entry)
			return nil
		})
	}
	_ = g.Wait() // workers only record errors per entry
	return states
}

// fingerprint computes the full FingerprintSet for one entry.
func (e *Engine) fingerprint(ctx context.Context, entry *types.DocumentEntry) *fingerprinted {
	st := &fingerprinted{entry: entry}

	if err := entry.Validate(); err != nil {
		st.err = fmt.Errorf("invalid entry: %w", err)
		return st
	}

	text := entry.Text
	if text == "" && entry.Source != nil && e.cfg.TextExtractor != nil {
		extracted, err := e.cfg.TextExtractor.ExtractText(ctx, entry)
		if err != nil {
			// Extraction failure degrades to "no text": layer 1 still runs.
			log.Printf("[ENGINE] text extraction failed for %s: %v (layers 2-3 disabled)", entry.ID, err)
		} else {
			text = extracted
		}
	}
	st.text = text

	byteHash, err := e.hashEntryBytes(entry, text)
	if err != nil {
		st.err = fmt.Errorf("byte hash for %s: %w", entry.ID, err)
		return st
	}
	st.fp.ByteHash = byteHash

	tokens := hashing.TokenSet(text)
	if len(tokens) > 0 {
		st.fp.ContentHash = hashing.HashContent(text)
		st.sig = e.gen.Signature(tokens)
		st.fp.Signature = st.sig
		st.fp.TokenCount = len(tokens)
	}

	st.fp.StructuralFingerprint = identity.StructuralFingerprint(entry.Metadata)
	return st
}

func (e *Engine) hashEntryBytes(entry *types.DocumentEntry, text string) (string, error) {
	var r io.Reader
	if entry.Source != nil {
		rc, err := entry.Source.Open()
		if err != nil {
			return "", err
		}
		defer rc.Close()
		r = rc
	} else {
		r = strings.NewReader(text)
	}
	return hashing.HashBytes(r, e.cfg.ChunkSize)
}

// apply runs the match/insert stage for one entry against the accumulator.
func (e *Engine) apply(ctx context.Context, st *fingerprinted, acc *accumulator, guard *identity.Guard, stats *types.BatchStats) *types.EntryResult {
	res := &types.EntryResult{
		Entry:        st.entry,
		ID:           st.entry.ID,
		Fingerprints: st.fp,
	}

	if st.err != nil {
		res.Err = st.err
		stats.FailedEntries++
		log.Printf("[ENGINE] entry %s failed: %v (batch continues)", res.ID, st.err)
		return res
	}

	subject := identity.Subject{
		ID:          res.ID,
		Text:        st.text,
		Fingerprint: st.fp.StructuralFingerprint,
	}

	// GuardVetoes counts entries kept distinct by arbitration, not
	// consultations: an entry vetoed at several layers is one veto.
	vetoed := false
	veto := func() {
		if !vetoed {
			vetoed = true
			stats.GuardVetoes++
		}
	}

	// Layer 1: exact byte hash.
	if canonical, ok := acc.byteHashes[st.fp.ByteHash]; ok {
		if guard.SameDocument(ctx, subject, acc.subjects[canonical]) {
			return e.markDuplicate(res, canonical, types.LayerByteHash, stats)
		}
		veto()
	}

	// Layer 2: normalized content hash.
	if st.fp.ContentHash != "" {
		if canonical, ok := acc.contentHashes[st.fp.ContentHash]; ok {
			if guard.SameDocument(ctx, subject, acc.subjects[canonical]) {
				return e.markDuplicate(res, canonical, types.LayerContentHash, stats)
			}
			veto()
		}
	}

	// Layer 3: MinHash/LSH near-duplicate lookup. Banding retrieves
	// candidates; acceptance requires the direct signature estimate to meet
	// the threshold. Candidates are consulted best-first.
	if len(st.sig) > 0 {
		for _, cand := range e.rankCandidates(acc, st.sig) {
			if guard.SameDocument(ctx, subject, acc.subjects[cand]) {
				return e.markDuplicate(res, cand, types.LayerNearDuplicate, stats)
			}
			veto()
		}
	}

	// Unique: establish this entry as canonical for its identities.
	// Registration is first-seen-wins: a hash already mapped (possible
	// after a guard veto) keeps its earlier canonical owner.
	if _, ok := acc.byteHashes[st.fp.ByteHash]; !ok {
		acc.byteHashes[st.fp.ByteHash] = res.ID
	}
	if st.fp.ContentHash != "" {
		if _, ok := acc.contentHashes[st.fp.ContentHash]; !ok {
			acc.contentHashes[st.fp.ContentHash] = res.ID
		}
	}
	if len(st.sig) > 0 {
		if err := acc.index.Insert(res.ID, st.sig); err != nil {
			res.Err = fmt.Errorf("index insert for %s: %w", res.ID, err)
			stats.FailedEntries++
			return res
		}
		acc.signatures[res.ID] = st.sig
	}
	acc.subjects[res.ID] = subject
	return res
}

// rankCandidates queries the LSH index and returns the candidate IDs whose
// direct signature estimate meets the threshold, ordered by descending
// estimate with ties broken by ascending ID (deterministic).
func (e *Engine) rankCandidates(acc *accumulator, sig minhash.Signature) []string {
	type scored struct {
		id  string
		est float64
	}
	var accepted []scored
	for _, id := range acc.index.Query(sig) {
		est := minhash.Estimate(sig, acc.signatures[id])
		if est >= e.cfg.JaccardThreshold {
			accepted = append(accepted, scored{id: id, est: est})
		}
	}
	sort.Slice(accepted, func(i, j int) bool {
		if accepted[i].est != accepted[j].est {
			return accepted[i].est > accepted[j].est
		}
		return accepted[i].id < accepted[j].id
	})
	ids := make([]string, len(accepted))
	for i, s := range accepted {
		ids[i] = s.id
	}
	return ids
}

func (e *Engine) markDuplicate(res *types.EntryResult, canonical string, layer types.Layer, stats *types.BatchStats) *types.EntryResult {
	res.Verdict = types.Verdict{
		IsDuplicate:  true,
		DuplicateOf:  canonical,
		MatchedLayer: layer,
	}
	stats.DuplicateCount++
	stats.LayerCounts[layer]++
	return res
}

func (e *Engine) newAccumulator() (*accumulator, error) {
	index, err := minhash.NewIndex(e.cfg.Bands, e.cfg.Rows)
	if err != nil {
		return nil, err
	}
	return &accumulator{
		byteHashes:    make(map[string]string),
		contentHashes: make(map[string]string),
		index:         index,
		signatures:    make(map[string]minhash.Signature),
		subjects:      make(map[string]identity.Subject),
	}, nil
}

func (e *Engine) finalize(result *types.BatchResult, guard *identity.Guard, startTime time.Time) {
	result.Stats.TotalEntries = len(result.Results)
	result.Stats.UniqueCount = len(result.Kept)
	result.Stats.ExtractorCalls = guard.ExtractorCalls()
	result.Stats.ProcessingTime = time.Since(startTime)
}
