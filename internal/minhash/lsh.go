package minhash

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Default band split for k=128. With b=16 bands of r=8 rows, the probability
// of retrieving a candidate at Jaccard similarity s is 1-(1-s^8)^16:
// about 0.994 at s=0.85 and 0.24 at s=0.60. Misses at or above the 0.85
// acceptance threshold are therefore rare (<1%), and sub-threshold
// collisions cost only a direct signature comparison, because banding is
// retrieval-only: acceptance always re-checks the estimate against the
// configured threshold.
const (
	DefaultBands = 16
	DefaultRows  = 8
)

// Index is a banded LSH index over MinHash signatures. Two signatures land
// in the same bucket of a band when all rows of that band are identical; a
// query returns the union of bucket members across bands.
//
// The index is not safe for concurrent use. The engine confines it to the
// single sequential writer that owns the batch accumulator.
type Index struct {
	bands   int
	rows    int
	buckets []map[string][]string // one bucket map per band
}

// NewIndex creates an index for signatures of length bands*rows.
func NewIndex(bands, rows int) (*Index, error) {
	if bands <= 0 || rows <= 0 {
		return nil, fmt.Errorf("bands and rows must be positive (got %d, %d)", bands, rows)
	}
	idx := &Index{
		bands:   bands,
		rows:    rows,
		buckets: make([]map[string][]string, bands),
	}
	for i := range idx.buckets {
		idx.buckets[i] = make(map[string][]string)
	}
	return idx, nil
}

// SignatureLen returns the signature length the index expects.
func (x *Index) SignatureLen() int { return x.bands * x.rows }

// Insert adds id to every band bucket of its signature.
func (x *Index) Insert(id string, sig Signature) error {
	if len(sig) != x.SignatureLen() {
		return fmt.Errorf("signature length %d does not match index (want %d)", len(sig), x.SignatureLen())
	}
	for band := 0; band < x.bands; band++ {
		key := x.bandKey(sig, band)
		x.buckets[band][key] = append(x.buckets[band][key], id)
	}
	return nil
}

// Query returns the IDs sharing at least one band bucket with sig, sorted
// and deduplicated for deterministic downstream iteration.
func (x *Index) Query(sig Signature) []string {
	if len(sig) != x.SignatureLen() {
		return nil
	}
	seen := make(map[string]struct{})
	for band := 0; band < x.bands; band++ {
		for _, id := range x.buckets[band][x.bandKey(sig, band)] {
			seen[id] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (x *Index) bandKey(sig Signature, band int) string {
	buf := make([]byte, 8*x.rows)
	for row := 0; row < x.rows; row++ {
		binary.LittleEndian.PutUint64(buf[8*row:], sig[band*x.rows+row])
	}
	return string(buf)
}
