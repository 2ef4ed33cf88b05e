// Package minhash implements fixed-size MinHash signatures over token sets
// and a banded LSH index for O(1)-amortized near-duplicate candidate lookup.
//
// A signature is k slot values, one per hash permutation: the minimum
// permuted token hash observed across the set. The fraction of equal slots
// between two signatures is an unbiased estimate of the Jaccard similarity
// of the underlying token sets, converging as k grows.
package minhash

import (
	"fmt"
	"hash/fnv"
)

// DefaultPermutations is the default signature length.
const DefaultPermutations = 128

// Signature is a fixed-length MinHash signature.
type Signature []uint64

// Generator computes MinHash signatures using k universal-hash permutations
// of the form p(h) = a*h + b over the 64-bit token hash. Permutation
// parameters are derived deterministically from a fixed seed, so signatures
// are stable across runs and processes.
type Generator struct {
	k    int
	muls []uint64
	adds []uint64
}

// NewGenerator creates a generator with k permutations.
func NewGenerator(k int) (*Generator, error) {
	if k <= 0 {
		return nil, fmt.Errorf("permutation count must be positive (got %d)", k)
	}
	g := &Generator{
		k:    k,
		muls: make([]uint64, k),
		adds: make([]uint64, k),
	}
	// splitmix64 stream seeded with a fixed constant; multipliers forced odd
	// so each permutation is a bijection on uint64.
	state := uint64(0x9e3779b97f4a7c15)
	for i := 0; i < k; i++ {
		g.muls[i] = splitmix64(&state) | 1
		g.adds[i] = splitmix64(&state)
	}
	return g, nil
}

// K returns the permutation count.
func (g *Generator) K() int { return g.k }

// Signature computes the MinHash signature of a token set. Returns nil for
// an empty set.
func (g *Generator) Signature(tokens map[string]struct{}) Signature {
	if len(tokens) == 0 {
		return nil
	}
	sig := make(Signature, g.k)
	for i := range sig {
		sig[i] = ^uint64(0)
	}
	for tok := range tokens {
		h := hashToken(tok)
		for i := 0; i < g.k; i++ {
			if v := g.muls[i]*h + g.adds[i]; v < sig[i] {
				sig[i] = v
			}
		}
	}
	return sig
}

// Estimate returns the estimated Jaccard similarity between two signatures:
// the fraction of matching slots. Signatures of different lengths (or nil
// signatures) estimate to 0.
func Estimate(a, b Signature) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	matches := 0
	for i := range a {
		if a[i] == b[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(a))
}

func hashToken(tok string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(tok))
	return h.Sum64()
}

// splitmix64 is the standard 64-bit mix used to derive permutation
// parameters from the fixed seed.
func splitmix64(state *uint64) uint64 {
	*state += 0x9e3779b97f4a7c15
	z := *state
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
