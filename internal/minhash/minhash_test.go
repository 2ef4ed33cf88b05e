package minhash

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tokenSet(tokens ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	return set
}

// numbered builds a token set of n distinct tokens with a shared prefix.
func numbered(prefix string, n int) map[string]struct{} {
	set := make(map[string]struct{}, n)
	for i := 0; i < n; i++ {
		set[fmt.Sprintf("%s%d", prefix, i)] = struct{}{}
	}
	return set
}

func TestNewGeneratorValidation(t *testing.T) {
	_, err := NewGenerator(0)
	assert.Error(t, err)
	_, err = NewGenerator(-4)
	assert.Error(t, err)

	g, err := NewGenerator(64)
	require.NoError(t, err)
	assert.Equal(t, 64, g.K())
}

func TestSignatureDeterministic(t *testing.T) {
	g1, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)
	g2, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)

	set := tokenSet("alpha", "beta", "gamma", "delta")
	sig1 := g1.Signature(set)
	sig2 := g2.Signature(set)

	require.Len(t, sig1, DefaultPermutations)
	assert.Equal(t, sig1, sig2, "independently built generators must agree")
}

func TestSignatureEmptySet(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)
	assert.Nil(t, g.Signature(nil))
	assert.Nil(t, g.Signature(tokenSet()))
}

func TestEstimateIdenticalAndDisjoint(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)

	a := g.Signature(numbered("tok", 50))
	b := g.Signature(numbered("tok", 50))
	assert.Equal(t, 1.0, Estimate(a, b))

	c := g.Signature(numbered("other", 50))
	// Disjoint sets: the estimate should sit near zero.
	assert.Less(t, Estimate(a, c), 0.15)
}

func TestEstimateTracksJaccard(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)

	// 45 of 50 tokens shared: true Jaccard = 45/55 ≈ 0.818.
	a := numbered("shared", 45)
	b := numbered("shared", 45)
	for i := 0; i < 5; i++ {
		a[fmt.Sprintf("onlya%d", i)] = struct{}{}
		b[fmt.Sprintf("onlyb%d", i)] = struct{}{}
	}
	est := Estimate(g.Signature(a), g.Signature(b))
	assert.InDelta(t, 45.0/55.0, est, 0.12)
}

func TestEstimateMismatchedLengths(t *testing.T) {
	g128, _ := NewGenerator(128)
	g64, _ := NewGenerator(64)
	set := numbered("tok", 10)
	assert.Equal(t, 0.0, Estimate(g128.Signature(set), g64.Signature(set)))
	assert.Equal(t, 0.0, Estimate(nil, nil))
}

func TestIndexValidation(t *testing.T) {
	_, err := NewIndex(0, 8)
	assert.Error(t, err)
	_, err = NewIndex(16, 0)
	assert.Error(t, err)

	idx, err := NewIndex(DefaultBands, DefaultRows)
	require.NoError(t, err)
	assert.Equal(t, DefaultPermutations, idx.SignatureLen())

	err = idx.Insert("short", make(Signature, 12))
	assert.Error(t, err, "wrong signature length must be rejected")
}

func TestIndexFindsNearDuplicates(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)
	idx, err := NewIndex(DefaultBands, DefaultRows)
	require.NoError(t, err)

	// One-token edit on a 50-token document: Jaccard ≈ 0.96.
	base := numbered("word", 50)
	edited := numbered("word", 49)
	edited["replacement"] = struct{}{}

	baseSig := g.Signature(base)
	require.NoError(t, idx.Insert("base", baseSig))

	candidates := idx.Query(g.Signature(edited))
	assert.Contains(t, candidates, "base")
}

func TestIndexRejectsDissimilar(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)
	idx, err := NewIndex(DefaultBands, DefaultRows)
	require.NoError(t, err)

	require.NoError(t, idx.Insert("doc", g.Signature(numbered("first", 50))))

	// Disjoint token set: a band collision would need 8 identical rows.
	candidates := idx.Query(g.Signature(numbered("second", 50)))
	assert.NotContains(t, candidates, "doc")
}

func TestIndexQueryDeterministicOrder(t *testing.T) {
	g, err := NewGenerator(DefaultPermutations)
	require.NoError(t, err)
	idx, err := NewIndex(DefaultBands, DefaultRows)
	require.NoError(t, err)

	set := numbered("tok", 40)
	sig := g.Signature(set)
	require.NoError(t, idx.Insert("b", sig))
	require.NoError(t, idx.Insert("a", sig))
	require.NoError(t, idx.Insert("c", sig))

	assert.Equal(t, []string{"a", "b", "c"}, idx.Query(sig))
}
