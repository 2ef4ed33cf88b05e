package identity

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docstream/dedupe/internal/types"
)

// stubExtractor returns canned keys per text prefix.
type stubExtractor struct {
	keys  map[string]*types.BlockingKeys
	err   error
	calls int
}

func (s *stubExtractor) ExtractBlockingKeys(_ context.Context, text string) (*types.BlockingKeys, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	if k, ok := s.keys[text]; ok {
		return k, nil
	}
	return &types.BlockingKeys{}, nil
}

func TestStructuralFingerprintOrderIndependence(t *testing.T) {
	a := StructuralFingerprint(&types.Metadata{
		DocType: "contract", Date: "2024-03-15", Parties: []string{"Acme Corp", "Beta LLC"},
	})
	b := StructuralFingerprint(&types.Metadata{
		DocType: "contract", Date: "2024-03-15", Parties: []string{"Beta LLC", "Acme Corp"},
	})
	assert.Equal(t, a, b)
	assert.NotEmpty(t, a)
}

func TestStructuralFingerprintDistinguishes(t *testing.T) {
	base := &types.Metadata{DocType: "contract", Date: "2024-03-15", Parties: []string{"Acme"}}
	amendment := &types.Metadata{DocType: "amendment", Date: "2024-03-15", Parties: []string{"Acme"}}
	assert.NotEqual(t, StructuralFingerprint(base), StructuralFingerprint(amendment))

	assert.Empty(t, StructuralFingerprint(nil))
	assert.Empty(t, StructuralFingerprint(&types.Metadata{}))
}

func TestGuardTierAFingerprints(t *testing.T) {
	// With fingerprints on both sides, tier A decides and the extractor is
	// never consulted.
	stub := &stubExtractor{}
	g := NewGuard(stub, 0)

	same := g.SameDocument(context.Background(),
		Subject{ID: "a", Text: "irrelevant", Fingerprint: "fp1"},
		Subject{ID: "b", Text: "irrelevant", Fingerprint: "fp1"})
	assert.True(t, same)

	distinct := g.SameDocument(context.Background(),
		Subject{ID: "a", Text: "irrelevant", Fingerprint: "fp1"},
		Subject{ID: "b", Text: "irrelevant", Fingerprint: "fp2"})
	assert.False(t, distinct)

	assert.Zero(t, stub.calls)
}

func TestGuardTierBPriority(t *testing.T) {
	tests := []struct {
		name string
		a, b *types.BlockingKeys
		want bool
	}{
		{
			name: "differing PO numbers protect",
			a:    &types.BlockingKeys{PONumber: "PO-1001", VendorName: "Acme LLC"},
			b:    &types.BlockingKeys{PONumber: "PO-2002", VendorName: "Acme LLC"},
			want: false,
		},
		{
			name: "equal PO numbers match and stop",
			a:    &types.BlockingKeys{PONumber: "PO-1001", TotalAmount: "$100.00", VendorName: "Acme"},
			b:    &types.BlockingKeys{PONumber: "po 1001", TotalAmount: "$999.00", VendorName: "Acme"},
			want: true, // amount difference never consulted
		},
		{
			name: "differing invoice numbers protect",
			a:    &types.BlockingKeys{InvoiceNumber: "INV-1"},
			b:    &types.BlockingKeys{InvoiceNumber: "INV-2"},
			want: false,
		},
		{
			name: "same vendor different amounts protect",
			a:    &types.BlockingKeys{VendorName: "Acme Widgets LLC", TotalAmount: "$1,500.00"},
			b:    &types.BlockingKeys{VendorName: "Acme Widgets, Inc.", TotalAmount: "$2,500.00"},
			want: false,
		},
		{
			name: "same vendor different dates protect",
			a:    &types.BlockingKeys{VendorName: "Acme", DocumentDate: "2024-03-15"},
			b:    &types.BlockingKeys{VendorName: "Acme", DocumentDate: "03/16/2024"},
			want: false,
		},
		{
			name: "same vendor same date match",
			a:    &types.BlockingKeys{VendorName: "Acme", DocumentDate: "2024-03-15"},
			b:    &types.BlockingKeys{VendorName: "Acme", DocumentDate: "March 15, 2024"},
			want: true,
		},
		{
			name: "no distinguishing fields match",
			a:    &types.BlockingKeys{DocumentTitle: "Services Agreement"},
			b:    &types.BlockingKeys{DocumentTitle: "Services Agreement"},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &stubExtractor{keys: map[string]*types.BlockingKeys{
				"text-a": tt.a,
				"text-b": tt.b,
			}}
			g := NewGuard(stub, 0)
			got := g.SameDocument(context.Background(),
				Subject{ID: "a", Text: "text-a"},
				Subject{ID: "b", Text: "text-b"})
			assert.Equal(t, tt.want, got)
		})
	}
}

// TestGuardPermissiveDefault covers the one branch where "no evidence"
// resolves to "match": no fingerprints, no extractable keys on either side.
func TestGuardPermissiveDefault(t *testing.T) {
	g := NewGuard(&stubExtractor{}, 0)
	same := g.SameDocument(context.Background(),
		Subject{ID: "a", Text: "lorem ipsum dolor"},
		Subject{ID: "b", Text: "lorem ipsum dolor sit"})
	assert.True(t, same)
}

func TestGuardFallsBackOnExtractorError(t *testing.T) {
	// The failing primary degrades to the regex fallback, which still finds
	// the labeled PO numbers and protects the pair.
	stub := &stubExtractor{err: fmt.Errorf("model timeout: %w", ErrUnavailable)}
	g := NewGuard(stub, 0)

	same := g.SameDocument(context.Background(),
		Subject{ID: "a", Text: "Purchase Order\nPO Number: PO-1001\nVendor: Acme LLC"},
		Subject{ID: "b", Text: "Purchase Order\nPO Number: PO-2002\nVendor: Acme LLC"})
	assert.False(t, same)
	assert.Equal(t, 2, stub.calls)
}

func TestGuardCachesExtractions(t *testing.T) {
	stub := &stubExtractor{}
	g := NewGuard(stub, 0)

	a := Subject{ID: "a", Text: "first document text"}
	b := Subject{ID: "b", Text: "second document text"}
	c := Subject{ID: "c", Text: "third document text"}

	g.SameDocument(context.Background(), a, b)
	g.SameDocument(context.Background(), a, c)
	g.SameDocument(context.Background(), b, c)

	// Three distinct subjects, one extraction each.
	assert.Equal(t, 3, stub.calls)
	assert.Equal(t, 3, g.ExtractorCalls())
}

func TestGuardTruncatesPrefix(t *testing.T) {
	var gotLen int
	stub := &lenExtractor{gotLen: &gotLen}
	g := NewGuard(stub, 100)

	long := make([]byte, 5000)
	for i := range long {
		long[i] = 'x'
	}
	g.SameDocument(context.Background(),
		Subject{ID: "a", Text: string(long)},
		Subject{ID: "b", Text: "short"})
	require.Equal(t, 100, gotLen)
}

type lenExtractor struct {
	gotLen *int
}

func (l *lenExtractor) ExtractBlockingKeys(_ context.Context, text string) (*types.BlockingKeys, error) {
	if len(text) > *l.gotLen {
		*l.gotLen = len(text)
	}
	return &types.BlockingKeys{}, nil
}

// capturingExtractor records every text prefix it is handed.
type capturingExtractor struct {
	texts *[]string
}

func (c capturingExtractor) ExtractBlockingKeys(_ context.Context, text string) (*types.BlockingKeys, error) {
	*c.texts = append(*c.texts, text)
	return &types.BlockingKeys{}, nil
}

func TestGuardTruncatesOnRuneBoundary(t *testing.T) {
	var texts []string
	g := NewGuard(capturingExtractor{texts: &texts}, 5)

	// Two-byte runes: a 5-byte cap lands mid-rune and must back off to 4.
	g.SameDocument(context.Background(),
		Subject{ID: "a", Text: strings.Repeat("é", 40)},
		Subject{ID: "b", Text: "short"})

	require.Len(t, texts, 2)
	assert.Equal(t, strings.Repeat("é", 2), texts[0])
	for _, text := range texts {
		assert.True(t, utf8.ValidString(text))
		assert.LessOrEqual(t, len(text), 5)
	}
}
