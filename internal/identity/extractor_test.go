package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleInvoice = `ACME WIDGETS INVOICE

Invoice Number: INV-2024-0042
PO Number: PO-88123
Date: 2024-03-15
Vendor: Acme Widgets LLC
Bill To: Globex Corporation

Description          Qty    Price
Widget, standard      10   $25.00

Total Due: $250.00
`

func TestRegexExtractorInvoiceFields(t *testing.T) {
	keys, err := NewRegexExtractor().ExtractBlockingKeys(context.Background(), sampleInvoice)
	require.NoError(t, err)

	assert.Equal(t, "INV-2024-0042", keys.InvoiceNumber)
	assert.Equal(t, "PO-88123", keys.PONumber)
	assert.Equal(t, "2024-03-15", keys.DocumentDate)
	assert.Equal(t, "Acme Widgets LLC", keys.VendorName)
	assert.Equal(t, "Globex Corporation", keys.ClientName)
	assert.Equal(t, "$250.00", keys.TotalAmount)
	assert.Equal(t, "ACME WIDGETS INVOICE", keys.DocumentTitle)
}

func TestRegexExtractorLabelVariants(t *testing.T) {
	poVariants := []string{
		"PO #: PO-551",
		"P.O. Number: PO-551",
		"Purchase Order No: PO-551",
		"po number: PO-551",
	}
	for _, text := range poVariants {
		keys, err := NewRegexExtractor().ExtractBlockingKeys(context.Background(), text)
		require.NoError(t, err)
		assert.Equal(t, "PO-551", keys.PONumber, "text %q", text)
	}
}

func TestRegexExtractorUnlabeledText(t *testing.T) {
	keys, err := NewRegexExtractor().ExtractBlockingKeys(context.Background(),
		"This agreement is made between the parties on the date written below.")
	require.NoError(t, err)

	assert.Empty(t, keys.PONumber)
	assert.Empty(t, keys.InvoiceNumber)
	assert.Empty(t, keys.VendorName)
	// The first line still serves as a title.
	assert.NotEmpty(t, keys.DocumentTitle)
}

func TestParseBlockingKeysBareJSON(t *testing.T) {
	keys, err := parseBlockingKeys(`{"po_number": "PO-1", "vendor_name": "Acme"}`)
	require.NoError(t, err)
	assert.Equal(t, "PO-1", keys.PONumber)
	assert.Equal(t, "Acme", keys.VendorName)
}

func TestParseBlockingKeysCodeFenced(t *testing.T) {
	response := "Here are the extracted fields:\n```json\n" +
		`{"invoice_number": "INV-7", "total_amount": "$99.00"}` +
		"\n```\nLet me know if you need anything else."
	keys, err := parseBlockingKeys(response)
	require.NoError(t, err)
	assert.Equal(t, "INV-7", keys.InvoiceNumber)
	assert.Equal(t, "$99.00", keys.TotalAmount)
}

func TestParseBlockingKeysNoJSON(t *testing.T) {
	_, err := parseBlockingKeys("I could not find any identifying fields.")
	assert.Error(t, err)
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`},
		{"prose around", `sure: {"a": 1} done`, `{"a": 1}`},
		{"nested braces", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`},
		{"brace inside string", `{"a": "}"}`, `{"a": "}"}`},
		{"escaped quote", `{"a": "say \"hi\""}`, `{"a": "say \"hi\""}`},
		{"unbalanced", `{"a": 1`, ""},
		{"no object", "nothing here", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSON(tt.input))
		})
	}
}
