package identity

import (
	"math"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// legalSuffixes are trailing legal-entity tokens stripped from vendor names
// so "Acme Corp." and "ACME Corporation" compare equal.
var legalSuffixes = map[string]struct{}{
	"llc": {}, "inc": {}, "incorporated": {}, "corp": {}, "corporation": {},
	"ltd": {}, "limited": {}, "co": {}, "company": {}, "gmbh": {}, "plc": {},
	"llp": {}, "lp": {}, "sa": {}, "ag": {},
}

// NormalizeIdent canonicalizes reference identifiers (PO numbers, invoice
// numbers, contract references): lowercase with every non-alphanumeric rune
// removed, so "PO-12345", "PO 12345" and "po#12345" compare equal.
func NormalizeIdent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		}
	}
	return b.String()
}

// NormalizeVendor canonicalizes a vendor or client name: lowercase,
// punctuation stripped, whitespace collapsed, trailing legal-entity
// suffixes removed.
func NormalizeVendor(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			// stripped
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteRune(r)
		}
	}
	fields := strings.Fields(b.String())
	for len(fields) > 1 {
		if _, ok := legalSuffixes[fields[len(fields)-1]]; !ok {
			break
		}
		fields = fields[:len(fields)-1]
	}
	return strings.Join(fields, " ")
}

// currencyTokens are leading/trailing currency markers ignored when parsing
// amounts.
var currencyTokens = map[string]struct{}{
	"usd": {}, "eur": {}, "gbp": {}, "cad": {}, "aud": {},
}

// ParseAmount parses a currency-formatted string into integer cents,
// ignoring symbols and thousands separators. "$1,234.50", "1234.50 USD" and
// "1,234.5" all parse to 123450. Returns false when no amount can be parsed.
func ParseAmount(s string) (int64, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, false
	}
	fields := strings.Fields(s)
	kept := fields[:0]
	for _, f := range fields {
		if _, ok := currencyTokens[f]; ok {
			continue
		}
		kept = append(kept, f)
	}
	s = strings.Join(kept, "")

	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		case r == ',', r == '$', r == '€', r == '£', r == '¥', r == ' ':
			// separators and symbols ignored
		default:
			return 0, false
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return int64(math.Round(v * 100)), true
}

// dateLayouts are tried in order: ISO-8601 first, then common locale
// formats. US month-first interpretation is assumed for slashed dates.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"01-02-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"2 January 2006",
	"Jan 2 2006",
	"20060102",
}

// NormalizeDate parses ISO-8601 and common locale date strings into the
// canonical "2006-01-02" form. Returns false when no layout matches.
func NormalizeDate(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), true
		}
	}
	return "", false
}
