package identity

import (
	"context"
	"regexp"
	"strings"

	"github.com/docstream/dedupe/internal/types"
)

// Patterns target the labeled header fields common to invoices, purchase
// orders, and contracts. Values are captured raw; normalization happens at
// comparison time.
var (
	rePONumber = regexp.MustCompile(`(?im)\b(?:Purchase\s+Order|P\.?\s?O\.?)\s*(?:Number|No\.?|#)?\s*[:#]\s*([A-Za-z0-9][A-Za-z0-9/-]{2,})`)
	reInvoice  = regexp.MustCompile(`(?im)\bInvoice\s*(?:Number|No\.?|#)?\s*[:#]\s*([A-Za-z0-9][A-Za-z0-9/-]{2,})`)
	reContract = regexp.MustCompile(`(?im)\b(?:Contract|Agreement)\s*(?:Number|No\.?|#|Ref(?:erence)?\.?)\s*[:#]?\s*([A-Za-z0-9][A-Za-z0-9/-]{2,})`)
	reVendor   = regexp.MustCompile(`(?im)^\s*(?:Vendor|Supplier|Seller|From)\s*:\s*(.{2,80})$`)
	reClient   = regexp.MustCompile(`(?im)^\s*(?:Client|Customer|Buyer|Bill\s*To)\s*:\s*(.{2,80})$`)
	reTotal    = regexp.MustCompile(`(?im)\b(?:Grand\s+Total|Total\s+(?:Amount|Due)|Amount\s+Due|Total)\s*:?\s*([$€£]?\s?\d[\d,]*(?:\.\d{1,2})?(?:\s?(?:USD|EUR|GBP))?)`)
	reDate     = regexp.MustCompile(`(?im)\b(?:Date[d]?|Issued|Effective\s+Date)\s*:?\s*(\d{4}-\d{2}-\d{2}|\d{1,2}/\d{1,2}/\d{4}|[A-Za-z]+\s+\d{1,2},?\s+\d{4})`)
	reISODate  = regexp.MustCompile(`\b(\d{4}-\d{2}-\d{2})\b`)
)

// RegexExtractor is the deterministic fallback blocking-key extractor. It is
// heuristic by design: it only fires on labeled fields, and misses resolve
// to absent fields rather than errors.
type RegexExtractor struct{}

var _ Extractor = (*RegexExtractor)(nil)

// NewRegexExtractor creates the fallback extractor.
func NewRegexExtractor() *RegexExtractor {
	return &RegexExtractor{}
}

// ExtractBlockingKeys scans the text prefix with the field patterns. It
// never returns an error.
func (e *RegexExtractor) ExtractBlockingKeys(_ context.Context, text string) (*types.BlockingKeys, error) {
	keys := &types.BlockingKeys{
		PONumber:          firstMatch(rePONumber, text),
		InvoiceNumber:     firstMatch(reInvoice, text),
		ContractReference: firstMatch(reContract, text),
		VendorName:        firstMatch(reVendor, text),
		ClientName:        firstMatch(reClient, text),
		TotalAmount:       firstMatch(reTotal, text),
		DocumentDate:      firstMatch(reDate, text),
		DocumentTitle:     firstLine(text),
	}
	if keys.DocumentDate == "" {
		keys.DocumentDate = firstMatch(reISODate, text)
	}
	return keys, nil
}

func firstMatch(re *regexp.Regexp, text string) string {
	m := re.FindStringSubmatch(text)
	if len(m) < 2 {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// firstLine returns the first non-empty line as the document title, capped
// at 120 characters.
func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		return line
	}
	return ""
}
