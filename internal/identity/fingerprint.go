package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/docstream/dedupe/internal/hashing"
	"github.com/docstream/dedupe/internal/types"
)

// StructuralFingerprint hashes caller-supplied metadata into the primary
// identity signal: normalized doc type, normalized date, and the sorted
// normalized party list joined with "|". Sorting makes the fingerprint
// independent of party order. Returns "" when the metadata carries no
// signal.
func StructuralFingerprint(m *types.Metadata) string {
	if m.Empty() {
		return ""
	}
	parties := make([]string, 0, len(m.Parties))
	for _, p := range m.Parties {
		parties = append(parties, hashing.Normalize(p))
	}
	sort.Strings(parties)

	parts := []string{
		hashing.Normalize(m.DocType),
		hashing.Normalize(m.Date),
		strings.Join(parties, "|"),
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
