package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// DomainFact separates fact hashes from any other hash the ledger may carry.
const DomainFact = "railyard/fact/v1"

// hashWithDomain computes SHA256(domain || 0x00 || data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// FactID computes the content-addressed id of a fact. The seq is part of the
// identity so two identical events in one flow get distinct ids.
func FactID(flowToken, kind string, source Address, attrs Attrs, seq int64) (string, error) {
	if attrs == nil {
		attrs = Attrs{}
	}
	canonical, err := MarshalCanonical(map[string]any{
		"flow_token": flowToken,
		"kind":       kind,
		"source":     string(source),
		"attrs":      map[string]any(attrs),
		"seq":        seq,
	})
	if err != nil {
		return "", fmt.Errorf("FactID: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainFact, canonical), nil
}
