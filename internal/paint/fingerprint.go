package paint

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/gowebpki/jcs"

	"github.com/hazyhaar/visor/artifact"
)

// HashLen is the number of hex characters kept from the SHA-256 digest.
// 64 bits of fingerprint is a deliberate precision/compactness tradeoff:
// plenty for regression comparison, short enough to read in a report.
const HashLen = 16

// Fingerprint canonicalizes the command sequence (RFC 8785 JSON
// canonicalization, so key order can never leak into the hash) and
// returns the truncated SHA-256 digest. An empty sequence hashes too;
// whether that hash means anything is the caller's call.
func Fingerprint(cmds []artifact.Command) (string, error) {
	if cmds == nil {
		cmds = []artifact.Command{}
	}
	raw, err := json.Marshal(cmds)
	if err != nil {
		return "", fmt.Errorf("paint: marshal commands: %w", err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fmt.Errorf("paint: canonicalize: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%x", sum)[:HashLen], nil
}
