package keycodec

import (
	"fmt"
	"strings"

	"cskeys/internal/hashcodec"
)

// LegacyCodec encodes the offline-only CS-XXXX-XXXX-XXXX format. The three
// segments are consecutive slices of a single hash over a Unix timestamp,
// a true random component, and the legacy secret.
//
// Unlike the dated format, the random component is not re-derivable, so a
// legacy code carries no integrity check. Validation relies entirely on
// local usage and expiry bookkeeping.
type LegacyCodec struct {
	Secret string
	Hash   hashcodec.Algorithm
}

// Format implements Codec.
func (LegacyCodec) Format() Format { return FormatLegacy }

// Matches implements Codec.
func (LegacyCodec) Matches(code string) bool { return legacyPattern.MatchString(code) }

// Encode builds a legacy key from a Unix timestamp in seconds and a
// 5-digit random component (10000–99999).
func (c LegacyCodec) Encode(unixSeconds int64, random int) string {
	data := fmt.Sprintf("%d_%d_%s", unixSeconds, random, c.Secret)
	hash := strings.ToUpper(c.Hash.Digest(data))
	return fmt.Sprintf("CS-%s-%s-%s", hash[0:4], hash[4:8], hash[8:12])
}
