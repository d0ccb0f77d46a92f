package keycodec

import (
	"fmt"
	"strings"

	apperrors "cskeys/internal/errors"
	"cskeys/internal/hashcodec"
)

// hashSegmentLength is the number of hex characters embedded in a dated key.
const hashSegmentLength = 8

// Decoded holds the segments of a dated key code.
type Decoded struct {
	Type      KeyType
	DateStamp string // YYYYMMDD
	Hash8     string // uppercase hex, 8 chars
}

// DatedCodec encodes and verifies the CS-TYPE-DATE8-HASH8 format. The hash
// segment is derived from the date stamp, a seed, and a shared secret, which
// lets the page reject typos and hand-edited codes before any network call.
//
// This is format self-consistency, not cryptographic protection: the seed is
// re-derivable from the date stamp (see DeriveSeed), so anyone holding the
// secret can mint codes for any date. The remote store stays authoritative
// for existence and usage state.
type DatedCodec struct {
	Secret string
	Hash   hashcodec.Algorithm
}

// Format implements Codec.
func (DatedCodec) Format() Format { return FormatDated }

// Matches implements Codec.
func (DatedCodec) Matches(code string) bool { return datedPattern.MatchString(code) }

// Encode builds a key code from its parts. dateStamp must be YYYYMMDD and
// seed a 16-character alphanumeric string (see DeriveSeed).
func (c DatedCodec) Encode(keyType KeyType, dateStamp, seed string) string {
	hash := c.hashSegment(dateStamp, seed)
	return fmt.Sprintf("CS-%s-%s-%s", keyType, dateStamp, hash)
}

// Decode splits a code into its segments, validating each segment's shape.
// It fails with errors.ErrKeyFormat for anything that is not exactly four
// dash-separated segments with a known type, 8-digit date, and 8-char hash.
func (c DatedCodec) Decode(code string) (Decoded, error) {
	parts := strings.Split(code, "-")
	if len(parts) != 4 {
		return Decoded{}, fmt.Errorf("%w: expected 4 segments, got %d", apperrors.ErrKeyFormat, len(parts))
	}
	if parts[0] != "CS" {
		return Decoded{}, fmt.Errorf("%w: unknown prefix %q", apperrors.ErrKeyFormat, parts[0])
	}

	keyType := KeyType(parts[1])
	if !keyType.Valid() {
		return Decoded{}, fmt.Errorf("%w: unknown key type %q", apperrors.ErrKeyFormat, parts[1])
	}

	dateStamp := parts[2]
	if len(dateStamp) != 8 || !isDigits(dateStamp) {
		return Decoded{}, fmt.Errorf("%w: date stamp must be 8 digits", apperrors.ErrKeyFormat)
	}

	hash := parts[3]
	if len(hash) != hashSegmentLength || !isUpperAlnum(hash) {
		return Decoded{}, fmt.Errorf("%w: hash segment must be 8 alphanumeric characters", apperrors.ErrKeyFormat)
	}

	return Decoded{Type: keyType, DateStamp: dateStamp, Hash8: hash}, nil
}

// Verify reconstructs the seed from the date stamp, recomputes the hash
// segment, and compares it against the embedded one. It returns an error
// wrapping errors.ErrKeyFormat for malformed codes and errors.ErrKeyIntegrity
// for a hash mismatch; this is a pure offline pre-check.
func (c DatedCodec) Verify(code string) error {
	decoded, err := c.Decode(code)
	if err != nil {
		return err
	}
	seed := DeriveSeed(decoded.DateStamp)
	if c.hashSegment(decoded.DateStamp, seed) != decoded.Hash8 {
		return fmt.Errorf("%w: hash segment mismatch", apperrors.ErrKeyIntegrity)
	}
	return nil
}

// VerifyIntegrity is Verify collapsed to a boolean for callers that do not
// distinguish the failure modes.
func (c DatedCodec) VerifyIntegrity(code string) bool {
	return c.Verify(code) == nil
}

func (c DatedCodec) hashSegment(dateStamp, seed string) string {
	data := dateStamp + "_" + seed + "_" + c.Secret
	return strings.ToUpper(c.Hash.Digest(data)[:hashSegmentLength])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isUpperAlnum(s string) bool {
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
