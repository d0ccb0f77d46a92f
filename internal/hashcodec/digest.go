package hashcodec

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DigestLength is the length of every digest in hex characters,
// matching the width of a SHA-256 digest.
const DigestLength = 64

// Algorithm selects one of the two deterministic hashing variants.
// The variants are not cross-compatible: a value hashed with the
// fallback cannot be verified against the SHA-256 path and vice versa.
// Callers pick one variant and stay with it for a given verification.
type Algorithm int

const (
	// AlgorithmSHA256 is the primary variant backed by crypto/sha256.
	AlgorithmSHA256 Algorithm = iota
	// AlgorithmFallback is the deterministic non-cryptographic variant
	// kept for compatibility with clients that lack a crypto primitive.
	AlgorithmFallback
)

// String returns the variant name for logging and metrics labels.
func (a Algorithm) String() string {
	switch a {
	case AlgorithmFallback:
		return "fallback"
	default:
		return "sha256"
	}
}

// Digest hashes input into a 64-character lowercase hex string.
// Both variants are deterministic and side-effect free.
func (a Algorithm) Digest(input string) string {
	if a == AlgorithmFallback {
		return fallbackDigest(input)
	}
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}

// fallbackDigest is a multiplicative rolling hash folded into a 64-char
// hex string by repetition. The recurrence is h = h*31 + ch computed as
// (h<<5) - h + ch over 32-bit signed integers, so overflow wraps exactly
// like the historical client implementations it must stay compatible with.
func fallbackDigest(input string) string {
	if len(input) == 0 {
		return strings.Repeat("0", DigestLength)
	}

	var h int32
	for _, r := range input {
		h = (h << 5) - h + int32(r)
	}

	// abs in 64-bit space so the minimum int32 value stays representable
	v := int64(h)
	if v < 0 {
		v = -v
	}

	block := fmt.Sprintf("%08x", v)
	return strings.Repeat(block, DigestLength/8)[:DigestLength]
}
