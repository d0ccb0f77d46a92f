package keycodec

import (
	"strings"
)

// seedAlphabet is the character set for derived seeds.
const seedAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// SeedLength is the length of the seed data mixed into a dated key hash.
const SeedLength = 16

// LCG parameters for the seed derivation recurrence. These values are part
// of the key format: changing them invalidates every key in circulation.
const (
	lcgMultiplier = 9301
	lcgIncrement  = 49297
	lcgModulus    = 233280
)

// DeriveSeed deterministically reconstructs the seed for a date stamp using
// a linear-congruential recurrence seeded by the character-code sum of the
// stamp. Because the same stamp always yields the same seed, integrity
// verification needs nothing beyond the code itself and the shared secret.
//
// The flip side is that the per-key random component contributes no entropy
// to the hash. That weakness is part of the deployed format and is kept
// as-is; the remote store, not this check, decides whether a key is real.
func DeriveSeed(dateStamp string) string {
	seed := 0
	for _, r := range dateStamp {
		seed += int(r)
	}

	var b strings.Builder
	b.Grow(SeedLength)
	for i := 0; i < SeedLength; i++ {
		seed = (seed*lcgMultiplier + lcgIncrement) % lcgModulus
		b.WriteByte(seedAlphabet[seed*len(seedAlphabet)/lcgModulus])
	}
	return b.String()
}
