// Package fingerprint derives a weak environment identifier recorded when a
// key is consumed. It is a usage-correlation hint, not a security boundary:
// the inputs are coarse and the hash is deliberately cheap.
package fingerprint

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

// EnvOverride names the environment variable that, when set, replaces the
// derived fingerprint entirely. Useful in containers and tests.
const EnvOverride = "CSK_FINGERPRINT"

// Length is the fixed fingerprint width in characters.
const Length = 32

// Generate returns a deterministic 32-character identifier built from
// hostname, OS, architecture, locale, timezone offset, and current year.
// The year is intentionally part of the input: fingerprints age out
// naturally across calendar years, matching the original scheme.
func Generate(now time.Time) string {
	if fp := os.Getenv(EnvOverride); fp != "" {
		return pad(fp)
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	_, tzOffsetSeconds := now.Zone()
	components := []string{
		hostname,
		runtime.GOOS,
		runtime.GOARCH,
		locale(),
		strconv.Itoa(tzOffsetSeconds / 60),
		strconv.Itoa(now.Year()),
	}

	return pad(weakHash(strings.Join(components, "_")))
}

// locale returns the process locale from the usual environment variables.
func locale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return "C"
}

// weakHash is the 31-based rolling hash over 32-bit integers, rendered as
// lowercase hex of the absolute value.
func weakHash(s string) string {
	if len(s) == 0 {
		return "0"
	}
	var h int32
	for _, r := range s {
		h = (h << 5) - h + int32(r)
	}
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return fmt.Sprintf("%x", v)
}

// pad right-pads with zeros and truncates to the fixed width.
func pad(s string) string {
	if len(s) >= Length {
		return s[:Length]
	}
	return s + strings.Repeat("0", Length-len(s))
}
