// Package keycodec implements the two textual license key formats used by
// the download page: the dated remote-backed format CS-TYPE-DATE8-HASH8 and
// the legacy offline format CS-XXXX-XXXX-XXXX.
//
// The formats are deliberately incompatible variants. Callers select a codec
// explicitly; nothing is inferred from the code itself beyond shape matching.
package keycodec

import "regexp"

// KeyType distinguishes free and paid keys in the dated format.
type KeyType string

const (
	KeyTypeFree KeyType = "FREE"
	KeyTypePaid KeyType = "PAID"
)

// Valid reports whether the type is one of the two known values.
func (t KeyType) Valid() bool {
	return t == KeyTypeFree || t == KeyTypePaid
}

// Format tags the key scheme a code belongs to.
type Format int

const (
	// FormatDated is the remote-backed scheme with embedded type, date
	// stamp, and integrity hash segment.
	FormatDated Format = iota
	// FormatLegacy is the offline scheme with three random hash slices
	// and no recoverable integrity check.
	FormatLegacy
)

func (f Format) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "dated"
}

var (
	datedPattern  = regexp.MustCompile(`^CS-(FREE|PAID)-\d{8}-[A-Z0-9]{8}$`)
	legacyPattern = regexp.MustCompile(`^CS-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)
)

// Codec is the capability shared by both key formats: shape matching for
// a candidate code. Encoding and validation signatures differ per format,
// so those stay on the concrete codec types.
type Codec interface {
	Format() Format
	Matches(code string) bool
}
