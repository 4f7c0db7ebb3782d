package index

import (
	"strings"

	"github.com/newthinker/valscreen/internal/core"
)

// Venue describes how a listing venue spells identifiers at the
// market-data source.
type Venue struct {
	// Suffix is appended to every root symbol (".L", ".PA", ".HK").
	Suffix string `mapstructure:"suffix" json:"suffix"`
	// ClassSeparator replaces "." inside the root when set to "-"
	// (BRK.B becomes BRK-B).
	ClassSeparator string `mapstructure:"class_separator" json:"class_separator,omitempty"`
	// PadDigits left-pads all-digit roots with zeros (5 becomes 0005).
	PadDigits int `mapstructure:"pad_digits" json:"pad_digits,omitempty"`
}

// Normalize maps a raw listing symbol to the canonical identifier.
// It is total and idempotent: Normalize(Normalize(s, v), v) == Normalize(s, v).
func Normalize(raw string, v Venue) core.Identifier {
	suffix := strings.ToUpper(strings.TrimSpace(v.Suffix))
	root := strings.ToUpper(strings.TrimSpace(raw))

	if suffix != "" && strings.HasSuffix(root, suffix) {
		root = strings.TrimSuffix(root, suffix)
	}
	if v.ClassSeparator == "-" {
		root = strings.ReplaceAll(root, ".", "-")
	}
	if v.PadDigits > 0 && isDigits(root) && len(root) < v.PadDigits {
		root = strings.Repeat("0", v.PadDigits-len(root)) + root
	}

	return core.Identifier(root + suffix)
}

// NormalizeSymbol is Normalize for a bare suffix. Unsuffixed (US) listings
// use hyphenated share classes; suffixed venues keep the dot.
func NormalizeSymbol(raw, suffix string) core.Identifier {
	v := Venue{Suffix: suffix}
	if strings.TrimSpace(suffix) == "" {
		v.ClassSeparator = "-"
	}
	return Normalize(raw, v)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
