// Package normalize canonicalizes free-form address tokens into comparable keys.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Key returns the canonical form of s: accents stripped, uppercased,
// anything but letters, digits and whitespace removed, and whitespace
// collapsed. Empty input
// yields an empty key.
func Key(s string) string {
	if s == "" {
		return ""
	}
	stripped, _, err := transform.String(stripAccents(), s)
	if err != nil {
		stripped = s
	}
	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range strings.ToUpper(stripped) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// transform.Transformer values carry state, so each call gets its own chain.
func stripAccents() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
