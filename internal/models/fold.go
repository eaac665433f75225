package models

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes diacritics: "Église" becomes "Eglise"
func stripMarks(s string) string {
	// Transformers keep state, one chain per call
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// FoldAddress reduces an address to lowercase unaccented words separated by
// single spaces, so "Rue de l'Église" and "RUE DE L EGLISE" compare equal.
func FoldAddress(s string) string {
	s = strings.ToLower(stripMarks(s))
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
