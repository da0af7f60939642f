package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// Normalize returns the comparison form of s: NFKC, case folded, with runs
// of whitespace collapsed to one space.
func Normalize(s string) string {
	folded := folder.String(norm.NFKC.String(s))
	return strings.Join(strings.Fields(folded), " ")
}

// Words splits the normalized form of s into letter/digit words.
func Words(s string) []string {
	return strings.FieldsFunc(Normalize(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
