package utils

import (
	"strings"
	"unicode"
)

// NormalizePlate upper-cases a plate and drops everything that is not a
// letter or digit, so "ab-123 c" and "AB123C" index the same.
func NormalizePlate(plate string) string {
	var b strings.Builder
	b.Grow(len(plate))
	for _, r := range strings.TrimSpace(plate) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	return b.String()
}
