package registry

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// removeDiacritics removes diacritical marks from a string (e.g., "Jiří" -> "Jiri").
func removeDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, _ := transform.String(t, s)
	return result
}

// NormalizeLabel normalizes an identity label for comparison (lowercase,
// no diacritics, spaces for dashes). Labels from upstream systems arrive
// both as slugs and display names (e.g. "jan-novak" vs "Jan Novák").
func NormalizeLabel(label string) string {
	label = removeDiacritics(label)
	label = strings.ToLower(label)
	label = strings.ReplaceAll(label, "-", " ")
	return strings.TrimSpace(label)
}
