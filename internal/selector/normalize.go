// Package selector implements C7: candidate scoring, ranking, and
// thresholding. normalize.go is grounded on original_source's
// api/matching.py strip_accents/normalize_text; there is no fuzzy-matching
// library anywhere in the retrieval pack, so token-set-ratio scoring here is
// hand-rolled on the standard library (see DESIGN.md).
package selector

import (
	"strings"
	"unicode"
)

// Normalize lowercases, strips diacritics, removes punctuation, and
// collapses whitespace, matching original_source's normalize_text.
// Normalize(Normalize(x)) == Normalize(x) for all x.
func Normalize(s string) string {
	s = stripAccents(s)
	s = strings.ToLower(s)

	var b strings.Builder
	lastSpace := true
	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// stripAccents performs a poor-man's NFKD decomposition: it maps common
// Latin accented runes to their bare ASCII form by stripping the Unicode
// "Mn" (mark, nonspacing) class after a manual decomposition table covering
// the accented ranges actually seen in provider titles/creators.
func stripAccents(s string) string {
	var b strings.Builder
	for _, r := range s {
		if repl, ok := accentFold[r]; ok {
			b.WriteRune(repl)
			continue
		}
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

var accentFold = map[rune]rune{
	'à': 'a', 'á': 'a', 'â': 'a', 'ã': 'a', 'ä': 'a', 'å': 'a',
	'è': 'e', 'é': 'e', 'ê': 'e', 'ë': 'e',
	'ì': 'i', 'í': 'i', 'î': 'i', 'ï': 'i',
	'ò': 'o', 'ó': 'o', 'ô': 'o', 'õ': 'o', 'ö': 'o',
	'ù': 'u', 'ú': 'u', 'û': 'u', 'ü': 'u',
	'ý': 'y', 'ÿ': 'y',
	'ñ': 'n', 'ç': 'c',
	'À': 'a', 'Á': 'a', 'Â': 'a', 'Ã': 'a', 'Ä': 'a', 'Å': 'a',
	'È': 'e', 'É': 'e', 'Ê': 'e', 'Ë': 'e',
	'Ì': 'i', 'Í': 'i', 'Î': 'i', 'Ï': 'i',
	'Ò': 'o', 'Ó': 'o', 'Ô': 'o', 'Õ': 'o', 'Ö': 'o',
	'Ù': 'u', 'Ú': 'u', 'Û': 'u', 'Ü': 'u',
	'Ý': 'y', 'Ñ': 'n', 'Ç': 'c',
}
