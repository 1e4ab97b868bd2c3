// Package normalize canonicalizes free-text names and queries so that every
// comparison in the pipeline (policy matching, scoring, store lookup, cache
// keys) sees the same form. Fold is idempotent: Fold(Fold(s)) == Fold(s).
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var foldDiacritics = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Fold lowercases, strips diacritics, folds punctuation to spaces and
// collapses whitespace. Colons and hyphens survive because they act as
// subtitle separators downstream; apostrophes are removed so "Link's" and
// "Links" compare equal.
func Fold(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	if lowered == "" {
		return ""
	}
	if folded, _, err := transform.String(foldDiacritics, lowered); err == nil {
		lowered = folded
	}

	var builder strings.Builder
	builder.Grow(len(lowered))
	lastSpace := false
	for _, r := range lowered {
		switch {
		case r == '\'' || r == '’':
			continue
		case unicode.IsLetter(r) || unicode.IsNumber(r) || r == ':' || r == '-':
			builder.WriteRune(r)
			lastSpace = false
		default:
			if !lastSpace && builder.Len() > 0 {
				builder.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(builder.String())
}

// Tokens splits a folded string into comparison tokens. Separators that Fold
// preserves (colons, hyphens) do not survive tokenization.
func Tokens(folded string) []string {
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

// TokenSet returns the unique tokens of a folded string.
func TokenSet(folded string) map[string]struct{} {
	tokens := Tokens(folded)
	if len(tokens) == 0 {
		return map[string]struct{}{}
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}
