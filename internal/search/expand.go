package search

import (
	"strconv"
	"strings"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/normalize"
	"gamedex/searchservice/internal/policy"
)

// Expander derives related query variants for series searches. The original
// query is always the first element of the result; variant order defines
// merge priority, so when the cap is exceeded the lowest-priority rules are
// dropped first.
type Expander struct {
	policies *policy.Provider
}

func NewExpander(policies *policy.Provider) *Expander {
	return &Expander{policies: policies}
}

var romanValues = map[string]int{
	"ii": 2, "iii": 3, "iv": 4, "v": 5,
	"vi": 6, "vii": 7, "viii": 8, "ix": 9, "x": 10,
}

var romanForValue = map[int]string{
	1: "i", 2: "ii", 3: "iii", 4: "iv", 5: "v",
	6: "vi", 7: "vii", 8: "viii", 9: "ix", 10: "x",
}

func (e *Expander) Expand(q domain.Query) []domain.Query {
	snapshot := e.policies.Current()
	maxVariants := snapshot.Thresholds().MaxVariants

	// Variants are derived from the folded form so token matching is
	// case- and punctuation-insensitive; the caller's original text stays
	// in slot zero untouched.
	folded := normalize.Fold(q.Text)
	variants := []domain.Query{q}
	seen := map[string]struct{}{folded: {}}

	appendVariant := func(text string, rule domain.ExpansionRule) {
		text = strings.TrimSpace(text)
		if text == "" {
			return
		}
		if _, exists := seen[text]; exists {
			return
		}
		seen[text] = struct{}{}
		variants = append(variants, domain.Query{Text: text, Filters: q.Filters, Rule: rule})
	}

	for _, text := range siblingVariants(snapshot, folded) {
		appendVariant(text, domain.RuleSiblingGroup)
	}
	for _, text := range sequelVariants(folded) {
		appendVariant(text, domain.RuleSequelNumber)
	}
	for _, text := range romanVariants(folded) {
		appendVariant(text, domain.RuleRomanNumeral)
	}
	if base := strippedSubtitle(folded); base != "" {
		appendVariant(base, domain.RuleSubtitleStrip)
	}

	if maxVariants > 0 && len(variants) > maxVariants {
		variants = variants[:maxVariants]
	}
	return variants
}

// siblingVariants expands a generational version set: if the query names a
// franchise with sibling groups and contains one member of a group, each
// remaining member yields a variant with that member swapped in.
func siblingVariants(snapshot *policy.Snapshot, text string) []string {
	pattern := snapshot.FranchiseFor(text)
	if pattern == nil || len(pattern.SiblingGroups) == 0 {
		return nil
	}

	tokens := normalize.TokenSet(text)
	var out []string
	for _, group := range pattern.SiblingGroups {
		matched := ""
		for _, member := range group {
			if _, ok := tokens[normalize.Fold(member)]; ok {
				matched = normalize.Fold(member)
				break
			}
		}
		if matched == "" {
			continue
		}
		for _, member := range group {
			folded := normalize.Fold(member)
			if folded == matched {
				continue
			}
			out = append(out, replaceToken(text, matched, folded))
		}
	}
	return out
}

// sequelVariants applies when the query ends in an integer N: queries for
// N-2..N+2 excluding N, nearest numbers first.
func sequelVariants(text string) []string {
	fields := strings.Fields(text)
	if len(fields) < 2 {
		return nil
	}
	last := fields[len(fields)-1]
	n, err := strconv.Atoi(last)
	if err != nil || n <= 0 {
		return nil
	}
	prefix := strings.Join(fields[:len(fields)-1], " ")
	var out []string
	for _, delta := range []int{1, -1, 2, -2} {
		sequel := n + delta
		if sequel < 1 {
			continue
		}
		out = append(out, prefix+" "+strconv.Itoa(sequel))
	}
	return out
}

// romanVariants applies when the query contains a roman numeral token: the
// arabic equivalent plus the numerally adjacent roman entries. The bare token
// "i" is skipped because it is indistinguishable from the English pronoun.
func romanVariants(text string) []string {
	for _, token := range strings.Fields(text) {
		value, ok := romanValues[token]
		if !ok {
			continue
		}
		out := []string{replaceToken(text, token, strconv.Itoa(value))}
		if previous, ok := romanForValue[value-1]; ok {
			out = append(out, replaceToken(text, token, previous))
		}
		if next, ok := romanForValue[value+1]; ok {
			out = append(out, replaceToken(text, token, next))
		}
		return out
	}
	return nil
}

// strippedSubtitle returns the base phrase before a colon or spaced-dash
// separator, recovering base-franchise results when a subtitle search is too
// narrow.
func strippedSubtitle(text string) string {
	separator := strings.IndexAny(text, ":")
	if dash := strings.Index(text, " - "); dash >= 0 && (separator < 0 || dash < separator) {
		separator = dash
	}
	if separator <= 0 {
		return ""
	}
	base := strings.TrimSpace(text[:separator])
	if base == text {
		return ""
	}
	return base
}

func replaceToken(text, from, to string) string {
	fields := strings.Fields(text)
	for i, field := range fields {
		if field == from {
			fields[i] = to
		}
	}
	return strings.Join(fields, " ")
}
