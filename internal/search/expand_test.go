package search

import (
	"testing"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/policy"
)

func testPolicies(t *testing.T, p policy.Policy) *policy.Provider {
	t.Helper()
	provider, err := policy.FromPolicy(p)
	if err != nil {
		t.Fatalf("compile test policy: %v", err)
	}
	return provider
}

func pokemonPolicy() policy.Policy {
	p := policy.Default()
	p.Franchises = []policy.FranchisePattern{{
		Keyword:       "pokemon",
		NameVariants:  []string{"pokémon"},
		SiblingGroups: [][]string{{"red", "blue", "yellow"}, {"gold", "silver", "crystal"}},
		Console:       true,
	}}
	return p
}

func variantTexts(variants []domain.Query) []string {
	texts := make([]string, len(variants))
	for i, v := range variants {
		texts[i] = v.Text
	}
	return texts
}

func containsText(variants []domain.Query, text string) bool {
	for _, v := range variants {
		if v.Text == text {
			return true
		}
	}
	return false
}

func TestExpandOriginalFirst(t *testing.T) {
	expander := NewExpander(testPolicies(t, policy.Default()))
	variants := expander.Expand(domain.Query{Text: "tetris"})
	if len(variants) == 0 || variants[0].Text != "tetris" {
		t.Fatalf("first variant must be the original query, got %v", variantTexts(variants))
	}
	if variants[0].Rule != domain.RuleOriginal {
		t.Fatalf("original variant carries rule %q", variants[0].Rule)
	}
}

func TestExpandSiblingGroup(t *testing.T) {
	expander := NewExpander(testPolicies(t, pokemonPolicy()))
	variants := expander.Expand(domain.Query{Text: "pokemon red"})

	if !containsText(variants, "pokemon blue") || !containsText(variants, "pokemon yellow") {
		t.Fatalf("sibling variants missing, got %v", variantTexts(variants))
	}
	if containsText(variants, "pokemon gold") {
		t.Fatalf("unmatched sibling group must not expand, got %v", variantTexts(variants))
	}
	for _, v := range variants[1:] {
		if v.Text == "pokemon blue" && v.Rule != domain.RuleSiblingGroup {
			t.Fatalf("sibling variant carries rule %q", v.Rule)
		}
	}
}

func TestExpandSequelNumbers(t *testing.T) {
	expander := NewExpander(testPolicies(t, policy.Default()))
	variants := expander.Expand(domain.Query{Text: "dark souls 2"})

	for _, want := range []string{"dark souls 3", "dark souls 1", "dark souls 4"} {
		if !containsText(variants, want) {
			t.Errorf("missing sequel variant %q in %v", want, variantTexts(variants))
		}
	}
	if containsText(variants, "dark souls 0") {
		t.Errorf("sequel numbers below 1 must be skipped, got %v", variantTexts(variants))
	}
}

func TestExpandRomanNumerals(t *testing.T) {
	expander := NewExpander(testPolicies(t, policy.Default()))
	variants := expander.Expand(domain.Query{Text: "final fantasy vii"})

	if !containsText(variants, "final fantasy 7") {
		t.Errorf("missing arabic variant, got %v", variantTexts(variants))
	}
	if !containsText(variants, "final fantasy vi") || !containsText(variants, "final fantasy viii") {
		t.Errorf("missing adjacent roman variants, got %v", variantTexts(variants))
	}
}

func TestExpandSubtitleStrip(t *testing.T) {
	expander := NewExpander(testPolicies(t, policy.Default()))
	variants := expander.Expand(domain.Query{Text: "Zelda: Breath of the Wild"})

	if !containsText(variants, "zelda") {
		t.Fatalf("missing base-title variant, got %v", variantTexts(variants))
	}
}

func TestExpandBounded(t *testing.T) {
	p := pokemonPolicy()
	p.Thresholds.MaxVariants = 4
	expander := NewExpander(testPolicies(t, p))

	// Sibling group plus sequel expansion would exceed the cap.
	variants := expander.Expand(domain.Query{Text: "pokemon red 2"})
	if len(variants) > 4 {
		t.Fatalf("expansion produced %d variants, cap is 4: %v", len(variants), variantTexts(variants))
	}
	if variants[0].Text != "pokemon red 2" {
		t.Fatalf("original query must survive the cap, got %v", variantTexts(variants))
	}
}

func TestExpandNoDuplicates(t *testing.T) {
	expander := NewExpander(testPolicies(t, pokemonPolicy()))
	variants := expander.Expand(domain.Query{Text: "pokemon red"})

	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants[1:] {
		if _, dup := seen[v.Text]; dup {
			t.Fatalf("duplicate variant %q in %v", v.Text, variantTexts(variants))
		}
		seen[v.Text] = struct{}{}
	}
}
