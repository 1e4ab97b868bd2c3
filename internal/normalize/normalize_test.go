package normalize

import "testing"

func TestFold(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Super Mario Odyssey", "super mario odyssey"},
		{"  POKÉMON Red  ", "pokemon red"},
		{"Link's Awakening", "links awakening"},
		{"Baldur’s Gate", "baldurs gate"},
		{"Zelda: Breath of the Wild", "zelda: breath of the wild"},
		{"Half-Life 2", "half-life 2"},
		{"Fire   Emblem!!!", "fire emblem"},
		{"ökami HD", "okami hd"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		if got := Fold(tc.in); got != tc.want {
			t.Errorf("Fold(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFoldIdempotent(t *testing.T) {
	inputs := []string{
		"Super Mario Odyssey",
		"POKÉMON: Let's Go, Pikachu!",
		"Half-Life 2 - Episode One",
		"ßharp edge",
		"final fantasy vii",
	}
	for _, in := range inputs {
		once := Fold(in)
		if twice := Fold(once); twice != once {
			t.Errorf("Fold not idempotent for %q: first %q, second %q", in, once, twice)
		}
	}
}

func TestTokens(t *testing.T) {
	got := Tokens("zelda: breath of the wild")
	want := []string{"zelda", "breath", "of", "the", "wild"}
	if len(got) != len(want) {
		t.Fatalf("Tokens returned %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokens returned %v, want %v", got, want)
		}
	}
}

func TestTokenSet(t *testing.T) {
	set := TokenSet("mario mario odyssey")
	if len(set) != 2 {
		t.Fatalf("expected 2 unique tokens, got %d", len(set))
	}
	if _, ok := set["mario"]; !ok {
		t.Fatalf("missing token mario in %v", set)
	}
}
