package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultPolicyCompiles(t *testing.T) {
	provider, err := FromPolicy(Default())
	if err != nil {
		t.Fatalf("FromPolicy(Default()) failed: %v", err)
	}
	snapshot := provider.Current()
	if snapshot == nil {
		t.Fatal("expected a snapshot")
	}
	th := snapshot.Thresholds()
	if th.LowResult != 3 || th.FranchiseResult != 10 || th.MaxVariants != 8 {
		t.Fatalf("unexpected default thresholds: %+v", th)
	}
	if th.Staleness != 7*24*time.Hour {
		t.Fatalf("staleness = %v, want 168h", th.Staleness)
	}
}

func TestValidateRejectsEmptyFranchiseKeyword(t *testing.T) {
	p := Default()
	p.Franchises = []FranchisePattern{{Keyword: "  "}}
	if _, err := FromPolicy(p); err == nil {
		t.Fatal("expected error for empty franchise keyword")
	}
}

func TestValidateRejectsSingleMemberSiblingGroup(t *testing.T) {
	p := Default()
	p.Franchises = []FranchisePattern{{
		Keyword:       "pokemon",
		SiblingGroups: [][]string{{"red"}},
	}}
	if _, err := FromPolicy(p); err == nil {
		t.Fatal("expected error for one-member sibling group")
	}
}

func TestValidateRejectsNonNegativePenalty(t *testing.T) {
	p := Default()
	p.OffTopicTerms = []OffTopicTerm{{Term: "pinball", Penalty: 20}}
	if _, err := FromPolicy(p); err == nil {
		t.Fatal("expected error for positive off-topic penalty")
	}
}

func TestTrustedCompanyBidirectionalSubstring(t *testing.T) {
	p := Default()
	p.TrustedCompanies = []string{"Nintendo"}
	provider, err := FromPolicy(p)
	if err != nil {
		t.Fatalf("FromPolicy failed: %v", err)
	}
	snapshot := provider.Current()

	if !snapshot.TrustedCompany("Nintendo EPD") {
		t.Error("expected Nintendo EPD to match trusted company Nintendo")
	}
	if !snapshot.TrustedCompany("nintendo") {
		t.Error("expected case-insensitive match")
	}
	if snapshot.TrustedCompany("Sega") {
		t.Error("Sega must not match Nintendo")
	}
	if snapshot.TrustedCompany("") {
		t.Error("empty name must not match")
	}
}

func TestFranchiseForMatchesVariants(t *testing.T) {
	p := Default()
	p.Franchises = []FranchisePattern{{
		Keyword:      "pokemon",
		NameVariants: []string{"pokémon"},
		Console:      true,
	}}
	provider, err := FromPolicy(p)
	if err != nil {
		t.Fatalf("FromPolicy failed: %v", err)
	}
	snapshot := provider.Current()

	if snapshot.FranchiseFor("POKÉMON Red") == nil {
		t.Error("diacritic variant should resolve to the franchise")
	}
	if snapshot.FranchiseFor("pokemon blue version") == nil {
		t.Error("keyword substring should resolve to the franchise")
	}
	if snapshot.FranchiseFor("tetris") != nil {
		t.Error("unrelated query must not match a franchise")
	}
	if !snapshot.ConsoleFranchiseQuery("pokemon red") {
		t.Error("expected console franchise query")
	}
}

func TestFranchiseForDeterministicOnOverlap(t *testing.T) {
	p := Default()
	p.Franchises = []FranchisePattern{
		{Keyword: "mario kart", Console: true},
		{Keyword: "mario"},
	}
	provider, err := FromPolicy(p)
	if err != nil {
		t.Fatalf("FromPolicy failed: %v", err)
	}
	snapshot := provider.Current()

	// Both keywords match; declaration order decides, on every run.
	for i := 0; i < 100; i++ {
		pattern := snapshot.FranchiseFor("mario kart deluxe")
		if pattern == nil {
			t.Fatal("overlapping query did not match a franchise")
		}
		if pattern.Keyword != "mario kart" {
			t.Fatalf("run %d resolved %q, want the first declared pattern", i, pattern.Keyword)
		}
	}
}

func TestUnofficialPattern(t *testing.T) {
	provider, err := FromPolicy(Default())
	if err != nil {
		t.Fatalf("FromPolicy failed: %v", err)
	}
	snapshot := provider.Current()

	if pattern, ok := snapshot.UnofficialPattern("Mario 64 ROM Hack"); !ok || pattern != "rom hack" {
		t.Errorf("UnofficialPattern = %q, %v; want rom hack, true", pattern, ok)
	}
	if _, ok := snapshot.UnofficialPattern("Super Mario Odyssey"); ok {
		t.Error("official title must not match an unofficial pattern")
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Fatal("expected error for missing policy file")
	}
}

func TestReloadKeepsSnapshotOnFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.json")
	valid := `{"trustedCompanies":["Nintendo"]}`
	if err := os.WriteFile(path, []byte(valid), 0o644); err != nil {
		t.Fatal(err)
	}

	provider, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	before := provider.Current()

	if err := os.WriteFile(path, []byte(`{not json`), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := provider.Reload(); err == nil {
		t.Fatal("expected reload error for malformed file")
	}
	if provider.Current() != before {
		t.Fatal("failed reload must keep the previous snapshot")
	}

	updated := `{"trustedCompanies":["Nintendo","Sega"]}`
	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := provider.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if !provider.Current().TrustedCompany("Sega") {
		t.Fatal("reloaded snapshot should trust Sega")
	}
}
