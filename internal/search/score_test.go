package search

import (
	"math/rand"
	"testing"
	"time"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/policy"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }

func scoringPolicy() policy.Policy {
	p := policy.Default()
	p.TrustedCompanies = []string{"Nintendo"}
	p.OffTopicTerms = []policy.OffTopicTerm{
		{Term: "pinball", Penalty: -30},
		{Term: "party", Penalty: -20},
	}
	p.LowFidelityPlatforms = []string{"Android", "iOS", "Web browser"}
	p.Franchises = []policy.FranchisePattern{{
		Keyword:       "pokemon",
		SiblingGroups: [][]string{{"red", "blue", "yellow"}},
		Console:       true,
	}}
	return p
}

func newTestScorer(t *testing.T) *Scorer {
	t.Helper()
	return NewScorer(testPolicies(t, scoringPolicy()).Current())
}

func TestScoreTextMatchTiers(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "mario"}

	cases := []struct {
		name string
		want float64
	}{
		{"Mario", 100},
		{"Mario Kart", 80},
		{"Super Mario Odyssey", 60},
		{"Paper Luigi", 0},
	}
	for _, tc := range cases {
		entry := &domain.CatalogEntry{Name: tc.name, Category: domain.CategoryMainGame}
		scored := scorer.Score(entry, query, domain.VerdictUnknown)
		if scored.Factors.TextMatch != tc.want {
			t.Errorf("text match for %q = %v, want %v", tc.name, scored.Factors.TextMatch, tc.want)
		}
	}
}

func TestScoreTermFraction(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "breath wild zelda"}

	// Name contains 2 of 3 query terms and is not a substring match.
	entry := &domain.CatalogEntry{Name: "Wild Breath Simulator", Category: domain.CategoryMainGame}
	scored := scorer.Score(entry, query, domain.VerdictUnknown)
	want := 40 * 2.0 / 3.0
	if diff := scored.Factors.TextMatch - want; diff > 0.001 || diff < -0.001 {
		t.Fatalf("term fraction = %v, want %v", scored.Factors.TextMatch, want)
	}
}

func TestScoreCategoryTable(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "anything"}

	cases := []struct {
		category domain.Category
		want     float64
	}{
		{domain.CategoryMainGame, 50},
		{domain.CategoryRemake, 35},
		{domain.CategoryRemaster, 35},
		{domain.CategoryExpansion, 30},
		{domain.CategoryPort, 20},
		{domain.CategoryDLC, 15},
		{domain.CategoryBundle, 10},
		{domain.CategoryEpisode, 10},
		{domain.CategorySeason, 5},
		{domain.CategoryMod, 0},
		{domain.CategoryFork, 0},
	}
	for _, tc := range cases {
		entry := &domain.CatalogEntry{Name: "x", Category: tc.category}
		scored := scorer.Score(entry, query, domain.VerdictUnknown)
		if scored.Factors.Category != tc.want {
			t.Errorf("category score for %v = %v, want %v", tc.category, scored.Factors.Category, tc.want)
		}
	}
}

func TestScoreQualityMissingFieldsNeutral(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "x"}

	bare := &domain.CatalogEntry{Name: "x", Category: domain.CategoryMainGame}
	scored := scorer.Score(bare, query, domain.VerdictUnknown)
	if scored.Factors.Quality != 0 {
		t.Fatalf("missing metrics should contribute 0, got %v", scored.Factors.Quality)
	}

	rich := &domain.CatalogEntry{
		Name:        "x",
		Category:    domain.CategoryMainGame,
		Rating:      floatPtr(90),
		RatingCount: intPtr(100),
		Follows:     intPtr(5000),
	}
	scored = scorer.Score(rich, query, domain.VerdictUnknown)
	want := (90.0/100)*30 + 10 + 10
	if scored.Factors.Quality != want {
		t.Fatalf("quality = %v, want %v", scored.Factors.Quality, want)
	}
}

func TestScoreOriginality(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "x"}

	original := &domain.CatalogEntry{Name: "x"}
	if scored := scorer.Score(original, query, domain.VerdictUnknown); scored.Factors.Originality != 30 {
		t.Fatalf("original release originality = %v, want 30", scored.Factors.Originality)
	}

	parent := int64(42)
	derivative := &domain.CatalogEntry{Name: "x", ParentID: &parent}
	if scored := scorer.Score(derivative, query, domain.VerdictUnknown); scored.Factors.Originality != 10 {
		t.Fatalf("derivative originality = %v, want 10", scored.Factors.Originality)
	}
}

// Scenario: a main-category title from a trusted publisher with strong
// community metrics must outrank a mod-category derivative hack.
func TestScoreMainEntryOutranksModHack(t *testing.T) {
	scorer := newTestScorer(t)
	query := domain.Query{Text: "mario"}

	main := &domain.CatalogEntry{
		Name:      "Super Mario Odyssey",
		Category:  domain.CategoryMainGame,
		Publisher: "Nintendo",
		Rating:    floatPtr(97),
		Follows:   intPtr(300000),
	}
	parent := int64(7)
	hack := &domain.CatalogEntry{
		Name:     "Mario 64 ROM Hack",
		Category: domain.CategoryMod,
		ParentID: &parent,
	}

	mainScored := scorer.Score(main, query, domain.VerdictOfficial)
	hackScored := scorer.Score(hack, query, domain.VerdictUnofficial)

	if mainScored.Score <= hackScored.Score {
		t.Fatalf("main entry %v must outrank hack %v", mainScored.Score, hackScored.Score)
	}
	if hackScored.Factors.Penalty != -50 {
		t.Fatalf("hack penalty = %v, want -50 for the rom hack pattern", hackScored.Factors.Penalty)
	}
	if hackScored.Factors.Category != 0 {
		t.Fatalf("hack category score = %v, want 0 for a mod", hackScored.Factors.Category)
	}
}

// Scenario: an off-topic term penalty must not fire when the query itself
// contains the term.
func TestScoreOffTopicPenaltySkippedWhenQueried(t *testing.T) {
	scorer := newTestScorer(t)
	entry := &domain.CatalogEntry{Name: "Pokemon Pinball", Category: domain.CategoryMainGame}

	penalized := scorer.Score(entry, domain.Query{Text: "pokemon"}, domain.VerdictUnknown)
	if penalized.Factors.Penalty != -30 {
		t.Fatalf("penalty = %v, want -30 for off-topic pinball", penalized.Factors.Penalty)
	}

	wanted := scorer.Score(entry, domain.Query{Text: "pokemon pinball"}, domain.VerdictUnknown)
	if wanted.Factors.Penalty != 0 {
		t.Fatalf("penalty = %v, want 0 when the query asks for pinball", wanted.Factors.Penalty)
	}
}

func TestScoreLowFidelityPlatformPenalty(t *testing.T) {
	scorer := newTestScorer(t)
	entry := &domain.CatalogEntry{
		Name:      "Pokemon Quest",
		Category:  domain.CategoryMainGame,
		Platforms: []string{"Android", "iOS"},
	}

	scored := scorer.Score(entry, domain.Query{Text: "pokemon red"}, domain.VerdictUnknown)
	if scored.Factors.Penalty != -25 {
		t.Fatalf("penalty = %v, want -25 for mobile entry on console franchise query", scored.Factors.Penalty)
	}

	// The same entry is not penalized for a non-franchise query.
	scored = scorer.Score(entry, domain.Query{Text: "quest"}, domain.VerdictUnknown)
	if scored.Factors.Penalty != 0 {
		t.Fatalf("penalty = %v, want 0 off franchise", scored.Factors.Penalty)
	}
}

// Official classification always suppresses the pattern penalty, so an
// official entry never scores below an otherwise-identical unofficial one.
func TestScoreMonotonicOfficialBonus(t *testing.T) {
	scorer := newTestScorer(t)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 200; i++ {
		entry := randomEntry(rng)
		query := domain.Query{Text: "pokemon red"}
		official := scorer.Score(entry, query, domain.VerdictOfficial)
		unofficial := scorer.Score(entry, query, domain.VerdictUnofficial)
		if official.Score < unofficial.Score {
			t.Fatalf("official %v scored below unofficial %v for %+v", official.Score, unofficial.Score, entry)
		}
	}
}

func TestScoreNeverNegativeAndDeterministic(t *testing.T) {
	scorer := newTestScorer(t)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		entry := randomEntry(rng)
		query := domain.Query{Text: "pokemon pinball party"}
		first := scorer.Score(entry, query, domain.VerdictUnknown)
		if first.Score < 0 {
			t.Fatalf("negative score %v for %+v", first.Score, entry)
		}
		second := scorer.Score(entry, query, domain.VerdictUnknown)
		if first.Score != second.Score || *first.Factors != *second.Factors {
			t.Fatalf("scoring not deterministic for %+v", entry)
		}
	}
}

func randomEntry(rng *rand.Rand) *domain.CatalogEntry {
	names := []string{
		"Pokemon Red", "Pokemon Pinball", "Mario Party Hack",
		"Indie Fan Game", "Totally Original Title", "Randomizer Supreme",
	}
	entry := &domain.CatalogEntry{
		Name:     names[rng.Intn(len(names))],
		Category: domain.Category(rng.Intn(16) - 1),
	}
	if rng.Intn(2) == 0 {
		entry.Rating = floatPtr(rng.Float64() * 100)
	}
	if rng.Intn(2) == 0 {
		entry.RatingCount = intPtr(rng.Intn(500))
	}
	if rng.Intn(2) == 0 {
		entry.Follows = intPtr(rng.Intn(20000))
	}
	if rng.Intn(3) == 0 {
		parent := int64(rng.Intn(1000) + 1)
		entry.ParentID = &parent
	}
	if rng.Intn(3) == 0 {
		entry.Platforms = []string{"Android"}
	}
	if rng.Intn(4) == 0 {
		released := time.Unix(int64(rng.Intn(1_500_000_000)), 0)
		entry.ReleasedAt = &released
	}
	return entry
}
