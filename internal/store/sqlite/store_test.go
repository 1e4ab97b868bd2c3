package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"gamedex/searchservice/internal/domain"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func ratingPtr(v float64) *float64 { return &v }
func countPtr(v int) *int          { return &v }
func timePtr(v time.Time) *time.Time {
	v = v.UTC().Truncate(time.Second)
	return &v
}

func TestUpsertAndFindByText(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []domain.CatalogEntry{
		{ExternalID: 100, Name: "Pokémon Red", Category: domain.CategoryMainGame, Rating: ratingPtr(85), RatingCount: countPtr(900)},
		{ExternalID: 101, Name: "Pokemon Blue", Category: domain.CategoryMainGame, RatingCount: countPtr(400)},
		{ExternalID: 102, Name: "Zelda II", Category: domain.CategoryMainGame},
	}
	if err := store.UpsertBatch(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	// Diacritics fold away, so the plain spelling matches both entries.
	found, err := store.FindByText(ctx, "pokemon", domain.SearchFilters{}, 10)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("got %d entries, want 2", len(found))
	}
	// Rating-count ordering puts Red before Blue.
	if found[0].Name != "Pokémon Red" {
		t.Fatalf("first result %q, want the highest rating count", found[0].Name)
	}
	if found[0].Rating == nil || *found[0].Rating != 85 {
		t.Fatalf("rating round-trip failed: %v", found[0].Rating)
	}
	if found[1].Rating != nil {
		t.Fatal("absent rating must come back nil")
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}
}

func TestFindByTextFilters(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	entries := []domain.CatalogEntry{
		{ExternalID: 1, Name: "Metroid Prime", Category: domain.CategoryMainGame, Rating: ratingPtr(95), Follows: countPtr(20000)},
		{ExternalID: 2, Name: "Metroid Prime Remastered", Category: domain.CategoryRemaster, Rating: ratingPtr(92), Follows: countPtr(4000)},
		{ExternalID: 3, Name: "Metroid Fan Game", Category: domain.CategoryMod, Rating: ratingPtr(60), Follows: countPtr(30)},
	}
	if err := store.UpsertBatch(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	cases := []struct {
		name    string
		filters domain.SearchFilters
		want    int
	}{
		{"no filters", domain.SearchFilters{}, 3},
		{"allow main only", domain.SearchFilters{Categories: []domain.Category{domain.CategoryMainGame}}, 1},
		{"deny mods", domain.SearchFilters{DenyCategories: []domain.Category{domain.CategoryMod}}, 2},
		{"min rating", domain.SearchFilters{MinRating: 90}, 2},
		{"tier hit", domain.SearchFilters{Tier: domain.TierHit}, 1},
		{"tier overridden by obscure", domain.SearchFilters{Tier: domain.TierHit, IncludeObscure: true}, 3},
		{"min follows", domain.SearchFilters{MinFollows: 1000}, 2},
	}
	for _, tc := range cases {
		found, err := store.FindByText(ctx, "metroid", tc.filters, 10)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if len(found) != tc.want {
			t.Errorf("%s: got %d entries, want %d", tc.name, len(found), tc.want)
		}
	}
}

func TestUpsertMergeKeepsKnownMetadata(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	official := true
	full := domain.CatalogEntry{
		ExternalID:  200,
		Name:        "Chrono Trigger",
		Category:    domain.CategoryMainGame,
		Developer:   "Square",
		Publisher:   "Square",
		Summary:     "A time travel adventure.",
		CoverURL:    "https://images.example/chrono.jpg",
		Rating:      ratingPtr(96),
		RatingCount: countPtr(800),
		Follows:     countPtr(15000),
		Platforms:   []string{"SNES"},
		Franchise:   "Chrono",
		Official:    &official,
		ReleasedAt:  timePtr(time.Date(1995, 3, 11, 0, 0, 0, 0, time.UTC)),
	}
	if err := store.UpsertBatch(ctx, []domain.CatalogEntry{full}); err != nil {
		t.Fatalf("initial upsert: %v", err)
	}

	// A sparse refresh: the name updates, absent fields must not erase
	// anything, and a lower rating count must not move the stored one back.
	sparse := domain.CatalogEntry{
		ExternalID:  200,
		Name:        "Chrono Trigger (DS)",
		Category:    domain.CategoryUnset,
		RatingCount: countPtr(100),
	}
	if err := store.UpsertBatch(ctx, []domain.CatalogEntry{sparse}); err != nil {
		t.Fatalf("refresh upsert: %v", err)
	}

	byID, err := store.FindByExternalID(ctx, []int64{200})
	if err != nil {
		t.Fatalf("find by external id: %v", err)
	}
	got, ok := byID[200]
	if !ok {
		t.Fatal("entry missing after refresh")
	}
	if got.Name != "Chrono Trigger (DS)" {
		t.Fatalf("name = %q, refresh must win the name", got.Name)
	}
	if got.Category != domain.CategoryMainGame {
		t.Fatalf("category = %v, unset refresh must not erase it", got.Category)
	}
	if got.Developer != "Square" || got.Summary == "" || got.CoverURL == "" {
		t.Fatalf("string metadata erased by sparse refresh: %+v", got)
	}
	if got.Rating == nil || *got.Rating != 96 {
		t.Fatalf("rating erased by sparse refresh: %v", got.Rating)
	}
	if got.RatingCount == nil || *got.RatingCount != 800 {
		t.Fatalf("rating count = %v, must only move forward", got.RatingCount)
	}
	if len(got.Platforms) != 1 || got.Platforms[0] != "SNES" {
		t.Fatalf("platforms erased: %v", got.Platforms)
	}
	if got.Official == nil || !*got.Official {
		t.Fatal("official flag erased by sparse refresh")
	}
}

func TestUpsertDoesNotCollideLocalOnlyEntries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	// Entries without an external identifier store NULL, and NULLs never
	// collide on the unique index.
	entries := []domain.CatalogEntry{
		{Name: "Homegrown Prototype A", Category: domain.CategoryMainGame},
		{Name: "Homegrown Prototype B", Category: domain.CategoryMainGame},
	}
	if err := store.UpsertBatch(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2 distinct local-only rows", count)
	}
}

func TestListStaleOrdersOldestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	entries := []domain.CatalogEntry{
		{ExternalID: 1, Name: "Fresh Game", LastSyncedAt: timePtr(now)},
		{ExternalID: 2, Name: "Old Game", LastSyncedAt: timePtr(now.Add(-30 * 24 * time.Hour))},
		{ExternalID: 3, Name: "Ancient Game", LastSyncedAt: timePtr(now.Add(-90 * 24 * time.Hour))},
	}
	if err := store.UpsertBatch(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	stale, err := store.ListStale(ctx, now.Add(-7*24*time.Hour), 10)
	if err != nil {
		t.Fatalf("list stale: %v", err)
	}
	if len(stale) != 2 {
		t.Fatalf("got %d stale entries, want 2", len(stale))
	}
	if stale[0].Name != "Ancient Game" || stale[1].Name != "Old Game" {
		t.Fatalf("stale order wrong: %q, %q", stale[0].Name, stale[1].Name)
	}
}

func TestFindByTextLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var entries []domain.CatalogEntry
	for i := 0; i < 10; i++ {
		entries = append(entries, domain.CatalogEntry{
			ExternalID: int64(1000 + i),
			Name:       "Endless Series",
			Category:   domain.CategoryMainGame,
		})
	}
	if err := store.UpsertBatch(ctx, entries); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	found, err := store.FindByText(ctx, "endless", domain.SearchFilters{}, 4)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 4 {
		t.Fatalf("got %d entries, want the limit of 4", len(found))
	}
}
