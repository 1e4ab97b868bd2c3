package domain

import (
	"strings"
	"time"
)

// Category mirrors the external catalog's release-category numbering so that
// payloads map directly onto the enum without a translation table.
type Category int

const (
	CategoryUnset               Category = -1
	CategoryMainGame            Category = 0
	CategoryDLC                 Category = 1
	CategoryExpansion           Category = 2
	CategoryBundle              Category = 3
	CategoryStandaloneExpansion Category = 4
	CategoryMod                 Category = 5
	CategoryEpisode             Category = 6
	CategorySeason              Category = 7
	CategoryRemake              Category = 8
	CategoryRemaster            Category = 9
	CategoryExpandedGame        Category = 10
	CategoryPort                Category = 11
	CategoryFork                Category = 12
	CategoryPack                Category = 13
	CategoryUpdate              Category = 14
)

func (c Category) String() string {
	switch c {
	case CategoryMainGame:
		return "main_game"
	case CategoryDLC:
		return "dlc"
	case CategoryExpansion:
		return "expansion"
	case CategoryBundle:
		return "bundle"
	case CategoryStandaloneExpansion:
		return "standalone_expansion"
	case CategoryMod:
		return "mod"
	case CategoryEpisode:
		return "episode"
	case CategorySeason:
		return "season"
	case CategoryRemake:
		return "remake"
	case CategoryRemaster:
		return "remaster"
	case CategoryExpandedGame:
		return "expanded_game"
	case CategoryPort:
		return "port"
	case CategoryFork:
		return "fork"
	case CategoryPack:
		return "pack"
	case CategoryUpdate:
		return "update"
	default:
		return "unset"
	}
}

// ParseCategory accepts either the symbolic name or the numeric value of a
// category. Unrecognized input maps to CategoryUnset.
func ParseCategory(raw string) (Category, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "main_game", "main", "0":
		return CategoryMainGame, true
	case "dlc", "1":
		return CategoryDLC, true
	case "expansion", "2":
		return CategoryExpansion, true
	case "bundle", "3":
		return CategoryBundle, true
	case "standalone_expansion", "4":
		return CategoryStandaloneExpansion, true
	case "mod", "5":
		return CategoryMod, true
	case "episode", "6":
		return CategoryEpisode, true
	case "season", "7":
		return CategorySeason, true
	case "remake", "8":
		return CategoryRemake, true
	case "remaster", "9":
		return CategoryRemaster, true
	case "expanded_game", "10":
		return CategoryExpandedGame, true
	case "port", "11":
		return CategoryPort, true
	case "fork", "12":
		return CategoryFork, true
	case "pack", "13":
		return CategoryPack, true
	case "update", "14":
		return CategoryUpdate, true
	default:
		return CategoryUnset, false
	}
}

// Verdict is the authenticity classification tier for a catalog entry.
type Verdict string

const (
	VerdictOfficial   Verdict = "official"
	VerdictUnofficial Verdict = "unofficial"
	VerdictUnknown    Verdict = "unknown"
)

// CatalogEntry is a single game record. ExternalID is the stable identifier
// assigned by the external catalog and is the only merge key across sources;
// zero means the entry has never been matched to the external catalog.
// LocalID is meaningful only within the local store.
//
// Optional metric fields are pointers: a nil rating is genuinely unrated,
// which is different from a rating of zero.
type CatalogEntry struct {
	LocalID    int64    `json:"localId,omitempty"`
	ExternalID int64    `json:"externalId,omitempty"`
	Name       string   `json:"name"`
	Category   Category `json:"category"`
	Developer  string   `json:"developer,omitempty"`
	Publisher  string   `json:"publisher,omitempty"`
	Summary    string   `json:"summary,omitempty"`
	CoverURL   string   `json:"coverUrl,omitempty"`

	Rating      *float64 `json:"rating,omitempty"`
	RatingCount *int     `json:"ratingCount,omitempty"`
	Follows     *int     `json:"follows,omitempty"`
	Hypes       *int     `json:"hypes,omitempty"`

	ReleasedAt *time.Time `json:"releasedAt,omitempty"`
	Platforms  []string   `json:"platforms,omitempty"`
	Franchise  string     `json:"franchise,omitempty"`

	// ParentID references the release this entry derives from (remaster,
	// port, DLC). Nil means this is an original release.
	ParentID *int64 `json:"parentId,omitempty"`

	// Official is a tri-state provenance flag: nil when nothing upstream has
	// vouched either way.
	Official *bool `json:"official,omitempty"`

	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
}

// Clone returns a deep copy so that enrichment never mutates a store-owned
// value in place.
func (e CatalogEntry) Clone() CatalogEntry {
	out := e
	out.Rating = cloneFloat(e.Rating)
	out.RatingCount = cloneInt(e.RatingCount)
	out.Follows = cloneInt(e.Follows)
	out.Hypes = cloneInt(e.Hypes)
	out.ReleasedAt = cloneTime(e.ReleasedAt)
	out.ParentID = cloneInt64(e.ParentID)
	out.Official = cloneBool(e.Official)
	out.LastSyncedAt = cloneTime(e.LastSyncedAt)
	out.Platforms = append([]string(nil), e.Platforms...)
	return out
}

func cloneFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneInt(v *int) *int {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneBool(v *bool) *bool {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	value := *v
	return &value
}
