package search

import (
	"time"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/normalize"
)

// NormalizeQuery canonicalizes a raw search string. It is idempotent.
func NormalizeQuery(raw string) string {
	return normalize.Fold(raw)
}

// compareCandidates orders two scored candidates: higher score first, then
// higher rating count, then earlier release, then ascending external ID so
// the order is total and stable for any candidate set.
func compareCandidates(left, right domain.ScoredCandidate) int {
	if cmp := compareFloat64(left.Score, right.Score); cmp != 0 {
		return -cmp
	}
	if cmp := compareInt(ratingCount(left.Entry), ratingCount(right.Entry)); cmp != 0 {
		return -cmp
	}
	if cmp := compareRelease(left.Entry.ReleasedAt, right.Entry.ReleasedAt); cmp != 0 {
		return cmp
	}
	return compareInt64(left.Entry.ExternalID, right.Entry.ExternalID)
}

func ratingCount(entry domain.CatalogEntry) int {
	if entry.RatingCount == nil {
		return 0
	}
	return *entry.RatingCount
}

func compareFloat64(left, right float64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareInt(left, right int) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

func compareInt64(left, right int64) int {
	switch {
	case left < right:
		return -1
	case left > right:
		return 1
	default:
		return 0
	}
}

// compareRelease sorts known release dates ascending; entries without a date
// go last.
func compareRelease(left, right *time.Time) int {
	if left == nil && right == nil {
		return 0
	}
	if left == nil {
		return 1
	}
	if right == nil {
		return -1
	}
	switch {
	case left.Before(*right):
		return -1
	case left.After(*right):
		return 1
	default:
		return 0
	}
}
