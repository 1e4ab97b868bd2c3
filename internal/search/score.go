package search

import (
	"strings"

	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/normalize"
	"gamedex/searchservice/internal/policy"
)

const lowFidelityPenalty = -25

// Scorer computes the additive relevance score of a catalog entry against a
// query. Score is a pure function of its inputs plus the policy snapshot it
// was built with, so one Scorer can run across candidates in parallel.
type Scorer struct {
	snapshot *policy.Snapshot
}

func NewScorer(snapshot *policy.Snapshot) *Scorer {
	return &Scorer{snapshot: snapshot}
}

func (s *Scorer) Score(entry *domain.CatalogEntry, q domain.Query, verdict domain.Verdict) domain.ScoredCandidate {
	query := normalize.Fold(q.Text)
	name := normalize.Fold(entry.Name)

	factors := domain.ScoreFactors{
		TextMatch:   textMatchScore(name, query),
		Category:    categoryScore(entry.Category),
		Quality:     s.qualityScore(entry),
		Originality: originalityScore(entry),
		Trust:       s.trustScore(entry),
		Penalty:     s.penaltyScore(entry, name, query, verdict),
	}
	total := factors.TextMatch + factors.Category + factors.Quality +
		factors.Originality + factors.Trust + factors.Penalty
	if total < 0 {
		total = 0
	}
	factors.Total = total

	return domain.ScoredCandidate{
		Entry:   *entry,
		Score:   total,
		Factors: &factors,
		Verdict: verdict,
		Variant: q.Text,
		Rule:    q.Rule,
	}
}

func textMatchScore(name, query string) float64 {
	if query == "" {
		return 0
	}
	switch {
	case name == query:
		return 100
	case strings.HasPrefix(name, query):
		return 80
	case strings.Contains(name, query):
		return 60
	}
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return 0
	}
	present := 0
	nameTokens := normalize.TokenSet(name)
	for _, term := range terms {
		if _, ok := nameTokens[term]; ok {
			present++
		}
	}
	return 40 * float64(present) / float64(len(terms))
}

func categoryScore(category domain.Category) float64 {
	switch category {
	case domain.CategoryMainGame:
		return 50
	case domain.CategoryRemake, domain.CategoryRemaster:
		return 35
	case domain.CategoryExpansion, domain.CategoryStandaloneExpansion, domain.CategoryExpandedGame:
		return 30
	case domain.CategoryUnset:
		// Entries with no category metadata sit between ports and
		// expansions rather than scoring like a mod.
		return 25
	case domain.CategoryPort:
		return 20
	case domain.CategoryDLC:
		return 15
	case domain.CategoryBundle, domain.CategoryEpisode, domain.CategoryPack:
		return 10
	case domain.CategorySeason, domain.CategoryUpdate:
		return 5
	default:
		return 0
	}
}

// qualityScore rewards rating and community signals. Missing metrics
// contribute nothing so sparse entries are never penalized here.
func (s *Scorer) qualityScore(entry *domain.CatalogEntry) float64 {
	th := s.snapshot.Thresholds()
	score := 0.0
	if entry.Rating != nil {
		score += (*entry.Rating / 100) * 30
	}
	if entry.RatingCount != nil && *entry.RatingCount > th.RatingCountBoost {
		score += 10
	}
	if entry.Follows != nil && *entry.Follows > th.FollowBoost {
		score += 10
	}
	return score
}

func originalityScore(entry *domain.CatalogEntry) float64 {
	if entry.ParentID == nil {
		return 30
	}
	return 10
}

func (s *Scorer) trustScore(entry *domain.CatalogEntry) float64 {
	if s.snapshot.TrustedCompany(entry.Developer, entry.Publisher) {
		return 20
	}
	return 0
}

func (s *Scorer) penaltyScore(entry *domain.CatalogEntry, name, query string, verdict domain.Verdict) float64 {
	penalty := 0.0
	if verdict != domain.VerdictOfficial {
		if _, matched := s.snapshot.UnofficialPattern(entry.Name); matched {
			penalty -= 50
		}
	}
	for _, term := range s.snapshot.OffTopicTerms() {
		if strings.Contains(name, term.Term) && !strings.Contains(query, term.Term) {
			penalty += term.Penalty
		}
	}
	if s.snapshot.ConsoleFranchiseQuery(query) {
		for _, platform := range entry.Platforms {
			if s.snapshot.LowFidelityPlatform(platform) {
				penalty += lowFidelityPenalty
				break
			}
		}
	}
	return penalty
}
