package search

import (
	"gamedex/searchservice/internal/domain"
	"gamedex/searchservice/internal/policy"
)

// Classifier labels catalog entries as official publications, unofficial
// derivatives, or unknown. Positive signals win over pattern matches so a
// licensed release whose title contains a flagged word is never demoted.
type Classifier struct {
	policies *policy.Provider
}

func NewClassifier(policies *policy.Provider) *Classifier {
	return &Classifier{policies: policies}
}

func (c *Classifier) Classify(entry *domain.CatalogEntry) domain.Verdict {
	snapshot := c.policies.Current()
	if entry.Official != nil {
		if *entry.Official {
			return domain.VerdictOfficial
		}
		return domain.VerdictUnofficial
	}
	if snapshot.TrustedCompany(entry.Developer, entry.Publisher) {
		return domain.VerdictOfficial
	}
	if entry.ExternalID != 0 && snapshot.OfficialID(entry.ExternalID) {
		return domain.VerdictOfficial
	}
	if entry.Category == domain.CategoryMod {
		return domain.VerdictUnofficial
	}
	if _, matched := snapshot.UnofficialPattern(entry.Name); matched {
		return domain.VerdictUnofficial
	}
	return domain.VerdictUnknown
}
