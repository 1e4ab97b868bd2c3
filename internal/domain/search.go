package domain

// ExpansionRule identifies which franchise-expansion rule produced a query
// variant. The empty rule marks the caller's original query.
type ExpansionRule string

const (
	RuleOriginal      ExpansionRule = ""
	RuleSiblingGroup  ExpansionRule = "sibling-group"
	RuleSequelNumber  ExpansionRule = "sequel-number"
	RuleRomanNumeral  ExpansionRule = "roman-numeral"
	RuleSubtitleStrip ExpansionRule = "subtitle-strip"
)

// Query is a normalized search string plus the caller's filter set. Variants
// produced by the expander carry the rule that created them.
type Query struct {
	Text    string
	Filters SearchFilters
	Rule    ExpansionRule
}

// PopularityTier buckets the follow-count floor a caller can ask for.
type PopularityTier string

const (
	TierAny   PopularityTier = ""
	TierNiche PopularityTier = "niche"
	TierKnown PopularityTier = "known"
	TierHit   PopularityTier = "hit"
)

// FollowFloor translates a tier into the minimum community-follow count it
// implies.
func (t PopularityTier) FollowFloor() int {
	switch t {
	case TierNiche:
		return 50
	case TierKnown:
		return 1000
	case TierHit:
		return 10000
	default:
		return 0
	}
}

type SearchFilters struct {
	Categories     []Category     `json:"categories,omitempty"`
	DenyCategories []Category     `json:"denyCategories,omitempty"`
	MinRating      float64        `json:"minRating,omitempty"`
	MinFollows     int            `json:"minFollows,omitempty"`
	Tier           PopularityTier `json:"tier,omitempty"`
	IncludeObscure bool           `json:"includeObscure,omitempty"`
}

// ScoreFactors is the per-term breakdown of a relevance score, kept for
// diagnostics. Penalty is zero or negative; Total is clamped at zero.
type ScoreFactors struct {
	TextMatch   float64 `json:"textMatch"`
	Category    float64 `json:"category"`
	Quality     float64 `json:"quality"`
	Originality float64 `json:"originality"`
	Trust       float64 `json:"trust"`
	Penalty     float64 `json:"penalty"`
	Total       float64 `json:"total"`
}

// ScoredCandidate wraps a CatalogEntry with its relevance score, authenticity
// verdict and the query variant that surfaced it.
type ScoredCandidate struct {
	Entry   CatalogEntry  `json:"entry"`
	Score   float64       `json:"score"`
	Factors *ScoreFactors `json:"factors,omitempty"`
	Verdict Verdict       `json:"verdict"`
	Variant string        `json:"variant,omitempty"`
	Rule    ExpansionRule `json:"rule,omitempty"`
}

// FilterDecision records why a pipeline stage kept or removed a candidate.
// Decisions live only for the duration of one search invocation.
type FilterDecision struct {
	Stage      string `json:"stage"`
	Name       string `json:"name,omitempty"`
	ExternalID int64  `json:"externalId,omitempty"`
	Passed     bool   `json:"passed"`
	Reason     string `json:"reason"`
}

type SearchRequest struct {
	Text       string
	Filters    SearchFilters
	Page       int
	PageSize   int
	Diagnostic bool
	NoCache    bool
}

type SearchResponse struct {
	Query         string            `json:"query"`
	Results       []ScoredCandidate `json:"results"`
	Trace         []FilterDecision  `json:"trace,omitempty"`
	TotalEstimate int               `json:"totalEstimate"`
	Page          int               `json:"page"`
	PageSize      int               `json:"pageSize"`
	HasMore       bool              `json:"hasMore"`
	ElapsedMS     int64             `json:"elapsedMs"`
	// ErrorCode is a diagnostic-only annotation set when both sources were
	// unavailable; the response itself is still a normal (empty) result set.
	ErrorCode string `json:"errorCode,omitempty"`
}
