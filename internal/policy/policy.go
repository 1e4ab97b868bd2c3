// Package policy holds the ranking policy: franchise patterns, company
// allowlists, penalty terms and tuning thresholds. The policy is loaded once
// at startup, compiled into an immutable snapshot, and swapped atomically on
// reload so a request never observes a half-updated table.
package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"gamedex/searchservice/internal/normalize"
)

// FranchisePattern is the single declarative rule governing franchise-aware
// behavior: the expander, the classifier and the scorer all consult the same
// table. A pattern may widen matching (name variants) but must not carry a
// blanket deny rule.
type FranchisePattern struct {
	// Keyword is the franchise name as it appears in queries, normalized form.
	Keyword string `json:"keyword"`
	// NameVariants are alternate official spellings of the franchise
	// (regional branding, punctuation variants) treated as the keyword.
	NameVariants []string `json:"nameVariants,omitempty"`
	// SiblingGroups are generational version sets; matching one member of a
	// group expands the query to the remaining members.
	SiblingGroups [][]string `json:"siblingGroups,omitempty"`
	// Console marks franchises whose searchers expect console releases, which
	// penalizes low-fidelity platform entries.
	Console bool `json:"console,omitempty"`
}

// OffTopicTerm penalizes candidates carrying a theme word the query did not
// ask for. Penalty is negative.
type OffTopicTerm struct {
	Term    string  `json:"term"`
	Penalty float64 `json:"penalty"`
}

// Thresholds are the tunable policy values of the merge pipeline. Zero values
// are replaced with defaults on load.
type Thresholds struct {
	RatingCountBoost   int           `json:"ratingCountBoost"`
	FollowBoost        int           `json:"followBoost"`
	LowResult          int           `json:"lowResult"`
	FranchiseResult    int           `json:"franchiseResult"`
	Staleness          time.Duration `json:"-"`
	StalenessDays      int           `json:"stalenessDays"`
	MaxVariants        int           `json:"maxVariants"`
	ExternalLimitBase  int           `json:"externalLimitBase"`
	ExternalLimitWide  int           `json:"externalLimitWide"`
}

// Policy is the on-disk shape of the configuration file.
type Policy struct {
	TrustedCompanies     []string           `json:"trustedCompanies"`
	OfficialExternalIDs  []int64            `json:"officialExternalIds"`
	UnofficialPatterns   []string           `json:"unofficialPatterns"`
	OffTopicTerms        []OffTopicTerm     `json:"offTopicTerms"`
	LowFidelityPlatforms []string           `json:"lowFidelityPlatforms"`
	Franchises           []FranchisePattern `json:"franchises"`
	Thresholds           Thresholds         `json:"thresholds"`
}

// Snapshot is the compiled, read-only view handed to the pipeline components.
type Snapshot struct {
	trustedCompanies     []string
	officialIDs          map[int64]struct{}
	unofficialPatterns   []string
	offTopicTerms        []OffTopicTerm
	lowFidelityPlatforms []string
	franchises           []FranchisePattern
	thresholds           Thresholds
}

func defaultThresholds() Thresholds {
	return Thresholds{
		RatingCountBoost:  50,
		FollowBoost:       1000,
		LowResult:         3,
		FranchiseResult:   10,
		Staleness:         7 * 24 * time.Hour,
		StalenessDays:     7,
		MaxVariants:       8,
		ExternalLimitBase: 20,
		ExternalLimitWide: 50,
	}
}

// Default returns the built-in policy used when no file is configured. It is
// deliberately small; production deployments ship their own file.
func Default() Policy {
	return Policy{
		UnofficialPatterns: []string{"rom hack", "romhack", "fan game", "fangame", "fan made", "randomizer", "homebrew", "bootleg", "unofficial"},
		Thresholds:         defaultThresholds(),
	}
}

func compile(p Policy) (*Snapshot, error) {
	if err := validate(p); err != nil {
		return nil, err
	}

	th := p.Thresholds
	defaults := defaultThresholds()
	if th.RatingCountBoost <= 0 {
		th.RatingCountBoost = defaults.RatingCountBoost
	}
	if th.FollowBoost <= 0 {
		th.FollowBoost = defaults.FollowBoost
	}
	if th.LowResult <= 0 {
		th.LowResult = defaults.LowResult
	}
	if th.FranchiseResult <= 0 {
		th.FranchiseResult = defaults.FranchiseResult
	}
	if th.StalenessDays <= 0 {
		th.StalenessDays = defaults.StalenessDays
	}
	th.Staleness = time.Duration(th.StalenessDays) * 24 * time.Hour
	if th.MaxVariants <= 0 {
		th.MaxVariants = defaults.MaxVariants
	}
	if th.ExternalLimitBase <= 0 {
		th.ExternalLimitBase = defaults.ExternalLimitBase
	}
	if th.ExternalLimitWide <= 0 {
		th.ExternalLimitWide = defaults.ExternalLimitWide
	}

	snapshot := &Snapshot{
		officialIDs: make(map[int64]struct{}, len(p.OfficialExternalIDs)),
		thresholds:  th,
	}
	for _, company := range p.TrustedCompanies {
		if normalized := normalize.Fold(company); normalized != "" {
			snapshot.trustedCompanies = append(snapshot.trustedCompanies, normalized)
		}
	}
	for _, id := range p.OfficialExternalIDs {
		snapshot.officialIDs[id] = struct{}{}
	}
	for _, pattern := range p.UnofficialPatterns {
		if normalized := normalize.Fold(pattern); normalized != "" {
			snapshot.unofficialPatterns = append(snapshot.unofficialPatterns, normalized)
		}
	}
	for _, term := range p.OffTopicTerms {
		term.Term = normalize.Fold(term.Term)
		snapshot.offTopicTerms = append(snapshot.offTopicTerms, term)
	}
	for _, platform := range p.LowFidelityPlatforms {
		if normalized := normalize.Fold(platform); normalized != "" {
			snapshot.lowFidelityPlatforms = append(snapshot.lowFidelityPlatforms, normalized)
		}
	}

	snapshot.franchises = make([]FranchisePattern, len(p.Franchises))
	copy(snapshot.franchises, p.Franchises)
	for i := range snapshot.franchises {
		pattern := &snapshot.franchises[i]
		pattern.Keyword = normalize.Fold(pattern.Keyword)
		for j, variant := range pattern.NameVariants {
			pattern.NameVariants[j] = normalize.Fold(variant)
		}
	}
	return snapshot, nil
}

func validate(p Policy) error {
	for i, pattern := range p.Franchises {
		if strings.TrimSpace(pattern.Keyword) == "" {
			return fmt.Errorf("franchise %d: keyword is required", i)
		}
		for j, group := range pattern.SiblingGroups {
			if len(group) < 2 {
				return fmt.Errorf("franchise %q: sibling group %d needs at least two members", pattern.Keyword, j)
			}
			for _, member := range group {
				if strings.TrimSpace(member) == "" {
					return fmt.Errorf("franchise %q: sibling group %d has an empty member", pattern.Keyword, j)
				}
			}
		}
	}
	for i, term := range p.OffTopicTerms {
		if strings.TrimSpace(term.Term) == "" {
			return fmt.Errorf("off-topic term %d: term is required", i)
		}
		if term.Penalty >= 0 {
			return fmt.Errorf("off-topic term %q: penalty must be negative", term.Term)
		}
	}
	return nil
}

// TrustedCompany reports whether either company name matches the allowlist
// by normalized substring in either direction, so "Nintendo" matches
// "Nintendo EPD" and vice versa.
func (s *Snapshot) TrustedCompany(names ...string) bool {
	for _, name := range names {
		candidate := normalize.Fold(name)
		if candidate == "" {
			continue
		}
		for _, trusted := range s.trustedCompanies {
			if strings.Contains(candidate, trusted) || strings.Contains(trusted, candidate) {
				return true
			}
		}
	}
	return false
}

func (s *Snapshot) OfficialID(id int64) bool {
	_, ok := s.officialIDs[id]
	return ok
}

// UnofficialPattern returns the first configured unofficial-content pattern
// contained in the normalized name.
func (s *Snapshot) UnofficialPattern(name string) (string, bool) {
	normalized := normalize.Fold(name)
	for _, pattern := range s.unofficialPatterns {
		if strings.Contains(normalized, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func (s *Snapshot) OffTopicTerms() []OffTopicTerm {
	return s.offTopicTerms
}

func (s *Snapshot) LowFidelityPlatform(platform string) bool {
	normalized := normalize.Fold(platform)
	for _, lowFi := range s.lowFidelityPlatforms {
		if strings.Contains(normalized, lowFi) {
			return true
		}
	}
	return false
}

// FranchiseFor finds the pattern whose keyword or name variant the normalized
// query text contains; nil when the query is not a franchise search. Patterns
// are checked in declaration order so overlapping keywords resolve the same
// way on every run.
func (s *Snapshot) FranchiseFor(text string) *FranchisePattern {
	normalized := normalize.Fold(text)
	if normalized == "" {
		return nil
	}
	for i := range s.franchises {
		pattern := &s.franchises[i]
		if strings.Contains(normalized, pattern.Keyword) {
			return pattern
		}
		for _, variant := range pattern.NameVariants {
			if strings.Contains(normalized, variant) {
				return pattern
			}
		}
	}
	return nil
}

// ConsoleFranchiseQuery reports whether the query targets a console franchise.
func (s *Snapshot) ConsoleFranchiseQuery(text string) bool {
	pattern := s.FranchiseFor(text)
	return pattern != nil && pattern.Console
}

func (s *Snapshot) Thresholds() Thresholds {
	return s.thresholds
}

// Provider hands out the current snapshot and performs atomic reloads.
type Provider struct {
	path    string
	current atomic.Pointer[Snapshot]
}

var ErrInvalidPolicy = errors.New("invalid policy")

// Load reads and compiles the policy file. An empty path selects the built-in
// default policy. Any validation failure is fatal to the caller: policy errors
// must surface at startup, never at request time.
func Load(path string) (*Provider, error) {
	provider := &Provider{path: path}
	snapshot, err := load(path)
	if err != nil {
		return nil, err
	}
	provider.current.Store(snapshot)
	return provider, nil
}

// FromPolicy compiles an in-memory policy, mainly for tests.
func FromPolicy(p Policy) (*Provider, error) {
	snapshot, err := compile(p)
	if err != nil {
		return nil, err
	}
	provider := &Provider{}
	provider.current.Store(snapshot)
	return provider, nil
}

func load(path string) (*Snapshot, error) {
	if strings.TrimSpace(path) == "" {
		return compile(Default())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy: %w", err)
	}
	parsed := Default()
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	snapshot, err := compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return snapshot, nil
}

// Current returns the active snapshot. The returned value is immutable.
func (p *Provider) Current() *Snapshot {
	return p.current.Load()
}

// Reload re-reads the policy file and swaps the snapshot atomically. On
// failure the previous snapshot stays active.
func (p *Provider) Reload() error {
	snapshot, err := load(p.path)
	if err != nil {
		return err
	}
	p.current.Store(snapshot)
	return nil
}
