package search

import (
	"gamedex/searchservice/internal/domain"
)

// Tracer records per-candidate pipeline decisions. Production searches use
// the no-op implementation so tracing costs nothing outside diagnostic mode.
type Tracer interface {
	Trace(stage string, entry *domain.CatalogEntry, passed bool, reason string)
	Decisions() []domain.FilterDecision
}

type nopTracer struct{}

func (nopTracer) Trace(string, *domain.CatalogEntry, bool, string) {}
func (nopTracer) Decisions() []domain.FilterDecision               { return nil }

// recordingTracer collects an append-only audit trail for one request. It is
// only written from the request goroutine after candidate collection, so it
// needs no locking.
type recordingTracer struct {
	decisions []domain.FilterDecision
}

func newTracer(diagnostic bool) Tracer {
	if diagnostic {
		return &recordingTracer{}
	}
	return nopTracer{}
}

func (t *recordingTracer) Trace(stage string, entry *domain.CatalogEntry, passed bool, reason string) {
	decision := domain.FilterDecision{Stage: stage, Passed: passed, Reason: reason}
	if entry != nil {
		decision.Name = entry.Name
		decision.ExternalID = entry.ExternalID
	}
	t.decisions = append(t.decisions, decision)
}

func (t *recordingTracer) Decisions() []domain.FilterDecision {
	return t.decisions
}
