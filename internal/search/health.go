package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"gamedex/searchservice/internal/metrics"
)

const (
	externalFailureThreshold = 3
	externalBlockBase        = 2 * time.Minute
	externalBlockMax         = 15 * time.Minute
)

// externalHealth is the circuit-breaker state of the external catalog. After
// a run of consecutive failures the catalog is blocked for an exponentially
// growing window and searches stay local-only until it elapses.
type externalHealth struct {
	consecutiveFailures int
	blockedUntil        time.Time
	lastError           string
	lastSuccessAt       time.Time
	lastFailureAt       time.Time
	lastLatency         time.Duration
	lastQuery           string
	totalRequests       int64
	totalFailures       int64
	timeoutCount        int64
}

// ExternalStatus is a point-in-time view of the catalog breaker for the
// diagnostics endpoint.
type ExternalStatus struct {
	Blocked             bool       `json:"blocked"`
	BlockedUntil        *time.Time `json:"blockedUntil,omitempty"`
	ConsecutiveFailures int        `json:"consecutiveFailures"`
	LastError           string     `json:"lastError,omitempty"`
	LastSuccessAt       *time.Time `json:"lastSuccessAt,omitempty"`
	LastFailureAt       *time.Time `json:"lastFailureAt,omitempty"`
	LastLatencyMS       int64      `json:"lastLatencyMs"`
	LastQuery           string     `json:"lastQuery,omitempty"`
	TotalRequests       int64      `json:"totalRequests"`
	TotalFailures       int64      `json:"totalFailures"`
	TimeoutCount        int64      `json:"timeoutCount"`
}

func (c *Coordinator) externalBlocked(now time.Time) (bool, string) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	if c.health.blockedUntil.IsZero() || now.After(c.health.blockedUntil) {
		return false, ""
	}
	return true, c.health.lastError
}

func (c *Coordinator) recordExternalResult(query string, err error, latency time.Duration, now time.Time) {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	state := &c.health
	state.totalRequests++
	state.lastQuery = strings.TrimSpace(query)
	if latency > 0 {
		state.lastLatency = latency
		metrics.ExternalRequestDuration.Observe(latency.Seconds())
	}
	timeout := isTimeoutLikeError(err)
	if timeout {
		state.timeoutCount++
	}

	if err == nil {
		state.consecutiveFailures = 0
		state.blockedUntil = time.Time{}
		state.lastError = ""
		state.lastSuccessAt = now
		metrics.ExternalRequestsTotal.WithLabelValues("ok").Inc()
		metrics.ExternalAvailable.Set(1)
		return
	}

	state.consecutiveFailures++
	state.totalFailures++
	state.lastFailureAt = now
	state.lastError = err.Error()

	status := "error"
	if timeout {
		status = "timeout"
	}
	metrics.ExternalRequestsTotal.WithLabelValues(status).Inc()

	if state.consecutiveFailures >= externalFailureThreshold {
		state.blockedUntil = now.Add(blockDuration(state.consecutiveFailures))
		metrics.ExternalAvailable.Set(0)
	}
}

// blockDuration grows the block window as base * 2^(failures - threshold),
// capped at 15 minutes.
func blockDuration(consecutiveFailures int) time.Duration {
	exponent := consecutiveFailures - externalFailureThreshold
	if exponent < 0 {
		exponent = 0
	}
	d := externalBlockBase
	for i := 0; i < exponent; i++ {
		d *= 2
		if d > externalBlockMax {
			return externalBlockMax
		}
	}
	return d
}

func isTimeoutLikeError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	value := strings.ToLower(err.Error())
	return strings.Contains(value, "timeout") || strings.Contains(value, "deadline exceeded")
}

func (c *Coordinator) ExternalStatus(now time.Time) ExternalStatus {
	c.healthMu.Lock()
	defer c.healthMu.Unlock()

	state := c.health
	status := ExternalStatus{
		ConsecutiveFailures: state.consecutiveFailures,
		LastError:           state.lastError,
		LastLatencyMS:       state.lastLatency.Milliseconds(),
		LastQuery:           state.lastQuery,
		TotalRequests:       state.totalRequests,
		TotalFailures:       state.totalFailures,
		TimeoutCount:        state.timeoutCount,
	}
	if !state.blockedUntil.IsZero() && now.Before(state.blockedUntil) {
		status.Blocked = true
		blockedUntil := state.blockedUntil
		status.BlockedUntil = &blockedUntil
	}
	if !state.lastSuccessAt.IsZero() {
		lastSuccessAt := state.lastSuccessAt
		status.LastSuccessAt = &lastSuccessAt
	}
	if !state.lastFailureAt.IsZero() {
		lastFailureAt := state.lastFailureAt
		status.LastFailureAt = &lastFailureAt
	}
	return status
}
