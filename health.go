package keyrelay

import (
	"sync"
	"time"
)

const (
	healthFailureThreshold = 3
	healthFailureWindow    = 5 * time.Minute
)

// HealthState is the reported condition of a credential.
type HealthState string

const (
	HealthHealthy  HealthState = "healthy"
	HealthDegraded HealthState = "degraded"
)

// HealthTracker records recent non-quota upstream failures per credential.
// It is informational: the dispatcher still tries a degraded credential in turn.
type HealthTracker struct {
	mu       sync.Mutex
	now      func() time.Time
	failures map[string][]time.Time // sliding window of failure timestamps
}

// HealthOption configures a HealthTracker.
type HealthOption func(*HealthTracker)

// WithHealthClock sets the time source for the failure window.
func WithHealthClock(now func() time.Time) HealthOption {
	return func(h *HealthTracker) { h.now = now }
}

// NewHealthTracker creates a new HealthTracker.
func NewHealthTracker(opts ...HealthOption) *HealthTracker {
	h := &HealthTracker{
		now:      time.Now,
		failures: make(map[string][]time.Time),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// State returns the current health state for credential.
func (h *HealthTracker) State(credential string) HealthState {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pruneLocked(credential)) >= healthFailureThreshold {
		return HealthDegraded
	}
	return HealthHealthy
}

// RecordSuccess clears the failure history for credential.
func (h *HealthTracker) RecordSuccess(credential string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.failures, credential)
}

// RecordFailure records a failed call for credential.
func (h *HealthTracker) RecordFailure(credential string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	valid := h.pruneLocked(credential)
	h.failures[credential] = append(valid, h.now())
}

// pruneLocked drops failures outside the window and returns the rest.
func (h *HealthTracker) pruneLocked(credential string) []time.Time {
	cutoff := h.now().Add(-healthFailureWindow)
	all := h.failures[credential]
	valid := all[:0]
	for _, t := range all {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) == 0 {
		delete(h.failures, credential)
		return nil
	}
	h.failures[credential] = valid
	return valid
}
