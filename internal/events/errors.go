package events

import (
	"fmt"
	"strings"
)

// ExternalServiceError wraps any remote call failure. StatusCode is the
// upstream HTTP status when the failure was HTTP, 0 otherwise.
type ExternalServiceError struct {
	Service    string
	StatusCode int
	Details    string
	Err        error
}

func (e *ExternalServiceError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("external service %s failed (status %d): %s", e.Service, e.StatusCode, e.Details)
	}
	return fmt.Sprintf("external service %s failed: %s", e.Service, e.Details)
}

func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// CircuitBreakerOpen is raised by the scheduler when a tick is skipped
// because the collector's breaker is open.
type CircuitBreakerOpen struct {
	Service string
}

func (e *CircuitBreakerOpen) Error() string {
	return fmt.Sprintf("circuit breaker open for %s", e.Service)
}

// RateLimitError is surfaced to push handlers so they can emit 429
type RateLimitError struct {
	RetryAfterSeconds int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %ds", e.RetryAfterSeconds)
}

// PubSubError aggregates per-event failures of a batch publish. It is
// returned only after every event in the batch has been attempted.
type PubSubError struct {
	Total       int
	Succeeded   int
	Failed      int
	FirstErrors []string // at most 5
}

func (e *PubSubError) Error() string {
	return fmt.Sprintf("published %d/%d events (%d failed): %s",
		e.Succeeded, e.Total, e.Failed, strings.Join(e.FirstErrors, "; "))
}

// ValidationError reports bad input to a pure operator or a malformed event
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}
