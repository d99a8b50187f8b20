package scheduler

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// Circuit breaker states for Prometheus metrics and status snapshots
const (
	StateClosed  = "closed"
	StateOpen    = "open"
	StateProbing = "probing"
)

const (
	// Consecutive failures before the circuit opens
	FailureThreshold = 5
	// How long an open circuit waits before allowing a probe tick
	ResetTimeout = 300 * time.Second
)

type breakerMetrics struct {
	state    *prometheus.GaugeVec
	failures *prometheus.CounterVec
	trips    *prometheus.CounterVec
}

var (
	globalBreakerMetrics *breakerMetrics
	breakerMetricsOnce   sync.Once
)

func initBreakerMetrics() {
	breakerMetricsOnce.Do(func() {
		globalBreakerMetrics = &breakerMetrics{
			state: promauto.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "collector_circuit_breaker_state",
					Help: "Collector circuit breaker state (0=closed, 1=open, 2=probing)",
				},
				[]string{"collector"},
			),
			failures: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "collector_circuit_breaker_failures_total",
					Help: "Consecutive-run failures tracked by collector circuit breakers",
				},
				[]string{"collector"},
			),
			trips: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "collector_circuit_breaker_trips_total",
					Help: "Times a collector circuit breaker opened",
				},
				[]string{"collector"},
			),
		}
	})
}

// breaker gates one collector's periodic runs on its recent failure history.
//
// Unlike a ratio breaker it counts consecutive failures only: a run that
// succeeds after some failures pays the count down by one rather than
// clearing it, so a collector that alternates success and failure still
// trips eventually. An open circuit rejects runs until ResetTimeout has
// elapsed, then lets exactly one probe through; the probe's outcome decides
// between a full reset and re-opening.
type breaker struct {
	mu sync.Mutex

	name        string
	consecutive int
	open        bool
	probing     bool
	openedAt    time.Time

	now func() time.Time
}

func newBreaker(name string) *breaker {
	initBreakerMetrics()
	b := &breaker{name: name, now: time.Now}
	globalBreakerMetrics.state.WithLabelValues(name).Set(0)
	return b
}

// Allow reports whether the next run may proceed. When the circuit is open
// and the reset timeout has elapsed, the call transitions to probing and
// admits the run.
func (b *breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.open {
		return nil
	}
	if b.now().Sub(b.openedAt) >= ResetTimeout {
		b.probing = true
		b.setStateLocked(2)
		return nil
	}
	return &events.CircuitBreakerOpen{Service: b.name}
}

// RecordSuccess clears the probe or pays down the consecutive failure count
func (b *breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.probing {
		b.open = false
		b.probing = false
		b.consecutive = 0
		b.setStateLocked(0)
		return
	}
	if b.consecutive > 0 {
		b.consecutive--
	}
}

// RecordFailure counts a failed run, opening (or re-opening after a failed
// probe) once the threshold is reached.
func (b *breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	globalBreakerMetrics.failures.WithLabelValues(b.name).Inc()

	if b.probing {
		b.probing = false
		b.openedAt = b.now()
		globalBreakerMetrics.trips.WithLabelValues(b.name).Inc()
		b.setStateLocked(1)
		return
	}

	b.consecutive++
	if !b.open && b.consecutive >= FailureThreshold {
		b.open = true
		b.openedAt = b.now()
		globalBreakerMetrics.trips.WithLabelValues(b.name).Inc()
		b.setStateLocked(1)
	}
}

// State returns the label for status snapshots
func (b *breaker) State() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch {
	case b.probing:
		return StateProbing
	case b.open:
		return StateOpen
	default:
		return StateClosed
	}
}

// ConsecutiveFailures returns the current consecutive failure count
func (b *breaker) ConsecutiveFailures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.consecutive
}

func (b *breaker) setStateLocked(v float64) {
	globalBreakerMetrics.state.WithLabelValues(b.name).Set(v)
}
