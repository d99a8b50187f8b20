// Package scheduler drives the collector fabric: one periodic job per
// enabled collector, each gated by a consecutive-failure circuit breaker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ajitpratap0/marketpulse/internal/collectors"
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
)

const stopGracePeriod = 30 * time.Second

// JobStatus is a point-in-time snapshot of one collector job
type JobStatus struct {
	Collector           string     `json:"collector"`
	Interval            string     `json:"interval"`
	NextRun             time.Time  `json:"next_run"`
	LastRun             *time.Time `json:"last_run,omitempty"`
	LastError           string     `json:"last_error,omitempty"`
	BreakerState        string     `json:"breaker_state"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	LifetimeRuns        uint64     `json:"lifetime_runs"`
	LifetimeFailures    uint64     `json:"lifetime_failures"`
	EventsCollected     uint64     `json:"events_collected"`
}

// job owns one collector. Ticks and manual triggers share mu, so a
// collector never runs twice concurrently.
type job struct {
	mu sync.Mutex

	name      string
	collector collectors.Collector
	interval  time.Duration
	breaker   *breaker

	nextRun   time.Time
	lastRun   time.Time
	lastError string
	runs      uint64
	failures  uint64
	collected uint64
}

// Scheduler runs every registered collector on its configured interval
type Scheduler struct {
	mu      sync.Mutex
	jobs    map[string]*job
	logger  zerolog.Logger
	stopCh  chan struct{}
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

// New builds a scheduler over the already-constructed collector set
func New(cfg *config.Config, built map[string]collectors.Collector) *Scheduler {
	s := &Scheduler{
		jobs:   make(map[string]*job),
		logger: config.NewLogger("scheduler"),
		stopCh: make(chan struct{}),
	}
	for name, c := range built {
		interval := 5 * time.Minute
		if cc, ok := cfg.Collectors[name]; ok {
			interval = cc.Interval()
		}
		s.jobs[name] = &job{
			name:      name,
			collector: c,
			interval:  interval,
			breaker:   newBreaker(name),
		}
	}
	return s
}

// Start initialises every collector and launches its loop. A collector
// whose Initialize fails is dropped with a warning; the rest start.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	for name, j := range s.jobs {
		if err := j.collector.Initialize(runCtx); err != nil {
			s.logger.Warn().Err(err).Str("collector", name).Msg("Collector failed to initialize, dropping job")
			delete(s.jobs, name)
			continue
		}
		s.wg.Add(1)
		go s.runLoop(runCtx, j)
	}

	s.logger.Info().Int("jobs", len(s.jobs)).Msg("Scheduler started")
	return nil
}

func (s *Scheduler) runLoop(ctx context.Context, j *job) {
	defer s.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.mu.Lock()
	j.nextRun = time.Now().Add(j.interval)
	j.mu.Unlock()

	// First pass immediately so a fresh deploy produces data without
	// waiting out a full interval.
	s.runOnce(ctx, j, nil)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			j.mu.Lock()
			j.nextRun = time.Now().Add(j.interval)
			j.mu.Unlock()
			s.runOnce(ctx, j, nil)
		}
	}
}

// runOnce executes one gated collection pass
func (s *Scheduler) runOnce(ctx context.Context, j *job, params collectors.Params) (int, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.breaker.Allow(); err != nil {
		s.logger.Warn().Str("collector", j.name).Msg("Circuit open, skipping run")
		metrics.CollectRuns.WithLabelValues(j.name, metrics.ResultSkipped).Inc()
		return 0, err
	}

	runCtx, cancel := context.WithTimeout(ctx, j.interval)
	defer cancel()

	start := time.Now()
	n, err := j.collector.Collect(runCtx, params)
	elapsed := time.Since(start)

	metrics.CollectDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())
	j.lastRun = start
	j.runs++
	j.collected += uint64(n)
	if n > 0 {
		metrics.EventsCollected.WithLabelValues(j.name).Add(float64(n))
	}

	if err != nil {
		j.failures++
		j.lastError = err.Error()
		j.breaker.RecordFailure()
		metrics.CollectRuns.WithLabelValues(j.name, metrics.ResultFailure).Inc()
		s.logger.Error().Err(err).
			Str("collector", j.name).
			Int("collected", n).
			Dur("elapsed", elapsed).
			Msg("Collection run failed")
		return n, err
	}

	j.lastError = ""
	j.breaker.RecordSuccess()
	metrics.CollectRuns.WithLabelValues(j.name, metrics.ResultSuccess).Inc()
	s.logger.Info().
		Str("collector", j.name).
		Int("collected", n).
		Dur("elapsed", elapsed).
		Msg("Collection run complete")
	return n, nil
}

// TriggerCollect runs one collector out of band, still subject to its
// breaker and serialised against the periodic tick.
func (s *Scheduler) TriggerCollect(ctx context.Context, name string, params collectors.Params) (int, error) {
	s.mu.Lock()
	j, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return 0, &events.ValidationError{Field: "source", Reason: fmt.Sprintf("unknown or disabled collector %q", name)}
	}
	return s.runOnce(ctx, j, params)
}

// Has reports whether a collector job exists
func (s *Scheduler) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.jobs[name]
	return ok
}

// Status snapshots every job
func (s *Scheduler) Status() map[string]JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]JobStatus, len(s.jobs))
	for name, j := range s.jobs {
		j.mu.Lock()
		st := JobStatus{
			Collector:           name,
			Interval:            j.interval.String(),
			NextRun:             j.nextRun,
			BreakerState:        j.breaker.State(),
			ConsecutiveFailures: j.breaker.ConsecutiveFailures(),
			LifetimeRuns:        j.runs,
			LifetimeFailures:    j.failures,
			EventsCollected:     j.collected,
			LastError:           j.lastError,
		}
		if !j.lastRun.IsZero() {
			last := j.lastRun
			st.LastRun = &last
		}
		j.mu.Unlock()
		out[name] = st
	}
	return out
}

// Stop signals the loops, waits up to the grace period for in-flight runs,
// then cancels them. Collector resources are released either way.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	close(s.stopCh)
	cancel := s.cancel
	jobs := s.jobs
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(stopGracePeriod):
		s.logger.Warn().Msg("Grace period elapsed, cancelling in-flight runs")
		cancel()
		<-done
	}
	cancel()

	for name, j := range jobs {
		if err := j.collector.Close(); err != nil {
			s.logger.Warn().Err(err).Str("collector", name).Msg("Collector close failed")
		}
	}
	s.logger.Info().Msg("Scheduler stopped")
}
