package collectors

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
)

// PublishReport is the partial-success report of a batch publish. The batch
// fails as a whole only when Failed > 0 after attempting every event.
type PublishReport struct {
	Total     int
	Succeeded int
	Failed    int
	Errors    []string // at most 5
}

// BaseCollector carries the machinery shared by event-based collectors:
// the publisher handle, the per-collector HTTP session, outbound rate
// limiting and structured logging.
type BaseCollector struct {
	name      string
	source    events.SourceType
	publisher EventPublisher
	client    *http.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewBaseCollector builds the shared collector core. requestsPerMinute <= 0
// disables rate limiting.
func NewBaseCollector(name string, source events.SourceType, pub EventPublisher, requestsPerMinute int) BaseCollector {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}
	return BaseCollector{
		name:      name,
		source:    source,
		publisher: pub,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				ResponseHeaderTimeout: 10 * time.Second,
				MaxIdleConnsPerHost:   4,
			},
		},
		limiter: limiter,
		logger:  config.NewLogger("collector").With().Str("collector", name).Logger(),
	}
}

// Name returns the collector name
func (b *BaseCollector) Name() string { return b.name }

// Source returns the collector's event source
func (b *BaseCollector) Source() events.SourceType { return b.source }

// Logger returns the collector's component logger
func (b *BaseCollector) Logger() *zerolog.Logger { return &b.logger }

// Close releases the HTTP session. Safe to call more than once.
func (b *BaseCollector) Close() error {
	b.client.CloseIdleConnections()
	return nil
}

// WaitRateLimit blocks until the collector may issue its next outbound
// request, honouring the configured minimum interval.
func (b *BaseCollector) WaitRateLimit(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	return b.limiter.Wait(ctx)
}

// GetJSON performs a rate-limited GET and returns the response body.
// Failures are reported as typed external-service errors carrying the
// upstream status code.
func (b *BaseCollector) GetJSON(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if err := b.WaitRateLimit(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &events.ExternalServiceError{Service: b.name, Details: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, &events.ExternalServiceError{Service: b.name, Details: err.Error(), Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &events.ExternalServiceError{
			Service:    b.name,
			StatusCode: resp.StatusCode,
			Details:    fmt.Sprintf("GET %s returned %s", url, resp.Status),
		}
	}
	return body, nil
}

// PublishEvents processes every event independently and never short-circuits
// mid-batch. It returns the partial-success report; the accompanying error
// is non-nil only when at least one event failed.
func (b *BaseCollector) PublishEvents(ctx context.Context, evs []*events.RawEvent) (PublishReport, error) {
	report := PublishReport{Total: len(evs)}
	for _, ev := range evs {
		if _, err := b.publisher.PublishRawEvent(ctx, ev); err != nil {
			report.Failed++
			if len(report.Errors) < 5 {
				report.Errors = append(report.Errors, err.Error())
			}
			b.logger.Error().
				Err(err).
				Str("event_id", ev.EventID.String()).
				Str("source", string(ev.Source)).
				Msg("Failed to publish event")
			continue
		}
		report.Succeeded++
	}

	if report.Failed > 0 {
		return report, &events.PubSubError{
			Total:       report.Total,
			Succeeded:   report.Succeeded,
			Failed:      report.Failed,
			FirstErrors: report.Errors,
		}
	}
	return report, nil
}

// maxSymbolRetries is the give-up threshold: a symbol failing this many
// times is skipped until reset externally.
const maxSymbolRetries = 5

// backoffBase and backoffMax bound the per-symbol retry delay
const (
	backoffBase = time.Second
	backoffMax  = 60 * time.Second
)

// symbolBackoff tracks per-symbol exponential backoff within a collector.
// Mutated only by the single serial collect pass for that collector.
type symbolBackoff struct {
	retries   map[string]int
	lastRetry map[string]time.Time
	now       func() time.Time
	jitter    func(d time.Duration) time.Duration
}

func newSymbolBackoff() *symbolBackoff {
	return &symbolBackoff{
		retries:   make(map[string]int),
		lastRetry: make(map[string]time.Time),
		now:       time.Now,
		jitter: func(d time.Duration) time.Duration {
			return time.Duration(rand.Int63n(int64(d)/10 + 1))
		},
	}
}

// delay returns the permissible wait before the next attempt for a symbol
// with the given retry count: min(base * 2^retries, max) + jitter.
func (sb *symbolBackoff) delay(retries int) time.Duration {
	d := backoffBase
	for i := 0; i < retries && d < backoffMax; i++ {
		d *= 2
	}
	if d > backoffMax {
		d = backoffMax
	}
	return d + sb.jitter(d)
}

// ShouldAttempt reports whether the symbol may be processed in this pass
func (sb *symbolBackoff) ShouldAttempt(symbol string) bool {
	retries := sb.retries[symbol]
	if retries >= maxSymbolRetries {
		return false
	}
	if retries == 0 {
		return true
	}
	return sb.now().Sub(sb.lastRetry[symbol]) >= sb.delay(retries)
}

// RecordFailure increments the symbol's retry counter
func (sb *symbolBackoff) RecordFailure(symbol string) {
	sb.retries[symbol]++
	sb.lastRetry[symbol] = sb.now()
}

// RecordSuccess resets both counter and timestamp for the symbol
func (sb *symbolBackoff) RecordSuccess(symbol string) {
	delete(sb.retries, symbol)
	delete(sb.lastRetry, symbol)
}

// Exhausted reports whether the symbol has hit the give-up threshold
func (sb *symbolBackoff) Exhausted(symbol string) bool {
	return sb.retries[symbol] >= maxSymbolRetries
}

// Reset clears all backoff state (external reset)
func (sb *symbolBackoff) Reset() {
	sb.retries = make(map[string]int)
	sb.lastRetry = make(map[string]time.Time)
}
