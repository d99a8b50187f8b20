// Package processor consumes processed-sentiment deliveries, derives
// market-context events and anomalies, and fans results out to the bus and
// the warehouse.
package processor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ajitpratap0/marketpulse/internal/analysis"
	"github.com/ajitpratap0/marketpulse/internal/bus"
	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
)

// ErrQueueFull signals backpressure to the push handler
var ErrQueueFull = errors.New("work queue full")

// ContextPublisher is the slice of the bus publisher the processor needs
type ContextPublisher interface {
	PublishMarketContext(ctx context.Context, mc *events.MarketContextEvent) (string, error)
	PublishAnomaly(ctx context.Context, payload interface{}, symbol, anomalyType, severity string) (string, error)
}

// ContextStore is the warehouse slice the processor needs
type ContextStore interface {
	InsertMarketContext(ctx context.Context, mc *events.MarketContextEvent) error
}

// task pairs one delivery with its reply channel so the push handler can
// wait for the outcome.
type task struct {
	ps     *events.ProcessedSentiment
	result chan error
}

// Processor owns the bounded work queue and the worker pool
type Processor struct {
	publisher ContextPublisher
	store     ContextStore
	agg       *Aggregator

	queue          chan task
	workers        int
	messageTimeout time.Duration
	retryAfterSec  int

	logger zerolog.Logger
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New builds a processor. store may be nil when the warehouse is disabled.
func New(cfg *config.ProcessorConfig, publisher ContextPublisher, store ContextStore) *Processor {
	return &Processor{
		publisher:      publisher,
		store:          store,
		agg:            NewAggregator(),
		queue:          make(chan task, cfg.QueueSize),
		workers:        cfg.Workers,
		messageTimeout: cfg.MessageTimeout(),
		retryAfterSec:  cfg.RetryAfterSeconds,
		logger:         config.NewLogger("processor"),
	}
}

// Aggregator exposes the per-symbol windows, e.g. to the market-data feed
func (p *Processor) Aggregator() *Aggregator {
	return p.agg
}

// Start launches the worker pool
func (p *Processor) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(runCtx)
	}
	p.logger.Info().Int("workers", p.workers).Int("queue_size", cap(p.queue)).Msg("Processor started")
}

// Stop cancels the workers and waits for them to drain
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	p.logger.Info().Msg("Processor stopped")
}

func (p *Processor) worker(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			metrics.WorkQueueDepth.Set(float64(len(p.queue)))
			t.result <- p.handle(ctx, t.ps)
		}
	}
}

// Submit enqueues one delivery and waits for its outcome. A full queue
// returns ErrQueueFull immediately; a message exceeding the processing
// ceiling returns a timeout error.
func (p *Processor) Submit(ctx context.Context, ps *events.ProcessedSentiment) error {
	t := task{ps: ps, result: make(chan error, 1)}

	select {
	case p.queue <- t:
		metrics.WorkQueueDepth.Set(float64(len(p.queue)))
	default:
		return ErrQueueFull
	}

	timer := time.NewTimer(p.messageTimeout)
	defer timer.Stop()
	select {
	case err := <-t.result:
		return err
	case <-timer.C:
		return fmt.Errorf("processing exceeded %s ceiling", p.messageTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handle performs the per-message work: derive the market context, fan out
// to bus and warehouse in parallel, then feed the windows and run the
// anomaly pass.
func (p *Processor) handle(ctx context.Context, ps *events.ProcessedSentiment) error {
	msgCtx, cancel := context.WithTimeout(ctx, p.messageTimeout)
	defer cancel()

	start := time.Now()
	mc := events.NewMarketContext(ps)

	g, gCtx := errgroup.WithContext(msgCtx)
	g.Go(func() error {
		_, err := p.publisher.PublishMarketContext(gCtx, mc)
		return err
	})
	if p.store != nil {
		g.Go(func() error {
			return p.store.InsertMarketContext(gCtx, mc)
		})
	}
	if err := g.Wait(); err != nil {
		metrics.PushMessages.WithLabelValues(metrics.ResultFailure).Inc()
		p.logger.Error().Err(err).
			Str("event_id", ps.EventID.String()).
			Str("symbol", ps.Symbol).
			Msg("Market context fan-out failed")
		return err
	}

	p.agg.AddSentiment(ps.Symbol, ps.Sentiment.Score)
	p.runAnomalyPass(msgCtx, ps)

	metrics.PushMessages.WithLabelValues(metrics.ResultSuccess).Inc()
	metrics.PushProcessing.Observe(time.Since(start).Seconds())
	p.logger.Info().
		Str("event_id", ps.EventID.String()).
		Str("context_id", mc.ContextID.String()).
		Str("symbol", ps.Symbol).
		Msg("Market context published")
	return nil
}

// runAnomalyPass detects and publishes anomalies for the symbol. Detection
// failures never fail the delivery; anomalies are best-effort signals.
func (p *Processor) runAnomalyPass(ctx context.Context, ps *events.ProcessedSentiment) {
	prices := p.agg.PriceSeries(ps.Symbol)
	if len(prices) < 2 {
		return
	}

	found := analysis.DetectAnomalies(analysis.AnomalyInput{
		Symbol:     ps.Symbol,
		MarketType: ps.MarketType,
		Prices:     prices,
		Sentiments: p.agg.SentimentSeries(ps.Symbol),
	})
	for _, a := range found {
		metrics.AnomaliesDetected.WithLabelValues(a.AnomalyType, a.Severity).Inc()
		if _, err := p.publisher.PublishAnomaly(ctx, a, a.Symbol, a.AnomalyType, a.Severity); err != nil {
			p.logger.Warn().Err(err).
				Str("symbol", a.Symbol).
				Str("anomaly_type", a.AnomalyType).
				Msg("Failed to publish anomaly")
		}
	}
}

// WatchMarketData feeds exchange prices from the raw-events topic into the
// per-symbol price windows used by the anomaly pass.
func (p *Processor) WatchMarketData(publisher *bus.Publisher) error {
	_, err := publisher.SubscribeRawEvents(func(ev *events.RawEvent) {
		if ev.Source != events.SourceExchange {
			return
		}
		price, ok := ev.Metadata.GetFloat("last_price")
		if !ok || price <= 0 {
			return
		}
		for _, symbol := range ev.Symbols {
			p.agg.AddPrice(symbol, price)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to raw events: %w", err)
	}
	p.logger.Info().Msg("Market data watch started")
	return nil
}
