package warehouse

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/ajitpratap0/marketpulse/internal/config"
	"github.com/ajitpratap0/marketpulse/internal/events"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
)

// ExecInterface is the slice of the pool the store needs; pgxpool.Pool and
// pgxmock both satisfy it.
type ExecInterface interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

const insertRawEventSQL = `
	INSERT INTO raw_events (
		event_id, source, source_id, content, metadata,
		collected_at, published_at, symbols, title, url, author, tenant_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (event_id) DO NOTHING`

const insertMarketContextSQL = `
	INSERT INTO market_contexts (
		context_id, event_id, symbol, market_type,
		sentiment_score, sentiment_label, source, timestamp, tenant_id
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (context_id) DO NOTHING`

// Store writes pipeline events into the warehouse. Inserts run through a
// circuit breaker so a dead database degrades to fast failures instead of
// stalling the push handler.
type Store struct {
	pool    ExecInterface
	breaker *gobreaker.CircuitBreaker
	logger  zerolog.Logger
}

// NewStore builds a store over any ExecInterface
func NewStore(pool ExecInterface) *Store {
	return &Store{
		pool:    pool,
		logger:  config.NewLogger("warehouse"),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "warehouse",
			MaxRequests: 5,
			Interval:    10 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= 10 && failureRatio >= 0.6
			},
		}),
	}
}

// InsertRawEvent persists one raw event, idempotent on event_id
func (s *Store) InsertRawEvent(ctx context.Context, ev *events.RawEvent) error {
	metadata, err := json.Marshal(ev.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return s.pool.Exec(ctx, insertRawEventSQL,
			ev.EventID, string(ev.Source), ev.SourceID, ev.Content, metadata,
			ev.CollectedAt, ev.PublishedAt, ev.Symbols, ev.Title, ev.URL, ev.Author,
			nullableTenant(ev.TenantID),
		)
	})
	if err != nil {
		metrics.WarehouseInserts.WithLabelValues("raw_events", metrics.ResultFailure).Inc()
		s.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Str("collector", string(ev.Source)).
			Msg("Raw event insert failed")
		return fmt.Errorf("failed to insert raw event: %w", err)
	}
	metrics.WarehouseInserts.WithLabelValues("raw_events", metrics.ResultSuccess).Inc()
	return nil
}

// InsertMarketContext persists one market context, idempotent on context_id
func (s *Store) InsertMarketContext(ctx context.Context, ev *events.MarketContextEvent) error {
	_, err := s.breaker.Execute(func() (interface{}, error) {
		return s.pool.Exec(ctx, insertMarketContextSQL,
			ev.ContextID, ev.EventID, ev.Symbol, ev.MarketType,
			ev.SentimentScore, ev.SentimentLabel, string(ev.Source), ev.Timestamp,
			nullableTenant(ev.TenantID),
		)
	})
	if err != nil {
		metrics.WarehouseInserts.WithLabelValues("market_contexts", metrics.ResultFailure).Inc()
		s.logger.Error().Err(err).
			Str("event_id", ev.EventID.String()).
			Str("context_id", ev.ContextID.String()).
			Msg("Market context insert failed")
		return fmt.Errorf("failed to insert market context: %w", err)
	}
	metrics.WarehouseInserts.WithLabelValues("market_contexts", metrics.ResultSuccess).Inc()
	return nil
}

func nullableTenant(tenantID string) *string {
	if tenantID == "" {
		return nil
	}
	return &tenantID
}
