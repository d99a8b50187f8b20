// Package bus publishes pipeline events to the NATS topic bus and decodes
// push-subscription delivery envelopes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpulse/internal/events"
	"github.com/ajitpratap0/marketpulse/internal/metrics"
)

// Topic names under the configured prefix
const (
	TopicRawEvents          = "raw-events"
	TopicProcessedSentiment = "processed-sentiment"
	TopicMarketContext      = "market-context"
	TopicAnomalies          = "anomalies"
)

// Message attribute keys carried as NATS headers
const (
	AttrSource     = "source"
	AttrEventID    = "event_id"
	AttrTenantID   = "tenant_id"
	AttrSymbols    = "symbols"
	AttrMessageID  = "message_id"
	AttrEventType  = "event_type"
	AttrSymbol     = "symbol"
	AttrMarketType = "market_type"
)

// Publisher serialises events to the topic bus with ordered attribute
// propagation. The underlying connection is safe for concurrent callers.
type Publisher struct {
	nc     *nats.Conn
	prefix string
}

// Config configures the publisher
type Config struct {
	NATSURL string
	Prefix  string // topic prefix, default "marketpulse."
}

// DefaultConfig returns default publisher configuration
func DefaultConfig() Config {
	return Config{
		NATSURL: nats.DefaultURL,
		Prefix:  "marketpulse.",
	}
}

// NewPublisher connects to NATS and returns a publisher
func NewPublisher(config Config) (*Publisher, error) {
	nc, err := nats.Connect(
		config.NATSURL,
		nats.Name("marketpulse-publisher"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	if config.Prefix == "" {
		config.Prefix = "marketpulse."
	}

	log.Info().
		Str("nats_url", config.NATSURL).
		Str("prefix", config.Prefix).
		Msg("Publisher initialized")

	return &Publisher{nc: nc, prefix: config.Prefix}, nil
}

// NewPublisherWithConn wraps an existing connection (used by tests)
func NewPublisherWithConn(nc *nats.Conn, prefix string) *Publisher {
	if prefix == "" {
		prefix = "marketpulse."
	}
	return &Publisher{nc: nc, prefix: prefix}
}

// Subject returns the full bus subject for a topic
func (p *Publisher) Subject(topic string) string {
	return p.prefix + topic
}

// publish serialises payload to topic with the given attributes and returns
// the stamped message id. NATS assigns no broker id on plain publish, so the
// publisher stamps one per message; subscribers dedupe on event_id.
func (p *Publisher) publish(ctx context.Context, topic string, payload interface{}, attrs map[string]string) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}

	if !p.nc.IsConnected() {
		return "", &events.ExternalServiceError{Service: "pubsub", Details: "bus not connected"}
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal event: %w", err)
	}

	messageID := uuid.NewString()
	msg := nats.NewMsg(p.Subject(topic))
	msg.Data = data
	msg.Header.Set(AttrMessageID, messageID)
	for k, v := range attrs {
		if v != "" {
			msg.Header.Set(k, v)
		}
	}

	if err := p.nc.PublishMsg(msg); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, metrics.ResultFailure).Inc()
		return "", &events.ExternalServiceError{Service: "pubsub", Details: err.Error(), Err: err}
	}
	// Await broker acknowledgement of everything written so far
	if err := p.nc.FlushWithContext(ctx); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, metrics.ResultFailure).Inc()
		return "", &events.ExternalServiceError{Service: "pubsub", Details: err.Error(), Err: err}
	}
	metrics.EventsPublished.WithLabelValues(topic, metrics.ResultSuccess).Inc()

	log.Debug().
		Str("message_id", messageID).
		Str("topic", topic).
		Str("subject", msg.Subject).
		Msg("Published event")

	return messageID, nil
}

// PublishRawEvent publishes a single RawEvent to the raw-events topic and
// returns the message id once the broker has acknowledged it.
func (p *Publisher) PublishRawEvent(ctx context.Context, ev *events.RawEvent) (string, error) {
	if err := events.ValidateRawEvent(ev); err != nil {
		return "", err
	}
	return p.publish(ctx, TopicRawEvents, ev, rawEventAttrs(ev))
}

func rawEventAttrs(ev *events.RawEvent) map[string]string {
	attrs := map[string]string{
		AttrSource:  string(ev.Source),
		AttrEventID: ev.EventID.String(),
	}
	if ev.TenantID != "" {
		attrs[AttrTenantID] = ev.TenantID
	}
	if len(ev.Symbols) > 0 {
		attrs[AttrSymbols] = strings.Join(ev.Symbols, ",")
	}
	return attrs
}

// PublishEvents attempts every event in the batch. A failure on one event
// never aborts the others; when any failed, the returned error is a
// PubSubError aggregating counts and up to the first five failure messages.
// Message ids for the successful events are always returned.
func (p *Publisher) PublishEvents(ctx context.Context, evs []*events.RawEvent) ([]string, error) {
	messageIDs := make([]string, 0, len(evs))
	var firstErrors []string
	failed := 0

	for _, ev := range evs {
		id, err := p.PublishRawEvent(ctx, ev)
		if err != nil {
			failed++
			if len(firstErrors) < 5 {
				firstErrors = append(firstErrors, err.Error())
			}
			log.Error().
				Err(err).
				Str("event_id", ev.EventID.String()).
				Str("source", string(ev.Source)).
				Msg("Failed to publish event")
			continue
		}
		messageIDs = append(messageIDs, id)
	}

	if failed > 0 {
		return messageIDs, &events.PubSubError{
			Total:       len(evs),
			Succeeded:   len(messageIDs),
			Failed:      failed,
			FirstErrors: firstErrors,
		}
	}
	return messageIDs, nil
}

// PublishProcessedSentiment publishes to the processed-sentiment topic. The
// enricher owns this topic in production; the entry point exists for
// testability of the processor path.
func (p *Publisher) PublishProcessedSentiment(ctx context.Context, ps *events.ProcessedSentiment) (string, error) {
	attrs := map[string]string{
		AttrSource:  string(ps.Source),
		AttrEventID: ps.EventID.String(),
		AttrSymbol:  ps.Symbol,
	}
	if ps.TenantID != "" {
		attrs[AttrTenantID] = ps.TenantID
	}
	return p.publish(ctx, TopicProcessedSentiment, ps, attrs)
}

// PublishMarketContext publishes a derived market-context event
func (p *Publisher) PublishMarketContext(ctx context.Context, mc *events.MarketContextEvent) (string, error) {
	attrs := map[string]string{
		AttrEventType:  "market_context",
		AttrSymbol:     mc.Symbol,
		AttrMarketType: mc.MarketType,
	}
	if mc.TenantID != "" {
		attrs[AttrTenantID] = mc.TenantID
	}
	return p.publish(ctx, TopicMarketContext, mc, attrs)
}

// PublishAnomaly publishes a detected anomaly to the anomalies topic
func (p *Publisher) PublishAnomaly(ctx context.Context, payload interface{}, symbol, anomalyType, severity string) (string, error) {
	attrs := map[string]string{
		AttrEventType: "anomaly",
		AttrSymbol:    symbol,
		"anomaly_type": anomalyType,
		"severity":     severity,
	}
	return p.publish(ctx, TopicAnomalies, payload, attrs)
}

// Stats returns connection statistics for diagnostics
func (p *Publisher) Stats() map[string]interface{} {
	stats := make(map[string]interface{})
	if p.nc != nil {
		stats["connected"] = p.nc.IsConnected()
		stats["status"] = p.nc.Status().String()
		stats["out_msgs"] = p.nc.Stats().OutMsgs
		stats["out_bytes"] = p.nc.Stats().OutBytes
		stats["reconnects"] = p.nc.Stats().Reconnects
	}
	return stats
}

// Close drains and closes the bus connection
func (p *Publisher) Close() error {
	if p.nc != nil {
		p.nc.Close()
		log.Info().Msg("Publisher closed")
	}
	return nil
}
