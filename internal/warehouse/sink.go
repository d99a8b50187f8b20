package warehouse

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ajitpratap0/marketpulse/internal/bus"
	"github.com/ajitpratap0/marketpulse/internal/events"
)

const sinkInsertTimeout = 10 * time.Second

// ConsumeRawEvents materialises every raw event on the bus into the
// warehouse. Insert failures are logged and dropped; the idempotent insert
// means a collector retry fills the gap.
func (s *Store) ConsumeRawEvents(publisher *bus.Publisher) (*nats.Subscription, error) {
	sub, err := publisher.SubscribeRawEvents(func(ev *events.RawEvent) {
		ctx, cancel := context.WithTimeout(context.Background(), sinkInsertTimeout)
		defer cancel()
		if err := s.InsertRawEvent(ctx, ev); err != nil {
			s.logger.Warn().Err(err).
				Str("event_id", ev.EventID.String()).
				Msg("Raw event not materialised")
		}
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Msg("Raw event sink started")
	return sub, nil
}
