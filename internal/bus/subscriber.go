package bus

import (
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// SubscribeRawEvents delivers every raw event on the bus to handler.
// Undecodable payloads are logged and dropped; the subscription stays up.
func (p *Publisher) SubscribeRawEvents(handler func(*events.RawEvent)) (*nats.Subscription, error) {
	return p.nc.Subscribe(p.Subject(TopicRawEvents), func(msg *nats.Msg) {
		var ev events.RawEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			log.Warn().Err(err).Str("subject", msg.Subject).Msg("Undecodable raw event on bus")
			return
		}
		handler(&ev)
	})
}
