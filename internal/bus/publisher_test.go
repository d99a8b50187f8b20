package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// setupTestPublisher starts an embedded NATS server and returns a publisher
// wired to it.
func setupTestPublisher(t *testing.T) (*Publisher, *nats.Conn, func()) {
	t.Helper()

	opts := &server.Options{
		Host: "127.0.0.1",
		Port: -1, // Random port
	}
	ns, err := server.NewServer(opts)
	require.NoError(t, err)

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	nc, err := nats.Connect(ns.ClientURL())
	require.NoError(t, err)

	pub := NewPublisherWithConn(nc, "test.")

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
	}
	return pub, nc, cleanup
}

func sampleEvent() *events.RawEvent {
	ev := events.NewRawEvent(events.SourceExchange, "BTCUSDT-1", "BTCUSDT at 65000.00 (+2.37% 24h)")
	ev.Symbols = []string{"BTC"}
	return ev
}

func TestPublishRawEvent(t *testing.T) {
	pub, nc, cleanup := setupTestPublisher(t)
	defer cleanup()

	received := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test."+TopicRawEvents, received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	ev := sampleEvent()
	ev.TenantID = "acme"

	id, err := pub.PublishRawEvent(context.Background(), ev)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	_, err = uuid.Parse(id)
	assert.NoError(t, err, "message id should be a well-formed uuid")

	select {
	case msg := <-received:
		var parsed events.RawEvent
		require.NoError(t, json.Unmarshal(msg.Data, &parsed))
		assert.Equal(t, ev.EventID, parsed.EventID)
		assert.Equal(t, []string{"BTC"}, parsed.Symbols)

		assert.Equal(t, "exchange", msg.Header.Get(AttrSource))
		assert.Equal(t, ev.EventID.String(), msg.Header.Get(AttrEventID))
		assert.Equal(t, "acme", msg.Header.Get(AttrTenantID))
		assert.Equal(t, "BTC", msg.Header.Get(AttrSymbols))
		assert.Equal(t, id, msg.Header.Get(AttrMessageID))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on raw-events")
	}
}

func TestPublishRawEventNoTenantAttribute(t *testing.T) {
	pub, nc, cleanup := setupTestPublisher(t)
	defer cleanup()

	received := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test."+TopicRawEvents, received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = pub.PublishRawEvent(context.Background(), sampleEvent())
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Empty(t, msg.Header.Get(AttrTenantID), "tenant_id must not be synthesized")
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func TestPublishRawEventRejectsInvalid(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	ev := sampleEvent()
	ev.Symbols = []string{"btc"} // lowercase fails the canonical regex

	_, err := pub.PublishRawEvent(context.Background(), ev)
	var verr *events.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "symbols", verr.Field)
}

func TestPublishEventsPartialFailure(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	evs := make([]*events.RawEvent, 10)
	for i := range evs {
		evs[i] = sampleEvent()
	}
	// Events 3 and 7 fail validation; the rest must still go out
	evs[2].SourceID = ""
	evs[6].SourceID = ""

	ids, err := pub.PublishEvents(context.Background(), evs)

	var perr *events.PubSubError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 10, perr.Total)
	assert.Equal(t, 8, perr.Succeeded)
	assert.Equal(t, 2, perr.Failed)
	assert.Len(t, perr.FirstErrors, 2)
	assert.Len(t, ids, 8)

	// No message id re-used
	seen := make(map[string]bool)
	for _, id := range ids {
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestPublishEventsAllSucceed(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	evs := []*events.RawEvent{sampleEvent(), sampleEvent(), sampleEvent()}
	ids, err := pub.PublishEvents(context.Background(), evs)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestPublishEventsEmptyBatch(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	ids, err := pub.PublishEvents(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestPublishFirstErrorsCapped(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	evs := make([]*events.RawEvent, 8)
	for i := range evs {
		evs[i] = sampleEvent()
		evs[i].SourceID = "" // all fail
	}

	_, err := pub.PublishEvents(context.Background(), evs)
	var perr *events.PubSubError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 8, perr.Failed)
	assert.Len(t, perr.FirstErrors, 5)
}

func TestPublishMarketContextAttributes(t *testing.T) {
	pub, nc, cleanup := setupTestPublisher(t)
	defer cleanup()

	received := make(chan *nats.Msg, 1)
	sub, err := nc.ChanSubscribe("test."+TopicMarketContext, received)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	mc := &events.MarketContextEvent{
		ContextID:      uuid.New(),
		EventID:        uuid.New(),
		Symbol:         "XAU",
		MarketType:     "gold",
		SentimentScore: -0.2,
		SentimentLabel: "negative",
		Source:         events.SourceSpotMetal,
		Timestamp:      time.Now().UTC(),
	}

	_, err = pub.PublishMarketContext(context.Background(), mc)
	require.NoError(t, err)

	select {
	case msg := <-received:
		assert.Equal(t, "market_context", msg.Header.Get(AttrEventType))
		assert.Equal(t, "XAU", msg.Header.Get(AttrSymbol))
		assert.Equal(t, "gold", msg.Header.Get(AttrMarketType))
	case <-time.After(2 * time.Second):
		t.Fatal("no message received on market-context")
	}
}

func TestPublishCancelledContext(t *testing.T) {
	pub, _, cleanup := setupTestPublisher(t)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := pub.PublishRawEvent(ctx, sampleEvent())
	assert.ErrorIs(t, err, context.Canceled)
}
