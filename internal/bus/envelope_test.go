package bus

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

func TestEnvelopeRoundTrip(t *testing.T) {
	ps := &events.ProcessedSentiment{
		EventID:    uuid.New(),
		Symbol:     "BTC",
		MarketType: "crypto",
		Sentiment:  events.Sentiment{Score: 0.4, Label: "positive", Confidence: 0.8},
		Timestamp:  time.Date(2025, 2, 1, 9, 30, 0, 0, time.UTC),
		Source:     events.SourceNewsAPI,
	}
	payload, err := json.Marshal(ps)
	require.NoError(t, err)

	body, err := EncodeEnvelope(payload, "msg-1", map[string]string{"source": "news-api"})
	require.NoError(t, err)

	data, msg, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, "msg-1", msg.MessageID)
	assert.Equal(t, "news-api", msg.Attributes["source"])

	var parsed events.ProcessedSentiment
	require.NoError(t, json.Unmarshal(data, &parsed))
	assert.Equal(t, ps.EventID, parsed.EventID)
	assert.Equal(t, ps.Sentiment, parsed.Sentiment)
	assert.True(t, ps.Timestamp.Equal(parsed.Timestamp))
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", "{nope"},
		{"missing message", `{"subscription":"s"}`},
		{"bad base64", `{"message":{"data":"!!!not-base64!!!","messageId":"1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := DecodeEnvelope([]byte(tt.body))
			assert.Error(t, err)
		})
	}
}
