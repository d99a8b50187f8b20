package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpulse/internal/bus"
	"github.com/ajitpratap0/marketpulse/internal/events"
)

func pushBody(t *testing.T, ps *events.ProcessedSentiment) []byte {
	t.Helper()
	payload, err := json.Marshal(ps)
	require.NoError(t, err)
	body, err := bus.EncodeEnvelope(payload, "msg-1", nil)
	require.NoError(t, err)
	return body
}

func doPush(t *testing.T, router http.Handler, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/pubsub-push/processed-sentiment", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestPushHappyPath(t *testing.T) {
	pub := &fakePublisher{}
	p := New(testProcessorConfig(), pub, nil)
	p.Start(context.Background())
	defer p.Stop()

	router := NewServer(p).Router()
	w := doPush(t, router, pushBody(t, sampleSentiment("BTC", 0.3)))

	assert.Equal(t, http.StatusOK, w.Code)
	pub.mu.Lock()
	assert.Len(t, pub.contexts, 1)
	pub.mu.Unlock()
}

func TestPushRejectsMalformedEnvelope(t *testing.T) {
	p := New(testProcessorConfig(), &fakePublisher{}, nil)
	router := NewServer(p).Router()

	cases := map[string][]byte{
		"not json":        []byte("{nope"),
		"missing message": []byte(`{"subscription":"sub"}`),
		"bad base64":      []byte(`{"message":{"data":"!!not-base64!!","messageId":"1"}}`),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			w := doPush(t, router, body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestPushRejectsUndecodableSentiment(t *testing.T) {
	p := New(testProcessorConfig(), &fakePublisher{}, nil)
	router := NewServer(p).Router()

	body, err := bus.EncodeEnvelope([]byte(`{"event_id": 12}`), "msg-1", nil)
	require.NoError(t, err)
	w := doPush(t, router, body)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "undecodable processed sentiment")
}

func TestPushBackpressureWhenQueueFull(t *testing.T) {
	cfg := testProcessorConfig()
	cfg.QueueSize = 1
	p := New(cfg, &fakePublisher{}, nil)
	// Workers never started, so this parked task keeps the queue full
	p.queue <- task{ps: sampleSentiment("BTC", 0), result: make(chan error, 1)}

	router := NewServer(p).Router()
	w := doPush(t, router, pushBody(t, sampleSentiment("ETH", 0.1)))

	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, strconv.Itoa(cfg.RetryAfterSeconds), w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "work queue saturated")
}

func TestPushInternalErrorTriggersRedelivery(t *testing.T) {
	pub := &fakePublisher{failNext: true}
	p := New(testProcessorConfig(), pub, nil)
	p.Start(context.Background())
	defer p.Stop()

	router := NewServer(p).Router()
	w := doPush(t, router, pushBody(t, sampleSentiment("BTC", 0.3)))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "bus unavailable")
}

func TestPushHealthEndpoint(t *testing.T) {
	p := New(testProcessorConfig(), &fakePublisher{}, nil)
	router := NewServer(p).Router()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}
