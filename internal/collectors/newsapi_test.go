package collectors

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const sampleHeadlines = `{
  "status": "ok",
  "articles": [
    {
      "source": {"name": "Example Times"},
      "author": "A. Reporter",
      "title": "BTC rallies on ETF inflows",
      "description": "Gold also firmer.",
      "url": "https://example.com/btc-rallies",
      "publishedAt": "2025-06-02T08:00:00Z"
    },
    {
      "source": {"name": "Example Times"},
      "title": "Central bank holds rates",
      "url": "https://example.com/rates-hold",
      "publishedAt": "2025-06-02T09:00:00Z"
    }
  ]
}`

func TestNewsAPICollect(t *testing.T) {
	var gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-Api-Key")
		w.Write([]byte(sampleHeadlines))
	}))
	defer srv.Close()

	pub := newFakePublisher()
	c, err := NewNewsAPICollector(CollectorConfig{
		Name:     "newsapi",
		APIKey:   "secret-key",
		Endpoint: srv.URL,
	}, pub)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Close()

	n, err := c.Collect(context.Background(), Params{"limit": "10"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "secret-key", gotKey)

	first := pub.published[0]
	assert.Equal(t, events.SourceNewsAPI, first.Source)
	assert.Equal(t, "https://example.com/btc-rallies", first.SourceID)
	assert.Equal(t, []string{"BTC", "GOLD"}, first.Symbols)
	require.NotNil(t, first.Author)
	assert.Equal(t, "A. Reporter", *first.Author)
	assert.Equal(t, "Example Times", first.Metadata.GetString("outlet"))

	second := pub.published[1]
	assert.Nil(t, second.Author)
	assert.Empty(t, second.Symbols)
}

func TestNewsAPICollectUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status": "error"}`))
	}))
	defer srv.Close()

	pub := newFakePublisher()
	c, err := NewNewsAPICollector(CollectorConfig{Name: "newsapi", APIKey: "k", Endpoint: srv.URL}, pub)
	require.NoError(t, err)

	_, err = c.Collect(context.Background(), nil)
	var serr *events.ExternalServiceError
	require.ErrorAs(t, err, &serr)
}

func TestNewsAPIRequiresKey(t *testing.T) {
	_, err := NewNewsAPICollector(CollectorConfig{Name: "newsapi"}, newFakePublisher())
	assert.Error(t, err)
}

func TestRedditCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/r/Bitcoin/hot.json")
		w.Write([]byte(`{"data":{"children":[
			{"data":{"id":"abc1","title":"BTC to the moon","author":"u1","permalink":"/r/Bitcoin/abc1","score":42,"num_comments":7,"created_utc":1748800000}},
			{"data":{"id":"abc2","title":"quiet day","author":"u2","score":1,"created_utc":1748800100}}
		]}}`))
	}))
	defer srv.Close()

	pub := newFakePublisher()
	c, err := NewRedditCollector(CollectorConfig{Name: "reddit", Endpoint: srv.URL}, pub)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Close()

	n, err := c.Collect(context.Background(), Params{"subreddit": "Bitcoin", "limit": "5"})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	first := pub.published[0]
	assert.Equal(t, events.SourceSocial, first.Source)
	assert.Equal(t, "t3_abc1", first.SourceID)
	assert.Equal(t, []string{"BTC"}, first.Symbols)
	score, ok := first.Metadata.GetInt("score")
	require.True(t, ok)
	assert.Equal(t, int64(42), score)
	assert.Equal(t, "Bitcoin", first.Metadata.GetString("subreddit"))
}

func TestDefaultRegistryNames(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{
		"binance", "binance_stream", "fred", "metals",
		"newsapi", "reddit", "rss", "tcmb",
	}, r.Names())
}

func TestRegistryDuplicatePanics(t *testing.T) {
	r := NewRegistry()
	r.Register("x", NewRedditCollector)
	assert.Panics(t, func() { r.Register("x", NewRedditCollector) })
}

func TestRegistryUnknownCollector(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("nope", CollectorConfig{}, newFakePublisher())
	assert.Error(t, err)
}
