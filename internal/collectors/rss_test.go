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

const sampleFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Market Wire</title>
    <item>
      <title>BTC climbs past resistance</title>
      <link>https://example.com/btc-climbs</link>
      <description>Analysts cite ETH strength as well.</description>
      <guid>wire-1001</guid>
      <pubDate>Mon, 02 Jun 2025 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Quiet session for gold</title>
      <link>https://example.com/gold-quiet</link>
      <guid>wire-1002</guid>
      <pubDate>Mon, 02 Jun 2025 11:30:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

func TestParseRSS(t *testing.T) {
	items, title, err := parseRSS([]byte(sampleFeed))
	require.NoError(t, err)
	assert.Equal(t, "Market Wire", title)
	require.Len(t, items, 2)
	assert.Equal(t, "BTC climbs past resistance", items[0].Title)
	assert.Equal(t, "wire-1001", items[0].GUID)
}

func TestParseRSSMalformed(t *testing.T) {
	_, _, err := parseRSS([]byte("<rss><channel><item>"))
	assert.Error(t, err)
}

func TestParseRSSTime(t *testing.T) {
	ts, ok := parseRSSTime("Mon, 02 Jun 2025 10:00:00 +0000")
	require.True(t, ok)
	assert.Equal(t, 10, ts.Hour())

	_, ok = parseRSSTime("not a date")
	assert.False(t, ok)
}

func TestRSSCollect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(sampleFeed))
	}))
	defer srv.Close()

	pub := newFakePublisher()
	c, err := NewRSSCollector(CollectorConfig{Name: "rss", FeedURLs: []string{srv.URL}}, pub)
	require.NoError(t, err)
	require.NoError(t, c.Initialize(context.Background()))
	defer c.Close()

	n, err := c.Collect(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, pub.published, 2)

	first := pub.published[0]
	assert.Equal(t, events.SourceRSS, first.Source)
	assert.Equal(t, "wire-1001", first.SourceID)
	assert.Equal(t, []string{"BTC", "ETH"}, first.Symbols)
	require.NotNil(t, first.PublishedAt)
	assert.False(t, first.CollectedAt.Before(*first.PublishedAt))
	assert.Equal(t, "Market Wire", first.Metadata.GetString("feed"))

	for _, ev := range pub.published {
		assert.NoError(t, events.ValidateRawEvent(ev))
	}
}

func TestRSSCollectUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer srv.Close()

	pub := newFakePublisher()
	c, err := NewRSSCollector(CollectorConfig{Name: "rss", FeedURLs: []string{srv.URL}}, pub)
	require.NoError(t, err)

	_, err = c.Collect(context.Background(), nil)
	var serr *events.ExternalServiceError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusBadGateway, serr.StatusCode)
}
