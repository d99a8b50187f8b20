package collectors

import (
	"context"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// rssDocument is the RSS 2.0 subset the collector consumes
type rssDocument struct {
	Channel struct {
		Title string    `xml:"title"`
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	Author      string `xml:"author"`
	GUID        string `xml:"guid"`
	PubDate     string `xml:"pubDate"`
}

// rssTimeFormats are the pubDate layouts seen across feeds
var rssTimeFormats = []string{
	time.RFC1123Z,
	time.RFC1123,
	time.RFC822Z,
	time.RFC822,
	time.RFC3339,
}

// RSSCollector polls one or more RSS 2.0 feeds
type RSSCollector struct {
	BaseCollector
	feedURLs []string
}

// NewRSSCollector builds the RSS collector
func NewRSSCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if len(cfg.FeedURLs) == 0 {
		return nil, fmt.Errorf("rss collector requires at least one feed url")
	}
	return &RSSCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceRSS, pub, cfg.RequestsPerMinute),
		feedURLs:      cfg.FeedURLs,
	}, nil
}

// Initialize is a no-op
func (c *RSSCollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Int("feeds", len(c.feedURLs)).Msg("RSS collector initialized")
	return nil
}

// Health fetches the first feed
func (c *RSSCollector) Health(ctx context.Context) error {
	_, err := c.GetJSON(ctx, c.feedURLs[0], nil)
	return err
}

// Collect fetches every configured feed. A failing feed does not abort the
// others; the last error is returned when nothing was published.
func (c *RSSCollector) Collect(ctx context.Context, params Params) (int, error) {
	published := 0
	var lastErr error

	for _, feedURL := range c.feedURLs {
		n, err := c.collectFeed(ctx, feedURL)
		published += n
		if err != nil {
			lastErr = err
			c.Logger().Error().Err(err).Str("feed", feedURL).Msg("Feed collection failed")
		}
	}

	if published == 0 && lastErr != nil {
		return 0, lastErr
	}
	return published, nil
}

func (c *RSSCollector) collectFeed(ctx context.Context, feedURL string) (int, error) {
	body, err := c.GetJSON(ctx, feedURL, nil)
	if err != nil {
		return 0, err
	}

	items, feedTitle, err := parseRSS(body)
	if err != nil {
		return 0, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable feed: " + err.Error(), Err: err}
	}

	evs := make([]*events.RawEvent, 0, len(items))
	for _, item := range items {
		sourceID := item.GUID
		if sourceID == "" {
			sourceID = item.Link
		}
		if sourceID == "" {
			continue
		}
		content := item.Title
		if item.Description != "" {
			content = item.Title + ". " + item.Description
		}
		ev := events.NewRawEvent(events.SourceRSS, sourceID, content)
		if ts, ok := parseRSSTime(item.PubDate); ok {
			ev.PublishedAt = &ts
		}
		title := item.Title
		ev.Title = &title
		if item.Link != "" {
			link := item.Link
			ev.URL = &link
		}
		if item.Author != "" {
			author := item.Author
			ev.Author = &author
		}
		ev.Metadata["feed"] = feedTitle
		ev.Metadata["feed_url"] = feedURL
		ev.Symbols = events.ExtractSymbols(content)
		evs = append(evs, ev)
	}
	if len(evs) == 0 {
		return 0, nil
	}

	report, err := c.PublishEvents(ctx, evs)
	return report.Succeeded, err
}

// parseRSS decodes an RSS 2.0 document and returns its items
func parseRSS(body []byte) ([]rssItem, string, error) {
	var doc rssDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, "", err
	}
	return doc.Channel.Items, doc.Channel.Title, nil
}

func parseRSSTime(s string) (time.Time, bool) {
	for _, layout := range rssTimeFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), true
		}
	}
	return time.Time{}, false
}
