package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const defaultNewsAPIEndpoint = "https://newsapi.org/v2"

// newsAPIResponse is the top-headlines response shape
type newsAPIResponse struct {
	Status   string `json:"status"`
	Articles []struct {
		Source struct {
			Name string `json:"name"`
		} `json:"source"`
		Author      string    `json:"author"`
		Title       string    `json:"title"`
		Description string    `json:"description"`
		URL         string    `json:"url"`
		PublishedAt time.Time `json:"publishedAt"`
	} `json:"articles"`
}

// NewsAPICollector polls financial headlines from a NewsAPI-compatible
// endpoint. Authentication is an API key header.
type NewsAPICollector struct {
	BaseCollector
	endpoint string
	apiKey   string
}

// NewNewsAPICollector builds the news collector
func NewNewsAPICollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("newsapi collector requires an api key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultNewsAPIEndpoint
	}
	return &NewsAPICollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceNewsAPI, pub, cfg.RequestsPerMinute),
		endpoint:      endpoint,
		apiKey:        cfg.APIKey,
	}, nil
}

// Initialize is a no-op; the HTTP session is created with the base
func (c *NewsAPICollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Str("endpoint", c.endpoint).Msg("NewsAPI collector initialized")
	return nil
}

// Health probes the upstream with a minimal query
func (c *NewsAPICollector) Health(ctx context.Context) error {
	_, err := c.GetJSON(ctx, c.endpoint+"/top-headlines?category=business&pageSize=1",
		map[string]string{"X-Api-Key": c.apiKey})
	return err
}

// Collect fetches business headlines and publishes one RawEvent per article
func (c *NewsAPICollector) Collect(ctx context.Context, params Params) (int, error) {
	q := url.Values{}
	q.Set("category", "business")
	q.Set("pageSize", params.Get("limit", "20"))
	if query := params.Get("query", ""); query != "" {
		q.Set("q", query)
	}

	body, err := c.GetJSON(ctx, c.endpoint+"/top-headlines?"+q.Encode(),
		map[string]string{"X-Api-Key": c.apiKey})
	if err != nil {
		return 0, err
	}

	var resp newsAPIResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable response: " + err.Error(), Err: err}
	}
	if resp.Status != "ok" {
		return 0, &events.ExternalServiceError{Service: c.Name(), Details: "upstream status " + resp.Status}
	}

	evs := make([]*events.RawEvent, 0, len(resp.Articles))
	for _, a := range resp.Articles {
		if a.URL == "" {
			continue
		}
		content := a.Title
		if a.Description != "" {
			content = a.Title + ". " + a.Description
		}
		ev := events.NewRawEvent(events.SourceNewsAPI, a.URL, content)
		if !a.PublishedAt.IsZero() {
			published := a.PublishedAt.UTC()
			ev.PublishedAt = &published
		}
		title, articleURL := a.Title, a.URL
		ev.Title = &title
		ev.URL = &articleURL
		if a.Author != "" {
			author := a.Author
			ev.Author = &author
		}
		ev.Metadata["outlet"] = a.Source.Name
		ev.Symbols = events.ExtractSymbols(content)
		evs = append(evs, ev)
	}
	if len(evs) == 0 {
		return 0, nil
	}

	report, err := c.PublishEvents(ctx, evs)
	if err != nil {
		return report.Succeeded, err
	}
	return report.Succeeded, nil
}
