package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const redditUserAgent = "marketpulse-collector/1.0"

// redditListing is the subreddit listing JSON shape
type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				ID         string  `json:"id"`
				Title      string  `json:"title"`
				Selftext   string  `json:"selftext"`
				Author     string  `json:"author"`
				Permalink  string  `json:"permalink"`
				Score      int     `json:"score"`
				NumComment int     `json:"num_comments"`
				CreatedUTC float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// RedditCollector polls a subreddit's hot listing via the public JSON API
type RedditCollector struct {
	BaseCollector
	endpoint  string
	subreddit string
}

// NewRedditCollector builds the social collector
func NewRedditCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = "https://www.reddit.com"
	}
	return &RedditCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceSocial, pub, cfg.RequestsPerMinute),
		endpoint:      endpoint,
		subreddit:     "CryptoCurrency",
	}, nil
}

// Initialize is a no-op; the public listing endpoint needs no credentials
func (c *RedditCollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Str("endpoint", c.endpoint).Msg("Reddit collector initialized")
	return nil
}

// Health probes the listing endpoint
func (c *RedditCollector) Health(ctx context.Context) error {
	_, err := c.GetJSON(ctx, fmt.Sprintf("%s/r/%s/hot.json?limit=1", c.endpoint, c.subreddit),
		map[string]string{"User-Agent": redditUserAgent})
	return err
}

// Collect fetches the hot listing for the requested subreddit and publishes
// one RawEvent per post.
func (c *RedditCollector) Collect(ctx context.Context, params Params) (int, error) {
	subreddit := params.Get("subreddit", c.subreddit)
	limit := params.Get("limit", "25")

	q := url.Values{}
	q.Set("limit", limit)
	body, err := c.GetJSON(ctx, fmt.Sprintf("%s/r/%s/hot.json?%s", c.endpoint, subreddit, q.Encode()),
		map[string]string{"User-Agent": redditUserAgent})
	if err != nil {
		return 0, err
	}

	var listing redditListing
	if err := json.Unmarshal(body, &listing); err != nil {
		return 0, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable listing: " + err.Error(), Err: err}
	}

	evs := make([]*events.RawEvent, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.ID == "" {
			continue
		}
		content := post.Title
		if post.Selftext != "" {
			content = post.Title + "\n" + post.Selftext
		}
		ev := events.NewRawEvent(events.SourceSocial, "t3_"+post.ID, content)
		if post.CreatedUTC > 0 {
			created := time.Unix(int64(post.CreatedUTC), 0).UTC()
			ev.PublishedAt = &created
		}
		title := post.Title
		ev.Title = &title
		if post.Permalink != "" {
			link := c.endpoint + post.Permalink
			ev.URL = &link
		}
		if post.Author != "" {
			author := post.Author
			ev.Author = &author
		}
		ev.Metadata["subreddit"] = subreddit
		ev.Metadata["score"] = post.Score
		ev.Metadata["num_comments"] = post.NumComment
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
