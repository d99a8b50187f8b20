package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const defaultMetalsEndpoint = "https://api.metals.dev/v1"

// metalsQuote is the spot-quote response shape
type metalsQuote struct {
	Status string `json:"status"`
	Metals struct {
		Gold   float64 `json:"gold"`
		Silver float64 `json:"silver"`
	} `json:"metals"`
	Currency   string `json:"currency"`
	Timestamps struct {
		Metal string `json:"metal"`
	} `json:"timestamps"`
}

// MetalsCollector polls precious-metals spot quotes
type MetalsCollector struct {
	BaseCollector
	endpoint string
	apiKey   string
}

// NewMetalsCollector builds the spot-metal collector
func NewMetalsCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("metals collector requires an api key")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultMetalsEndpoint
	}
	return &MetalsCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceSpotMetal, pub, cfg.RequestsPerMinute),
		endpoint:      endpoint,
		apiKey:        cfg.APIKey,
	}, nil
}

// Initialize is a no-op
func (c *MetalsCollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Str("endpoint", c.endpoint).Msg("Metals collector initialized")
	return nil
}

// Health probes the quote endpoint
func (c *MetalsCollector) Health(ctx context.Context) error {
	_, err := c.fetchQuote(ctx)
	return err
}

func (c *MetalsCollector) fetchQuote(ctx context.Context) (*metalsQuote, error) {
	body, err := c.GetJSON(ctx, fmt.Sprintf("%s/latest?api_key=%s&currency=USD&unit=toz", c.endpoint, c.apiKey), nil)
	if err != nil {
		return nil, err
	}
	var quote metalsQuote
	if err := json.Unmarshal(body, &quote); err != nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable quote: " + err.Error(), Err: err}
	}
	if quote.Status != "" && quote.Status != "success" {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "upstream status " + quote.Status}
	}
	return &quote, nil
}

// Collect fetches the current spot quote and publishes one event per metal
func (c *MetalsCollector) Collect(ctx context.Context, params Params) (int, error) {
	quote, err := c.fetchQuote(ctx)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var evs []*events.RawEvent
	if quote.Metals.Gold > 0 {
		evs = append(evs, c.quoteToEvent("XAU", quote.Metals.Gold, quote.Currency, now))
	}
	if quote.Metals.Silver > 0 {
		evs = append(evs, c.quoteToEvent("XAG", quote.Metals.Silver, quote.Currency, now))
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

func (c *MetalsCollector) quoteToEvent(symbol string, price float64, currency string, now time.Time) *events.RawEvent {
	content := fmt.Sprintf("%s spot at %.2f %s/toz", symbol, price, currency)
	ev := events.NewRawEvent(events.SourceSpotMetal, fmt.Sprintf("%s-%d", symbol, now.Unix()), content)
	ev.Metadata["spot_price"] = price
	ev.Metadata["currency"] = currency
	ev.Symbols = []string{symbol}
	return ev
}
