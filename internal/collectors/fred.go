package collectors

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const defaultFREDEndpoint = "https://api.stlouisfed.org/fred"

// fredObservations is the series-observations response shape
type fredObservations struct {
	Observations []struct {
		Date  string `json:"date"`
		Value string `json:"value"`
	} `json:"observations"`
}

// FREDCollector polls economic-indicator series observations
type FREDCollector struct {
	BaseCollector
	endpoint string
	apiKey   string
	series   []string
}

// NewFREDCollector builds the economic-indicator collector
func NewFREDCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("fred collector requires an api key")
	}
	if len(cfg.Series) == 0 {
		return nil, fmt.Errorf("fred collector requires at least one series")
	}
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultFREDEndpoint
	}
	return &FREDCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceEconomicIndicator, pub, cfg.RequestsPerMinute),
		endpoint:      endpoint,
		apiKey:        cfg.APIKey,
		series:        cfg.Series,
	}, nil
}

// Initialize is a no-op
func (c *FREDCollector) Initialize(ctx context.Context) error {
	c.Logger().Info().Strs("series", c.series).Msg("FRED collector initialized")
	return nil
}

// Health probes the first configured series
func (c *FREDCollector) Health(ctx context.Context) error {
	_, err := c.fetchSeries(ctx, c.series[0], 1)
	return err
}

func (c *FREDCollector) fetchSeries(ctx context.Context, series string, limit int) (*fredObservations, error) {
	q := url.Values{}
	q.Set("series_id", series)
	q.Set("api_key", c.apiKey)
	q.Set("file_type", "json")
	q.Set("sort_order", "desc")
	q.Set("limit", strconv.Itoa(limit))

	body, err := c.GetJSON(ctx, c.endpoint+"/series/observations?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}
	var obs fredObservations
	if err := json.Unmarshal(body, &obs); err != nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable observations: " + err.Error(), Err: err}
	}
	return &obs, nil
}

// Collect fetches the latest observation for every configured series
func (c *FREDCollector) Collect(ctx context.Context, params Params) (int, error) {
	series := c.series
	if s := params.Get("series", ""); s != "" {
		series = []string{s}
	}

	var evs []*events.RawEvent
	var lastErr error
	for _, id := range series {
		obs, err := c.fetchSeries(ctx, id, 1)
		if err != nil {
			lastErr = err
			c.Logger().Error().Err(err).Str("series", id).Msg("Series fetch failed")
			continue
		}
		if len(obs.Observations) == 0 {
			continue
		}
		latest := obs.Observations[0]
		value, err := strconv.ParseFloat(latest.Value, 64)
		if err != nil {
			// FRED marks missing observations with "."
			continue
		}

		content := fmt.Sprintf("%s observation %s: %s", id, latest.Date, latest.Value)
		ev := events.NewRawEvent(events.SourceEconomicIndicator, fmt.Sprintf("%s-%s", id, latest.Date), content)
		ev.Metadata["series_id"] = id
		ev.Metadata["observation_date"] = latest.Date
		ev.Metadata["value"] = value
		evs = append(evs, ev)
	}

	if len(evs) == 0 {
		if lastErr != nil {
			return 0, lastErr
		}
		return 0, nil
	}

	report, err := c.PublishEvents(ctx, evs)
	if err != nil {
		return report.Succeeded, err
	}
	return report.Succeeded, nil
}
