package collectors

import (
	"context"
	"encoding/xml"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

const defaultTCMBEndpoint = "https://www.tcmb.gov.tr/kurlar/today.xml"

// tcmbDocument is the central-bank daily rates XML
type tcmbDocument struct {
	Date       string `xml:"Date,attr"`
	Currencies []struct {
		Code        string `xml:"CurrencyCode,attr"`
		ForexSelling string `xml:"ForexSelling"`
	} `xml:"Currency"`
}

// gramGoldPattern pulls the gram-gold quote out of the scraped HTML page.
// The target pages render the price inside a data attribute or a labelled
// cell; both shapes reduce to a decimal-comma number after the marker.
var gramGoldPattern = regexp.MustCompile(`(?i)gram[^0-9]{0,40}([0-9][0-9.,]{2,12})`)

// trackedTRYPairs maps central-bank currency codes to canonical symbols
var trackedTRYPairs = map[string]string{
	"USD": "USDTRY",
	"EUR": "EURTRY",
}

// TCMBCollector scrapes Turkish central-bank FX rates and a gram-gold quote.
// A Redis-backed daily usage counter enforces the upstream courtesy quota.
type TCMBCollector struct {
	BaseCollector
	endpoint   string
	goldPage   string
	dailyQuota int
	rdb        *redis.Client
	redisAddr  string
}

// NewTCMBCollector builds the central-bank collector
func NewTCMBCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultTCMBEndpoint
	}
	quota := cfg.DailyQuota
	if quota <= 0 {
		quota = 1000
	}
	return &TCMBCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceCentralBank, pub, cfg.RequestsPerMinute),
		endpoint:      endpoint,
		goldPage:      strings.TrimSuffix(endpoint, "/today.xml"),
		dailyQuota:    quota,
		redisAddr:     cfg.RedisAddr,
	}, nil
}

// Initialize connects the usage-counter store. A missing Redis address
// disables quota tracking rather than failing the collector.
func (c *TCMBCollector) Initialize(ctx context.Context) error {
	if c.redisAddr != "" {
		c.rdb = redis.NewClient(&redis.Options{Addr: c.redisAddr})
		if err := c.rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect usage-counter store: %w", err)
		}
	} else {
		c.Logger().Warn().Msg("No Redis configured, daily quota tracking disabled")
	}
	c.Logger().Info().Str("endpoint", c.endpoint).Int("daily_quota", c.dailyQuota).Msg("TCMB collector initialized")
	return nil
}

// Health checks the usage-counter store when configured
func (c *TCMBCollector) Health(ctx context.Context) error {
	if c.rdb != nil {
		return c.rdb.Ping(ctx).Err()
	}
	return nil
}

// Close releases the usage-counter connection and the HTTP session
func (c *TCMBCollector) Close() error {
	if c.rdb != nil {
		c.rdb.Close()
	}
	return c.BaseCollector.Close()
}

// usageKey returns the per-day counter key
func usageKey(day time.Time) string {
	return "tcmb:usage:" + day.UTC().Format("2006-01-02")
}

// checkQuota increments today's usage counter and reports whether the
// request may proceed. Warnings fire at 80% and 95% of the daily quota.
func (c *TCMBCollector) checkQuota(ctx context.Context) (bool, error) {
	if c.rdb == nil {
		return true, nil
	}

	key := usageKey(time.Now())
	count, err := c.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("usage counter increment failed: %w", err)
	}
	// Keep the counter around long enough to inspect yesterday's usage
	c.rdb.Expire(ctx, key, 48*time.Hour)

	switch {
	case count > int64(c.dailyQuota):
		c.Logger().Warn().Int64("count", count).Int("quota", c.dailyQuota).Msg("Daily quota exhausted, skipping collection")
		return false, nil
	case count >= int64(c.dailyQuota)*95/100:
		c.Logger().Warn().Int64("count", count).Int("quota", c.dailyQuota).Msg("Daily usage above 95% of quota")
	case count >= int64(c.dailyQuota)*80/100:
		c.Logger().Warn().Int64("count", count).Int("quota", c.dailyQuota).Msg("Daily usage above 80% of quota")
	}
	return true, nil
}

// Collect fetches the daily FX rates and the gram-gold quote
func (c *TCMBCollector) Collect(ctx context.Context, params Params) (int, error) {
	ok, err := c.checkQuota(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, &events.RateLimitError{RetryAfterSeconds: secondsUntilMidnightUTC()}
	}

	body, err := c.GetJSON(ctx, c.endpoint, nil)
	if err != nil {
		return 0, err
	}

	evs, err := c.ratesToEvents(body)
	if err != nil {
		return 0, err
	}

	// Gram gold is best-effort: the FX events still go out when the scrape
	// fails.
	if goldEv, err := c.collectGramGold(ctx); err != nil {
		c.Logger().Warn().Err(err).Msg("Gram-gold scrape failed")
	} else if goldEv != nil {
		evs = append(evs, goldEv)
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

func (c *TCMBCollector) ratesToEvents(body []byte) ([]*events.RawEvent, error) {
	var doc tcmbDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable rates document: " + err.Error(), Err: err}
	}

	var evs []*events.RawEvent
	for _, cur := range doc.Currencies {
		symbol, tracked := trackedTRYPairs[cur.Code]
		if !tracked {
			continue
		}
		rate, err := parseTurkishDecimal(cur.ForexSelling)
		if err != nil {
			continue
		}
		content := fmt.Sprintf("%s forex selling at %.4f", symbol, rate)
		ev := events.NewRawEvent(events.SourceCentralBank, fmt.Sprintf("%s-%s", symbol, doc.Date), content)
		ev.Metadata["rate"] = rate
		ev.Metadata["rate_date"] = doc.Date
		ev.Symbols = []string{symbol}
		evs = append(evs, ev)
	}
	return evs, nil
}

// collectGramGold scrapes the configured HTML page for the gram-gold quote
func (c *TCMBCollector) collectGramGold(ctx context.Context) (*events.RawEvent, error) {
	if c.goldPage == "" || c.goldPage == c.endpoint {
		return nil, nil
	}
	body, err := c.GetJSON(ctx, c.goldPage, nil)
	if err != nil {
		return nil, err
	}

	match := gramGoldPattern.FindSubmatch(body)
	if match == nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "gram-gold quote not found in page"}
	}
	price, err := parseTurkishDecimal(string(match[1]))
	if err != nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "unparsable gram-gold quote: " + err.Error(), Err: err}
	}

	now := time.Now().UTC()
	content := fmt.Sprintf("XAUTRY gram gold at %.2f TRY", price)
	ev := events.NewRawEvent(events.SourceCentralBank, fmt.Sprintf("XAUTRY-%s", now.Format("2006-01-02T15:04")), content)
	ev.Metadata["price"] = price
	ev.Metadata["currency"] = "TRY"
	ev.Symbols = []string{"XAUTRY"}
	return ev, nil
}

// parseTurkishDecimal accepts both "1.234,56" and "1234.56" shapes
func parseTurkishDecimal(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	return strconv.ParseFloat(s, 64)
}

func secondsUntilMidnightUTC() int {
	now := time.Now().UTC()
	midnight := now.Truncate(24 * time.Hour).Add(24 * time.Hour)
	return int(midnight.Sub(now).Seconds())
}
