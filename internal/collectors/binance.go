package collectors

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	binance "github.com/adshao/go-binance/v2"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

// quoteSuffixes are the quote-asset suffixes stripped when deriving the
// canonical base symbol from an exchange pair (BTCUSDT -> BTC).
var quoteSuffixes = []string{"USDT", "BUSD", "USDC", "USD", "TRY", "EUR", "BTC"}

// BinanceCollector polls 24h ticker statistics for a configured symbol list
type BinanceCollector struct {
	BaseCollector
	client  *binance.Client
	symbols []string
	backoff *symbolBackoff
}

// NewBinanceCollector builds the exchange-ticker collector
func NewBinanceCollector(cfg CollectorConfig, pub EventPublisher) (Collector, error) {
	if len(cfg.Symbols) == 0 {
		return nil, fmt.Errorf("binance collector requires at least one symbol")
	}
	return &BinanceCollector{
		BaseCollector: NewBaseCollector(cfg.Name, events.SourceExchange, pub, cfg.RequestsPerMinute),
		symbols:       cfg.Symbols,
		backoff:       newSymbolBackoff(),
	}, nil
}

// Initialize creates the exchange client. The public ticker endpoints need
// no credentials.
func (c *BinanceCollector) Initialize(ctx context.Context) error {
	c.client = binance.NewClient("", "")
	c.Logger().Info().Strs("symbols", c.symbols).Msg("Binance collector initialized")
	return nil
}

// Health verifies exchange connectivity
func (c *BinanceCollector) Health(ctx context.Context) error {
	if c.client == nil {
		return fmt.Errorf("binance collector not initialized")
	}
	return c.client.NewPingService().Do(ctx)
}

// Collect fetches a ticker snapshot per symbol and publishes one RawEvent
// each. Symbols under backoff are skipped in this pass; a symbol that has
// failed five times is skipped entirely until reset externally.
func (c *BinanceCollector) Collect(ctx context.Context, params Params) (int, error) {
	if c.client == nil {
		return 0, fmt.Errorf("binance collector not initialized")
	}

	symbols := c.symbols
	if s := params.Get("symbol", ""); s != "" {
		symbols = []string{strings.ToUpper(s)}
	}
	if len(symbols) == 0 {
		return 0, nil
	}

	published := 0
	var lastErr error
	for _, symbol := range symbols {
		if !c.backoff.ShouldAttempt(symbol) {
			if c.backoff.Exhausted(symbol) {
				c.Logger().Warn().Str("symbol", symbol).Msg("Symbol exhausted retries, skipping until reset")
			}
			continue
		}

		ev, err := c.collectSymbol(ctx, symbol)
		if err != nil {
			c.backoff.RecordFailure(symbol)
			lastErr = err
			c.Logger().Error().Err(err).Str("symbol", symbol).Msg("Ticker collection failed")
			continue
		}

		if _, err := c.PublishEvents(ctx, []*events.RawEvent{ev}); err != nil {
			c.backoff.RecordFailure(symbol)
			lastErr = err
			continue
		}
		c.backoff.RecordSuccess(symbol)
		published++
	}

	if published == 0 && lastErr != nil {
		return 0, lastErr
	}
	return published, nil
}

// collectSymbol fetches the 24h stats for one symbol and maps them to a
// RawEvent preserving numeric metadata.
func (c *BinanceCollector) collectSymbol(ctx context.Context, symbol string) (*events.RawEvent, error) {
	if err := c.WaitRateLimit(ctx); err != nil {
		return nil, err
	}

	stats, err := c.client.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: err.Error(), Err: err}
	}
	if len(stats) == 0 {
		return nil, &events.ExternalServiceError{Service: c.Name(), Details: "empty ticker response for " + symbol}
	}
	return c.tickerToEvent(stats[0])
}

func (c *BinanceCollector) tickerToEvent(t *binance.PriceChangeStats) (*events.RawEvent, error) {
	lastPrice, err := strconv.ParseFloat(t.LastPrice, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable lastPrice %q: %w", t.LastPrice, err)
	}
	priceChange, _ := strconv.ParseFloat(t.PriceChange, 64)
	pct, err := strconv.ParseFloat(t.PriceChangePercent, 64)
	if err != nil {
		return nil, fmt.Errorf("unparsable priceChangePercent %q: %w", t.PriceChangePercent, err)
	}
	volume, _ := strconv.ParseFloat(t.Volume, 64)

	content := fmt.Sprintf("%s at %s (%+.2f%% 24h)", t.Symbol, t.LastPrice, pct)

	ev := events.NewRawEvent(events.SourceExchange, fmt.Sprintf("%s-%d", t.Symbol, t.CloseTime), content)
	ev.Metadata["pair"] = t.Symbol
	ev.Metadata["last_price"] = lastPrice
	ev.Metadata["price_change"] = priceChange
	ev.Metadata["price_change_percent"] = pct
	ev.Metadata["volume"] = volume
	if base := BaseSymbol(t.Symbol); base != "" {
		ev.Symbols = []string{base}
	}
	return ev, nil
}

// ResetBackoff clears per-symbol backoff state (external reset)
func (c *BinanceCollector) ResetBackoff() {
	c.backoff.Reset()
}

// BaseSymbol strips the quote-asset suffix from an exchange pair. Returns ""
// when no known suffix matches or the remainder is not a plausible base.
func BaseSymbol(pair string) string {
	upper := strings.ToUpper(pair)
	for _, suffix := range quoteSuffixes {
		if strings.HasSuffix(upper, suffix) && len(upper) > len(suffix) {
			base := strings.TrimSuffix(upper, suffix)
			if events.ValidSymbol(base) {
				return base
			}
		}
	}
	return ""
}
