package collectors

import (
	"testing"

	binance "github.com/adshao/go-binance/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/marketpulse/internal/events"
)

func newTestBinanceCollector(t *testing.T) (*BinanceCollector, *fakePublisher) {
	t.Helper()
	pub := newFakePublisher()
	c, err := NewBinanceCollector(CollectorConfig{
		Name:    "binance",
		Symbols: []string{"BTCUSDT"},
	}, pub)
	require.NoError(t, err)
	return c.(*BinanceCollector), pub
}

func TestTickerToEvent(t *testing.T) {
	c, _ := newTestBinanceCollector(t)

	ev, err := c.tickerToEvent(&binance.PriceChangeStats{
		Symbol:             "BTCUSDT",
		LastPrice:          "65000.00",
		PriceChange:        "1500.00",
		PriceChangePercent: "2.37",
		Volume:             "12345.6",
		CloseTime:          1735689600000,
	})
	require.NoError(t, err)

	assert.Equal(t, events.SourceExchange, ev.Source)
	assert.Equal(t, "BTCUSDT-1735689600000", ev.SourceID)
	assert.Contains(t, ev.Content, "65000.00")
	assert.Contains(t, ev.Content, "+2.37%")
	assert.Equal(t, []string{"BTC"}, ev.Symbols)

	// Metadata fields preserved as numeric types
	lastPrice, ok := ev.Metadata.GetFloat("last_price")
	require.True(t, ok)
	assert.Equal(t, 65000.00, lastPrice)
	change, _ := ev.Metadata.GetFloat("price_change")
	assert.Equal(t, 1500.00, change)
	pct, _ := ev.Metadata.GetFloat("price_change_percent")
	assert.Equal(t, 2.37, pct)

	require.NoError(t, events.ValidateRawEvent(ev))
}

func TestTickerToEventNegativeChange(t *testing.T) {
	c, _ := newTestBinanceCollector(t)

	ev, err := c.tickerToEvent(&binance.PriceChangeStats{
		Symbol:             "ETHUSDT",
		LastPrice:          "3100.50",
		PriceChange:        "-120.00",
		PriceChangePercent: "-3.72",
		CloseTime:          1,
	})
	require.NoError(t, err)
	assert.Contains(t, ev.Content, "-3.72%")
	assert.Equal(t, []string{"ETH"}, ev.Symbols)
}

func TestTickerToEventUnparsablePrice(t *testing.T) {
	c, _ := newTestBinanceCollector(t)

	_, err := c.tickerToEvent(&binance.PriceChangeStats{
		Symbol:             "BTCUSDT",
		LastPrice:          "garbage",
		PriceChangePercent: "2.37",
	})
	assert.Error(t, err)
}

func TestBaseSymbol(t *testing.T) {
	tests := []struct {
		pair string
		want string
	}{
		{"BTCUSDT", "BTC"},
		{"ETHUSDT", "ETH"},
		{"XAUTRY", "XAU"},
		{"DOGEUSD", "DOGE"},
		{"USDT", ""},    // suffix only, no base left
		{"UNKNOWN", ""}, // no known quote suffix
	}
	for _, tt := range tests {
		t.Run(tt.pair, func(t *testing.T) {
			assert.Equal(t, tt.want, BaseSymbol(tt.pair))
		})
	}
}

func TestNewBinanceCollectorRequiresSymbols(t *testing.T) {
	_, err := NewBinanceCollector(CollectorConfig{Name: "binance"}, newFakePublisher())
	assert.Error(t, err)
}

func TestBinanceCollectNotInitialized(t *testing.T) {
	c, _ := newTestBinanceCollector(t)
	_, err := c.Collect(t.Context(), nil)
	assert.Error(t, err)
}
