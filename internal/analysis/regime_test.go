package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatPrices(n int, price float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

// risingPrices alternates +1.0/-0.4 steps so RSI stays inside the bull
// band while the moving averages trend up.
func risingPrices(n int) []float64 {
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		if i%2 == 0 {
			price += 1.0
		} else {
			price -= 0.4
		}
		out[i] = price
	}
	return out
}

func fallingPrices(n int) []float64 {
	out := make([]float64, n)
	price := 500.0
	for i := range out {
		if i%2 == 0 {
			price -= 1.0
		} else {
			price += 0.4
		}
		out[i] = price
	}
	return out
}

func TestDetectRegimeFlatSeriesIsNeutral(t *testing.T) {
	result := DetectRegime(flatPrices(200, 2000.0), nil, "XAU", "gold")

	assert.Equal(t, RegimeNeutral, result.Regime)
	assert.LessOrEqual(t, result.Confidence, 0.3)
	assert.Equal(t, VolatilityLow, result.VolatilityRegime)
	assert.Equal(t, TrendSideways, result.TrendDirection)
	assert.Zero(t, result.TrendStrength)

	require.NotNil(t, result.RSI14)
	assert.InDelta(t, 50.0, *result.RSI14, 1e-9)
	require.NotNil(t, result.SMA50)
	require.NotNil(t, result.SMA200)
	assert.InDelta(t, *result.SMA50, *result.SMA200, 1e-9)
	assert.Equal(t, 200, result.SampleSize)
	assert.Equal(t, DataSourceCalculated, result.DataSource)
}

func TestDetectRegimeBull(t *testing.T) {
	prices := risingPrices(300)
	result := DetectRegime(prices, nil, "BTC", "crypto")

	assert.Equal(t, RegimeBull, result.Regime)
	assert.Equal(t, TrendUp, result.TrendDirection)
	assert.Greater(t, result.Confidence, 0.3)
	require.NotNil(t, result.RSI14)
	assert.Greater(t, *result.RSI14, 40.0)
	assert.Less(t, *result.RSI14, 75.0)
	require.NotNil(t, result.SMA50)
	require.NotNil(t, result.SMA200)
	assert.Greater(t, *result.SMA50, *result.SMA200)
}

func TestDetectRegimeBear(t *testing.T) {
	prices := fallingPrices(300)
	result := DetectRegime(prices, nil, "BTC", "crypto")

	assert.Equal(t, RegimeBear, result.Regime)
	assert.Equal(t, TrendDown, result.TrendDirection)
	require.NotNil(t, result.SMA50)
	require.NotNil(t, result.SMA200)
	assert.Less(t, *result.SMA50, *result.SMA200)
}

func TestDetectRegimeVolatile(t *testing.T) {
	// ±5% swings push the average absolute move past the extreme tier
	prices := make([]float64, 100)
	price := 100.0
	for i := range prices {
		if i%2 == 0 {
			price *= 1.05
		} else {
			price *= 0.95
		}
		prices[i] = price
	}

	result := DetectRegime(prices, nil, "DOGE", "crypto")
	assert.Equal(t, VolatilityExtreme, result.VolatilityRegime)
	assert.Equal(t, RegimeVolatile, result.Regime)
}

func TestDetectRegimeInsufficientData(t *testing.T) {
	result := DetectRegime(flatPrices(49, 100), nil, "BTC", "crypto")

	assert.Equal(t, RegimeNeutral, result.Regime)
	assert.Zero(t, result.Confidence)
	assert.Zero(t, result.SampleSize)
	assert.Equal(t, DataSourceUnavailable, result.DataSource)
	assert.Nil(t, result.RSI14)
}

func TestDetectRegimeDeterministic(t *testing.T) {
	prices := risingPrices(250)
	first := DetectRegime(prices, nil, "ETH", "crypto")
	second := DetectRegime(prices, nil, "ETH", "crypto")
	assert.Equal(t, first, second)
}

func TestPivotLevels(t *testing.T) {
	support, resistance := pivotLevels([]float64{90, 110, 100})
	// P = (110+90+100)/3 = 100; S1 = 2P-H = 90; R1 = 2P-L = 110
	assert.InDelta(t, 90.0, support, 1e-9)
	assert.InDelta(t, 110.0, resistance, 1e-9)
}

func TestTrendFromSMAs(t *testing.T) {
	tests := []struct {
		name      string
		sma20     float64
		sma50     float64
		direction string
	}{
		{"up", 102, 100, TrendUp},
		{"down", 98, 100, TrendDown},
		{"inside band", 100.3, 100, TrendSideways},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir, strength := trendFromSMAs(tt.sma20, tt.sma50)
			assert.Equal(t, tt.direction, dir)
			assert.GreaterOrEqual(t, strength, 0.0)
			assert.LessOrEqual(t, strength, 1.0)
		})
	}
}
