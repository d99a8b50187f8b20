package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func findAnomaly(found []AnomalyDetection, anomalyType string) *AnomalyDetection {
	for i := range found {
		if found[i].AnomalyType == anomalyType {
			return &found[i]
		}
	}
	return nil
}

func TestDetectPriceSentimentDivergence(t *testing.T) {
	found := DetectAnomalies(AnomalyInput{
		Symbol:     "BTC",
		MarketType: "crypto",
		Prices:     []float64{100, 100, 102},
		Sentiments: []float64{0.4, 0.4, 0.15},
	})

	div := findAnomaly(found, AnomalyPriceSentimentDivergence)
	require.NotNil(t, div)
	assert.GreaterOrEqual(t, severityRank[div.Severity], severityRank[SeverityMedium])
	assert.Contains(t, div.Description, "bearish divergence")
	assert.InDelta(t, 2.0, div.PriceChangePercent, 0.01)
	require.NotNil(t, div.SentimentScore)
	assert.InDelta(t, 0.15, *div.SentimentScore, 1e-9)
}

func TestDivergenceRequiresOpposingMoves(t *testing.T) {
	// Sentiment moving with price is not a divergence
	found := DetectAnomalies(AnomalyInput{
		Prices:     []float64{100, 100, 102},
		Sentiments: []float64{0.1, 0.1, 0.5},
	})
	assert.Nil(t, findAnomaly(found, AnomalyPriceSentimentDivergence))

	// Tiny price moves are ignored
	found = DetectAnomalies(AnomalyInput{
		Prices:     []float64{100, 100, 100.1},
		Sentiments: []float64{0.4, 0.4, 0.1},
	})
	assert.Nil(t, findAnomaly(found, AnomalyPriceSentimentDivergence))
}

func stableThenJump(n int, jumpPct float64) []float64 {
	prices := make([]float64, n+1)
	for i := 0; i <= n-1; i++ {
		prices[i] = 100.0
		if i%2 == 1 {
			prices[i] = 100.05
		}
	}
	prices[n] = prices[n-1] * (1 + jumpPct/100)
	return prices
}

func TestDetectFlashPump(t *testing.T) {
	found := DetectAnomalies(AnomalyInput{
		Symbol:     "ETH",
		MarketType: "crypto",
		Prices:     stableThenJump(30, 6.0),
	})

	pump := findAnomaly(found, AnomalyFlashPump)
	require.NotNil(t, pump)
	assert.Equal(t, SeverityCritical, pump.Severity)
	require.NotNil(t, pump.ZScore)
	assert.Greater(t, *pump.ZScore, 4.0)
	assert.InDelta(t, 6.0, pump.PriceChangePercent, 0.1)
}

func TestDetectFlashCrash(t *testing.T) {
	found := DetectAnomalies(AnomalyInput{
		Symbol: "ETH",
		Prices: stableThenJump(30, -8.0),
	})

	crash := findAnomaly(found, AnomalyFlashCrash)
	require.NotNil(t, crash)
	require.NotNil(t, crash.ZScore)
	assert.Negative(t, *crash.ZScore)
}

func TestDetectVolumeSpike(t *testing.T) {
	volumes := make([]float64, 21)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[20] = 350

	found := DetectAnomalies(AnomalyInput{
		Symbol:  "BTC",
		Prices:  flatPrices(21, 100),
		Volumes: volumes,
	})
	spike := findAnomaly(found, AnomalyVolumeSpike)
	require.NotNil(t, spike)
	assert.Equal(t, SeverityMedium, spike.Severity)
	require.NotNil(t, spike.VolumeRatio)
	assert.InDelta(t, 3.5, *spike.VolumeRatio, 1e-9)

	volumes[20] = 550
	found = DetectAnomalies(AnomalyInput{
		Prices:  flatPrices(21, 100),
		Volumes: volumes,
	})
	spike = findAnomaly(found, AnomalyVolumeSpike)
	require.NotNil(t, spike)
	assert.Equal(t, SeverityHigh, spike.Severity)
}

func TestDetectSupportBreak(t *testing.T) {
	support := 100.5
	found := DetectAnomalies(AnomalyInput{
		Symbol:       "XAU",
		Prices:       []float64{101, 100.8, 99.0},
		SupportLevel: &support,
	})

	br := findAnomaly(found, AnomalySupportBreak)
	require.NotNil(t, br)
	assert.Equal(t, SeverityHigh, br.Severity, "1.49%% breach upgrades severity")
	assert.Contains(t, br.Description, "support")
}

func TestDetectResistanceBreak(t *testing.T) {
	resistance := 100.0
	found := DetectAnomalies(AnomalyInput{
		Prices:          []float64{99, 99.5, 100.5},
		ResistanceLevel: &resistance,
	})

	br := findAnomaly(found, AnomalyResistanceBreak)
	require.NotNil(t, br)
	assert.Equal(t, SeverityMedium, br.Severity)
}

func TestNoBreakWithinTolerance(t *testing.T) {
	support := 100.0
	found := DetectAnomalies(AnomalyInput{
		Prices:       []float64{101, 100, 99.8}, // 0.2% below, inside tolerance
		SupportLevel: &support,
	})
	assert.Nil(t, findAnomaly(found, AnomalySupportBreak))
}

func TestSeverityOrderingNonIncreasing(t *testing.T) {
	support := 100.4
	volumes := make([]float64, 31)
	for i := range volumes {
		volumes[i] = 100
	}
	volumes[30] = 400

	found := DetectAnomalies(AnomalyInput{
		Symbol:       "BTC",
		Prices:       stableThenJump(30, -8.0),
		Volumes:      volumes,
		SupportLevel: &support,
	})
	require.GreaterOrEqual(t, len(found), 2)

	for i := 1; i < len(found); i++ {
		assert.GreaterOrEqual(t,
			severityRank[found[i-1].Severity],
			severityRank[found[i].Severity],
			"severity must be non-increasing")
	}
}

func TestDetectAnomaliesInsufficientData(t *testing.T) {
	assert.Nil(t, DetectAnomalies(AnomalyInput{Prices: []float64{100}}))
	assert.Nil(t, DetectAnomalies(AnomalyInput{}))
}
