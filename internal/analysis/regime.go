package analysis

import "math"

const (
	minRegimePoints  = 50
	pivotWindow      = 30
	volatilityWindow = 14
	sidewaysBandPct  = 0.5
)

// DetectRegime classifies the current market regime for one symbol from
// its price history. Fewer than 50 points yields the neutral sentinel.
func DetectRegime(prices, volumes []float64, symbol, marketType string) RegimeAnalysis {
	if len(prices) < minRegimePoints {
		return RegimeAnalysis{
			Symbol:           symbol,
			MarketType:       marketType,
			Regime:           RegimeNeutral,
			TrendDirection:   TrendSideways,
			VolatilityRegime: VolatilityLow,
			Confidence:       0,
			SampleSize:       0,
			DataSource:       DataSourceUnavailable,
		}
	}

	lastPrice := prices[len(prices)-1]
	rsi := lastRSI(prices, 14)
	sma20 := lastSMA(prices, 20)
	sma50 := lastSMA(prices, 50)
	sma200 := lastSMA(prices, 200)
	ema20 := lastEMA(prices, 20)

	volRegime := volatilityRegime(prices)
	trendDir, trendStrength := trendFromSMAs(sma20, sma50)

	var regime string
	switch {
	case volRegime == VolatilityExtreme:
		regime = RegimeVolatile
	case sma50 > sma200 && rsi > 40 && rsi < 75 && lastPrice > sma50:
		regime = RegimeBull
	case sma50 < sma200 && rsi > 25 && rsi < 60 && lastPrice < sma50:
		regime = RegimeBear
	default:
		regime = RegimeNeutral
	}

	support, resistance := pivotLevels(lastN(prices, pivotWindow))
	confidence := regimeConfidence(regime, rsi, trendStrength, lastPrice, sma50, sma200, ema20)

	return RegimeAnalysis{
		Symbol:           symbol,
		MarketType:       marketType,
		Regime:           regime,
		TrendDirection:   trendDir,
		TrendStrength:    trendStrength,
		VolatilityRegime: volRegime,
		Confidence:       confidence,
		RSI14:            &rsi,
		SMA50:            &sma50,
		SMA200:           &sma200,
		EMA20:            &ema20,
		SupportLevel:     &support,
		ResistanceLevel:  &resistance,
		SampleSize:       len(prices),
		DataSource:       DataSourceCalculated,
	}
}

// trendFromSMAs compares SMA20 against SMA50: within a ±0.5% band the
// trend is sideways, strength is the relative gap clamped to 1.
func trendFromSMAs(sma20, sma50 float64) (string, float64) {
	if sma50 == 0 {
		return TrendSideways, 0
	}
	gapPct := (sma20 - sma50) / sma50 * 100
	strength := math.Min(math.Abs(gapPct), 1.0)
	switch {
	case gapPct > sidewaysBandPct:
		return TrendUp, strength
	case gapPct < -sidewaysBandPct:
		return TrendDown, strength
	default:
		return TrendSideways, strength
	}
}

// volatilityRegime tiers the ATR-like average absolute 1-period change
// over the last 14 points, as a percentage of the current price.
func volatilityRegime(prices []float64) string {
	lastPrice := prices[len(prices)-1]
	if lastPrice == 0 {
		return VolatilityLow
	}
	window := lastN(prices, volatilityWindow+1)
	var sum float64
	for i := 1; i < len(window); i++ {
		sum += math.Abs(window[i] - window[i-1])
	}
	avgMovePct := sum / float64(len(window)-1) / lastPrice * 100

	switch {
	case avgMovePct >= 3.0:
		return VolatilityExtreme
	case avgMovePct >= 1.5:
		return VolatilityHigh
	case avgMovePct >= 0.5:
		return VolatilityMedium
	default:
		return VolatilityLow
	}
}

// pivotLevels derives classical pivot support/resistance from the recent
// window: P=(H+L+C)/3, S1=2P-H, R1=2P-L.
func pivotLevels(window []float64) (support, resistance float64) {
	if len(window) == 0 {
		return 0, 0
	}
	high, low := window[0], window[0]
	for _, p := range window {
		if p > high {
			high = p
		}
		if p < low {
			low = p
		}
	}
	closePrice := window[len(window)-1]
	pivot := (high + low + closePrice) / 3
	return 2*pivot - high, 2*pivot - low
}

// regimeConfidence is the weighted average of RSI fit (0.3), trend
// strength (0.3) and indicator agreement (0.4).
func regimeConfidence(regime string, rsi, trendStrength, lastPrice, sma50, sma200, ema20 float64) float64 {
	var rsiFit float64
	switch regime {
	case RegimeBull:
		if rsi > 40 && rsi < 75 {
			rsiFit = 1
		}
	case RegimeBear:
		if rsi > 25 && rsi < 60 {
			rsiFit = 1
		}
	default:
		// RSI is uninformative outside a directional regime
		rsiFit = 0.5
	}

	var agree float64
	checks := [3]bool{}
	switch regime {
	case RegimeBull:
		checks = [3]bool{sma50 > sma200, lastPrice > sma50, ema20 > sma50}
	case RegimeBear:
		checks = [3]bool{sma50 < sma200, lastPrice < sma50, ema20 < sma50}
	}
	for _, ok := range checks {
		if ok {
			agree += 1.0 / 3.0
		}
	}

	confidence := 0.3*rsiFit + 0.3*trendStrength + 0.4*agree
	return math.Min(confidence, 1.0)
}
