package analysis

import (
	"fmt"
	"math"
	"sort"
	"time"
)

const (
	anomalyLookback    = 20
	divergenceMinPrice = 0.3 // % move required before checking sentiment
	divergenceMinSent  = 0.1
	volSpikeRatio      = 3.0
	volSpikeHighRatio  = 5.0
	levelBreachPct     = 0.3
)

// AnomalyInput carries the aligned series the detector inspects. Prices
// are required; sentiments, volumes, levels and timestamps are optional.
type AnomalyInput struct {
	Symbol     string
	MarketType string
	Prices     []float64
	Sentiments []float64
	Volumes    []float64
	Timestamps []time.Time

	SupportLevel    *float64
	ResistanceLevel *float64
}

// DetectAnomalies runs every applicable check over the input and returns
// the findings ordered by severity, then timestamp descending. Inputs too
// short for a given check simply skip it; the result may be empty.
func DetectAnomalies(in AnomalyInput) []AnomalyDetection {
	if len(in.Prices) < 2 {
		return nil
	}

	var found []AnomalyDetection
	if a := detectSuddenMove(in); a != nil {
		found = append(found, *a)
	}
	if a := detectDivergence(in); a != nil {
		found = append(found, *a)
	}
	if a := detectVolumeSpike(in); a != nil {
		found = append(found, *a)
	}
	found = append(found, detectLevelBreaks(in)...)
	if a := detectVolatilitySpike(in); a != nil {
		found = append(found, *a)
	}

	sort.SliceStable(found, func(i, j int) bool {
		ri, rj := severityRank[found[i].Severity], severityRank[found[j].Severity]
		if ri != rj {
			return ri > rj
		}
		return found[i].Timestamp.After(found[j].Timestamp)
	})
	return found
}

func (in AnomalyInput) detectionTime() time.Time {
	if len(in.Timestamps) > 0 {
		return in.Timestamps[len(in.Timestamps)-1]
	}
	return time.Now().UTC()
}

func (in AnomalyInput) lastPrice() float64 {
	return in.Prices[len(in.Prices)-1]
}

func (in AnomalyInput) lastChangePct() float64 {
	prev := in.Prices[len(in.Prices)-2]
	if prev == 0 {
		return 0
	}
	return (in.lastPrice() - prev) / prev * 100
}

// detectSuddenMove z-scores the latest return against its rolling history
func detectSuddenMove(in AnomalyInput) *AnomalyDetection {
	returns := percentReturns(in.Prices)
	if len(returns) < anomalyLookback+1 {
		return nil
	}
	current := returns[len(returns)-1]
	history := lastN(returns[:len(returns)-1], anomalyLookback)
	sd := stdDev(history)
	if sd == 0 {
		return nil
	}
	z := (current - mean(history)) / sd
	absZ := math.Abs(z)
	if absZ <= 2 {
		return nil
	}

	anomalyType := AnomalySuddenPriceMove
	direction := "upward"
	if current < 0 {
		direction = "downward"
	}
	if current < -2 {
		anomalyType = AnomalyFlashCrash
	} else if current > 2 {
		anomalyType = AnomalyFlashPump
	}

	severity := SeverityLow
	switch {
	case absZ > 4:
		severity = SeverityCritical
	case absZ > 3:
		severity = SeverityHigh
	case absZ > 2:
		severity = SeverityMedium
	}

	zCopy := z
	return &AnomalyDetection{
		AnomalyType:        anomalyType,
		Severity:           severity,
		Symbol:             in.Symbol,
		MarketType:         in.MarketType,
		Timestamp:          in.detectionTime(),
		Description:        fmt.Sprintf("Sudden %s price move of %.2f%% (z-score %.2f)", direction, current, z),
		Recommendation:     "Verify against independent price sources before acting",
		PriceAtDetection:   in.lastPrice(),
		PriceChangePercent: current,
		ZScore:             &zCopy,
	}
}

// detectDivergence flags price and sentiment moving in opposite directions
func detectDivergence(in AnomalyInput) *AnomalyDetection {
	if len(in.Sentiments) < 2 {
		return nil
	}
	priceChange := in.lastChangePct()
	sentChange := in.Sentiments[len(in.Sentiments)-1] - in.Sentiments[len(in.Sentiments)-2]

	if math.Abs(priceChange) <= divergenceMinPrice {
		return nil
	}
	if math.Abs(sentChange) <= divergenceMinSent || priceChange*sentChange >= 0 {
		return nil
	}

	kind := "bearish divergence: price rising while sentiment deteriorates"
	if priceChange < 0 {
		kind = "bullish divergence: price falling while sentiment improves"
	}

	severity := SeverityMedium
	if math.Abs(priceChange) >= 5 || math.Abs(sentChange) >= 0.4 {
		severity = SeverityHigh
	}
	if math.Abs(priceChange) >= 5 && math.Abs(sentChange) >= 0.4 {
		severity = SeverityCritical
	}

	current := in.Sentiments[len(in.Sentiments)-1]
	expected := in.Sentiments[len(in.Sentiments)-2]
	return &AnomalyDetection{
		AnomalyType:        AnomalyPriceSentimentDivergence,
		Severity:           severity,
		Symbol:             in.Symbol,
		MarketType:         in.MarketType,
		Timestamp:          in.detectionTime(),
		Description:        fmt.Sprintf("Price/sentiment %s (price %+.2f%%, sentiment %+.2f)", kind, priceChange, sentChange),
		Recommendation:     "Watch for a reversal; sentiment and price disagree",
		PriceAtDetection:   in.lastPrice(),
		PriceChangePercent: priceChange,
		SentimentScore:     &current,
		ExpectedSentiment:  &expected,
	}
}

// detectVolumeSpike compares the latest volume against its trailing mean
func detectVolumeSpike(in AnomalyInput) *AnomalyDetection {
	if len(in.Volumes) < 3 {
		return nil
	}
	current := in.Volumes[len(in.Volumes)-1]
	trailing := lastN(in.Volumes[:len(in.Volumes)-1], anomalyLookback)
	avg := mean(trailing)
	if avg == 0 {
		return nil
	}
	ratio := current / avg
	if ratio < volSpikeRatio {
		return nil
	}

	severity := SeverityMedium
	if ratio >= volSpikeHighRatio {
		severity = SeverityHigh
	}

	ratioCopy := ratio
	return &AnomalyDetection{
		AnomalyType:        AnomalyVolumeSpike,
		Severity:           severity,
		Symbol:             in.Symbol,
		MarketType:         in.MarketType,
		Timestamp:          in.detectionTime(),
		Description:        fmt.Sprintf("Volume %.1fx the trailing average", ratio),
		Recommendation:     "Unusual participation; check for news or large orders",
		PriceAtDetection:   in.lastPrice(),
		PriceChangePercent: in.lastChangePct(),
		VolumeRatio:        &ratioCopy,
	}
}

// detectLevelBreaks checks the last close against provided S/R levels
func detectLevelBreaks(in AnomalyInput) []AnomalyDetection {
	var out []AnomalyDetection
	last := in.lastPrice()

	if in.SupportLevel != nil && *in.SupportLevel > 0 {
		breach := (*in.SupportLevel - last) / *in.SupportLevel * 100
		if breach > levelBreachPct {
			out = append(out, levelBreak(in, AnomalySupportBreak, breach,
				fmt.Sprintf("Close %.4f broke support %.4f by %.2f%%", last, *in.SupportLevel, breach),
				"Support lost; downside continuation risk"))
		}
	}
	if in.ResistanceLevel != nil && *in.ResistanceLevel > 0 {
		breach := (last - *in.ResistanceLevel) / *in.ResistanceLevel * 100
		if breach > levelBreachPct {
			out = append(out, levelBreak(in, AnomalyResistanceBreak, breach,
				fmt.Sprintf("Close %.4f broke resistance %.4f by %.2f%%", last, *in.ResistanceLevel, breach),
				"Resistance cleared; watch for follow-through or fakeout"))
		}
	}
	return out
}

func levelBreak(in AnomalyInput, anomalyType string, breach float64, description, recommendation string) AnomalyDetection {
	severity := SeverityMedium
	if breach > 1.0 {
		severity = SeverityHigh
	}
	return AnomalyDetection{
		AnomalyType:        anomalyType,
		Severity:           severity,
		Symbol:             in.Symbol,
		MarketType:         in.MarketType,
		Timestamp:          in.detectionTime(),
		Description:        description,
		Recommendation:     recommendation,
		PriceAtDetection:   in.lastPrice(),
		PriceChangePercent: in.lastChangePct(),
	}
}

// detectVolatilitySpike compares the latest rolling std of returns with
// the median of its own history.
func detectVolatilitySpike(in AnomalyInput) *AnomalyDetection {
	returns := percentReturns(in.Prices)
	const window = 5
	if len(returns) < anomalyLookback+window {
		return nil
	}

	var stds []float64
	for i := window; i <= len(returns); i++ {
		stds = append(stds, stdDev(returns[i-window:i]))
	}
	current := stds[len(stds)-1]
	med := median(stds[:len(stds)-1])
	if med == 0 || current/med < 2 {
		return nil
	}

	ratio := current / med
	severity := SeverityMedium
	if ratio >= 3 {
		severity = SeverityHigh
	}
	return &AnomalyDetection{
		AnomalyType:        AnomalyVolatilitySpike,
		Severity:           severity,
		Symbol:             in.Symbol,
		MarketType:         in.MarketType,
		Timestamp:          in.detectionTime(),
		Description:        fmt.Sprintf("Return volatility %.1fx its rolling median", ratio),
		Recommendation:     "Expect wider swings; widen stops or reduce exposure",
		PriceAtDetection:   in.lastPrice(),
		PriceChangePercent: in.lastChangePct(),
	}
}
