package analysis

import "fmt"

const minGrangerPoints = 30

// GrangerCausality tests whether past sentiment values improve prediction
// of price returns, via a banded F-test on lagged single-variable
// regressions. Both series must be equal length with at least 30 points.
func GrangerCausality(prices, sentiments []float64, maxLagHours int) GrangerResult {
	if len(prices) != len(sentiments) || len(prices) < minGrangerPoints {
		return GrangerResult{
			Causal:         false,
			SampleSize:     0,
			PValue:         1,
			Interpretation: "insufficient data for causality analysis",
			DataSource:     DataSourceUnavailable,
		}
	}

	returns := percentReturns(prices)
	sents := sentiments[:len(returns)]

	maxLag := len(returns) / 4
	if maxLagHours > 0 && maxLagHours < maxLag {
		maxLag = maxLagHours
	}
	if maxLag < 1 {
		maxLag = 1
	}

	bestLag, bestF, bestP := 0, 0.0, 1.0
	for lag := 1; lag <= maxLag; lag++ {
		y := returns[lag:]
		x := sents[:len(sents)-lag]
		f := olsFStatistic(x, y)
		p := bandedPValue(f)
		if p < bestP || (p == bestP && f > bestF) {
			bestLag, bestF, bestP = lag, f, p
		}
	}

	causal := bestP < 0.05 && bestF > 2
	return GrangerResult{
		Causal:         causal,
		OptimalLag:     bestLag,
		FStatistic:     bestF,
		PValue:         bestP,
		SampleSize:     len(prices),
		Interpretation: interpretGranger(causal, bestLag, bestF, bestP),
		DataSource:     DataSourceCalculated,
	}
}

func interpretGranger(causal bool, lag int, f, p float64) string {
	if causal {
		return fmt.Sprintf("sentiment Granger-causes returns at lag %d (F=%.2f, p=%.3f)", lag, f, p)
	}
	return fmt.Sprintf("no causal relationship detected (best lag %d, F=%.2f, p=%.3f)", lag, f, p)
}
