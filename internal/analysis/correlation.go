package analysis

import (
	"fmt"
	"math"
)

const (
	minCorrelationPoints = 30
	rollingWindow        = 10
	maxLagScan           = 5
)

// CorrelationOptions parametrise AnalyzeCorrelation
type CorrelationOptions struct {
	PrimarySymbol   string
	SecondarySymbol string
	PeriodDays      int
	// IncludeRolling and IncludeLags switch the optional sequences on
	IncludeRolling bool
	IncludeLags    bool
}

// AnalyzeCorrelation computes the Pearson correlation of two aligned price
// sequences, plus optional rolling and lead/lag views. Sequences shorter
// than 30 points or of unequal length yield the zero sentinel.
func AnalyzeCorrelation(primary, secondary []float64, opts CorrelationOptions) CorrelationResult {
	if len(primary) != len(secondary) || len(primary) < minCorrelationPoints {
		return CorrelationResult{
			PrimarySymbol:       opts.PrimarySymbol,
			SecondarySymbol:     opts.SecondarySymbol,
			Correlation:         0,
			CorrelationStrength: "weak",
			SampleSize:          0,
			PeriodDays:          opts.PeriodDays,
			Interpretation:      "insufficient data for correlation analysis",
			DataSource:          DataSourceUnavailable,
		}
	}

	r := pearson(primary, secondary)
	strength := classifyCorrelation(r)

	result := CorrelationResult{
		PrimarySymbol:       opts.PrimarySymbol,
		SecondarySymbol:     opts.SecondarySymbol,
		Correlation:         r,
		CorrelationStrength: strength,
		SampleSize:          len(primary),
		PeriodDays:          opts.PeriodDays,
		Interpretation:      interpretCorrelation(opts.PrimarySymbol, opts.SecondarySymbol, r, strength),
		DataSource:          DataSourceCalculated,
	}

	if opts.IncludeRolling {
		result.RollingCorrelations = rollingCorrelations(primary, secondary, rollingWindow)
	}
	if opts.IncludeLags {
		result.LagAnalysis = lagScan(primary, secondary, maxLagScan)
	}
	return result
}

// classifyCorrelation bands |r| and preserves the sign
func classifyCorrelation(r float64) string {
	abs := math.Abs(r)
	var band string
	switch {
	case abs >= 0.8:
		band = "very_strong"
	case abs >= 0.6:
		band = "strong"
	case abs >= 0.4:
		band = "moderate"
	default:
		band = "weak"
	}
	switch {
	case r > 0:
		return band + "_positive"
	case r < 0:
		return band + "_negative"
	default:
		return band
	}
}

func interpretCorrelation(primary, secondary string, r float64, strength string) string {
	direction := "move together"
	if r < 0 {
		direction = "move inversely"
	}
	return fmt.Sprintf("%s and %s %s (r=%.3f, %s)", primary, secondary, direction, r, strength)
}

// rollingCorrelations slides a fixed window across both series
func rollingCorrelations(primary, secondary []float64, window int) []RollingPoint {
	if len(primary) < window {
		return nil
	}
	out := make([]RollingPoint, 0, len(primary)-window+1)
	for i := window; i <= len(primary); i++ {
		out = append(out, RollingPoint{
			Index:       i - 1,
			Correlation: pearson(primary[i-window:i], secondary[i-window:i]),
		})
	}
	return out
}

// lagScan computes the correlation at each lag in [-maxLag, maxLag].
// A positive lag shifts the primary series forward (primary leads).
func lagScan(primary, secondary []float64, maxLag int) *LagAnalysis {
	n := len(primary)
	points := make([]LagPoint, 0, 2*maxLag+1)
	bestLag, bestAbs := 0, -1.0

	for lag := -maxLag; lag <= maxLag; lag++ {
		var r float64
		switch {
		case lag > 0:
			r = pearson(primary[:n-lag], secondary[lag:])
		case lag < 0:
			k := -lag
			r = pearson(primary[k:], secondary[:n-k])
		default:
			r = pearson(primary, secondary)
		}
		points = append(points, LagPoint{Lag: lag, Correlation: r})
		if abs := math.Abs(r); abs > bestAbs {
			bestAbs, bestLag = abs, lag
		}
	}

	leader := "none"
	if bestAbs >= 0.4 {
		if bestLag > 0 {
			leader = "primary"
		} else if bestLag < 0 {
			leader = "secondary"
		}
	}
	return &LagAnalysis{OptimalLag: bestLag, Leader: leader, Correlations: points}
}
