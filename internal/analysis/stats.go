package analysis

import (
	"math"
	"sort"
)

// Small statistical kernel shared by the operators. Pearson, rolling
// moments and the banded F-test are defined inline to keep numeric
// behaviour exact on the reference vectors.

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var ss float64
	for _, x := range xs {
		d := x - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

func median(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// pearson computes the correlation coefficient of two equal-length
// sequences. Degenerate inputs (constant series) yield 0.
func pearson(xs, ys []float64) float64 {
	n := len(xs)
	if n == 0 || n != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		dy := ys[i] - my
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}
	if sxx == 0 || syy == 0 {
		return 0
	}
	r := sxy / math.Sqrt(sxx*syy)
	// Clamp rounding spill outside [-1, 1]
	return math.Max(-1, math.Min(1, r))
}

// percentReturns computes period-to-period % returns. A zero price yields
// a zero return for that period.
func percentReturns(prices []float64) []float64 {
	if len(prices) < 2 {
		return nil
	}
	out := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		if prices[i-1] == 0 {
			out = append(out, 0)
			continue
		}
		out = append(out, (prices[i]-prices[i-1])/prices[i-1]*100)
	}
	return out
}

// olsFStatistic regresses y on x (single variable with intercept) and
// returns the F-statistic MS_reg/MS_res. Degenerate fits return 0.
func olsFStatistic(xs, ys []float64) float64 {
	n := len(xs)
	if n < 3 || n != len(ys) {
		return 0
	}
	mx, my := mean(xs), mean(ys)
	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := xs[i] - mx
		sxy += dx * (ys[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0
	}
	beta := sxy / sxx
	alpha := my - beta*mx

	var ssReg, ssRes float64
	for i := 0; i < n; i++ {
		pred := alpha + beta*xs[i]
		dr := pred - my
		ssReg += dr * dr
		de := ys[i] - pred
		ssRes += de * de
	}
	msRes := ssRes / float64(n-2)
	if msRes == 0 {
		return 0
	}
	return ssReg / msRes
}

// bandedPValue maps an F-statistic to the coarse p-value bands used by the
// causality operator.
func bandedPValue(f float64) float64 {
	switch {
	case f > 10:
		return 0.001
	case f > 5:
		return 0.01
	case f > 2:
		return 0.05
	default:
		return 0.2
	}
}

func lastN(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}
