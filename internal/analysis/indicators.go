package analysis

import (
	"math"

	"github.com/cinar/indicator/v2/momentum"
	"github.com/cinar/indicator/v2/trend"
)

// Channel plumbing for the streaming indicator library

func sliceToChan(values []float64) chan float64 {
	ch := make(chan float64, len(values))
	for _, v := range values {
		ch <- v
	}
	close(ch)
	return ch
}

func chanToSlice(ch <-chan float64) []float64 {
	var out []float64
	for v := range ch {
		out = append(out, v)
	}
	return out
}

// lastSMA returns the most recent simple moving average over period. When
// the series is shorter than the period the whole series is averaged, so
// short histories still yield a usable level.
func lastSMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}
	out := chanToSlice(trend.NewSmaWithPeriod[float64](period).Compute(sliceToChan(prices)))
	if len(out) == 0 {
		return mean(prices)
	}
	return out[len(out)-1]
}

// lastEMA returns the most recent exponential moving average over period
func lastEMA(prices []float64, period int) float64 {
	if len(prices) == 0 {
		return 0
	}
	if period > len(prices) {
		period = len(prices)
	}
	out := chanToSlice(trend.NewEmaWithPeriod[float64](period).Compute(sliceToChan(prices)))
	if len(out) == 0 {
		return mean(prices)
	}
	return out[len(out)-1]
}

// lastRSI returns the most recent RSI over period. A flat series has no
// defined RSI; it is reported as the neutral 50.
func lastRSI(prices []float64, period int) float64 {
	if len(prices) <= period {
		return 50
	}
	flat := true
	for _, p := range prices[1:] {
		if p != prices[0] {
			flat = false
			break
		}
	}
	if flat {
		return 50
	}
	out := chanToSlice(momentum.NewRsiWithPeriod[float64](period).Compute(sliceToChan(prices)))
	if len(out) == 0 {
		return 50
	}
	rsi := out[len(out)-1]
	if math.IsNaN(rsi) || math.IsInf(rsi, 0) {
		return 50
	}
	return rsi
}
