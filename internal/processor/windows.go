package processor

import "sync"

// windowCap bounds every per-symbol deque; old observations fall off the
// front.
const windowCap = 200

// Aggregator keeps per-symbol rolling windows of sentiment scores and
// prices. Append and snapshot are the only operations, guarded by one
// mutex; windows are small and contention is negligible.
type Aggregator struct {
	mu         sync.Mutex
	sentiments map[string][]float64
	prices     map[string][]float64
}

// NewAggregator returns an empty aggregator
func NewAggregator() *Aggregator {
	return &Aggregator{
		sentiments: make(map[string][]float64),
		prices:     make(map[string][]float64),
	}
}

func appendBounded(window []float64, v float64) []float64 {
	window = append(window, v)
	if len(window) > windowCap {
		window = window[len(window)-windowCap:]
	}
	return window
}

// AddSentiment appends one sentiment score to the symbol's window
func (a *Aggregator) AddSentiment(symbol string, score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.sentiments[symbol] = appendBounded(a.sentiments[symbol], score)
}

// AddPrice appends one observed price to the symbol's window
func (a *Aggregator) AddPrice(symbol string, price float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.prices[symbol] = appendBounded(a.prices[symbol], price)
}

// SentimentSeries snapshots the symbol's sentiment window
func (a *Aggregator) SentimentSeries(symbol string) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.sentiments[symbol]...)
}

// PriceSeries snapshots the symbol's price window
func (a *Aggregator) PriceSeries(symbol string) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]float64(nil), a.prices[symbol]...)
}
