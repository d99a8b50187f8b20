// Package analysis holds the pure statistical operators of the market
// context processor: regime detection, anomaly detection, correlation and
// Granger causality. Operators never perform I/O; short inputs produce
// sentinel results instead of errors.
package analysis

import "time"

// Data source markers for sentinel results
const (
	DataSourceCalculated  = "calculated"
	DataSourceUnavailable = "unavailable"
)

// Regime classifications
const (
	RegimeBull     = "bull"
	RegimeBear     = "bear"
	RegimeNeutral  = "neutral"
	RegimeVolatile = "volatile"
)

// Trend directions
const (
	TrendUp       = "up"
	TrendDown     = "down"
	TrendSideways = "sideways"
)

// Volatility regimes
const (
	VolatilityLow     = "low"
	VolatilityMedium  = "medium"
	VolatilityHigh    = "high"
	VolatilityExtreme = "extreme"
)

// Anomaly types
const (
	AnomalyPriceSentimentDivergence = "price_sentiment_divergence"
	AnomalySuddenPriceMove          = "sudden_price_move"
	AnomalyVolumeSpike              = "volume_spike"
	AnomalyVolatilitySpike          = "volatility_spike"
	AnomalySupportBreak             = "support_break"
	AnomalyResistanceBreak          = "resistance_break"
	AnomalyFlashCrash               = "flash_crash"
	AnomalyFlashPump                = "flash_pump"
)

// Severities, ordered critical > high > medium > low
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

var severityRank = map[string]int{
	SeverityCritical: 3,
	SeverityHigh:     2,
	SeverityMedium:   1,
	SeverityLow:      0,
}

// RegimeAnalysis is the regime detector's output
type RegimeAnalysis struct {
	Symbol           string   `json:"symbol"`
	MarketType       string   `json:"market_type"`
	Regime           string   `json:"regime"`
	TrendDirection   string   `json:"trend_direction"`
	TrendStrength    float64  `json:"trend_strength"`
	VolatilityRegime string   `json:"volatility_regime"`
	Confidence       float64  `json:"confidence"`
	RSI14            *float64 `json:"rsi_14,omitempty"`
	SMA50            *float64 `json:"sma_50,omitempty"`
	SMA200           *float64 `json:"sma_200,omitempty"`
	EMA20            *float64 `json:"ema_20,omitempty"`
	SupportLevel     *float64 `json:"support_level,omitempty"`
	ResistanceLevel  *float64 `json:"resistance_level,omitempty"`
	SampleSize       int      `json:"sample_size"`
	DataSource       string   `json:"data_source"`
}

// AnomalyDetection is one detected anomaly
type AnomalyDetection struct {
	AnomalyType        string    `json:"anomaly_type"`
	Severity           string    `json:"severity"`
	Symbol             string    `json:"symbol"`
	MarketType         string    `json:"market_type"`
	Timestamp          time.Time `json:"timestamp"`
	Description        string    `json:"description"`
	Recommendation     string    `json:"recommendation"`
	PriceAtDetection   float64   `json:"price_at_detection"`
	PriceChangePercent float64   `json:"price_change_percent"`
	SentimentScore     *float64  `json:"sentiment_score,omitempty"`
	ExpectedSentiment  *float64  `json:"expected_sentiment,omitempty"`
	VolumeRatio        *float64  `json:"volume_ratio,omitempty"`
	ZScore             *float64  `json:"z_score,omitempty"`
}

// RollingPoint is one window of the rolling correlation sequence
type RollingPoint struct {
	Index       int     `json:"index"`
	Correlation float64 `json:"correlation"`
}

// LagPoint is the correlation at one lag of the lead/lag scan
type LagPoint struct {
	Lag         int     `json:"lag"`
	Correlation float64 `json:"correlation"`
}

// LagAnalysis reports the lead/lag scan outcome
type LagAnalysis struct {
	OptimalLag   int        `json:"optimal_lag"`
	Leader       string     `json:"leader"`
	Correlations []LagPoint `json:"correlations"`
}

// CorrelationResult is the correlation analyzer's output
type CorrelationResult struct {
	PrimarySymbol       string         `json:"primary_symbol"`
	SecondarySymbol     string         `json:"secondary_symbol"`
	Correlation         float64        `json:"correlation"`
	CorrelationStrength string         `json:"correlation_strength"`
	SampleSize          int            `json:"sample_size"`
	PeriodDays          int            `json:"period_days"`
	RollingCorrelations []RollingPoint `json:"rolling_correlations,omitempty"`
	LagAnalysis         *LagAnalysis   `json:"lag_analysis,omitempty"`
	Interpretation      string         `json:"interpretation"`
	DataSource          string         `json:"data_source"`
}

// GrangerResult is the causality operator's output
type GrangerResult struct {
	Causal         bool    `json:"causal"`
	OptimalLag     int     `json:"optimal_lag"`
	FStatistic     float64 `json:"f_statistic"`
	PValue         float64 `json:"p_value"`
	SampleSize     int     `json:"sample_size"`
	Interpretation string  `json:"interpretation"`
	DataSource     string  `json:"data_source"`
}
