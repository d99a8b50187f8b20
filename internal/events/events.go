// Package events defines the canonical event model shared by the collector
// fabric, the topic bus and the market-context processor.
package events

import (
	"time"

	"github.com/google/uuid"
)

// SourceType identifies the upstream family a RawEvent was collected from
type SourceType string

const (
	SourceExchange          SourceType = "exchange"
	SourceNewsAPI           SourceType = "news-api"
	SourceSocial            SourceType = "social"
	SourceRSS               SourceType = "rss"
	SourceSpotMetal         SourceType = "spot-metal"
	SourceCentralBank       SourceType = "central-bank"
	SourceEconomicIndicator SourceType = "economic-indicator"
	SourceCustom            SourceType = "custom"
)

// Valid reports whether s is one of the closed set of sources
func (s SourceType) Valid() bool {
	switch s {
	case SourceExchange, SourceNewsAPI, SourceSocial, SourceRSS,
		SourceSpotMetal, SourceCentralBank, SourceEconomicIndicator, SourceCustom:
		return true
	}
	return false
}

// Metadata carries source-specific key/value pairs. Values are restricted to
// JSON primitives and nested mappings on the wire.
type Metadata map[string]interface{}

// GetString returns the string value for key, or "" if absent or not a string
func (m Metadata) GetString(key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

// GetFloat returns the numeric value for key as a float64
func (m Metadata) GetFloat(key string) (float64, bool) {
	switch v := m[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// GetInt returns the integer value for key
func (m Metadata) GetInt(key string) (int64, bool) {
	switch v := m[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// GetBool returns the boolean value for key
func (m Metadata) GetBool(key string) bool {
	v, _ := m[key].(bool)
	return v
}

// RawEvent is the atom of ingestion. It is created by a collector, published
// exactly once to the raw-events topic and immutable after publish.
type RawEvent struct {
	EventID     uuid.UUID  `json:"event_id"`
	Source      SourceType `json:"source"`
	SourceID    string     `json:"source_id"`
	Content     string     `json:"content"`
	Metadata    Metadata   `json:"metadata"`
	CollectedAt time.Time  `json:"collected_at"`
	PublishedAt *time.Time `json:"published_at"`
	Symbols     []string   `json:"symbols"`
	Title       *string    `json:"title"`
	URL         *string    `json:"url"`
	Author      *string    `json:"author"`
	TenantID    string     `json:"tenant_id,omitempty"`
}

// NewRawEvent creates a RawEvent with a fresh event id and capture timestamp
func NewRawEvent(source SourceType, sourceID, content string) *RawEvent {
	return &RawEvent{
		EventID:     uuid.New(),
		Source:      source,
		SourceID:    sourceID,
		Content:     content,
		Metadata:    make(Metadata),
		CollectedAt: time.Now().UTC(),
		Symbols:     []string{},
	}
}

// Sentiment is the score block authored by the upstream sentiment enricher
type Sentiment struct {
	Score      float64 `json:"score"`      // [-1, 1]
	Label      string  `json:"label"`      // positive | neutral | negative
	Confidence float64 `json:"confidence"` // [0, 1]
}

// ProcessedSentiment is consumed by the market-context processor
type ProcessedSentiment struct {
	EventID    uuid.UUID  `json:"event_id"`
	Symbol     string     `json:"symbol"`
	MarketType string     `json:"market_type"` // crypto | gold | generic
	Sentiment  Sentiment  `json:"sentiment"`
	Timestamp  time.Time  `json:"timestamp"`
	Source     SourceType `json:"source"`
	TenantID   string     `json:"tenant_id,omitempty"`
}

// MarketContextEvent is emitted by the processor for every processed input
type MarketContextEvent struct {
	ContextID      uuid.UUID  `json:"context_id"`
	EventID        uuid.UUID  `json:"event_id"`
	Symbol         string     `json:"symbol"`
	MarketType     string     `json:"market_type"`
	SentimentScore float64    `json:"sentiment_score"`
	SentimentLabel string     `json:"sentiment_label"`
	Source         SourceType `json:"source"`
	Timestamp      time.Time  `json:"timestamp"`
	TenantID       string     `json:"tenant_id,omitempty"`
}

// NewMarketContext derives a MarketContextEvent from a processed sentiment.
// The context id is fresh on every call so redelivered messages produce
// distinct contexts sharing the parent event id and timestamp.
func NewMarketContext(ps *ProcessedSentiment) *MarketContextEvent {
	return &MarketContextEvent{
		ContextID:      uuid.New(),
		EventID:        ps.EventID,
		Symbol:         ps.Symbol,
		MarketType:     ps.MarketType,
		SentimentScore: ps.Sentiment.Score,
		SentimentLabel: ps.Sentiment.Label,
		Source:         ps.Source,
		Timestamp:      ps.Timestamp,
		TenantID:       ps.TenantID,
	}
}
