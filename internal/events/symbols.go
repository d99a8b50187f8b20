package events

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// symbolPattern is the canonical-symbol shape: letters, digits, hyphen,
// uppercase, length 1-12.
var symbolPattern = regexp.MustCompile(`^[A-Z0-9-]{1,12}$`)

// wordPattern splits free-form text on letter/digit boundaries for
// whole-word symbol matching.
var wordPattern = regexp.MustCompile(`[A-Za-z0-9-]+`)

// CanonicalSymbols is the fixed vocabulary of asset codes the pipeline
// recognises. Collectors match against it when extracting symbols from text.
var CanonicalSymbols = []string{
	"BTC", "ETH", "SOL", "XRP", "ADA", "DOGE", "AVAX", "DOT", "LINK", "MATIC",
	"XAU", "XAG", "XAUUSD", "XAUTRY", "USDTRY", "EURTRY",
	"GOLD", "SILVER",
}

var canonicalSet = func() map[string]bool {
	set := make(map[string]bool, len(CanonicalSymbols))
	for _, s := range CanonicalSymbols {
		set[s] = true
	}
	return set
}()

// ValidSymbol reports whether s matches the canonical-symbol pattern
func ValidSymbol(s string) bool {
	return symbolPattern.MatchString(s)
}

// ValidateSymbol checks s against the canonical vocabulary
func ValidateSymbol(s string) error {
	upper := strings.ToUpper(s)
	if !symbolPattern.MatchString(upper) {
		return &ValidationError{Field: "symbol", Reason: "must be letters, digits or hyphen, length 1-12"}
	}
	if !canonicalSet[upper] {
		return &ValidationError{Field: "symbol", Reason: "not in canonical vocabulary: " + s}
	}
	return nil
}

// ExtractSymbols scans free-form text for whole-word occurrences of
// canonical symbols, normalises to uppercase and dedupes preserving
// first-seen order.
func ExtractSymbols(text string) []string {
	symbols := []string{}
	seen := make(map[string]bool)
	for _, word := range wordPattern.FindAllString(text, -1) {
		upper := strings.ToUpper(word)
		if canonicalSet[upper] && !seen[upper] {
			seen[upper] = true
			symbols = append(symbols, upper)
		}
	}
	return symbols
}

// ValidateRawEvent enforces the RawEvent invariants before publish
func ValidateRawEvent(ev *RawEvent) error {
	if ev.EventID == uuid.Nil {
		return &ValidationError{Field: "event_id", Reason: "must be set"}
	}
	if !ev.Source.Valid() {
		return &ValidationError{Field: "source", Reason: "unknown source: " + string(ev.Source)}
	}
	if ev.SourceID == "" {
		return &ValidationError{Field: "source_id", Reason: "must be set"}
	}
	if ev.CollectedAt.IsZero() {
		return &ValidationError{Field: "collected_at", Reason: "must be set"}
	}
	if ev.CollectedAt.After(time.Now().Add(time.Minute)) {
		return &ValidationError{Field: "collected_at", Reason: "in the future"}
	}
	if ev.PublishedAt != nil && ev.CollectedAt.Before(*ev.PublishedAt) {
		return &ValidationError{Field: "published_at", Reason: "after collected_at"}
	}
	for _, sym := range ev.Symbols {
		if !symbolPattern.MatchString(sym) {
			return &ValidationError{Field: "symbols", Reason: "invalid symbol: " + sym}
		}
	}
	return nil
}
