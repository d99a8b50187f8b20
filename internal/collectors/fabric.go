package collectors

import (
	"github.com/ajitpratap0/marketpulse/internal/config"
)

// DefaultRegistry returns the registry holding the closed set of collector
// variants shipped with the pipeline.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("binance", NewBinanceCollector)
	r.Register("binance_stream", NewBinanceStreamCollector)
	r.Register("newsapi", NewNewsAPICollector)
	r.Register("reddit", NewRedditCollector)
	r.Register("rss", NewRSSCollector)
	r.Register("metals", NewMetalsCollector)
	r.Register("tcmb", NewTCMBCollector)
	r.Register("fred", NewFREDCollector)
	return r
}

// BuildEnabled constructs every enabled collector from the service
// configuration. A collector whose constructor fails (typically a missing
// credential) is logged and skipped; it never aborts startup.
func BuildEnabled(cfg *config.Config, registry *Registry, pub EventPublisher) map[string]Collector {
	logger := config.NewLogger("collectors")
	built := make(map[string]Collector)

	for _, name := range registry.Names() {
		cc, ok := cfg.Collectors[name]
		if !ok || !cc.Enabled {
			continue
		}
		collector, err := registry.Build(name, CollectorConfig{
			Name:              name,
			Enabled:           cc.Enabled,
			APIKey:            cc.APIKey,
			Endpoint:          cc.Endpoint,
			Symbols:           cc.Symbols,
			FeedURLs:          cc.FeedURLs,
			Series:            cc.Series,
			IntervalSeconds:   cc.IntervalSeconds,
			RequestsPerMinute: cc.RequestsPerMinute,
			DailyQuota:        cc.DailyQuota,
			RedisAddr:         cfg.Redis.GetRedisAddr(),
		}, pub)
		if err != nil {
			logger.Warn().Err(err).Str("collector", name).Msg("Skipping collector")
			continue
		}
		built[name] = collector
	}

	logger.Info().Int("enabled", len(built)).Msg("Collector fabric built")
	return built
}
