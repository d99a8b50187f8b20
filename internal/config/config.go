// Package config loads service configuration from file and environment and
// initialises the global logger.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	App        AppConfig                  `mapstructure:"app"`
	Database   DatabaseConfig             `mapstructure:"database"`
	Redis      RedisConfig                `mapstructure:"redis"`
	Bus        BusConfig                  `mapstructure:"bus"`
	API        APIConfig                  `mapstructure:"api"`
	Processor  ProcessorConfig            `mapstructure:"processor"`
	Collectors map[string]CollectorConfig `mapstructure:"collectors"`
	Monitoring MonitoringConfig           `mapstructure:"monitoring"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"` // development, staging, production
	LogLevel    string `mapstructure:"log_level"`
	LogFormat   string `mapstructure:"log_format"` // "json" or "console"
}

// DatabaseConfig contains the analytical warehouse settings
type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"ssl_mode"`
	PoolSize int    `mapstructure:"pool_size"`
}

// RedisConfig contains Redis settings (daily usage counters)
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// BusConfig contains topic bus settings
type BusConfig struct {
	URL         string `mapstructure:"url"`
	TopicPrefix string `mapstructure:"topic_prefix"`
}

// APIConfig contains the admin/push HTTP surface settings
type APIConfig struct {
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	AdminAPIKey string `mapstructure:"admin_api_key"` // empty disables the check
}

// ProcessorConfig contains market-context processor settings
type ProcessorConfig struct {
	QueueSize         int `mapstructure:"queue_size"`
	Workers           int `mapstructure:"workers"`
	RetryAfterSeconds int `mapstructure:"retry_after_seconds"`
	MessageTimeoutSec int `mapstructure:"message_timeout_seconds"`
}

// CollectorConfig contains per-collector settings. Collectors default to
// disabled; a missing credential yields a warning and skips initialization.
type CollectorConfig struct {
	Enabled           bool     `mapstructure:"enabled"`
	APIKey            string   `mapstructure:"api_key"`
	Endpoint          string   `mapstructure:"endpoint"`
	Symbols           []string `mapstructure:"symbols"`
	FeedURLs          []string `mapstructure:"feed_urls"`
	Series            []string `mapstructure:"series"`
	IntervalSeconds   int      `mapstructure:"interval_seconds"`
	RequestsPerMinute int      `mapstructure:"requests_per_minute"`
	DailyQuota        int      `mapstructure:"daily_quota"`
}

// MonitoringConfig contains metrics settings
type MonitoringConfig struct {
	PrometheusPort int  `mapstructure:"prometheus_port"`
	EnableMetrics  bool `mapstructure:"enable_metrics"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvPrefix("MARKETPULSE")

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found; using defaults and environment variables
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// App defaults
	v.SetDefault("app.name", "marketpulse")
	v.SetDefault("app.environment", "development")
	v.SetDefault("app.log_level", "info")
	v.SetDefault("app.log_format", "json")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.database", "marketpulse")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.pool_size", 10)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	// Bus defaults
	v.SetDefault("bus.url", "nats://localhost:4222")
	v.SetDefault("bus.topic_prefix", "marketpulse.")

	// API defaults
	v.SetDefault("api.host", "0.0.0.0")
	v.SetDefault("api.port", 8081)

	// Processor defaults
	v.SetDefault("processor.queue_size", 256)
	v.SetDefault("processor.workers", 8)
	v.SetDefault("processor.retry_after_seconds", 10)
	v.SetDefault("processor.message_timeout_seconds", 60)

	// Collector defaults: everything disabled until switched on
	for _, name := range []string{"binance", "binance_stream", "newsapi", "reddit", "rss", "metals", "tcmb", "fred"} {
		v.SetDefault("collectors."+name+".enabled", false)
		v.SetDefault("collectors."+name+".interval_seconds", 300)
		v.SetDefault("collectors."+name+".requests_per_minute", 30)
	}
	v.SetDefault("collectors.binance.symbols", []string{"BTCUSDT", "ETHUSDT"})
	v.SetDefault("collectors.binance.interval_seconds", 60)
	v.SetDefault("collectors.binance_stream.symbols", []string{"btcusdt", "ethusdt"})
	v.SetDefault("collectors.reddit.endpoint", "https://www.reddit.com")
	v.SetDefault("collectors.tcmb.daily_quota", 1000)
	v.SetDefault("collectors.fred.series", []string{"CPIAUCSL", "FEDFUNDS"})

	// Monitoring defaults
	v.SetDefault("monitoring.prometheus_port", 9100)
	v.SetDefault("monitoring.enable_metrics", true)
}

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	if c.Bus.URL == "" {
		return fmt.Errorf("bus.url is required")
	}
	if c.Processor.QueueSize < 1 {
		return fmt.Errorf("processor.queue_size must be positive")
	}
	if c.Processor.Workers < 1 {
		return fmt.Errorf("processor.workers must be positive")
	}
	for name, cc := range c.Collectors {
		if cc.Enabled && cc.IntervalSeconds < 1 {
			return fmt.Errorf("collectors.%s.interval_seconds must be positive", name)
		}
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// GetRedisAddr returns the Redis address
func (c *RedisConfig) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// GetAPIAddr returns the HTTP listen address
func (c *APIConfig) GetAPIAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Interval returns the collector's tick interval
func (c *CollectorConfig) Interval() time.Duration {
	return time.Duration(c.IntervalSeconds) * time.Second
}

// MessageTimeout returns the processor per-message ceiling
func (c *ProcessorConfig) MessageTimeout() time.Duration {
	return time.Duration(c.MessageTimeoutSec) * time.Second
}
