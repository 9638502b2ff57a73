// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Crawler CrawlerConfig  `mapstructure:"crawler"`
	HTTP    HTTPConfig     `mapstructure:"http"`
	Signals SignalsConfig  `mapstructure:"signals"`
	Ads     AdsConfig      `mapstructure:"ads"`
	DB      DBConfig       `mapstructure:"db"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Brands  []BrandConfig  `mapstructure:"brands"`
	TZ      TimezoneConfig `mapstructure:"timezone"`
}

// ServerConfig controls the ops HTTP server.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// BrandConfig seeds one tracked storefront.
type BrandConfig struct {
	Name        string `mapstructure:"name"`
	Domain      string `mapstructure:"domain"`
	Category    string `mapstructure:"category"`
	AdAccountID string `mapstructure:"ad_account_id"`
}

// CrawlerConfig governs storefront fetch behavior.
type CrawlerConfig struct {
	Concurrency     int     `mapstructure:"concurrency"`
	UserAgent       string  `mapstructure:"user_agent"`
	HostRatePerSec  float64 `mapstructure:"host_rate_per_sec"`
	CachePath       string  `mapstructure:"cache_path"`
	MaxCatalogPages int     `mapstructure:"max_catalog_pages"`
}

// HTTPConfig configures HTTP client timeout and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxAttempts    int `mapstructure:"max_attempts"`
	BackoffBaseMs  int `mapstructure:"backoff_base_ms"`
}

// SignalsConfig holds the thresholds the signal engine uses. They are passed
// explicitly into constructors; computation functions never read ambient state.
type SignalsConfig struct {
	MoverThreshold    float64 `mapstructure:"mover_threshold"`
	AdSurgeMultiplier float64 `mapstructure:"ad_surge_multiplier"`
	AdSurgeMinDelta   int     `mapstructure:"ad_surge_min_delta"`
}

// AdsConfig points at the ads-directory API.
type AdsConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Token    string `mapstructure:"token"`
	AdType   string `mapstructure:"ad_type"`
	Limit    int    `mapstructure:"limit"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// TimezoneConfig names the local zone that anchors observation dates.
type TimezoneConfig struct {
	Name string `mapstructure:"name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MERCHWIRE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.user_agent", "MerchwireBot/1.0")
	v.SetDefault("crawler.host_rate_per_sec", 1.5)
	v.SetDefault("crawler.cache_path", ".cache/etags.json")
	v.SetDefault("crawler.max_catalog_pages", 10)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_base_ms", 1000)
	v.SetDefault("signals.mover_threshold", 0.10)
	v.SetDefault("signals.ad_surge_multiplier", 2.0)
	v.SetDefault("signals.ad_surge_min_delta", 5)
	v.SetDefault("ads.endpoint", "https://graph.facebook.com/v18.0/ads_archive")
	v.SetDefault("ads.ad_type", "POLITICAL_AND_ISSUE_ADS")
	v.SetDefault("ads.limit", 500)
	v.SetDefault("logging.development", true)
	v.SetDefault("timezone.name", "America/Los_Angeles")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.HostRatePerSec <= 0 {
		return fmt.Errorf("crawler.host_rate_per_sec must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxAttempts <= 0 {
		return fmt.Errorf("http.max_attempts must be > 0")
	}
	if c.Signals.MoverThreshold < 0 {
		return fmt.Errorf("signals.mover_threshold must be >= 0")
	}
	if _, err := time.LoadLocation(c.TZ.Name); err != nil {
		return fmt.Errorf("timezone.name: %w", err)
	}
	for i, b := range c.Brands {
		if b.Domain == "" {
			return fmt.Errorf("brands[%d].domain is required", i)
		}
	}
	return nil
}

// Location resolves the configured time zone.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TZ.Name)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", c.TZ.Name, err)
	}
	return loc, nil
}

// Timeout converts the HTTP timeout into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// BackoffBase converts the retry base delay into a duration.
func (c Config) BackoffBase() time.Duration {
	return time.Duration(c.HTTP.BackoffBaseMs) * time.Millisecond
}
