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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Geo      GeoConfig      `mapstructure:"geo"`
	Overpass OverpassConfig `mapstructure:"overpass"`
	Search   SearchConfig   `mapstructure:"search"`
	Verify   VerifyConfig   `mapstructure:"verify"`
	Guess    GuessConfig    `mapstructure:"guess"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Snapshot SnapshotConfig `mapstructure:"snapshot"`
	Events   EventsConfig   `mapstructure:"events"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// HTTPConfig configures outbound HTTP behavior. The User-Agent is required
// by the map-data usage policy and is sent on every outbound request.
type HTTPConfig struct {
	UserAgent      string `mapstructure:"user_agent"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// CrawlerConfig governs the ingestion worker pool and per-host politeness.
type CrawlerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
	PerHostMax  int `mapstructure:"per_host_max"`
}

// GeoConfig locates the geocoding provider.
type GeoConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// OverpassConfig locates the place source.
type OverpassConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// SearchConfig governs the search-engine fallbacks.
type SearchConfig struct {
	DuckDuckGoEnabled bool    `mapstructure:"duckduckgo_enabled"`
	RatePerSecond     float64 `mapstructure:"rate_per_second"`
	MaxCandidates     int     `mapstructure:"max_candidates"`
	GoogleBudget      int     `mapstructure:"google_budget"`
	GoogleAPIKey      string  `mapstructure:"google_api_key"`
	GoogleCX          string  `mapstructure:"google_cx"`
	SerpAPIKey        string  `mapstructure:"serpapi_key"`
}

// VerifyConfig tunes identity-match acceptance.
type VerifyConfig struct {
	MinScore int `mapstructure:"min_score"`
}

// GuessConfig tunes domain candidate generation.
type GuessConfig struct {
	TLDs []string `mapstructure:"tlds"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// RedisConfig enables the shared reuse cache when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// SnapshotConfig selects where accepted homepage HTML is archived.
// Backend is one of "", "memory", "local", "gcs"; empty disables snapshots.
type SnapshotConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	LocalDir  string `mapstructure:"local_dir"`
	Prefix    string `mapstructure:"prefix"`
}

// EventsConfig enables run-completion publishing when ProjectID is set.
type EventsConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LoggingConfig drives the root zap logger. Level accepts the zap level
// names (debug, info, warn, error); empty means info.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SITEFINDER")
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
	v.SetDefault("http.user_agent", "sitefinder/0.1 (+https://menulytics.example/bot)")
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("crawler.concurrency", 5)
	v.SetDefault("crawler.per_host_max", 2)
	v.SetDefault("geo.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("overpass.base_url", "https://overpass-api.de/api/interpreter")
	v.SetDefault("search.duckduckgo_enabled", true)
	v.SetDefault("search.rate_per_second", 0.5)
	v.SetDefault("search.max_candidates", 5)
	v.SetDefault("search.google_budget", 25)
	v.SetDefault("verify.min_score", 40)
	v.SetDefault("guess.tlds", []string{".nl", ".com", ".eu", ".be"})
	v.SetDefault("snapshot.prefix", "homepages")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// maxWorkerConcurrency is a hard cap on the ingestion pool size.
const maxWorkerConcurrency = 10

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.HTTP.UserAgent == "" {
		return fmt.Errorf("http.user_agent is required")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.Crawler.Concurrency <= 0 {
		return fmt.Errorf("crawler.concurrency must be > 0")
	}
	if c.Crawler.Concurrency > maxWorkerConcurrency {
		return fmt.Errorf("crawler.concurrency must be <= %d", maxWorkerConcurrency)
	}
	if c.Crawler.PerHostMax <= 0 {
		return fmt.Errorf("crawler.per_host_max must be > 0")
	}
	if c.Search.RatePerSecond <= 0 {
		return fmt.Errorf("search.rate_per_second must be > 0")
	}
	if c.Verify.MinScore < 0 || c.Verify.MinScore > 100 {
		return fmt.Errorf("verify.min_score must be in [0,100]")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Snapshot.Backend == "gcs" && c.Snapshot.GCSBucket == "" {
		return fmt.Errorf("snapshot.gcs_bucket must be set for the gcs backend")
	}
	if c.Snapshot.Backend == "local" && c.Snapshot.LocalDir == "" {
		return fmt.Errorf("snapshot.local_dir must be set for the local backend")
	}
	return nil
}

// HTTPTimeout converts the timeout config into a duration.
func (c Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// GoogleConfigured reports whether any paid search backend has credentials.
func (c Config) GoogleConfigured() bool {
	return (c.Search.GoogleAPIKey != "" && c.Search.GoogleCX != "") || c.Search.SerpAPIKey != ""
}
