// Package config loads and validates harvester configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig           `mapstructure:"server"`
	Auth      AuthConfig             `mapstructure:"auth"`
	Logging   LoggingConfig          `mapstructure:"logging"`
	Crawler   CrawlerConfig          `mapstructure:"crawler"`
	Budget    BudgetConfig           `mapstructure:"budget"`
	Headless  HeadlessConfig         `mapstructure:"headless"`
	Reflector ReflectorConfig        `mapstructure:"reflector"`
	Dataset   DatasetConfig          `mapstructure:"dataset"`
	Topics    map[string]TopicConfig `mapstructure:"topics"`
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

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// CrawlerConfig governs the crawl pipeline.
type CrawlerConfig struct {
	UserAgent             string   `mapstructure:"user_agent"`
	RespectRobots         bool     `mapstructure:"respect_robots"`
	FetchTimeoutSeconds   int      `mapstructure:"fetch_timeout_seconds"`
	ReflectTimeoutSeconds int      `mapstructure:"reflect_timeout_seconds"`
	MaxDepth              int      `mapstructure:"max_depth"`
	Workers               int      `mapstructure:"workers"`
	QueueDepth            int      `mapstructure:"queue_depth"`
	RatePerDomain         float64  `mapstructure:"rate_per_domain"`
	RateBurst             int      `mapstructure:"rate_burst"`
	AllowDomains          []string `mapstructure:"allow_domains"`
	DenyDomains           []string `mapstructure:"deny_domains"`
}

// BudgetConfig sets the default stop budget applied to runs that do not
// override it.
type BudgetConfig struct {
	MaxActions          int     `mapstructure:"max_actions"`
	MaxWallClockSeconds int     `mapstructure:"max_wall_clock_seconds"`
	PlateauWindow       int     `mapstructure:"plateau_window"`
	PlateauThreshold    float64 `mapstructure:"plateau_threshold"`
}

// HeadlessConfig configures the headless rendering subsystem.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// ReflectorConfig points at the OpenAI-compatible extraction model.
type ReflectorConfig struct {
	BaseURL             string `mapstructure:"base_url"`
	Model               string `mapstructure:"model"`
	APIKey              string `mapstructure:"api_key"`
	Locale              string `mapstructure:"locale"`
	MinDescriptionChars int    `mapstructure:"min_description_chars"`
	MaxTextChars        int    `mapstructure:"max_text_chars"`
}

// DatasetConfig sets where the record collections live.
type DatasetConfig struct {
	Dir string `mapstructure:"dir"`
}

// TopicConfig describes one crawlable topic and its seed list.
type TopicConfig struct {
	Name        string   `mapstructure:"name"`
	Description string   `mapstructure:"description"`
	Terms       []string `mapstructure:"terms"`
	Seeds       []string `mapstructure:"seeds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("HARVESTER")
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
	v.SetDefault("logging.development", true)
	v.SetDefault("crawler.user_agent", "civicgraph-harvester/0.1")
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.fetch_timeout_seconds", 30)
	v.SetDefault("crawler.reflect_timeout_seconds", 60)
	v.SetDefault("crawler.max_depth", 0)
	v.SetDefault("crawler.workers", 1)
	v.SetDefault("crawler.queue_depth", 16)
	v.SetDefault("crawler.rate_per_domain", 1.0)
	v.SetDefault("crawler.rate_burst", 2)
	v.SetDefault("budget.max_actions", 40)
	v.SetDefault("budget.max_wall_clock_seconds", 120)
	v.SetDefault("budget.plateau_window", 4)
	v.SetDefault("budget.plateau_threshold", 0.15)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("reflector.model", "gpt-4o-mini")
	v.SetDefault("reflector.locale", "uk")
	v.SetDefault("reflector.min_description_chars", 600)
	v.SetDefault("reflector.max_text_chars", 12000)
	v.SetDefault("dataset.dir", "data/dataset")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.fetch_timeout_seconds must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Budget.MaxActions <= 0 {
		return fmt.Errorf("budget.max_actions must be > 0")
	}
	if c.Budget.PlateauWindow <= 0 || c.Budget.PlateauWindow >= c.Budget.MaxActions {
		return fmt.Errorf("budget.plateau_window must be > 0 and < budget.max_actions")
	}
	if c.Headless.Enabled && c.Headless.MaxParallel <= 0 {
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Dataset.Dir == "" {
		return fmt.Errorf("dataset.dir must be set")
	}
	return nil
}

// FetchTimeout exposes the fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.FetchTimeoutSeconds) * time.Second
}

// ReflectTimeout exposes the reflect timeout as a duration.
func (c Config) ReflectTimeout() time.Duration {
	return time.Duration(c.Crawler.ReflectTimeoutSeconds) * time.Second
}

// MaxWallClock exposes the wall clock budget as a duration.
func (c Config) MaxWallClock() time.Duration {
	return time.Duration(c.Budget.MaxWallClockSeconds) * time.Second
}
