package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Scraper  ScraperConfig  `mapstructure:"scraper" yaml:"scraper"`
	Explore  ExploreConfig  `mapstructure:"explore" yaml:"explore"`
	Launcher LauncherConfig `mapstructure:"launcher" yaml:"launcher"`
	Watcher  WatcherConfig  `mapstructure:"watcher" yaml:"watcher"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level" yaml:"level"`
	Format      string `mapstructure:"format" yaml:"format"`
	AddSource   bool   `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int    `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool   `mapstructure:"compress" yaml:"compress"`
}

// DatabaseConfig holds the persistence collaborator connection details.
// An empty URL selects the in-memory repository.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// ScraperConfig tunes the coordinator's dedup and classification policy.
type ScraperConfig struct {
	// PromotionThreshold is the number of sightings after which an
	// ephemeral element is promoted to persistent on its next capture.
	PromotionThreshold int `mapstructure:"promotion_threshold" yaml:"promotion_threshold"`
	// EphemeralTTL bounds how long ephemeral sightings are cached.
	EphemeralTTL time.Duration `mapstructure:"ephemeral_ttl" yaml:"ephemeral_ttl"`
	// CompletionThreshold is the fraction at or above which an app is
	// considered fully learned.
	CompletionThreshold float64 `mapstructure:"completion_threshold" yaml:"completion_threshold"`
	// RowRepeatThreshold is the sibling repetition count at which a node is
	// classified as a hybrid list row.
	RowRepeatThreshold int `mapstructure:"row_repeat_threshold" yaml:"row_repeat_threshold"`
}

// ExploreConfig tunes the active exploration engine.
type ExploreConfig struct {
	MaxDepth       int           `mapstructure:"max_depth" yaml:"max_depth"`
	MaxBackRetries int           `mapstructure:"max_back_retries" yaml:"max_back_retries"`
	RecoveryDelay  time.Duration `mapstructure:"recovery_delay" yaml:"recovery_delay"`
	ActionTimeout  time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	// ClickRate caps click/back dispatches per second.
	ClickRate float64 `mapstructure:"click_rate" yaml:"click_rate"`
	// DenyClickMarkers are lowercase substrings of text/description/resource
	// id that mark an element as unsafe to click.
	DenyClickMarkers []string `mapstructure:"deny_click_markers" yaml:"deny_click_markers"`
}

// LauncherConfig tunes the launcher registry.
type LauncherConfig struct {
	CacheTTL       time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
	StaticFallback []string      `mapstructure:"static_fallback" yaml:"static_fallback"`
}

// WatcherConfig tunes the passive event-log watcher.
type WatcherConfig struct {
	EventLog    string `mapstructure:"event_log" yaml:"event_log"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "uiscout")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Scraper --
	v.SetDefault("scraper.promotion_threshold", 5)
	v.SetDefault("scraper.ephemeral_ttl", "24h")
	v.SetDefault("scraper.completion_threshold", 0.95)
	v.SetDefault("scraper.row_repeat_threshold", 3)

	// -- Explore --
	v.SetDefault("explore.max_depth", 50)
	v.SetDefault("explore.max_back_retries", 5)
	v.SetDefault("explore.recovery_delay", "300ms")
	v.SetDefault("explore.action_timeout", "2s")
	v.SetDefault("explore.click_rate", 4.0)
	v.SetDefault("explore.deny_click_markers", []string{
		"sign out", "log out", "logout", "uninstall", "delete", "purchase",
		"buy now", "factory reset", "format",
	})

	// -- Launcher --
	v.SetDefault("launcher.cache_ttl", "24h")
	v.SetDefault("launcher.static_fallback", []string{
		"com.android.launcher",
		"com.android.launcher3",
		"com.google.android.apps.nexuslauncher",
		"com.sec.android.app.launcher",
		"com.miui.home",
		"com.oneplus.launcher",
	})

	// -- Watcher --
	v.SetDefault("watcher.event_log", "")
	v.SetDefault("watcher.concurrency", 4)
}

// NewDefaultConfig creates a configuration populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with the defaults above.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a validated configuration from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for sane values.
func (c *Config) Validate() error {
	if c.Scraper.PromotionThreshold <= 0 {
		return fmt.Errorf("scraper.promotion_threshold must be a positive integer")
	}
	if c.Scraper.CompletionThreshold <= 0 || c.Scraper.CompletionThreshold > 1.0 {
		return fmt.Errorf("scraper.completion_threshold must be in (0, 1]")
	}
	if c.Scraper.RowRepeatThreshold < 2 {
		return fmt.Errorf("scraper.row_repeat_threshold must be at least 2")
	}
	if c.Explore.MaxDepth <= 0 {
		return fmt.Errorf("explore.max_depth must be a positive integer")
	}
	if c.Explore.MaxBackRetries < 0 {
		return fmt.Errorf("explore.max_back_retries must not be negative")
	}
	if c.Explore.ActionTimeout <= 0 {
		return fmt.Errorf("explore.action_timeout must be a positive duration")
	}
	if c.Explore.ClickRate <= 0 {
		return fmt.Errorf("explore.click_rate must be positive")
	}
	if c.Watcher.Concurrency <= 0 {
		return fmt.Errorf("watcher.concurrency must be a positive integer")
	}
	return nil
}
