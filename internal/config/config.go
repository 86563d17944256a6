// Package config loads and validates mirror configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Mirror  MirrorConfig  `mapstructure:"mirror"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Status  StatusConfig  `mapstructure:"status"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// MirrorConfig governs the crawl pipeline.
type MirrorConfig struct {
	OutputDir           string   `mapstructure:"output_dir"`
	MaxDepth            int      `mapstructure:"max_depth"`
	MaxRetries          int      `mapstructure:"max_retries"`
	ConcurrentDownloads int      `mapstructure:"concurrent_downloads"`
	TimeoutSeconds      int      `mapstructure:"timeout_seconds"`
	RatePerSecond       float64  `mapstructure:"rate_per_second"`
	UserAgent           string   `mapstructure:"user_agent"`
	AllowHosts          []string `mapstructure:"allow_hosts"`
}

// ArchiveConfig points at the Wayback Machine endpoints. Overridable so
// tests and mirrors of other CDX-compatible archives can redirect them.
type ArchiveConfig struct {
	CDXURL string `mapstructure:"cdx_url"`
	WebURL string `mapstructure:"web_url"`
}

// StatusConfig controls the optional status HTTP server.
type StatusConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("WAYMIRROR")
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
	v.SetDefault("mirror.output_dir", "downloaded_pages")
	v.SetDefault("mirror.max_depth", 2)
	v.SetDefault("mirror.max_retries", 5)
	v.SetDefault("mirror.concurrent_downloads", 5)
	v.SetDefault("mirror.timeout_seconds", 30)
	v.SetDefault("mirror.rate_per_second", 3.0)
	v.SetDefault("mirror.user_agent", "waymirror/0.1")
	v.SetDefault("archive.cdx_url", "http://web.archive.org/cdx/search/cdx")
	v.SetDefault("archive.web_url", "https://web.archive.org/web")
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.port", 8080)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Mirror.OutputDir) == "" {
		return fmt.Errorf("mirror.output_dir must be set")
	}
	if c.Mirror.MaxDepth < 0 || c.Mirror.MaxDepth > 5 {
		return fmt.Errorf("mirror.max_depth must be between 0 and 5")
	}
	if c.Mirror.MaxRetries < 1 {
		return fmt.Errorf("mirror.max_retries must be >= 1")
	}
	if c.Mirror.ConcurrentDownloads <= 0 {
		return fmt.Errorf("mirror.concurrent_downloads must be > 0")
	}
	if c.Mirror.TimeoutSeconds <= 0 {
		return fmt.Errorf("mirror.timeout_seconds must be > 0")
	}
	if c.Mirror.RatePerSecond <= 0 {
		return fmt.Errorf("mirror.rate_per_second must be > 0")
	}
	if strings.TrimSpace(c.Archive.CDXURL) == "" {
		return fmt.Errorf("archive.cdx_url must be set")
	}
	if strings.TrimSpace(c.Archive.WebURL) == "" {
		return fmt.Errorf("archive.web_url must be set")
	}
	if c.Status.Enabled && c.Status.Port <= 0 {
		return fmt.Errorf("status.port must be > 0 when the status server is enabled")
	}
	return nil
}

// Timeout converts the per-request timeout config into a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.Mirror.TimeoutSeconds) * time.Second
}
