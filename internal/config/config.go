// Package config loads logwhisper settings from defaults, an optional YAML
// file and LOGWHISPER_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/hejijunhao/logwhisper/internal/detector"
	"github.com/hejijunhao/logwhisper/internal/engine/compactor"
)

// EnvPrefix prefixes every environment override; dots in keys become
// underscores, so store.window is LOGWHISPER_STORE_WINDOW.
const EnvPrefix = "LOGWHISPER"

// Config holds all logwhisper configuration.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	Store    StoreConfig    `mapstructure:"store"`
	Detector DetectorConfig `mapstructure:"detector"`
	Engine   EngineConfig   `mapstructure:"engine"`
	Input    InputConfig    `mapstructure:"input"`
	Output   OutputConfig   `mapstructure:"output"`
	Explain  ExplainConfig  `mapstructure:"explain"`
	Server   ServerConfig   `mapstructure:"server"`
}

// LogConfig controls diagnostic logging on stderr or a rotated file.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// StoreConfig sizes the pattern store.
type StoreConfig struct {
	Window time.Duration `mapstructure:"window"`
	Bucket time.Duration `mapstructure:"bucket"`
}

// DetectorConfig holds detection thresholds and stream scheduling.
type DetectorConfig struct {
	RecentWindow    time.Duration  `mapstructure:"recent_window"`
	SpikeMultiplier float64        `mapstructure:"spike_multiplier"`
	MinBaseline     float64        `mapstructure:"min_baseline"`
	TrackNearMiss   bool           `mapstructure:"track_near_miss"`
	Bands           detector.Bands `mapstructure:"bands"`
	Interval        time.Duration  `mapstructure:"interval"`
	NowMode         string         `mapstructure:"now"` // "wall" or "event"
	DedupWindow     time.Duration  `mapstructure:"dedup_window"`
	ContextWindow   time.Duration  `mapstructure:"context_window"`
	Samples         int            `mapstructure:"samples"`
}

// EngineConfig holds ingestion settings.
type EngineConfig struct {
	RulesFile       string `mapstructure:"rules_file"`
	TemplateCacheMB int    `mapstructure:"template_cache_mb"`
}

// InputConfig selects the log source.
type InputConfig struct {
	Provider     string        `mapstructure:"provider"` // "file" or "stdin"
	Path         string        `mapstructure:"path"`
	Follow       bool          `mapstructure:"follow"`
	FromStart    bool          `mapstructure:"from_start"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// OutputConfig selects report destinations. Stdout is always written;
// the rest are enabled by a non-empty path or URL.
type OutputConfig struct {
	Format    string        `mapstructure:"format"` // "json" or "text"
	Verbosity string        `mapstructure:"verbosity"`
	Pretty    bool          `mapstructure:"pretty"`
	File      string        `mapstructure:"file"`
	Webhook   WebhookConfig `mapstructure:"webhook"`
	Journal   string        `mapstructure:"journal"`
	Async     bool          `mapstructure:"async"`
}

// WebhookConfig configures the batched HTTP output.
type WebhookConfig struct {
	URL           string        `mapstructure:"url"`
	Token         string        `mapstructure:"token"`
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// ExplainConfig selects the completion backend used for explanations.
type ExplainConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	Provider    string        `mapstructure:"provider"` // "static", "openrouter" or "gemini"
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	Endpoint    string        `mapstructure:"endpoint"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinBand     string        `mapstructure:"min_band"`
	TokenBudget int           `mapstructure:"token_budget"`
}

// ServerConfig configures the HTTP API used by serve.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("log.compress", false)

	v.SetDefault("store.window", time.Hour)
	v.SetDefault("store.bucket", time.Minute)

	d := detector.DefaultConfig()
	b := detector.DefaultBands()
	v.SetDefault("detector.recent_window", d.RecentWindow)
	v.SetDefault("detector.spike_multiplier", d.SpikeMultiplier)
	v.SetDefault("detector.min_baseline", d.MinBaseline)
	v.SetDefault("detector.track_near_miss", d.TrackNearMiss)
	v.SetDefault("detector.bands.critical", b.Critical)
	v.SetDefault("detector.bands.high", b.High)
	v.SetDefault("detector.bands.medium", b.Medium)
	v.SetDefault("detector.interval", 30*time.Second)
	v.SetDefault("detector.now", "wall")
	v.SetDefault("detector.dedup_window", 15*time.Minute)
	v.SetDefault("detector.context_window", 5*time.Minute)
	v.SetDefault("detector.samples", 5)

	v.SetDefault("engine.rules_file", "")
	v.SetDefault("engine.template_cache_mb", 0)

	v.SetDefault("input.provider", "file")
	v.SetDefault("input.path", "")
	v.SetDefault("input.follow", false)
	v.SetDefault("input.from_start", false)
	v.SetDefault("input.poll_interval", time.Second)

	v.SetDefault("output.format", "json")
	v.SetDefault("output.verbosity", "standard")
	v.SetDefault("output.pretty", false)
	v.SetDefault("output.file", "")
	v.SetDefault("output.webhook.url", "")
	v.SetDefault("output.webhook.token", "")
	v.SetDefault("output.webhook.batch_size", 20)
	v.SetDefault("output.webhook.flush_interval", 5*time.Second)
	v.SetDefault("output.journal", "")
	v.SetDefault("output.async", false)

	v.SetDefault("explain.enabled", false)
	v.SetDefault("explain.provider", "static")
	v.SetDefault("explain.model", "")
	v.SetDefault("explain.api_key", "")
	v.SetDefault("explain.endpoint", "")
	v.SetDefault("explain.timeout", 30*time.Second)
	v.SetDefault("explain.min_band", "medium")
	v.SetDefault("explain.token_budget", 2000)

	v.SetDefault("server.addr", ":8080")
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for invalid values.
// Returns an error describing all problems found.
func (c Config) Validate() error {
	var errs []error

	if c.Store.Bucket <= 0 {
		errs = append(errs, fmt.Errorf("store.bucket must be positive, got %s", c.Store.Bucket))
	} else if c.Store.Window < c.Store.Bucket || c.Store.Window%c.Store.Bucket != 0 {
		errs = append(errs, fmt.Errorf("store.window %s must be a multiple of store.bucket %s", c.Store.Window, c.Store.Bucket))
	}

	if err := (detector.Config{
		RecentWindow:    c.Detector.RecentWindow,
		SpikeMultiplier: c.Detector.SpikeMultiplier,
		MinBaseline:     c.Detector.MinBaseline,
	}).Validate(); err != nil {
		errs = append(errs, err)
	}
	bands := c.Detector.Bands
	if !(bands.Critical > bands.High && bands.High > bands.Medium && bands.Medium > 0) {
		errs = append(errs, fmt.Errorf("detector.bands must satisfy critical > high > medium > 0, got %v/%v/%v",
			bands.Critical, bands.High, bands.Medium))
	}
	if c.Detector.Interval <= 0 {
		errs = append(errs, fmt.Errorf("detector.interval must be positive, got %s", c.Detector.Interval))
	}
	if c.Detector.NowMode != "wall" && c.Detector.NowMode != "event" {
		errs = append(errs, fmt.Errorf("detector.now must be wall or event, got %q", c.Detector.NowMode))
	}
	if c.Detector.DedupWindow < 0 {
		errs = append(errs, fmt.Errorf("detector.dedup_window must not be negative, got %s", c.Detector.DedupWindow))
	}

	if c.Engine.TemplateCacheMB < 0 {
		errs = append(errs, fmt.Errorf("engine.template_cache_mb must not be negative, got %d", c.Engine.TemplateCacheMB))
	}
	if c.Engine.RulesFile != "" {
		if _, err := os.Stat(c.Engine.RulesFile); err != nil {
			errs = append(errs, fmt.Errorf("engine.rules_file: %w", err))
		}
	}

	switch c.Input.Provider {
	case "file", "stdin":
	default:
		errs = append(errs, fmt.Errorf("input.provider must be file or stdin, got %q", c.Input.Provider))
	}

	if c.Output.Format != "json" && c.Output.Format != "text" {
		errs = append(errs, fmt.Errorf("output.format must be json or text, got %q", c.Output.Format))
	}
	if _, err := compactor.ParseVerbosity(c.Output.Verbosity); err != nil {
		errs = append(errs, fmt.Errorf("output.verbosity: %w", err))
	}
	if c.Output.Webhook.URL != "" && c.Output.Webhook.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("output.webhook.batch_size must be positive, got %d", c.Output.Webhook.BatchSize))
	}

	if c.Explain.Enabled {
		switch c.Explain.Provider {
		case "static":
		case "openrouter", "gemini":
			if c.Explain.APIKey == "" {
				errs = append(errs, fmt.Errorf("explain.api_key is required for provider %q (set %s_EXPLAIN_API_KEY)", c.Explain.Provider, EnvPrefix))
			}
		default:
			errs = append(errs, fmt.Errorf("explain.provider must be static, openrouter or gemini, got %q", c.Explain.Provider))
		}
	}
	switch detector.Band(c.Explain.MinBand) {
	case detector.BandLow, detector.BandMedium, detector.BandHigh, detector.BandCritical:
	default:
		errs = append(errs, fmt.Errorf("explain.min_band must be low, medium, high or critical, got %q", c.Explain.MinBand))
	}
	if c.Explain.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("explain.timeout must be positive, got %s", c.Explain.Timeout))
	}

	return errors.Join(errs...)
}
