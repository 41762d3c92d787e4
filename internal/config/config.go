// Package config loads and validates harvester configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. HARVEST_HARVEST_CONCURRENCY.
const EnvPrefix = "HARVEST"

// DefaultUserAgent is sent when no user agent is configured.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Config captures all harvester configuration knobs loaded via Viper.
type Config struct {
	Harvest  HarvestConfig  `mapstructure:"harvest"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Headless HeadlessConfig `mapstructure:"headless"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// HarvestConfig governs inputs, outputs and the worker pool.
type HarvestConfig struct {
	InputPath   string `mapstructure:"input_path"`
	OutputRoot  string `mapstructure:"output_root"`
	Concurrency int    `mapstructure:"concurrency"`
	BaseURL     string `mapstructure:"base_url"`
	UserAgent   string `mapstructure:"user_agent"`
	MaxPages    int    `mapstructure:"max_pages"`
	QueueDepth  int    `mapstructure:"queue_depth"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// HeadlessConfig configures the opt-in headless rendering path.
type HeadlessConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxParallel   int  `mapstructure:"max_parallel"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
	BodyThreshold int  `mapstructure:"body_threshold"`
}

// StorageConfig sets the optional GCS artifact mirror.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the outcome ledger.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for completion notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig toggles the metrics endpoint.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int `mapstructure:"buffer_size"`
	MaxBatchEvents int `mapstructure:"max_batch_events"`
	MaxBatchWaitMs int `mapstructure:"max_batch_wait_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Override mutates the Viper instance before the config is decoded.
type Override func(v *viper.Viper) error

// BindFlag routes a command-line flag to a config key. Unchanged flags do not
// shadow file or environment values.
func BindFlag(key string, flag *pflag.Flag) Override {
	return func(v *viper.Viper) error {
		if flag == nil {
			return fmt.Errorf("bind %s: flag not defined", key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
		return nil
	}
}

// Load builds a Config from defaults, an optional file, environment and
// overrides, in increasing precedence.
func Load(path string, overrides ...Override) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for _, o := range overrides {
		if o == nil {
			continue
		}
		if err := o(v); err != nil {
			return Config{}, err
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
	v.SetDefault("harvest.input_path", "NZfinall2.csv")
	v.SetDefault("harvest.output_root", "result")
	v.SetDefault("harvest.concurrency", 61)
	v.SetDefault("harvest.base_url", "https://www.booking.com")
	v.SetDefault("harvest.user_agent", DefaultUserAgent)
	v.SetDefault("harvest.max_pages", 0)
	v.SetDefault("harvest.queue_depth", 0)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 2)
	v.SetDefault("headless.nav_timeout_seconds", 45)
	v.SetDefault("headless.body_threshold", 2048)
	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "reviews")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "target_outcomes")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait_ms", 500)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Harvest.InputPath) == "" {
		errs = append(errs, errors.New("harvest.input_path must be set"))
	}
	if strings.TrimSpace(c.Harvest.OutputRoot) == "" {
		errs = append(errs, errors.New("harvest.output_root must be set"))
	}
	if c.Harvest.Concurrency <= 0 {
		errs = append(errs, errors.New("harvest.concurrency must be > 0"))
	}
	if c.Harvest.MaxPages < 0 {
		errs = append(errs, errors.New("harvest.max_pages must be >= 0"))
	}
	if c.Harvest.QueueDepth < 0 {
		errs = append(errs, errors.New("harvest.queue_depth must be >= 0"))
	}
	if u, err := url.Parse(c.Harvest.BaseURL); err != nil || !u.IsAbs() || u.Host == "" {
		errs = append(errs, fmt.Errorf("harvest.base_url must be an absolute URL, got %q", c.Harvest.BaseURL))
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		errs = append(errs, errors.New("http.timeout_seconds must be > 0"))
	}
	if c.Headless.Enabled {
		if c.Headless.MaxParallel <= 0 {
			errs = append(errs, errors.New("headless.max_parallel must be > 0 when headless is enabled"))
		}
		if c.Headless.NavTimeoutSec <= 0 {
			errs = append(errs, errors.New("headless.nav_timeout_seconds must be > 0 when headless is enabled"))
		}
	}
	if c.Headless.BodyThreshold < 0 {
		errs = append(errs, errors.New("headless.body_threshold must be >= 0"))
	}
	if c.DB.DSN != "" && c.DB.MaxConns <= 0 {
		errs = append(errs, errors.New("db.max_conns must be > 0 when db.dsn is set"))
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		errs = append(errs, errors.New("pubsub.project_id must be set when pubsub.topic_name is set"))
	}
	if c.Progress.BufferSize <= 0 {
		errs = append(errs, errors.New("progress.buffer_size must be > 0"))
	}
	if c.Progress.MaxBatchEvents <= 0 {
		errs = append(errs, errors.New("progress.max_batch_events must be > 0"))
	}
	if c.Progress.MaxBatchWaitMs <= 0 {
		errs = append(errs, errors.New("progress.max_batch_wait_ms must be > 0"))
	}
	return errors.Join(errs...)
}

// Timeout returns the per-fetch deadline.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NavTimeout returns the headless navigation deadline.
func (c HeadlessConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// MaxBatchWait returns the hub's partial-batch flush interval.
func (c ProgressConfig) MaxBatchWait() time.Duration {
	return time.Duration(c.MaxBatchWaitMs) * time.Millisecond
}

// EffectiveQueueDepth falls back to the concurrency when no depth is set.
func (c HarvestConfig) EffectiveQueueDepth() int {
	if c.QueueDepth > 0 {
		return c.QueueDepth
	}
	return c.Concurrency
}
