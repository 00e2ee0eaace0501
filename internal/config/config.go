// Package config loads and validates crawler configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
)

// Archive drivers.
const (
	ArchiveNone   = "none"
	ArchiveMemory = "memory"
	ArchiveLocal  = "local"
	ArchiveGCS    = "gcs"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	City    CityConfig    `mapstructure:"city"`
	Site    SiteConfig    `mapstructure:"site"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Store   StoreConfig   `mapstructure:"store"`
	Archive ArchiveConfig `mapstructure:"archive"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// CityConfig names the city walked by one run.
type CityConfig struct {
	Name        string `mapstructure:"name" validate:"required"`
	DisplayName string `mapstructure:"display_name"`
	// Abbr is the city's subdomain on the listing site, e.g. "sh".
	Abbr string `mapstructure:"abbr"`
}

// SiteConfig selects the listing platform.
type SiteConfig struct {
	Platform string `mapstructure:"platform" validate:"required_without=BaseURL"`
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
}

// CrawlerConfig governs the page pool and politeness delay.
type CrawlerConfig struct {
	// MaxWorkers caps concurrent community page fetches; zero picks a CPU-based default.
	MaxWorkers int           `mapstructure:"max_workers" validate:"gte=0"`
	MaxDelay   time.Duration `mapstructure:"max_delay" validate:"gte=0"`
	UserAgent  string        `mapstructure:"user_agent" validate:"required"`
}

// HTTPConfig configures the page fetcher.
type HTTPConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds" validate:"gt=0"`
}

// StoreConfig picks and configures the entity store.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver" validate:"oneof=memory sqlite postgres"`
	SQLitePath      string        `mapstructure:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN     string        `mapstructure:"postgres_dsn" validate:"required_if=Driver postgres"`
	MaxConns        int32         `mapstructure:"max_conns" validate:"gte=0"`
	MinConns        int32         `mapstructure:"min_conns" validate:"gte=0,ltefield=MaxConns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime" validate:"gte=0"`
}

// ArchiveConfig controls where layout snapshots are written.
type ArchiveConfig struct {
	Driver    string `mapstructure:"driver" validate:"oneof=none memory local gcs"`
	LocalDir  string `mapstructure:"local_dir" validate:"required_if=Driver local"`
	GCSBucket string `mapstructure:"gcs_bucket" validate:"required_if=Driver gcs"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for walk summary notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id" validate:"required_with=TopicName"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	// Addr is the listen address for /metrics and /healthz; empty disables it.
	Addr string `mapstructure:"addr" validate:"omitempty,hostname_port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
}

// Load builds a Config from a .env file, disk and the environment.
func Load(path string) (Config, error) {
	return load(path, ".env")
}

func load(path, envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
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

// Every key needs a default so AutomaticEnv can override it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("city.name", "shanghai")
	v.SetDefault("city.display_name", "上海")
	v.SetDefault("city.abbr", "sh")
	v.SetDefault("site.platform", "lianjia")
	v.SetDefault("site.base_url", "")
	v.SetDefault("crawler.max_workers", 0)
	v.SetDefault("crawler.max_delay", "1s")
	v.SetDefault("crawler.user_agent", "rent-house-crawler/0.1")
	v.SetDefault("http.timeout_seconds", 10)
	v.SetDefault("store.driver", StoreSQLite)
	v.SetDefault("store.sqlite_path", "data/rent.db")
	v.SetDefault("store.postgres_dsn", "")
	v.SetDefault("store.max_conns", 8)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("archive.driver", ArchiveLocal)
	v.SetDefault("archive.local_dir", "data/layout")
	v.SetDefault("archive.gcs_bucket", "")
	v.SetDefault("archive.prefix", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) {
			msgs := make([]string, 0, len(fieldErrs))
			for _, fe := range fieldErrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.City.Abbr == "" && c.Site.BaseURL == "" {
		return fmt.Errorf("city.abbr must be set unless site.base_url overrides the host")
	}
	return nil
}

// FetchTimeout converts the HTTP timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
