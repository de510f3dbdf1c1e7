// Package config loads and validates linkmapper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Unsupported-links backends.
const (
	BackendFile     = "file"
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendGCS      = "gcs"
)

// Download executors.
const (
	ExecutorManifest = "manifest"
	ExecutorLog      = "log"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	InputFile   string            `mapstructure:"input_file"`
	Ignore      IgnoreConfig      `mapstructure:"ignore"`
	Downloads   DownloadsConfig   `mapstructure:"downloads"`
	Crawler     CrawlerConfig     `mapstructure:"crawler"`
	Unsupported UnsupportedConfig `mapstructure:"unsupported"`
	Delegate    DelegateConfig    `mapstructure:"delegate"`
	Server      ServerConfig      `mapstructure:"server"`
	Progress    ProgressConfig    `mapstructure:"progress"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Run         RunConfig         `mapstructure:"run"`
}

// IgnoreConfig holds the host filter lists.
type IgnoreConfig struct {
	SkipHosts []string `mapstructure:"skip_hosts"`
	OnlyHosts []string `mapstructure:"only_hosts"`
}

// DownloadsConfig controls where media lands and how queued items are executed.
type DownloadsConfig struct {
	Dir      string `mapstructure:"dir"`
	Executor string `mapstructure:"executor"`
	Manifest string `mapstructure:"manifest"`
}

// HostLimit overrides the request rate for one host.
type HostLimit struct {
	Host string  `mapstructure:"host"`
	RPS  float64 `mapstructure:"rps"`
}

// CrawlerConfig governs the page handlers.
type CrawlerConfig struct {
	UserAgent      string      `mapstructure:"user_agent"`
	TimeoutSeconds int         `mapstructure:"timeout_seconds"`
	RPS            float64     `mapstructure:"rps"`
	Burst          int         `mapstructure:"burst"`
	HostLimits     []HostLimit `mapstructure:"host_limits"`
	Disabled       []string    `mapstructure:"disabled"`
}

// UnsupportedConfig selects the unsupported-links backend.
type UnsupportedConfig struct {
	Backend    string         `mapstructure:"backend"`
	File       string         `mapstructure:"file"`
	Truncate   bool           `mapstructure:"truncate"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
	GCS        GCSConfig      `mapstructure:"gcs"`
}

// GCSConfig names the bucket that receives the per-run unsupported-links object.
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	Prefix               string `mapstructure:"prefix"`
	UploadTimeoutSeconds int    `mapstructure:"upload_timeout_seconds"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	Table       string `mapstructure:"table"`
	MaxConns    int32  `mapstructure:"max_conns"`
	CreateTable bool   `mapstructure:"create_table"`
}

// DelegateConfig holds the Pub/Sub topic unsupported links are forwarded to.
type DelegateConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// ServerConfig controls the optional status server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize      int `mapstructure:"buffer_size"`
	MaxBatchEvents  int `mapstructure:"max_batch_events"`
	FlushIntervalMs int `mapstructure:"flush_interval_ms"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// RunConfig bounds a single run.
type RunConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	PollIntervalMs int `mapstructure:"poll_interval_ms"`
}

// Load builds a Config from .env files, an optional config file and the environment.
func Load(path string) (Config, error) {
	if err := loadEnvFiles(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("LINKMAPPER")
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

// loadEnvFiles loads .env.local then .env; missing files are ignored.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("input_file", "URLs.txt")
	v.SetDefault("ignore.skip_hosts", []string{})
	v.SetDefault("ignore.only_hosts", []string{})
	v.SetDefault("downloads.dir", "Downloads")
	v.SetDefault("downloads.executor", ExecutorManifest)
	v.SetDefault("downloads.manifest", "Downloads/manifest.jsonl")
	v.SetDefault("crawler.user_agent", "linkmapper/0.1")
	v.SetDefault("crawler.timeout_seconds", 20)
	v.SetDefault("crawler.rps", 2.0)
	v.SetDefault("crawler.burst", 2)
	v.SetDefault("crawler.disabled", []string{})
	v.SetDefault("unsupported.backend", BackendFile)
	v.SetDefault("unsupported.file", "Unsupported_URLs.txt")
	v.SetDefault("unsupported.truncate", false)
	v.SetDefault("unsupported.sqlite_path", "linkmapper.db")
	v.SetDefault("unsupported.postgres.table", "unsupported_urls")
	v.SetDefault("unsupported.gcs.prefix", "unsupported")
	v.SetDefault("unsupported.gcs.upload_timeout_seconds", 30)
	v.SetDefault("delegate.enabled", false)
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.flush_interval_ms", 250)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("run.timeout_seconds", 0)
	v.SetDefault("run.poll_interval_ms", 50)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Downloads.Dir) == "" {
		return fmt.Errorf("downloads.dir is required")
	}
	switch c.Downloads.Executor {
	case ExecutorManifest:
		if c.Downloads.Manifest == "" {
			return fmt.Errorf("downloads.manifest is required for the manifest executor")
		}
	case ExecutorLog:
	default:
		return fmt.Errorf("downloads.executor %q is not supported", c.Downloads.Executor)
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Crawler.RPS < 0 {
		return fmt.Errorf("crawler.rps must be >= 0")
	}
	for _, hl := range c.Crawler.HostLimits {
		if hl.Host == "" || hl.RPS <= 0 {
			return fmt.Errorf("crawler.host_limits entries need a host and rps > 0")
		}
	}
	switch c.Unsupported.Backend {
	case BackendFile:
		if c.Unsupported.File == "" {
			return fmt.Errorf("unsupported.file is required for the file backend")
		}
	case BackendMemory:
	case BackendSQLite:
		if c.Unsupported.SQLitePath == "" {
			return fmt.Errorf("unsupported.sqlite_path is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Unsupported.Postgres.DSN == "" {
			return fmt.Errorf("unsupported.postgres.dsn is required for the postgres backend")
		}
	case BackendGCS:
		if c.Unsupported.GCS.Bucket == "" {
			return fmt.Errorf("unsupported.gcs.bucket is required for the gcs backend")
		}
	default:
		return fmt.Errorf("unsupported.backend %q is not supported", c.Unsupported.Backend)
	}
	if c.Delegate.Enabled && (c.Delegate.ProjectID == "" || c.Delegate.TopicID == "") {
		return fmt.Errorf("delegate.project_id and delegate.topic_id must be set when the delegate is enabled")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Run.TimeoutSeconds < 0 {
		return fmt.Errorf("run.timeout_seconds must be >= 0")
	}
	return nil
}

// FetchTimeout is the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// GCSUploadTimeout bounds the final upload of the unsupported-links object.
func (c Config) GCSUploadTimeout() time.Duration {
	return time.Duration(c.Unsupported.GCS.UploadTimeoutSeconds) * time.Second
}

// RunTimeout is the whole-run budget; zero means unbounded.
func (c Config) RunTimeout() time.Duration {
	return time.Duration(c.Run.TimeoutSeconds) * time.Second
}

// PollInterval is the dispatcher's completion poll period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Run.PollIntervalMs) * time.Millisecond
}

// FlushInterval is the progress hub flush period.
func (c Config) FlushInterval() time.Duration {
	return time.Duration(c.Progress.FlushIntervalMs) * time.Millisecond
}

// HostRates returns the per-host overrides keyed by lowercase host.
func (c Config) HostRates() map[string]float64 {
	out := make(map[string]float64, len(c.Crawler.HostLimits))
	for _, hl := range c.Crawler.HostLimits {
		out[strings.ToLower(hl.Host)] = hl.RPS
	}
	return out
}
