// Package config decodes the Viper configuration tree into typed structs
// and validates it. Defaults and environment bindings are registered by
// pkg/config.InitConfig; this package only reads the resolved values.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config captures every service configuration knob.
type Config struct {
	Logging  LoggingConfig  `mapstructure:"logging"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Pager    PagerConfig    `mapstructure:"pager"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Crawl    CrawlConfig    `mapstructure:"crawl"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Store    StoreConfig    `mapstructure:"store"`
	Archive  ArchiveConfig  `mapstructure:"archive"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	API      APIConfig      `mapstructure:"api"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// FetchConfig governs the portal HTTP client.
type FetchConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	MaxRetries          int           `mapstructure:"max_retries"`
	ThrottleMin         time.Duration `mapstructure:"throttle_min"`
	ThrottleMax         time.Duration `mapstructure:"throttle_max"`
	SessionResetEvery   int           `mapstructure:"session_reset_every"`
	DomainRPS           float64       `mapstructure:"domain_rps"`
	DomainBurst         int           `mapstructure:"domain_burst"`
	HeadlessEnabled     bool          `mapstructure:"headless_enabled"`
	HeadlessMaxParallel int           `mapstructure:"headless_max_parallel"`
	HeadlessTimeout     time.Duration `mapstructure:"headless_timeout"`
}

// PagerConfig tunes search-results pagination.
type PagerConfig struct {
	OffsetStep      int `mapstructure:"offset_step"`
	MaxOffset       int `mapstructure:"max_offset"`
	ResetEveryPages int `mapstructure:"reset_every_pages"`
}

// CacheConfig bounds the shared page-text cache.
type CacheConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	MaxEntries    int           `mapstructure:"max_entries"`
	MaxMemoryMB   int           `mapstructure:"max_memory_mb"`
	SweepFraction int           `mapstructure:"sweep_fraction"`
}

// PipelineConfig governs per-candidate classification.
type PipelineConfig struct {
	LookbackDays       int           `mapstructure:"lookback_days"`
	MaxEnrichPDFs      int           `mapstructure:"max_enrich_pdfs"`
	PerPDFCharLimit    int           `mapstructure:"per_pdf_char_limit"`
	TotalPDFCharBudget int           `mapstructure:"total_pdf_char_budget"`
	MaxOracleChars     int           `mapstructure:"max_oracle_chars"`
	NegativeKeywordTTL time.Duration `mapstructure:"negative_keyword_ttl"`
	ClearCacheEvery    int           `mapstructure:"clear_cache_every"`
}

// ResolverConfig lists the title patterns that mark index pages.
type ResolverConfig struct {
	IndexTitles   []string `mapstructure:"index_titles"`
	IndexContains []string `mapstructure:"index_contains"`
}

// CrawlConfig defines the working set and orchestrator parallelism.
type CrawlConfig struct {
	Keywords    []string `mapstructure:"keywords"`
	Regions     []string `mapstructure:"regions"`
	Prefectures []string `mapstructure:"prefectures"`
	Concurrency int      `mapstructure:"concurrency"`
}

// OracleConfig points at the classification endpoint.
type OracleConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	BaseURL       string        `mapstructure:"base_url"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxConcurrent int           `mapstructure:"max_concurrent"`
}

// StoreConfig selects and configures the document store provider.
type StoreConfig struct {
	Provider string         `mapstructure:"provider"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds connection settings for the Postgres provider.
type PostgresConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ArchiveConfig selects and configures the snapshot archive provider.
type ArchiveConfig struct {
	Provider string             `mapstructure:"provider"`
	GCS      GCSArchiveConfig   `mapstructure:"gcs"`
	Local    LocalArchiveConfig `mapstructure:"local"`
}

// GCSArchiveConfig names the snapshot bucket.
type GCSArchiveConfig struct {
	Bucket string `mapstructure:"bucket"`
}

// LocalArchiveConfig roots the filesystem archive.
type LocalArchiveConfig struct {
	BaseDir string `mapstructure:"base_dir"`
}

// NotifyConfig selects and configures the change-event publisher.
type NotifyConfig struct {
	Provider string       `mapstructure:"provider"`
	Topic    string       `mapstructure:"topic"`
	PubSub   PubSubConfig `mapstructure:"pubsub"`
}

// PubSubConfig identifies the Pub/Sub destination.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicID   string `mapstructure:"topic_id"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
	Auth    AuthConfig    `mapstructure:"auth"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// Load decodes the resolved Viper tree into a validated Config. A nil v
// reads the process-global Viper instance.
func Load(v *viper.Viper) (Config, error) {
	if v == nil {
		v = viper.GetViper()
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

// Validate enforces required values and reasonable limits, failing fast on
// misconfiguration before any network or store connection is attempted.
func (c Config) Validate() error {
	if c.Fetch.Timeout <= 0 {
		return fmt.Errorf("fetch.timeout must be > 0")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	if c.Fetch.ThrottleMin < 0 || c.Fetch.ThrottleMax < c.Fetch.ThrottleMin {
		return fmt.Errorf("fetch.throttle_min/throttle_max must satisfy 0 <= min <= max")
	}
	if c.Fetch.HeadlessEnabled && c.Fetch.HeadlessMaxParallel <= 0 {
		return fmt.Errorf("fetch.headless_max_parallel must be > 0 when headless is enabled")
	}
	if c.Pager.OffsetStep <= 0 {
		return fmt.Errorf("pager.offset_step must be > 0")
	}
	if c.Pager.MaxOffset <= 0 {
		return fmt.Errorf("pager.max_offset must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be > 0")
	}
	if c.Pipeline.LookbackDays <= 0 {
		return fmt.Errorf("pipeline.lookback_days must be > 0")
	}
	if c.Pipeline.MaxEnrichPDFs < 0 {
		return fmt.Errorf("pipeline.max_enrich_pdfs must be >= 0")
	}
	if c.Pipeline.PerPDFCharLimit <= 0 || c.Pipeline.TotalPDFCharBudget <= 0 {
		return fmt.Errorf("pipeline.per_pdf_char_limit and pipeline.total_pdf_char_budget must be > 0")
	}
	if c.Pipeline.MaxOracleChars <= 0 {
		return fmt.Errorf("pipeline.max_oracle_chars must be > 0")
	}
	if len(c.Crawl.Keywords) == 0 {
		return fmt.Errorf("crawl.keywords must name at least one keyword")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model must be set")
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("oracle.timeout must be > 0")
	}

	switch c.Store.Provider {
	case "postgres":
		if c.Store.Postgres.DSN == "" {
			return fmt.Errorf("store.provider is 'postgres' but store.postgres.dsn is not set")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store provider: %q", c.Store.Provider)
	}

	switch c.Archive.Provider {
	case "gcs":
		if c.Archive.GCS.Bucket == "" {
			return fmt.Errorf("archive.provider is 'gcs' but archive.gcs.bucket is not set")
		}
	case "local":
		if c.Archive.Local.BaseDir == "" {
			return fmt.Errorf("archive.provider is 'local' but archive.local.base_dir is not set")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown archive provider: %q", c.Archive.Provider)
	}

	switch c.Notify.Provider {
	case "pubsub":
		if c.Notify.PubSub.ProjectID == "" || c.Notify.PubSub.TopicID == "" {
			return fmt.Errorf("notify.provider is 'pubsub' but notify.pubsub.project_id or topic_id is not set")
		}
	case "memory", "noop":
	default:
		return fmt.Errorf("unknown notify provider: %q", c.Notify.Provider)
	}

	if c.API.Addr == "" {
		return fmt.Errorf("api.addr must be set")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be > 0")
	}
	if c.API.Auth.Enabled && c.API.Auth.APIKey == "" {
		return fmt.Errorf("api.auth.api_key must be set when auth is enabled")
	}

	return nil
}
