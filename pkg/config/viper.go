// Package config is responsible for initializing the application's configuration.
// It uses the Viper library to read settings from a config file, environment
// variables, and command-line flags, providing a unified configuration system.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/agriveille/prefecture-crawler/internal/logging"
)

// InitConfig initializes the application's configuration using Viper.
// It sets up default values, defines configuration search paths, and enables
// reading from environment variables. This function is designed to be called
// once at application startup so configuration is loaded before any command
// runs.
func InitConfig() {
	// --- Set Search Paths ---
	viper.SetConfigName("config")
	viper.AddConfigPath(".")                  // Current working directory
	viper.AddConfigPath("/etc/prefcrawler/")  // System-wide configuration
	viper.AddConfigPath("$HOME/.prefcrawler") // User-specific configuration

	// --- Set Defaults ---
	viper.SetDefault("logging.development", false)

	// Fetch client.
	viper.SetDefault("fetch.timeout", "30s")
	viper.SetDefault("fetch.max_retries", 3)
	viper.SetDefault("fetch.throttle_min", "500ms")
	viper.SetDefault("fetch.throttle_max", "2500ms")
	viper.SetDefault("fetch.session_reset_every", 20)
	viper.SetDefault("fetch.domain_rps", 1.0)
	viper.SetDefault("fetch.domain_burst", 1)
	viper.SetDefault("fetch.headless_enabled", false)
	viper.SetDefault("fetch.headless_max_parallel", 2)
	viper.SetDefault("fetch.headless_timeout", "45s")

	// Pagination.
	viper.SetDefault("pager.offset_step", 10)
	viper.SetDefault("pager.max_offset", 1000)
	viper.SetDefault("pager.reset_every_pages", 5)

	// Text cache.
	viper.SetDefault("cache.ttl", "30m")
	viper.SetDefault("cache.max_entries", 256)
	viper.SetDefault("cache.max_memory_mb", 64)
	viper.SetDefault("cache.sweep_fraction", 16)

	// Classification pipeline.
	viper.SetDefault("pipeline.lookback_days", 30)
	viper.SetDefault("pipeline.max_enrich_pdfs", 5)
	viper.SetDefault("pipeline.per_pdf_char_limit", 200_000)
	viper.SetDefault("pipeline.total_pdf_char_budget", 400_000)
	viper.SetDefault("pipeline.max_oracle_chars", 600_000)
	viper.SetDefault("pipeline.negative_keyword_ttl", "10m")
	viper.SetDefault("pipeline.clear_cache_every", 0)

	// Multi-document resolver.
	viper.SetDefault("resolver.index_titles", []string{
		"Recueil des actes administratifs",
		"Liste des documents",
	})
	viper.SetDefault("resolver.index_contains", []string{"recueil des actes"})

	// Crawl working set.
	viper.SetDefault("crawl.keywords", []string{
		"bovin", "porcin", "volaille", "poules", "pondeuses", "poulets",
	})
	viper.SetDefault("crawl.regions", []string{})
	viper.SetDefault("crawl.prefectures", []string{})
	viper.SetDefault("crawl.concurrency", 4)

	// Oracle. The API key is expected via PREFCRAWLER_ORACLE_API_KEY; the
	// empty default registers the key so AutomaticEnv can fill it.
	viper.SetDefault("oracle.api_key", "")
	viper.SetDefault("oracle.base_url", "https://api.openai.com/v1")
	viper.SetDefault("oracle.model", "gpt-5-nano")
	viper.SetDefault("oracle.timeout", "60s")
	viper.SetDefault("oracle.max_concurrent", 4)

	// Providers.
	viper.SetDefault("store.provider", "postgres")
	viper.SetDefault("store.postgres.dsn", "")
	viper.SetDefault("store.postgres.max_conns", 0)
	viper.SetDefault("archive.provider", "noop")
	viper.SetDefault("archive.gcs.bucket", "")
	viper.SetDefault("archive.local.base_dir", "data/snapshots")
	viper.SetDefault("notify.provider", "noop")
	viper.SetDefault("notify.topic", "document-changes")
	viper.SetDefault("notify.pubsub.project_id", "")
	viper.SetDefault("notify.pubsub.topic_id", "")

	// HTTP API.
	viper.SetDefault("api.addr", ":8080")
	viper.SetDefault("api.timeout", "60s")
	viper.SetDefault("api.auth.enabled", false)
	viper.SetDefault("api.auth.api_key", "")

	// --- Environment Variables ---
	viper.SetEnvPrefix("PREFCRAWLER") // e.g. PREFCRAWLER_ORACLE_API_KEY=...
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// --- Read Config File ---
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			logging.L.Warn("Config file not found; using defaults and environment variables.")
		} else {
			logging.L.Error("Error reading config file", zap.Error(err))
		}
	} else {
		logging.L.Info("Using config file", zap.String("path", viper.ConfigFileUsed()))
	}
}
