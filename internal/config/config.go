// Package config loads and validates indexer configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all indexer configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Catalog CatalogConfig `mapstructure:"catalog"`
	Store   StoreConfig   `mapstructure:"store"`
	Source  SourceConfig  `mapstructure:"source"`
	Crawl   CrawlConfig   `mapstructure:"crawl"`
	Changes ChangesConfig `mapstructure:"changes"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls the debug/metrics HTTP listener.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// CatalogConfig locates the journal catalog CSV files.
type CatalogConfig struct {
	Dir string `mapstructure:"dir"`
}

// StoreConfig controls the SQLite stores built from the catalogs.
type StoreConfig struct {
	Dir           string `mapstructure:"dir"`
	BusyTimeoutMS int    `mapstructure:"busy_timeout_ms"`
	FTSTokenizer  string `mapstructure:"fts_tokenizer"`
}

// SourceConfig configures the catalog API adapter.
type SourceConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	MaxRetries     int    `mapstructure:"max_retries"`
	LibraryID      string `mapstructure:"library_id"`
}

// CrawlConfig governs worker and fetch fan-out behavior.
type CrawlConfig struct {
	Workers     int `mapstructure:"workers"`
	Concurrency int `mapstructure:"concurrency"`
	IssueBatch  int `mapstructure:"issue_batch"`
}

// ChangesConfig locates the change-manifest state directory.
type ChangesConfig struct {
	StateDir string `mapstructure:"state_dir"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("INDEXER")
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
	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 9190)
	v.SetDefault("catalog.dir", "catalogs")
	v.SetDefault("store.dir", "data")
	v.SetDefault("store.busy_timeout_ms", 30000)
	v.SetDefault("store.fts_tokenizer", "")
	v.SetDefault("source.base_url", "https://api.thirdiron.com/public/v1")
	v.SetDefault("source.timeout_seconds", 20)
	v.SetDefault("source.max_retries", 2)
	v.SetDefault("source.library_id", "")
	v.SetDefault("crawl.workers", 1)
	v.SetDefault("crawl.concurrency", 4)
	v.SetDefault("crawl.issue_batch", 10)
	v.SetDefault("changes.state_dir", "push_state")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when the server is enabled")
	}
	if c.Catalog.Dir == "" {
		return fmt.Errorf("catalog.dir must be set")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir must be set")
	}
	if c.Source.BaseURL == "" {
		return fmt.Errorf("source.base_url must be set")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.Concurrency <= 0 {
		return fmt.Errorf("crawl.concurrency must be > 0")
	}
	if c.Crawl.IssueBatch <= 0 {
		return fmt.Errorf("crawl.issue_batch must be > 0")
	}
	return nil
}

// SourceTimeout converts the source timeout config into a duration.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Source.TimeoutSeconds) * time.Second
}
