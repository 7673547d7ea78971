package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Fetch      FetchConfig      `yaml:"fetch" mapstructure:"fetch"`
	Discovery  DiscoveryConfig  `yaml:"discovery" mapstructure:"discovery"`
	Complaints ComplaintsConfig `yaml:"complaints" mapstructure:"complaints"`
	Categorize CategorizeConfig `yaml:"categorize" mapstructure:"categorize"`
	Extract    ExtractConfig    `yaml:"extract" mapstructure:"extract"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	HaikuModel  string `yaml:"haiku_model" mapstructure:"haiku_model"`
	SonnetModel string `yaml:"sonnet_model" mapstructure:"sonnet_model"`
}

// SearchConfig holds Google Custom Search settings.
type SearchConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	EngineID   string `yaml:"engine_id" mapstructure:"engine_id"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	DailyQuota int64  `yaml:"daily_quota" mapstructure:"daily_quota"`
}

// FetchConfig configures the HTTP retrieval layer.
type FetchConfig struct {
	PerHostRate      float64 `yaml:"per_host_rate" mapstructure:"per_host_rate"`
	Burst            int     `yaml:"burst" mapstructure:"burst"`
	PerHostBudget    int64   `yaml:"per_host_budget" mapstructure:"per_host_budget"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	WaitTimeoutSecs  int     `yaml:"wait_timeout_secs" mapstructure:"wait_timeout_secs"`
	RespectRobots    bool    `yaml:"respect_robots" mapstructure:"respect_robots"`
	MaxBodyKilobytes int64   `yaml:"max_body_kilobytes" mapstructure:"max_body_kilobytes"`
}

// DiscoveryConfig configures page discovery.
type DiscoveryConfig struct {
	MaxSitemapURLs int `yaml:"max_sitemap_urls" mapstructure:"max_sitemap_urls"`
	MaxLinkFetches int `yaml:"max_link_fetches" mapstructure:"max_link_fetches"`
}

// ComplaintsConfig configures complaint aggregation.
type ComplaintsConfig struct {
	PerSourceQuota int64   `yaml:"per_source_quota" mapstructure:"per_source_quota"`
	HitsPerQuery   int     `yaml:"hits_per_query" mapstructure:"hits_per_query"`
	MinScore       float64 `yaml:"min_score" mapstructure:"min_score"`
	Concurrency    int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// CategorizeConfig configures complaint categorization.
type CategorizeConfig struct {
	ConfidenceFloor float64 `yaml:"confidence_floor" mapstructure:"confidence_floor"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
}

// ExtractConfig configures structured extraction.
type ExtractConfig struct {
	MaxTokens        int64 `yaml:"max_tokens" mapstructure:"max_tokens"`
	ContextKilobytes int   `yaml:"context_kilobytes" mapstructure:"context_kilobytes"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("COMPINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults. Secrets default to empty so env-only values still bind.
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.sqlite_path", "compintel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.haiku_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.sonnet_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("search.key", "")
	v.SetDefault("search.engine_id", "")
	v.SetDefault("search.base_url", "https://www.googleapis.com/customsearch/v1")
	v.SetDefault("search.daily_quota", 100)
	v.SetDefault("fetch.per_host_rate", 2.0)
	v.SetDefault("fetch.burst", 4)
	v.SetDefault("fetch.per_host_budget", 100)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.wait_timeout_secs", 30)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.max_body_kilobytes", 1024)
	v.SetDefault("discovery.max_sitemap_urls", 200)
	v.SetDefault("discovery.max_link_fetches", 10)
	v.SetDefault("complaints.per_source_quota", 40)
	v.SetDefault("complaints.hits_per_query", 5)
	v.SetDefault("complaints.min_score", 0.3)
	v.SetDefault("complaints.concurrency", 3)
	v.SetDefault("categorize.confidence_floor", 0.5)
	v.SetDefault("categorize.concurrency", 4)
	v.SetDefault("extract.max_tokens", 4096)
	v.SetDefault("extract.context_kilobytes", 48)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
