package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StorageBadger   = "badger"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Scraper drivers.
const (
	ScraperFirecrawl = "firecrawl"
	ScraperBrowser   = "browser"
)

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	ServerAddr string `mapstructure:"SERVER_ADDR" yaml:"server_addr"`
	LogLevel   string `mapstructure:"LOG_LEVEL" yaml:"log_level"`
	LogFormat  string `mapstructure:"LOG_FORMAT" yaml:"log_format"`

	StorageDriver    string        `mapstructure:"STORAGE_DRIVER" yaml:"storage_driver"`
	BadgerDBPath     string        `mapstructure:"BADGERDB_PATH" yaml:"badgerdb_path"`
	BadgerGCInterval time.Duration `mapstructure:"BADGER_GC_INTERVAL" yaml:"badger_gc_interval"`
	DatabaseDSN      string        `mapstructure:"DATABASE_DSN" yaml:"database_dsn"`

	ScraperDriver    string        `mapstructure:"SCRAPER_DRIVER" yaml:"scraper_driver"`
	FirecrawlAPIKey  string        `mapstructure:"FIRECRAWL_API_KEY" yaml:"firecrawl_api_key"`
	FirecrawlBaseURL string        `mapstructure:"FIRECRAWL_BASE_URL" yaml:"firecrawl_base_url"`
	ScraperTimeout   time.Duration `mapstructure:"SCRAPER_TIMEOUT" yaml:"scraper_timeout"`

	LLMBaseURL string        `mapstructure:"LLM_BASE_URL" yaml:"llm_base_url"`
	LLMAPIKey  string        `mapstructure:"LLM_API_KEY" yaml:"llm_api_key"`
	LLMModel   string        `mapstructure:"LLM_MODEL" yaml:"llm_model"`
	LLMTimeout time.Duration `mapstructure:"LLM_TIMEOUT" yaml:"llm_timeout"`

	AuthBaseURL string `mapstructure:"AUTH_BASE_URL" yaml:"auth_base_url"`

	// TelegramBotToken enables the Telegram front end when set.
	TelegramBotToken string `mapstructure:"TELEGRAM_BOT_TOKEN" yaml:"telegram_bot_token"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("STORAGE_DRIVER", StorageBadger)
	v.SetDefault("BADGERDB_PATH", filepath.Join(xdg.DataHome, "recall", "badger"))
	v.SetDefault("BADGER_GC_INTERVAL", 5*time.Minute)
	v.SetDefault("DATABASE_DSN", "")
	v.SetDefault("SCRAPER_DRIVER", ScraperFirecrawl)
	v.SetDefault("FIRECRAWL_API_KEY", "")
	v.SetDefault("FIRECRAWL_BASE_URL", "https://api.firecrawl.dev")
	v.SetDefault("SCRAPER_TIMEOUT", 60*time.Second)
	v.SetDefault("LLM_BASE_URL", "https://openrouter.ai/api/v1")
	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_MODEL", "z-ai/glm-4.5-air:free")
	v.SetDefault("LLM_TIMEOUT", 2*time.Minute)
	v.SetDefault("AUTH_BASE_URL", "http://localhost:3000")
	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
}

// LoadConfig reads configuration from file or environment variables.
// Every key has a registered default so environment-only setups unmarshal too.
func LoadConfig(path string) (config Config, err error) {
	v := viper.New()
	setDefaults(v)

	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	err = v.ReadInConfig()
	if err != nil {
		// A missing file is fine, env vars and defaults still apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	err = v.Unmarshal(&config)
	if err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Validate checks the driver-dependent settings.
func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageBadger:
		if c.BadgerDBPath == "" {
			return fmt.Errorf("BADGERDB_PATH is not set")
		}
	case StorageSQLite, StoragePostgres:
		if c.DatabaseDSN == "" {
			return fmt.Errorf("DATABASE_DSN is required for storage driver %q", c.StorageDriver)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q (valid: badger, sqlite, postgres)", c.StorageDriver)
	}

	switch c.ScraperDriver {
	case ScraperFirecrawl:
		if c.FirecrawlAPIKey == "" {
			return fmt.Errorf("FIRECRAWL_API_KEY is not set")
		}
	case ScraperBrowser:
	default:
		return fmt.Errorf("unknown SCRAPER_DRIVER %q (valid: firecrawl, browser)", c.ScraperDriver)
	}

	if c.LLMBaseURL == "" || c.LLMModel == "" {
		return fmt.Errorf("LLM_BASE_URL and LLM_MODEL must be set")
	}
	return nil
}

// Redacted returns a copy with secrets masked, for printing.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.FirecrawlAPIKey = mask(c.FirecrawlAPIKey)
	c.LLMAPIKey = mask(c.LLMAPIKey)
	c.TelegramBotToken = mask(c.TelegramBotToken)
	c.DatabaseDSN = mask(c.DatabaseDSN)
	return c
}
