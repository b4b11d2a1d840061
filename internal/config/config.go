package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingBotToken means the Telegram consumer cannot start. The HTTP server is unaffected.
var ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN is not set")

// Config holds all configuration for the application.
// Values are read by viper from a config file or environment variables.
type Config struct {
	TelegramBotToken string        `mapstructure:"TELEGRAM_BOT_TOKEN"`
	HTTPPort         int           `mapstructure:"HTTP_PORT"`
	AppURL           string        `mapstructure:"APP_URL"`
	DBPath           string        `mapstructure:"DB_PATH"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	ScraperBackend   string        `mapstructure:"SCRAPER_BACKEND"`
	FetchTimeout     time.Duration `mapstructure:"FETCH_TIMEOUT"`
	GCInterval       time.Duration `mapstructure:"GC_INTERVAL"`
}

// LoadConfig reads configuration from an optional .env file, an optional
// config.yaml in path, and environment variables, in increasing priority.
func LoadConfig(path string) (Config, error) {
	// A missing .env is normal in production.
	_ = godotenv.Load()

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("TELEGRAM_BOT_TOKEN", "")
	v.SetDefault("HTTP_PORT", 8080)
	v.SetDefault("APP_URL", "")
	v.SetDefault("DB_PATH", "./links_data")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SCRAPER_BACKEND", "http")
	v.SetDefault("FETCH_TIMEOUT", "10s")
	v.SetDefault("GC_INTERVAL", "10m")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unable to decode into struct: %w", err)
	}

	if cfg.HTTPPort <= 0 || cfg.HTTPPort > 65535 {
		return Config{}, fmt.Errorf("invalid HTTP_PORT %d", cfg.HTTPPort)
	}
	if cfg.AppURL == "" {
		cfg.AppURL = "http://localhost:" + strconv.Itoa(cfg.HTTPPort)
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	return cfg, nil
}

// ValidateBot reports whether the chat consumer has what it needs to start.
func (c Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return ErrMissingBotToken
	}
	return nil
}
