// internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel        string        `mapstructure:"LOG_LEVEL"`
	DBURL           string        `mapstructure:"DB_URL"`
	GithubToken     string        `mapstructure:"GITHUB_TOKEN"`
	HTTPAddr        string        `mapstructure:"HTTP_ADDR"`
	BatchSize       int           `mapstructure:"BATCH_SIZE"`
	UpdateInterval  time.Duration `mapstructure:"UPDATE_INTERVAL"`
	StalenessWindow time.Duration `mapstructure:"STALENESS_WINDOW"`
}

// LoadConfig reads configuration from file and/or environment variables.
func LoadConfig() (*Config, error) {
	// Set default values
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("HTTP_ADDR", ":8080")
	viper.SetDefault("BATCH_SIZE", 10)
	viper.SetDefault("UPDATE_INTERVAL", "0s") // 0 disables the background scheduler
	viper.SetDefault("STALENESS_WINDOW", "24h")

	// Load from .env file if it exists
	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig() // Ignore error if file not found

	// Bind environment variables
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// GITHUB_TOKEN is optional: without it the unauthenticated
	// 60-calls-per-hour quota applies.
	if cfg.DBURL == "" {
		return nil, errors.New("DB_URL is a required configuration field")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > 10 {
		return nil, fmt.Errorf("BATCH_SIZE must be between 1 and 10, got %d", cfg.BatchSize)
	}
	if cfg.StalenessWindow <= 0 {
		return nil, errors.New("STALENESS_WINDOW must be a positive duration")
	}

	return &cfg, nil
}
