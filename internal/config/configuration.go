package config

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

type Config struct {
	// WebServer Configuration
	WebServerPort int `mapstructure:"WEBSERVER_PORT"`

	// Database Configuration
	DatabaseDSN     string `mapstructure:"DATABASE_DSN" validate:"required"`
	DatabaseRetries int    `mapstructure:"DATABASE_RETRIES"`

	// Environment name. Anything other than "production" relaxes the
	// moderation policy (auto-approve instead of real review).
	Environment string `mapstructure:"ENVIRONMENT"`

	// Object storage (S3-compatible)
	StorageEndpoint  string `mapstructure:"STORAGE_ENDPOINT"`
	StorageRegion    string `mapstructure:"STORAGE_REGION"`
	StorageBucket    string `mapstructure:"STORAGE_BUCKET" validate:"required"`
	StorageAccessKey string `mapstructure:"STORAGE_ACCESS_KEY"`
	StorageSecretKey string `mapstructure:"STORAGE_SECRET_KEY"`
	// Public base URL for serving encoded assets (CDN or bucket website).
	StoragePublicBaseURL string `mapstructure:"STORAGE_PUBLIC_BASE_URL" validate:"required"`

	// Local encoding
	WorkDir           string `mapstructure:"WORK_DIR"`
	EncodeConcurrency int    `mapstructure:"ENCODE_CONCURRENCY"`
	EncodeTimeoutMin  int    `mapstructure:"ENCODE_TIMEOUT_MINUTES"`

	// Remote encoding provider
	RemoteEncoderEndpoint string `mapstructure:"REMOTE_ENCODER_ENDPOINT"`
	RemoteEncoderAPIKey   string `mapstructure:"REMOTE_ENCODER_API_KEY"`

	// Webhooks
	WebhookBaseURL string `mapstructure:"WEBHOOK_BASE_URL"`
	WebhookSecret  string `mapstructure:"WEBHOOK_SECRET"`

	// Watchdog
	WatchdogIntervalMin int `mapstructure:"WATCHDOG_INTERVAL_MINUTES"`
	StuckThresholdMin   int `mapstructure:"STUCK_THRESHOLD_MINUTES"`
	EncodingTimeoutMin  int `mapstructure:"ENCODING_TIMEOUT_MINUTES"`
	JobRetentionHours   int `mapstructure:"JOB_RETENTION_HOURS"`
	JobPurgeIntervalMin int `mapstructure:"JOB_PURGE_INTERVAL_MINUTES"`

	// Moderation
	ModerationURL string `mapstructure:"MODERATION_URL"`
}

// IsProduction reports whether this deployment runs the strict moderation policy.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

// use reflect to bind environment variables based on mapstructure tags
func bindEnv(c Config) {
	val := reflect.ValueOf(c)
	typ := val.Type()

	for i := 0; i < val.NumField(); i++ {
		tag := typ.Field(i).Tag.Get("mapstructure")
		if tag != "" {
			viper.BindEnv(tag)
		}
	}
}

func LoadConfig(ctx context.Context) (*Config, error) {
	bindEnv(Config{})
	viper.AutomaticEnv()

	// Defaults
	viper.SetDefault("WEBSERVER_PORT", 8080)
	viper.SetDefault("DATABASE_RETRIES", 10)
	viper.SetDefault("ENVIRONMENT", "development")
	viper.SetDefault("STORAGE_REGION", "us-east-1")
	viper.SetDefault("WORK_DIR", "/tmp/showreel")
	viper.SetDefault("ENCODE_CONCURRENCY", 2)
	viper.SetDefault("ENCODE_TIMEOUT_MINUTES", 10)
	viper.SetDefault("WATCHDOG_INTERVAL_MINUTES", 5)
	viper.SetDefault("STUCK_THRESHOLD_MINUTES", 30)
	viper.SetDefault("ENCODING_TIMEOUT_MINUTES", 60)
	viper.SetDefault("JOB_RETENTION_HOURS", 24)
	viper.SetDefault("JOB_PURGE_INTERVAL_MINUTES", 60)

	cfg := Config{}
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	slog.Info("Loaded configuration", "environment", cfg.Environment, "port", cfg.WebServerPort)

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}
