package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/tubita/tubita/internal/settings"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
	StoreS3       = "s3"
)

type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	BaseURL   string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	JWTSecret string `env:"JWT_SECRET"`

	Store       string `env:"STORE" envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"tubita.db"`
	S3          S3     `envPrefix:"S3_"`

	YouTubeAPIKey string `env:"YOUTUBE_API_KEY"`
	GeoIPPath     string `env:"GEOIP_DB_PATH"`

	WebhookURL    string   `env:"PARENT_WEBHOOK_URL"`
	WebhookSecret string   `env:"PARENT_WEBHOOK_SECRET"`
	SlackURL      string   `env:"SLACK_WEBHOOK_URL"`
	ParentEmail   string   `env:"PARENT_EMAIL"`
	Listmonk      Listmonk `envPrefix:"LISTMONK_"`

	PasswordPolicy        string        `env:"PASSWORD_POLICY" envDefault:"plain"`
	MinPasswordLength     int           `env:"MIN_PASSWORD_LENGTH" envDefault:"4"`
	GateAttemptsPerMinute int           `env:"GATE_ATTEMPTS_PER_MINUTE" envDefault:"0"`
	TickInterval          time.Duration `env:"TICK_INTERVAL" envDefault:"1s"`

	EnableDocs bool `env:"API_DOCS_ENABLED" envDefault:"false"`

	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

type S3 struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET" envDefault:"tubita"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Region    string `env:"REGION" envDefault:"eu-central-1"`
	Prefix    string `env:"PREFIX"`
}

// Listmonk is the transactional mail server used for parent e-mails.
type Listmonk struct {
	URL        string `env:"URL"`
	User       string `env:"USER" envDefault:"admin"`
	Password   string `env:"PASSWORD"`
	TemplateID int    `env:"TEMPLATE_ID" envDefault:"0"`
}

// Load reads the configuration from the environment and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	switch c.Store {
	case StoreMemory, StoreSQLite:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	case StoreS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 store")
		}
	default:
		return fmt.Errorf("unknown STORE %q", c.Store)
	}
	switch c.PasswordPolicy {
	case settings.PolicyPlain, settings.PolicyBcrypt:
	default:
		return fmt.Errorf("unknown PASSWORD_POLICY %q", c.PasswordPolicy)
	}
	if c.MinPasswordLength < 1 {
		return errors.New("MIN_PASSWORD_LENGTH must be positive")
	}
	if c.GateAttemptsPerMinute < 0 {
		return errors.New("GATE_ATTEMPTS_PER_MINUTE must not be negative")
	}
	if c.TickInterval <= 0 {
		return errors.New("TICK_INTERVAL must be positive")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

func (c Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return 0, fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}
