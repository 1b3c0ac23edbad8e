package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"tokendao/contexts/treasury-governance/governor/domain/entities"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
	StorageSQLite   = "sqlite"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName   string   `env:"SERVICE_NAME" envDefault:"tokendao"`
	HTTPPort      string   `env:"HTTP_PORT" envDefault:"8080"`
	StorageDriver string   `env:"STORAGE_DRIVER" envDefault:"memory"`
	PostgresDSN   string   `env:"POSTGRES_DSN"`
	SQLitePath    string   `env:"SQLITE_PATH" envDefault:"governor.db"`
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`

	GovernanceToken  string `env:"GOVERNANCE_TOKEN" envDefault:"GOV"`
	GovernanceQuorum uint64 `env:"GOVERNANCE_QUORUM" envDefault:"50"`
	LedgerSeedFile   string `env:"LEDGER_SEED_FILE"`

	OutboxPollInterval time.Duration `env:"OUTBOX_POLL_INTERVAL" envDefault:"2s"`
	KeeperPollInterval time.Duration `env:"KEEPER_POLL_INTERVAL" envDefault:"15s"`

	OTELEndpoint string `env:"OTEL_ENDPOINT"`
	LogLevel     string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat    string `env:"LOG_FORMAT" envDefault:"json"`
}

// Load reads .env from the working directory when present, then the process
// environment. Variables already set in the environment win over .env.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}
	return FromEnv()
}

// FromEnv parses and validates configuration from the process environment.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.StorageDriver = strings.ToLower(strings.TrimSpace(c.StorageDriver))
	c.GovernanceToken = strings.TrimSpace(c.GovernanceToken)
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	brokers := make([]string, 0, len(c.KafkaBrokers))
	for _, value := range c.KafkaBrokers {
		value = strings.TrimSpace(value)
		if value != "" {
			brokers = append(brokers, value)
		}
	}
	c.KafkaBrokers = brokers
}

func (c Config) Validate() error {
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return errors.New("POSTGRES_DSN is required when STORAGE_DRIVER=postgres")
		}
	case StorageSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return errors.New("SQLITE_PATH is required when STORAGE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.StorageDriver)
	}
	if err := c.GovernorSettings().Validate(); err != nil {
		return fmt.Errorf("governor settings: %w", err)
	}
	if c.OutboxPollInterval <= 0 || c.KeeperPollInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// GovernorSettings returns the immutable governor settings.
func (c Config) GovernorSettings() entities.Settings {
	return entities.Settings{
		GovernanceToken: c.GovernanceToken,
		Quorum:          c.GovernanceQuorum,
	}
}

func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("unsupported LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}
