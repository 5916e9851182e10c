// Package config loads service settings from the environment and game rules from YAML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Storage drivers for the identity gate and the leaderboard.
const (
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config holds every setting the binaries read from the environment.
type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"MEMORIA_LOG_LEVEL" envDefault:"info"`

	// Store selects the persistence backend: sqlite (local file), postgres or memory.
	Store       string `env:"MEMORIA_STORE" envDefault:"sqlite"`
	SQLitePath  string `env:"MEMORIA_SQLITE_PATH" envDefault:"memoria.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	// RedisAddr enables the round action log when set.
	RedisAddr string `env:"REDIS_ADDR"`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`
	QueueName string `env:"HISTORIAN_QUEUE_NAME" envDefault:"memoria_actions"`

	RulesFile string `env:"MEMORIA_RULES_FILE"`

	// TokenExpire is the session token lifetime; 0 means the token never expires.
	TokenExpire    time.Duration `env:"TOKEN_EXPIRE_TIME" envDefault:"72h"`
	AllowedOrigins []string      `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`

	HistorianBatchSize  int           `env:"HISTORIAN_BATCH_SIZE" envDefault:"20"`
	HistorianFlush      time.Duration `env:"HISTORIAN_FLUSH_INTERVAL" envDefault:"500ms"`
	HistorianInactivity time.Duration `env:"ROUND_INACTIVITY_TIMEOUT" envDefault:"10m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load parses the environment into a Config and validates it.
func Load() (Config, error) {
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch strings.ToLower(c.Store) {
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("MEMORIA_SQLITE_PATH is required for the sqlite store")
		}
	case StorePostgres:
		if strings.TrimSpace(c.DatabaseURL) == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown MEMORIA_STORE %q (want sqlite, postgres or memory)", c.Store)
	}
	if c.HistorianBatchSize <= 0 {
		return fmt.Errorf("HISTORIAN_BATCH_SIZE must be positive")
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("MEMORIA_LOG_LEVEL: %w", err)
	}
	return nil
}

// Level returns the parsed log level, falling back to info.
func (c Config) Level() logrus.Level {
	lvl, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// NewLogger builds the process logger the way every binary configures it.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}
