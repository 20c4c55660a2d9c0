package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates the runtime settings of a host embedding the library.
type Config struct {
	DefaultBucket string
	Retry         RetryConfig
	Store         StoreConfig
	Logger        LoggerConfig
}

type RetryConfig struct {
	// MaxRetries bounds the retry budget; -1 disables the bound.
	MaxRetries int
	Delay      time.Duration
}

type StoreConfig struct {
	// Engine selects the event store backend: memory, bbolt or sql.
	Engine string
	// Path is the database file for the bbolt engine.
	Path string
	// DSN is the connection string for the sql engine.
	DSN string
}

type LoggerConfig struct {
	Level    string
	Encoding string
}

// Load reads configuration from the environment, seeding it from a .env file
// when one is present.
func Load() (*Config, error) {
	// missing .env files are fine, the environment may be set directly
	_ = godotenv.Load()

	cfg := &Config{
		DefaultBucket: getEnv("EVENTFOLD_DEFAULT_BUCKET", "default"),
		Retry: RetryConfig{
			MaxRetries: getEnvInt("EVENTFOLD_MAX_RETRIES", 3),
			Delay:      getEnvDuration("EVENTFOLD_RETRY_DELAY", 50*time.Millisecond),
		},
		Store: StoreConfig{
			Engine: getEnv("EVENTFOLD_STORE_ENGINE", "memory"),
			Path:   getEnv("EVENTFOLD_STORE_PATH", "eventfold.db"),
			DSN:    getEnv("EVENTFOLD_STORE_DSN", ":memory:"),
		},
		Logger: LoggerConfig{
			Level:    getEnv("EVENTFOLD_LOG_LEVEL", "info"),
			Encoding: getEnv("EVENTFOLD_LOG_ENCODING", "json"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Engine {
	case "memory", "bbolt", "sql":
	default:
		return fmt.Errorf("unknown store engine %q", c.Store.Engine)
	}
	if c.Retry.MaxRetries < -1 {
		return fmt.Errorf("max retries must be -1 or greater, got %d", c.Retry.MaxRetries)
	}
	if c.DefaultBucket == "" {
		return fmt.Errorf("default bucket must not be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
