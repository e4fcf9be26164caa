package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// DatabaseURL maps to env var DB_URL.
	// When empty redirects are journaled to the log instead of Postgres.
	DatabaseURL string `envconfig:"DB_URL"`

	// Workers maps to WORKERS. One worker keeps navigations in arrival order.
	Workers int `envconfig:"WORKERS" default:"1"`

	// BatchSize maps to BATCH_SIZE.
	BatchSize int `envconfig:"BATCH_SIZE" default:"20"`

	// RateLimit maps to RATE_LIMIT: minimum spacing of requests to one host
	// while resolving links.
	RateLimit time.Duration `envconfig:"RATE_LIMIT" default:"2s"`

	UserAgent string `envconfig:"USER_AGENT" default:"asinshort/1.0"`

	// ChromeURL maps to CHROME_URL, the remote debugging endpoint of a running
	// browser. Empty launches a new one.
	ChromeURL string `envconfig:"CHROME_URL"`
	Headless  bool   `envconfig:"HEADLESS" default:"false"`

	Listen string `envconfig:"LISTEN" default:"127.0.0.1:8087"`

	// RulesFile maps to RULES_FILE. Empty uses the built-in table.
	RulesFile string `envconfig:"RULES_FILE"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"normal"`

	HostSuffix string `envconfig:"HOST_SUFFIX" default:"amazon.co.jp"`
}

// Load processes environment variables and populates the Config struct.
func Load() (*Config, error) {
	// A missing .env is normal, vars may be injected directly.
	if err := godotenv.Load(); err != nil {
		if _, statErr := os.Stat(".env"); statErr == nil {
			log.Printf("Warning: .env file found but could not be loaded: %v", err)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Logging reports whether the configured logger produces any output.
func (c *Config) Logging() bool {
	return c.LogLevel != "none"
}

func (c *Config) Validate() error {
	switch c.LogLevel {
	case "none", "normal", "debug":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of none, normal, debug: got %q", c.LogLevel)
	}
	if c.Workers < 1 {
		return fmt.Errorf("WORKERS must be positive: got %d", c.Workers)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("BATCH_SIZE must be positive: got %d", c.BatchSize)
	}
	if c.RateLimit <= 0 {
		return fmt.Errorf("RATE_LIMIT must be positive: got %v", c.RateLimit)
	}
	return nil
}
