package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const DefaultDataURL = "https://www.ag-grid.com/example-assets/small-tree-data.json"

type Config struct {
	Port string `env:"PORT" envDefault:"8090"`

	// Tree source. DataFile wins over DataURL when both are set.
	DataURL       string        `env:"DATA_URL" envDefault:"https://www.ag-grid.com/example-assets/small-tree-data.json"`
	DataFile      string        `env:"DATA_FILE"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"30s"`
	FetchAttempts int           `env:"FETCH_ATTEMPTS" envDefault:"5"`
	MaxFetchBytes int64         `env:"MAX_FETCH_BYTES" envDefault:"10485760"` // 10MB

	// Auth. Empty disables the bearer check.
	APIKey string `env:"API_KEY"`

	// Row serving
	RowDelay   time.Duration `env:"ROW_DELAY" envDefault:"200ms"`
	OpenLevels int           `env:"OPEN_LEVELS" envDefault:"2"`

	// HTTP
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	H2CEnabled  bool     `env:"H2C_ENABLED" envDefault:"false"`

	// Observability
	MetricsEnabled bool          `env:"METRICS_ENABLED" envDefault:"true"`
	StatsWindow    time.Duration `env:"STATS_WINDOW" envDefault:"1h"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
}

// Load reads .env files that exist, then parses the environment. Variables
// already set in the process environment take precedence over .env values.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	var existing []string
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) > 0 {
		if err := godotenv.Load(existing...); err != nil {
			return Config{}, fmt.Errorf("load env files: %w", err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	if cfg.FetchAttempts <= 0 {
		cfg.FetchAttempts = 5
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.MaxFetchBytes <= 0 {
		cfg.MaxFetchBytes = 10485760
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = time.Hour
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.DataURL == "" && c.DataFile == "" {
		return errors.New("one of DATA_URL or DATA_FILE is required")
	}
	if c.RowDelay < 0 {
		return fmt.Errorf("ROW_DELAY must not be negative, got %s", c.RowDelay)
	}
	if c.OpenLevels < 0 {
		return fmt.Errorf("OPEN_LEVELS must not be negative, got %d", c.OpenLevels)
	}
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	return nil
}

// SlogLevel parses LogLevel.
func (c Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return level, nil
}
