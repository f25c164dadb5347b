// This package contains the service configuration and its loading rules.
// Values resolve in three layers: defaults, then the YAML file, then
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/reelguess/reelguess/tmdb"
)

// Duration parses YAML scalars like "4s" or "150ms".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", value.Value, err)
	}

	*d = Duration(parsed)

	return nil
}

type Config struct {
	Listen   string        `yaml:"listen"`
	LogLevel string        `yaml:"log_level"`
	TMDB     TMDBConfig    `yaml:"tmdb"`
	Buffer   BufferConfig  `yaml:"buffer"`
	Filters  FiltersConfig `yaml:"filters"`
}

type TMDBConfig struct {
	APIKey     string  `yaml:"api_key"`
	BaseURL    string  `yaml:"base_url"`
	RateLimit  float64 `yaml:"rate_limit"`
	RateBurst  int     `yaml:"rate_burst"`
	MinVotes   int     `yaml:"min_votes"`
	PageWindow int     `yaml:"page_window"`
}

type BufferConfig struct {
	Capacity    int      `yaml:"capacity"`
	Concurrency int      `yaml:"concurrency"`
	MaxAttempts int      `yaml:"max_attempts"`
	WaitTimeout Duration `yaml:"wait_timeout"`
}

// FiltersConfig is the filter set the buffer starts with.
type FiltersConfig struct {
	YearFrom int    `yaml:"year_from"`
	YearTo   int    `yaml:"year_to"`
	Language string `yaml:"language"`
}

func Default() Config {
	return Config{
		Listen:   ":8080",
		LogLevel: "info",
		TMDB: TMDBConfig{
			BaseURL:    tmdb.DefaultBaseURL,
			RateLimit:  4,
			RateBurst:  2,
			MinVotes:   300,
			PageWindow: 25,
		},
		Buffer: BufferConfig{
			Capacity:    4,
			Concurrency: 2,
			MaxAttempts: 6,
			WaitTimeout: Duration(time.Second * 4),
		},
	}
}

// Load resolves the configuration. An empty path skips the file layer; a path
// that is given must exist.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is required")
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	if strings.TrimSpace(c.TMDB.APIKey) == "" {
		return errors.New("tmdb api key is required")
	}
	if c.TMDB.RateLimit <= 0 {
		return errors.New("tmdb rate limit must be > 0")
	}
	if c.TMDB.RateBurst < 1 {
		return errors.New("tmdb rate burst must be >= 1")
	}
	if c.TMDB.MinVotes < 0 {
		return errors.New("tmdb min votes can't be negative")
	}
	if c.TMDB.PageWindow < 1 {
		return errors.New("tmdb page window must be >= 1")
	}

	if c.Buffer.Capacity < 1 {
		return errors.New("buffer capacity must be >= 1")
	}
	if c.Buffer.Concurrency < 1 {
		return errors.New("buffer concurrency must be >= 1")
	}
	if c.Buffer.MaxAttempts < 1 {
		return errors.New("buffer max attempts must be >= 1")
	}
	if c.Buffer.WaitTimeout <= 0 {
		return errors.New("buffer wait timeout must be > 0")
	}

	if c.Filters.YearFrom < 0 || c.Filters.YearTo < 0 {
		return errors.New("filter years can't be negative")
	}
	if c.Filters.YearFrom > 0 && c.Filters.YearTo > 0 && c.Filters.YearFrom > c.Filters.YearTo {
		return errors.New("filter year_from can't be after year_to")
	}
	if lang := c.Filters.Language; lang != "" {
		if len(lang) != 2 || strings.ToLower(lang) != lang {
			return fmt.Errorf("filter language %q is not a two-letter ISO 639-1 tag", lang)
		}
	}

	return nil
}
