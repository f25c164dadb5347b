package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// loadEnv applies REELGUESS_* environment overrides on top of the current
// values. Malformed values are errors, not silently ignored.
func (c *Config) loadEnv() error {
	if listen := os.Getenv("REELGUESS_LISTEN"); listen != "" {
		c.Listen = listen
	}
	if level := os.Getenv("REELGUESS_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if key := os.Getenv("REELGUESS_TMDB_API_KEY"); key != "" {
		c.TMDB.APIKey = key
	}
	if baseURL := os.Getenv("REELGUESS_TMDB_BASE_URL"); baseURL != "" {
		c.TMDB.BaseURL = baseURL
	}
	if limit := os.Getenv("REELGUESS_TMDB_RATE_LIMIT"); limit != "" {
		parsed, err := strconv.ParseFloat(limit, 64)
		if err != nil {
			return fmt.Errorf("parse REELGUESS_TMDB_RATE_LIMIT: %w", err)
		}
		c.TMDB.RateLimit = parsed
	}

	if capacity := os.Getenv("REELGUESS_BUFFER_CAPACITY"); capacity != "" {
		parsed, err := strconv.Atoi(capacity)
		if err != nil {
			return fmt.Errorf("parse REELGUESS_BUFFER_CAPACITY: %w", err)
		}
		c.Buffer.Capacity = parsed
	}
	if concurrency := os.Getenv("REELGUESS_BUFFER_CONCURRENCY"); concurrency != "" {
		parsed, err := strconv.Atoi(concurrency)
		if err != nil {
			return fmt.Errorf("parse REELGUESS_BUFFER_CONCURRENCY: %w", err)
		}
		c.Buffer.Concurrency = parsed
	}
	if timeout := os.Getenv("REELGUESS_BUFFER_WAIT_TIMEOUT"); timeout != "" {
		parsed, err := time.ParseDuration(timeout)
		if err != nil {
			return fmt.Errorf("parse REELGUESS_BUFFER_WAIT_TIMEOUT: %w", err)
		}
		c.Buffer.WaitTimeout = Duration(parsed)
	}

	return nil
}
