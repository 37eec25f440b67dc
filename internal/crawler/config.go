package crawler

import (
	"strconv"
	"strings"
	"time"
)

// Defaults applied by DefaultConfig.
const (
	DefaultMaxPages     = 5000
	DefaultMaxWorkers   = 128
	DefaultRequestDelay = 2 * time.Second
	DefaultJobTimeout   = 30 * time.Second
)

// Config holds the settings for a single crawl. It is decoupled from Viper so
// the orchestrator can be built and tested without a config file.
type Config struct {
	Seeds []string
	// MaxPages bounds the number of successfully visited hosts.
	MaxPages int
	// MaxWorkers bounds the number of fetches in flight.
	MaxWorkers int
	// RequestDelay is slept before every dispatch. Zero disables pacing.
	RequestDelay time.Duration
	// JobTimeout is the per-fetch deadline. Zero means DefaultJobTimeout.
	JobTimeout time.Duration
	// MaxFrontier caps queued locations. Zero leaves the queue unbounded.
	MaxFrontier int
	// DrainOnStop lets in-flight jobs finish on shutdown instead of
	// cancelling them. Their successes are still merged, up to MaxPages, so
	// the result log keeps growing during DRAINING. With the default (false)
	// the crawl state is frozen once shutdown begins.
	DrainOnStop bool
}

// DefaultConfig returns a Config with the stock limits and no seeds.
func DefaultConfig() Config {
	return Config{
		MaxPages:     DefaultMaxPages,
		MaxWorkers:   DefaultMaxWorkers,
		RequestDelay: DefaultRequestDelay,
		JobTimeout:   DefaultJobTimeout,
	}
}

// Validate checks for obviously bad configuration. Every failure is a
// *ConfigError.
func (c Config) Validate() error {
	if len(c.Seeds) == 0 {
		return &ConfigError{Field: "seeds", Reason: "must include at least one seed url"}
	}
	for i, s := range c.Seeds {
		if strings.TrimSpace(s) == "" {
			return &ConfigError{Field: "seeds", Reason: "contains an empty entry at index " + strconv.Itoa(i)}
		}
	}
	if c.MaxPages < 1 {
		return &ConfigError{Field: "max_pages", Reason: "must be >= 1"}
	}
	if c.MaxWorkers < 1 {
		return &ConfigError{Field: "max_workers", Reason: "must be >= 1"}
	}
	if c.RequestDelay < 0 {
		return &ConfigError{Field: "request_delay", Reason: "must be >= 0"}
	}
	if c.JobTimeout < 0 {
		return &ConfigError{Field: "job_timeout", Reason: "must be >= 0"}
	}
	if c.MaxFrontier < 0 {
		return &ConfigError{Field: "max_frontier", Reason: "must be >= 0"}
	}
	return nil
}

func (c Config) jobTimeout() time.Duration {
	if c.JobTimeout <= 0 {
		return DefaultJobTimeout
	}
	return c.JobTimeout
}
