// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns a Config populated with defaults.
// - Load(ctx) layers a YAML file and COURTSIDE_* env vars on top of them.
// - Errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite file backing the roster store.
	DBPath string `koanf:"db_path"`

	// Seed populates an empty roster store with the demo user and players.
	Seed bool `koanf:"seed"`

	// RosterURL points the session at a remote roster server instead of the
	// local SQLite file.
	RosterURL string `koanf:"roster_url"`
	// RosterRateLimit caps requests per second to RosterURL.
	RosterRateLimit float64 `koanf:"roster_rate_limit"`

	// FeedURL is the match event source, e.g. "ws://localhost:8765".
	FeedURL string `koanf:"feed_url"`

	FeedDialTimeoutMS  int `koanf:"feed_dial_timeout_ms"`
	FeedWriteTimeoutMS int `koanf:"feed_write_timeout_ms"`
	// FeedReadTimeoutMS of 0 disables the read deadline.
	FeedReadTimeoutMS int `koanf:"feed_read_timeout_ms"`

	// ReconnectMaxRetries of 0 disables automatic reconnects.
	ReconnectMaxRetries int     `koanf:"reconnect_max_retries"`
	ReconnectInitialMS  int     `koanf:"reconnect_initial_ms"`
	ReconnectMaxMS      int     `koanf:"reconnect_max_ms"`
	ReconnectJitter     float64 `koanf:"reconnect_jitter"`

	// PersistQueueSize bounds swaps waiting for the roster store.
	PersistQueueSize int `koanf:"persist_queue_size"`
	PersistTimeoutMS int `koanf:"persist_timeout_ms"`

	// LogHistory caps the number of retained match log lines.
	LogHistory int `koanf:"log_history"`

	// HomeTeam overrides the home name; empty uses the username.
	HomeTeam string `koanf:"home_team"`
	AwayTeam string `koanf:"away_team"`
	// OpponentSeed of 0 seeds the opponent generator from the clock.
	OpponentSeed int64 `koanf:"opponent_seed"`

	CORSOrigins []string `koanf:"cors_origins"`

	// Replay feed settings used by cmd/feedreplay.
	ReplayAddr       string `koanf:"replay_addr"`
	ReplayScript     string `koanf:"replay_script"`
	ReplayIntervalMS int    `koanf:"replay_interval_ms"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:            "info",
		LogFormat:           "text",
		Addr:                ":8080",
		DBPath:              "courtside.db",
		Seed:                true,
		RosterRateLimit:     20,
		FeedURL:             "ws://localhost:8765",
		FeedDialTimeoutMS:   5000,
		FeedWriteTimeoutMS:  10000,
		FeedReadTimeoutMS:   0,
		ReconnectMaxRetries: 0,
		ReconnectInitialMS:  1000,
		ReconnectMaxMS:      30000,
		ReconnectJitter:     0.2,
		PersistQueueSize:    256,
		PersistTimeoutMS:    5000,
		LogHistory:          200,
		AwayTeam:            "Warriors",
		CORSOrigins:         []string{"*"},
		ReplayAddr:          ":8765",
		ReplayIntervalMS:    400,
	}
}

// Validate reports the first invalid field.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.FeedURL == "":
		return fmt.Errorf("%w: feed_url must not be empty", ErrInvalidConfig)
	case c.FeedDialTimeoutMS < 0, c.FeedWriteTimeoutMS < 0, c.FeedReadTimeoutMS < 0:
		return fmt.Errorf("%w: feed timeouts must not be negative", ErrInvalidConfig)
	case c.ReconnectMaxRetries < 0, c.ReconnectInitialMS < 0, c.ReconnectMaxMS < 0:
		return fmt.Errorf("%w: reconnect settings must not be negative", ErrInvalidConfig)
	case c.ReconnectJitter < 0 || c.ReconnectJitter > 1:
		return fmt.Errorf("%w: reconnect_jitter must be within [0,1]", ErrInvalidConfig)
	case c.PersistQueueSize < 1:
		return fmt.Errorf("%w: persist_queue_size must be positive", ErrInvalidConfig)
	case c.RosterRateLimit < 0:
		return fmt.Errorf("%w: roster_rate_limit must not be negative", ErrInvalidConfig)
	case c.PersistTimeoutMS < 0, c.ReplayIntervalMS < 0:
		return fmt.Errorf("%w: timings must not be negative", ErrInvalidConfig)
	case c.LogHistory < 1:
		return fmt.Errorf("%w: log_history must be positive", ErrInvalidConfig)
	}
	return nil
}

// Millis converts a millisecond setting into a time.Duration.
func Millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
