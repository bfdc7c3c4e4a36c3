package database

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/dbfixture/validation"
)

// Config holds database connection configuration.
type Config struct {
	// DSN is the sqlite connection string: a file path, "file:..." URI or ":memory:".
	DSN string `mapstructure:"dsn" validate:"required"`

	// MaxOpenConns sets the maximum number of open connections to the database.
	// In-memory databases need 1 so every query sees the same schema.
	MaxOpenConns int `mapstructure:"max_open_conns" validate:"gte=1"`

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	MaxIdleConns int `mapstructure:"max_idle_conns" validate:"gte=1,ltefield=MaxOpenConns"`

	// ConnMaxLifetime is the maximum time a connection may be reused (e.g. "1h", "30m").
	// "0" keeps connections forever.
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`

	// ConnMaxIdleTime is the maximum time a connection may sit idle (e.g. "5m").
	// If empty, no idle timeout is set.
	ConnMaxIdleTime string `mapstructure:"conn_max_idle_time"`

	// MaxRetries is the number of connection attempts before giving up.
	MaxRetries int `mapstructure:"max_retries" validate:"gte=1"`

	// AutoMigrate controls whether GORM auto-migration runs on startup.
	AutoMigrate bool `mapstructure:"auto_migrate"`

	// ForeignKeys turns on sqlite foreign key enforcement for every connection.
	ForeignKeys bool `mapstructure:"foreign_keys"`

	// JournalMode sets the sqlite journal mode (e.g. "WAL").
	JournalMode string `mapstructure:"journal_mode" validate:"omitempty,oneof=DELETE TRUNCATE PERSIST MEMORY WAL OFF"`

	// BusyTimeout is how long a connection waits on a locked database (e.g. "5s").
	BusyTimeout string `mapstructure:"busy_timeout"`

	// LogLevel is the GORM log level: silent, error, warn or info.
	LogLevel string `mapstructure:"log_level" validate:"omitempty,oneof=silent error warn info"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `mapstructure:"slow_query_threshold"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 1
	}
	if c.MaxIdleConns <= 0 || c.MaxIdleConns > c.MaxOpenConns {
		c.MaxIdleConns = c.MaxOpenConns
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "0"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BusyTimeout == "" {
		c.BusyTimeout = "5s"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
}

// Validate checks that required fields are present and parseable.
func (c *Config) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	durations := []struct{ name, value string }{
		{"conn_max_lifetime", c.ConnMaxLifetime},
		{"conn_max_idle_time", c.ConnMaxIdleTime},
		{"busy_timeout", c.BusyTimeout},
		{"slow_query_threshold", c.SlowQueryThreshold},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", d.name, d.value, err)
		}
	}
	return nil
}

// ConnString returns the DSN with the sqlite connection parameters
// (foreign keys, journal mode, busy timeout) appended as query options.
func (c *Config) ConnString() string {
	params := url.Values{}
	if c.ForeignKeys {
		params.Set("_foreign_keys", "on")
	}
	if c.JournalMode != "" {
		params.Set("_journal_mode", c.JournalMode)
	}
	if c.BusyTimeout != "" {
		if d, err := time.ParseDuration(c.BusyTimeout); err == nil && d > 0 {
			params.Set("_busy_timeout", fmt.Sprint(d.Milliseconds()))
		}
	}
	if len(params) == 0 {
		return c.DSN
	}
	sep := "?"
	if strings.Contains(c.DSN, "?") {
		sep = "&"
	}
	return c.DSN + sep + params.Encode()
}
