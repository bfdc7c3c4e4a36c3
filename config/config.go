package config

import (
	"context"
	"fmt"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"gorm.io/gorm"

	"github.com/kbukum/dbfixture/database"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/observability"
	"github.com/kbukum/dbfixture/session"
)

// Config is the top-level configuration for code using dbfixture.
type Config struct {
	Name     string          `yaml:"name" mapstructure:"name"`
	Logging  logger.Config   `yaml:"logging" mapstructure:"logging"`
	Database database.Config `yaml:"database" mapstructure:"database"`
	Session  session.Config  `yaml:"session" mapstructure:"session"`

	Tracing observability.TracerConfig `yaml:"tracing" mapstructure:"tracing"`
}

// ApplyDefaults applies default values to every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "dbfixture"
	}
	c.Logging.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Session.ApplyDefaults()
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = c.Name
	}
	c.Tracing.ApplyDefaults()
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("config.logging: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("config.database: %w", err)
	}
	if err := c.Tracing.Validate(); err != nil {
		return fmt.Errorf("config.tracing: %w", err)
	}
	return nil
}

// Logger builds the logger described by the logging section.
func (c *Config) Logger() *logger.Logger {
	return logger.New(&c.Logging, c.Name)
}

// Open connects to the configured database.
func (c *Config) Open(ctx context.Context, log *logger.Logger) (*database.DB, error) {
	return database.Open(ctx, c.Database, log)
}

// TracerProvider builds a tracer provider from the tracing section.
func (c *Config) TracerProvider(exporter sdktrace.SpanExporter, log *logger.Logger) (*sdktrace.TracerProvider, error) {
	return observability.NewTracerProvider(c.Tracing, exporter, log)
}

// NewSession creates a session over db with the configured session options.
// Extra options are applied last.
func (c *Config) NewSession(db *gorm.DB, log *logger.Logger, extra ...session.Option) *session.Session {
	opts := append(c.Session.Options(), session.WithLogger(log))
	return session.New(db, append(opts, extra...)...)
}
