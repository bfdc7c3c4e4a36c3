package database

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/kbukum/dbfixture/component"
	"github.com/kbukum/dbfixture/database/migration"
	"github.com/kbukum/dbfixture/logger"
)

// Component wraps DB and implements component.Component for lifecycle management.
type Component struct {
	db        *DB
	cfg       Config
	log       *logger.Logger
	driver    DialectorFunc
	models    []interface{}
	migrateFS fs.FS
	migrateAt string
}

// NewComponent creates a database component.
func NewComponent(cfg Config, log *logger.Logger) *Component {
	if log == nil {
		log = logger.NewNop()
	}
	return &Component{
		cfg:    cfg,
		log:    log.WithComponent("database"),
		driver: SQLite,
	}
}

// WithDriver replaces the default sqlite dialector.
func (c *Component) WithDriver(fn DialectorFunc) *Component {
	c.driver = fn
	return c
}

// WithAutoMigrate registers models for auto-migration on Start.
func (c *Component) WithAutoMigrate(models ...interface{}) *Component {
	c.models = append(c.models, models...)
	return c
}

// WithMigrations registers golang-migrate SQL files applied on Start.
func (c *Component) WithMigrations(fsys fs.FS, path string) *Component {
	c.migrateFS = fsys
	c.migrateAt = path
	return c
}

// DB returns the underlying *DB, or nil if not started.
func (c *Component) DB() *DB {
	return c.db
}

var _ component.Component = (*Component)(nil)
var _ component.Describable = (*Component)(nil)

// Name returns the component name.
func (c *Component) Name() string { return "database" }

// Start connects to the database and applies migrations.
func (c *Component) Start(ctx context.Context) error {
	if c.db != nil {
		return fmt.Errorf("database start: already started")
	}
	cfg := c.cfg
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("database start: %w", err)
	}

	db, err := NewWithContext(ctx, c.driver(cfg.ConnString()), cfg, c.log)
	if err != nil {
		return fmt.Errorf("database start: %w", err)
	}
	c.db = db

	if c.migrateFS != nil {
		if err := migration.MigrateUp(db.GormDB, c.migrateFS, c.migrateAt, nil); err != nil {
			return fmt.Errorf("database migrate: %w", err)
		}
	}
	if cfg.AutoMigrate && len(c.models) > 0 {
		if err := c.db.AutoMigrate(c.models...); err != nil {
			return fmt.Errorf("database auto-migrate: %w", err)
		}
	}

	return nil
}

// Stop closes the database connection.
func (c *Component) Stop(_ context.Context) error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// Health returns the current health status of the database.
func (c *Component) Health(ctx context.Context) component.Health {
	if c.db == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "database not initialized",
		}
	}

	if h := c.db.CheckHealth(ctx); !h.Connected {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %s", h.Error),
		}
	}

	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Describe returns a one-line summary of the configuration.
func (c *Component) Describe() component.Description {
	cfg := c.cfg
	cfg.ApplyDefaults()
	details := fmt.Sprintf("dsn=%s pool=%d/%d", cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if cfg.ForeignKeys {
		details += " fk=on"
	}
	if cfg.AutoMigrate {
		details += " auto-migrate=on"
	}
	return component.Description{
		Name:    "Database",
		Type:    "database",
		Details: details,
	}
}
