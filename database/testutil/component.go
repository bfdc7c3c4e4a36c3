// Package testutil provides testing utilities for the database module.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gorm.io/gorm"

	"github.com/kbukum/dbfixture/component"
	"github.com/kbukum/dbfixture/database"
	"github.com/kbukum/dbfixture/logger"
	"github.com/kbukum/dbfixture/testutil"
)

// bookkeeping tables survive Reset and Restore.
var preserved = map[string]bool{
	"schema_migrations": true,
	"gorm_migrations":   true,
}

// MigrateFunc prepares the schema of a freshly started database.
type MigrateFunc func(db *gorm.DB) error

// Component is a throwaway sqlite database for tests. It lives in a temporary
// file in WAL mode so a test can read through one connection while a session
// holds a transaction on another. Foreign keys are enforced.
type Component struct {
	db       *database.DB
	dir      string
	log      *logger.Logger
	models   []interface{}
	migrate  []MigrateFunc
	poolSize int
	started  bool
	mu       sync.RWMutex
}

var _ component.Component = (*Component)(nil)
var _ testutil.TestComponent = (*Component)(nil)

// NewComponent creates a new test database component.
func NewComponent() *Component {
	return &Component{log: logger.NewNop(), poolSize: 4}
}

// WithModels registers models for GORM auto-migration on Start.
func (c *Component) WithModels(models ...interface{}) *Component {
	c.models = append(c.models, models...)
	return c
}

// WithMigrations registers schema setup run on Start, before auto-migration.
func (c *Component) WithMigrations(fns ...MigrateFunc) *Component {
	c.migrate = append(c.migrate, fns...)
	return c
}

// WithLogger routes GORM and component logs to log.
func (c *Component) WithLogger(log *logger.Logger) *Component {
	c.log = log
	return c
}

// WithPoolSize sets the maximum number of open connections.
func (c *Component) WithPoolSize(n int) *Component {
	c.poolSize = n
	return c
}

// DB returns the underlying *gorm.DB, or nil if not started.
func (c *Component) DB() *gorm.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.db == nil {
		return nil
	}
	return c.db.GormDB
}

// Name returns the component name.
func (c *Component) Name() string {
	return "database-test"
}

// Start creates the database file and applies migrations.
func (c *Component) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return fmt.Errorf("component already started")
	}

	dir, err := os.MkdirTemp("", "dbfixture-*")
	if err != nil {
		return fmt.Errorf("failed to create database dir: %w", err)
	}

	cfg := database.Config{
		DSN:          "file:" + filepath.Join(dir, "test.db"),
		MaxOpenConns: c.poolSize,
		MaxRetries:   1,
		ForeignKeys:  true,
		JournalMode:  "WAL",
		BusyTimeout:  "5s",
		LogLevel:     "silent",
	}
	db, err := database.Open(ctx, cfg, c.log)
	if err != nil {
		_ = os.RemoveAll(dir)
		return fmt.Errorf("failed to open test database: %w", err)
	}

	c.db = db
	c.dir = dir
	c.started = true

	for _, fn := range c.migrate {
		if err := fn(db.GormDB); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	if len(c.models) > 0 {
		if err := db.AutoMigrate(c.models...); err != nil {
			return fmt.Errorf("auto-migrate failed: %w", err)
		}
	}

	return nil
}

// Stop closes the database and removes its file.
func (c *Component) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started || c.db == nil {
		return nil
	}

	c.started = false
	err := c.db.Close()
	c.db = nil
	if rmErr := os.RemoveAll(c.dir); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Health returns the health status of the test database.
func (c *Component) Health(ctx context.Context) component.Health {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.db == nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: "database not started",
		}
	}

	if err := c.db.PingContext(ctx); err != nil {
		return component.Health{
			Name:    c.Name(),
			Status:  component.StatusUnhealthy,
			Message: fmt.Sprintf("ping failed: %v", err),
		}
	}

	return component.Health{
		Name:   c.Name(),
		Status: component.StatusHealthy,
	}
}

// Describe reports where the database file lives.
func (c *Component) Describe() component.Description {
	return component.Description{
		Name:    "Test database",
		Type:    "database",
		Details: fmt.Sprintf("sqlite %s wal fk=on", c.dir),
	}
}

// Reset clears all data from all tables while preserving the schema.
func (c *Component) Reset(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.db == nil {
		return fmt.Errorf("component not started")
	}
	return c.clear(ctx)
}

func (c *Component) clear(ctx context.Context) error {
	tables, err := Tables(c.db.GormDB.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list tables: %w", err)
	}

	// children first, so foreign keys never dangle mid-way
	for i := len(tables) - 1; i >= 0; i-- {
		if preserved[tables[i]] {
			continue
		}
		if err := TruncateTable(c.db.GormDB.WithContext(ctx), tables[i]); err != nil {
			return fmt.Errorf("failed to clear table %s: %w", tables[i], err)
		}
	}
	return nil
}

// TableRows is one table's content inside a Snapshot.
type TableRows struct {
	Table string
	Rows  []map[string]interface{}
}

// Snapshot is the captured content of every data table, in creation order.
type Snapshot []TableRows

// Snapshot captures the current state of the database.
func (c *Component) Snapshot(ctx context.Context) (any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.db == nil {
		return nil, fmt.Errorf("component not started")
	}

	db := c.db.GormDB.WithContext(ctx)
	tables, err := Tables(db)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var snapshot Snapshot
	for _, table := range tables {
		if preserved[table] {
			continue
		}
		var rows []map[string]interface{}
		if err := db.Raw(fmt.Sprintf("SELECT * FROM %q", table)).Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("failed to snapshot table %s: %w", table, err)
		}
		snapshot = append(snapshot, TableRows{Table: table, Rows: rows})
	}

	return snapshot, nil
}

// Restore returns the database to a state captured by Snapshot.
func (c *Component) Restore(ctx context.Context, snap any) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.started || c.db == nil {
		return fmt.Errorf("component not started")
	}

	snapshot, ok := snap.(Snapshot)
	if !ok {
		return fmt.Errorf("invalid snapshot type: expected testutil.Snapshot, got %T", snap)
	}

	if err := c.clear(ctx); err != nil {
		return fmt.Errorf("failed to reset before restore: %w", err)
	}

	db := c.db.GormDB.WithContext(ctx)
	for _, t := range snapshot {
		if err := LoadFixture(db, t.Table, t.Rows); err != nil {
			return err
		}
	}

	return nil
}
