// Package migration applies schema migrations to a GORM-managed database.
// It supports both file-based migrations (via golang-migrate) and programmatic
// GORM migrations.
//
// File-based migrations default to the golang-migrate sqlite3 driver:
//
//	//go:embed migrations/*.sql
//	var migrationsFS embed.FS
//
//	err := migration.MigrateUp(gormDB, migrationsFS, "migrations", nil)
package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"
)

// DriverFunc creates a migrate database driver from sql.DB.
// A nil DriverFunc selects SQLite3.
type DriverFunc func(*sql.DB) (database.Driver, error)

// SQLite3 is the default DriverFunc.
func SQLite3(db *sql.DB) (database.Driver, error) {
	return sqlite3.WithInstance(db, &sqlite3.Config{})
}

// MigrateUp applies every pending VERSION_name.up.sql file under path.
// migrate.ErrNoChange is not an error.
func MigrateUp(gormDB *gorm.DB, migrationsFS fs.FS, path string, driverFunc DriverFunc) error {
	return run(gormDB, migrationsFS, path, driverFunc, "up", (*migrate.Migrate).Up)
}

// MigrateDown reverts every applied migration.
func MigrateDown(gormDB *gorm.DB, migrationsFS fs.FS, path string, driverFunc DriverFunc) error {
	return run(gormDB, migrationsFS, path, driverFunc, "down", (*migrate.Migrate).Down)
}

// MigrateSteps applies n migrations forward, or -n backward when n is negative.
func MigrateSteps(gormDB *gorm.DB, migrationsFS fs.FS, path string, n int, driverFunc DriverFunc) error {
	return run(gormDB, migrationsFS, path, driverFunc, "steps", func(m *migrate.Migrate) error {
		return m.Steps(n)
	})
}

// MigrateVersion reports the applied version and whether the last run
// left the schema dirty. An untouched database returns migrate.ErrNilVersion.
func MigrateVersion(gormDB *gorm.DB, migrationsFS fs.FS, path string, driverFunc DriverFunc) (uint, bool, error) {
	m, err := newMigrator(gormDB, migrationsFS, path, driverFunc)
	if err != nil {
		return 0, false, err
	}
	return m.Version()
}

func run(gormDB *gorm.DB, migrationsFS fs.FS, path string, driverFunc DriverFunc, op string, fn func(*migrate.Migrate) error) error {
	m, err := newMigrator(gormDB, migrationsFS, path, driverFunc)
	if err != nil {
		return err
	}
	if err := fn(m); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migrate %s: %w", op, err)
	}
	return nil
}

// newMigrator creates a golang-migrate instance backed by migrationsFS.
// Callers must not call m.Close(): it would close the shared sql.DB.
func newMigrator(gormDB *gorm.DB, migrationsFS fs.FS, path string, driverFunc DriverFunc) (*migrate.Migrate, error) {
	if driverFunc == nil {
		driverFunc = SQLite3
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql.DB: %w", err)
	}

	driver, err := driverFunc(sqlDB)
	if err != nil {
		return nil, fmt.Errorf("create database driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, path)
	if err != nil {
		return nil, fmt.Errorf("create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "database", driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}
