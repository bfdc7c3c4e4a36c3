// Package database provides a GORM-based sqlite component with connection
// pooling, health checks, transactions, and migration support.
//
// # Quick Start
//
//	cfg := database.Config{DSN: "app.db", ForeignKeys: true}
//	comp := database.NewComponent(cfg, log).
//	    WithMigrations(migrationsFS, "migrations")
//	if err := comp.Start(ctx); err != nil { ... }
//	defer comp.Stop(ctx)
//
//	s := session.New(comp.DB().GormDB)
//
// Connections are opened with TranslateError enabled, so constraint
// violations surface as gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated.
// FromDatabase turns those into AppErrors.
//
// # Subpackages
//
//   - migration: file-based migrations (golang-migrate) and programmatic GORM migrations
//   - testutil: in-memory sqlite component and fixture helpers for tests
package database
