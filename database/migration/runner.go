package migration

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/kbukum/dbfixture/logger"
)

const runnerTable = "gorm_migrations"

// Migration describes a single GORM-based schema migration.
type Migration struct {
	ID          string
	Description string
	Up          func(*gorm.DB) error
	Down        func(*gorm.DB) error
}

// AutoMigrate returns a Migration that creates or alters the tables for models.
func AutoMigrate(id string, models ...interface{}) Migration {
	return Migration{
		ID:          id,
		Description: fmt.Sprintf("auto-migrate %d model(s)", len(models)),
		Up:          func(tx *gorm.DB) error { return tx.AutoMigrate(models...) },
		Down: func(tx *gorm.DB) error {
			for i := len(models) - 1; i >= 0; i-- {
				if err := tx.Migrator().DropTable(models[i]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

// MigrationRunner applies GORM-based migrations tracked in the gorm_migrations table.
type MigrationRunner struct {
	db         *gorm.DB
	log        *logger.Logger
	migrations []Migration
}

// NewMigrationRunner creates a runner bound to the given database and logger.
func NewMigrationRunner(db *gorm.DB, log *logger.Logger) *MigrationRunner {
	if log == nil {
		log = logger.NewNop()
	}
	return &MigrationRunner{
		db:  db,
		log: log.WithComponent("migration"),
	}
}

// AddMigration registers a migration to be applied.
func (mr *MigrationRunner) AddMigration(migration Migration) *MigrationRunner {
	mr.migrations = append(mr.migrations, migration)
	return mr
}

// RunMigrations applies all pending migrations in order.
func (mr *MigrationRunner) RunMigrations() error {
	if err := mr.createMigrationsTable(); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, migration := range mr.migrations {
		applied, err := mr.IsApplied(migration.ID)
		if err != nil {
			return fmt.Errorf("failed to check migration status: %w", err)
		}
		if applied {
			mr.log.Debug("Migration already applied", map[string]interface{}{
				"id": migration.ID,
			})
			continue
		}

		mr.log.Debug("Applying migration", map[string]interface{}{
			"id":          migration.ID,
			"description": migration.Description,
		})

		if err := mr.db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return err
			}
			return tx.Exec("INSERT INTO "+runnerTable+" (id) VALUES (?)", migration.ID).Error
		}); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.ID, err)
		}
	}

	return nil
}

// IsApplied reports whether the migration with id has been recorded.
func (mr *MigrationRunner) IsApplied(id string) (bool, error) {
	var count int64
	err := mr.db.Table(runnerTable).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

func (mr *MigrationRunner) createMigrationsTable() error {
	return mr.db.Exec(`
		CREATE TABLE IF NOT EXISTS ` + runnerTable + ` (
			id VARCHAR(255) PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`).Error
}
