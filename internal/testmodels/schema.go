package testmodels

import (
	"embed"

	"gorm.io/gorm"

	"github.com/kbukum/dbfixture/database/migration"
	"github.com/kbukum/dbfixture/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Tables lists the schema tables, parents first.
var Tables = []string{"users", "smis", "categories", "roles", "roles_category", "audit_entries"}

// Migrate applies the SQL schema and then the GORM-managed audit table.
func Migrate(db *gorm.DB) error {
	if err := migration.MigrateUp(db, migrationsFS, "migrations", nil); err != nil {
		return err
	}
	return migration.NewMigrationRunner(db, logger.NewNop()).
		AddMigration(migration.AutoMigrate("000002_audit_entries", &AuditEntry{})).
		RunMigrations()
}
