package testmodels

import (
	"testing"

	"gorm.io/gorm"

	dbtest "github.com/kbukum/dbfixture/database/testutil"
	"github.com/kbukum/dbfixture/testutil"
)

// Open starts a migrated test database that is torn down with t.
func Open(t testing.TB) (*dbtest.Component, *gorm.DB) {
	t.Helper()
	comp := dbtest.NewComponent().WithMigrations(Migrate)
	testutil.T(t).Setup(comp)
	return comp, comp.DB()
}
