package testutil

import (
	"fmt"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Rows is raw table content keyed by column name.
type Rows = []map[string]interface{}

// LoadFixture inserts rows into table in order, bypassing models and hooks.
func LoadFixture(db *gorm.DB, table string, rows Rows) error {
	for i, row := range rows {
		if err := db.Table(table).Create(row).Error; err != nil {
			return fmt.Errorf("fixture %s row %d: %w", table, i, err)
		}
	}
	return nil
}

// MustLoadFixture is LoadFixture that fails t on error.
func MustLoadFixture(t testing.TB, db *gorm.DB, table string, rows Rows) {
	t.Helper()
	if err := LoadFixture(db, table, rows); err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
}

// TruncateTable deletes every row of table.
func TruncateTable(db *gorm.DB, table string) error {
	return db.Exec("DELETE FROM ?", clause.Table{Name: table}).Error
}

// TableExists reports whether table is present in the schema.
func TableExists(db *gorm.DB, table string) bool {
	return db.Migrator().HasTable(table)
}

// Tables lists the user tables in creation order.
func Tables(db *gorm.DB) ([]string, error) {
	var names []string
	err := db.Raw("SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY rowid").
		Scan(&names).Error
	return names, err
}

// CountRows counts the rows of table.
func CountRows(db *gorm.DB, table string) (int64, error) {
	var n int64
	err := db.Table(table).Count(&n).Error
	return n, err
}

// AssertRowCount fails t unless table holds exactly want rows.
func AssertRowCount(t testing.TB, db *gorm.DB, table string, want int64) {
	t.Helper()
	n, err := CountRows(db, table)
	if err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	if n != want {
		t.Errorf("table %s has %d rows, want %d", table, n, want)
	}
}

// AssertTableEmpty fails t if table holds rows.
func AssertTableEmpty(t testing.TB, db *gorm.DB, table string) {
	t.Helper()
	AssertRowCount(t, db, table, 0)
}

// AssertTablesEmpty fails t if any of tables holds rows.
func AssertTablesEmpty(t testing.TB, db *gorm.DB, tables ...string) {
	t.Helper()
	for _, table := range tables {
		AssertRowCount(t, db, table, 0)
	}
}
