// Package testutil provides testing utilities for the database module.
//
// Component is a throwaway sqlite database implementing both
// component.Component and testutil.TestComponent. It lives in a temporary
// file (WAL mode, foreign keys on) that Stop removes.
//
//	comp := dbtest.NewComponent().WithMigrations(testmodels.Migrate)
//	testutil.T(t).Setup(comp)
//	db := comp.DB()
//
// Reset, Snapshot and Restore leave the migration bookkeeping tables alone.
//
// Fixture helpers:
//
//	dbtest.MustLoadFixture(t, db, "users", []map[string]interface{}{
//	    {"id": 1, "name": "alice"},
//	})
//	dbtest.AssertRowCount(t, db, "users", 1)
package testutil
