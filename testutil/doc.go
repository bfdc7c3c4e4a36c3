// Package testutil provides lifecycle helpers for test components.
//
// A TestComponent is a component.Component that can also be reset and
// snapshotted, such as the in-memory database in database/testutil.
//
// # Quick Start
//
//	func TestSomething(t *testing.T) {
//	    db := dbtest.NewComponent().WithMigrations(testmodels.Migrations)
//	    testutil.T(t).Setup(db)
//	    // db is stopped when the test ends
//	}
//
// Several components can be driven together through a Manager, which starts
// them in registration order and stops them in reverse.
package testutil
