// Package session is a unit-of-work session over GORM.
//
// A Session keeps an identity map of the entities it holds, tracks pending
// inserts, column changes and deletes, and writes them in one Flush:
// inserts in dependency order (belongs-to targets and has-many owners
// first, foreign keys copied from the related objects), then updates, join
// table rows for many-to-many associations, and deletes.
//
// Transactions begin implicitly on the first flush or read unless the
// session was created WithAutocommit, in which case Begin must be called and
// a Flush outside a transaction commits on its own. BeginNested opens a
// SAVEPOINT. Rollback undoes one level: rows inserted in it leave the
// identity map, flushed deletes come back, and column values revert to what
// they were when the level began.
//
// Observers subscribe to three events:
//
//	AfterFlush(s, fc)           new/dirty/deleted sets as they were before the flush
//	AfterCommit(s)              s.Transaction() still describes the committed level
//	AfterSoftRollback(s, prev)  prev is the level that was rolled back
//
// A Session is not safe for concurrent use. Registry hands out one shared
// Session per scope; both *Session and *Registry satisfy Provider.
package session
