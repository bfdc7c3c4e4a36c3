// Package history records which entities a unit of work created, updated
// and deleted.
//
// A History observes one session. Flushes collect the session's new, dirty
// and deleted objects into a frame for the current transaction level; the
// outermost commit resolves them to identity keys and adds them to three
// durable ledgers. Savepoint commits fold their frame into the enclosing
// level, and rollbacks discard frames without touching the ledgers.
//
//	h := history.Track(t, sess)
//	svc.Register(ctx, "john")
//	user, err := h.AssertCreatedOne(User{})
package history
