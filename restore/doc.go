// Package restore undoes whatever a block of session activity persisted.
//
// A Restorable records the key of every entity inserted by a flush. On exit
// it rolls back whatever is still open, then deletes each recorded row that
// still exists and commits. Because it works from what was inserted rather
// than from one enclosing transaction, code under test is free to commit.
//
// Only inserts are undone. Updates to rows that existed before the block
// stay, and so do rows removed by the block.
package restore
