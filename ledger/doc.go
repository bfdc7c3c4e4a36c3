// Package ledger records persisted row identities grouped by model class.
//
// A Ledger maps a model class (the Go struct type of an entity) to the set of
// primary-key tuples observed for it. The change tracker keeps one ledger per
// change kind; the sandbox keeps one for rows it must delete on exit.
//
// Idents compare by the printed form of their values, so an ident built from
// uint(1) equals one built from the literal 1.
package ledger
