// Package errors provides the structured error type used across dbfixture.
// Every library-raised failure that is not a test assertion is an AppError
// carrying a machine-readable code, so callers can branch on errors.Is / As
// without matching message text.
package errors
