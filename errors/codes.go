package errors

// ErrorCode represents a machine-readable error code.
type ErrorCode string

// Usage errors: the API was called incorrectly.
const (
	// ErrCodeInvalidMode indicates an unknown change kind (created/updated/deleted).
	ErrCodeInvalidMode ErrorCode = "INVALID_MODE"
	// ErrCodeInvalidObserver indicates a subscription value that observes no event.
	ErrCodeInvalidObserver ErrorCode = "INVALID_OBSERVER"
	// ErrCodeInvalidInput indicates a malformed argument or configuration.
	ErrCodeInvalidInput ErrorCode = "INVALID_INPUT"
	// ErrCodeNotPersistent indicates an operation that needs a flushed entity.
	ErrCodeNotPersistent ErrorCode = "NOT_PERSISTENT"
)

// Transaction state errors
const (
	// ErrCodeNoTransaction indicates commit/rollback without an open transaction.
	ErrCodeNoTransaction ErrorCode = "NO_TRANSACTION"
	// ErrCodeTransactionActive indicates Begin while a transaction is already open.
	ErrCodeTransactionActive ErrorCode = "TRANSACTION_ACTIVE"
)

// Store errors
const (
	// ErrCodeNotFound indicates the requested row was not found.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"
	// ErrCodeAlreadyExists indicates a unique or primary key violation.
	ErrCodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	// ErrCodeDatabaseError indicates any other failure reported by the store.
	ErrCodeDatabaseError ErrorCode = "DATABASE_ERROR"
	// ErrCodeConnectionFailed indicates the store could not be reached.
	ErrCodeConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// ErrCodeCleanupFailed indicates a sandbox could not restore the store.
	ErrCodeCleanupFailed ErrorCode = "CLEANUP_FAILED"
)

var retryableCodes = map[ErrorCode]bool{
	ErrCodeConnectionFailed: true,
	ErrCodeDatabaseError:    true,
}

// IsRetryableCode returns true if the error code indicates a retryable error.
func IsRetryableCode(code ErrorCode) bool {
	return retryableCodes[code]
}
