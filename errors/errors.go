package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError is the unified application error type.
type AppError struct {
	// Code is a machine-readable error code.
	Code ErrorCode `json:"code"`
	// Message is a human-readable error message.
	Message string `json:"message"`
	// Retryable indicates if the operation can be retried.
	Retryable bool `json:"retryable"`
	// Details contains additional context for the error.
	Details map[string]any `json:"details,omitempty"`
	// Cause is the underlying error that caused this error.
	Cause error `json:"-"`
}

// Error returns the string representation of the error.
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause of the error.
func (e *AppError) Unwrap() error { return e.Cause }

// Is reports whether target is an AppError with the same code, so sentinel
// comparisons like errors.Is(err, &AppError{Code: ErrCodeNotFound}) work.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !stderrors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithCause sets the underlying cause of the error and returns the receiver.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges the provided details into the error and returns the receiver.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	for k, v := range details {
		e.Details[k] = v
	}
	return e
}

// WithDetail sets a single detail key-value pair and returns the receiver.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New creates a new AppError with automatic retryable detection.
func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:      code,
		Message:   message,
		Retryable: IsRetryableCode(code),
	}
}

// Code returns the code of the first AppError in err's chain, or "" if none.
func Code(err error) ErrorCode {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code
	}
	return ""
}

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// --- Common Error Constructors ---

// InvalidMode creates an AppError for an unknown change kind.
func InvalidMode(mode string) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidMode,
		Message: fmt.Sprintf("mode must be one of created, updated, deleted (got %q)", mode),
		Details: map[string]any{"mode": mode},
	}
}

// InvalidObserver creates an AppError for a subscription that handles no events.
func InvalidObserver(observer any) *AppError {
	return &AppError{
		Code:    ErrCodeInvalidObserver,
		Message: fmt.Sprintf("%T does not observe any session event", observer),
	}
}

// InvalidInput creates a new AppError for invalid input.
func InvalidInput(field, reason string) *AppError {
	details := make(map[string]any)
	if field != "" {
		details["field"] = field
	}
	return &AppError{
		Code: ErrCodeInvalidInput, Message: fmt.Sprintf("Invalid input: %s", reason),
		Details: details,
	}
}

// Validation creates a new AppError for validation errors.
func Validation(message string) *AppError {
	return &AppError{Code: ErrCodeInvalidInput, Message: message}
}

// NotPersistent creates an AppError for an entity the session does not hold as
// a flushed row.
func NotPersistent(model string) *AppError {
	return &AppError{
		Code:    ErrCodeNotPersistent,
		Message: fmt.Sprintf("instance of %s is not persistent in this session", model),
		Details: map[string]any{"model": model},
	}
}

// NoTransaction creates an AppError for commit or rollback without a transaction.
func NoTransaction(op string) *AppError {
	return &AppError{
		Code:    ErrCodeNoTransaction,
		Message: fmt.Sprintf("%s: no transaction is begun", op),
		Details: map[string]any{"operation": op},
	}
}

// TransactionActive creates an AppError for Begin on a session that already
// has an open transaction.
func TransactionActive() *AppError {
	return &AppError{
		Code:    ErrCodeTransactionActive,
		Message: "a transaction is already begun; use BeginNested for a savepoint",
	}
}

// NotFound creates a new AppError for a row that was not found.
func NotFound(resource, id string) *AppError {
	details := map[string]any{"resource": resource}
	if id != "" {
		details["id"] = id
	}
	return &AppError{
		Code: ErrCodeNotFound, Message: fmt.Sprintf("The requested %s was not found.", resource),
		Details: details,
	}
}

// AlreadyExists creates a new AppError for a row that already exists.
func AlreadyExists(resource string) *AppError {
	return &AppError{
		Code: ErrCodeAlreadyExists, Message: fmt.Sprintf("A %s with these details already exists.", resource),
		Details: map[string]any{"resource": resource},
	}
}

// ConnectionFailed creates a new AppError for a store that cannot be reached.
func ConnectionFailed(service string) *AppError {
	return &AppError{
		Code: ErrCodeConnectionFailed, Message: fmt.Sprintf("Unable to connect to %s.", service),
		Retryable: true, Details: map[string]any{"service": service},
	}
}

// DatabaseError creates a new AppError for a database error.
func DatabaseError(cause error) *AppError {
	return &AppError{
		Code: ErrCodeDatabaseError, Message: "A database error occurred.",
		Retryable: true, Cause: cause,
	}
}

// CleanupFailed creates an AppError for a sandbox that could not undo its
// recorded rows.
func CleanupFailed(cause error) *AppError {
	return &AppError{
		Code: ErrCodeCleanupFailed, Message: "restoring the store after the sandboxed block failed",
		Cause: cause,
	}
}
