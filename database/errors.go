package database

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	apperrors "github.com/kbukum/dbfixture/errors"
)

// IsConnectionError checks if a database error is a connection error
// that might be resolved by retrying.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"unable to open database file",
		"connection refused",
		"connection reset",
		"broken pipe",
		"driver: bad connection",
		"sql: database is closed",
		"invalid connection",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsRetryableError determines if a database error should trigger a retry.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if IsConnectionError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	patterns := []string{
		"database is locked",
		"database table is locked",
		"deadlock",
		"lock timeout",
	}
	for _, p := range patterns {
		if strings.Contains(errStr, p) {
			return true
		}
	}
	return false
}

// IsNotFoundError checks if the error is a GORM record-not-found error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}

// IsDuplicateError checks if the error is a unique or primary key violation.
func IsDuplicateError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// IsForeignKeyError checks if the error is a foreign key violation.
func IsForeignKeyError(err error) bool {
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

// FromDatabase converts a database error to an AppError.
// It translates GORM and sqlite errors to user-friendly messages.
func FromDatabase(err error, resource string) *apperrors.AppError {
	if err == nil {
		return nil
	}

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if IsNotFoundError(err) {
		return apperrors.NotFound(resource, "").WithCause(err)
	}

	if IsDuplicateError(err) {
		return apperrors.AlreadyExists(resource).WithCause(err)
	}

	if IsForeignKeyError(err) {
		return apperrors.InvalidInput(resource, "references a row that does not exist or is still referenced").
			WithCause(err)
	}

	if IsConnectionError(err) {
		return apperrors.ConnectionFailed("database").WithCause(err)
	}

	if IsRetryableError(err) {
		return (&apperrors.AppError{
			Code:      apperrors.ErrCodeDatabaseError,
			Message:   "Database operation failed. Please try again.",
			Retryable: true,
		}).WithCause(err)
	}

	dbErr := apperrors.DatabaseError(err)
	dbErr.Retryable = false
	return dbErr
}
