package shared

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyFulfilled indicates a backorder with nothing left pending.
	ErrAlreadyFulfilled = errors.New("backorder already fulfilled")
	// ErrStockUnavailable indicates a lot that is inactive or has no quantity left.
	ErrStockUnavailable = errors.New("stock unavailable")
	// ErrInconsistentStockReference indicates a lot that belongs to another product or location.
	ErrInconsistentStockReference = errors.New("inventory lot does not match backorder product or location")
	// ErrNothingToFulfill indicates the clamped fulfillable quantity is zero.
	ErrNothingToFulfill = errors.New("nothing to fulfill")
	// ErrDuplicateDocumentNumber indicates a document number collided on insert.
	ErrDuplicateDocumentNumber = errors.New("duplicate document number")
	// ErrValidation indicates malformed caller input.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrentUpdate indicates PostgreSQL aborted the transaction to serialise it
	// against a concurrent writer. The request may be retried as is.
	ErrConcurrentUpdate = errors.New("concurrent update, retry the request")
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

// IsUniqueViolation reports whether err is a PostgreSQL unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation
	}
	return false
}

// IsSerializationFailure reports whether err is a serialization failure or deadlock abort.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected
	}
	return false
}

// WrapConcurrentUpdate turns a serialization failure into ErrConcurrentUpdate.
// Other errors pass through unchanged.
func WrapConcurrentUpdate(err error) error {
	if err == nil || errors.Is(err, ErrConcurrentUpdate) || !IsSerializationFailure(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrConcurrentUpdate, err)
}

// UserSafeMessage returns a message that can be shown to the caller.
func UserSafeMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "The requested record was not found."
	case errors.Is(err, ErrAlreadyFulfilled):
		return "This backorder has already been fulfilled."
	case errors.Is(err, ErrStockUnavailable):
		return "The selected inventory lot has no stock available."
	case errors.Is(err, ErrInconsistentStockReference):
		return "The selected inventory lot does not match the backorder product or location."
	case errors.Is(err, ErrNothingToFulfill):
		return "There is nothing left to fulfill."
	case errors.Is(err, ErrDuplicateDocumentNumber):
		return "The document number is already in use, please retry."
	case errors.Is(err, ErrIdempotencyConflict):
		return "This request has already been processed."
	case errors.Is(err, ErrConcurrentUpdate):
		return "The record was changed by another request, please retry."
	case errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "An unexpected error occurred."
	}
}

// WrapDuplicateDocument turns a unique violation into ErrDuplicateDocumentNumber
// so callers can re-request a number. Other errors pass through unchanged.
func WrapDuplicateDocument(err error) error {
	if err == nil || errors.Is(err, ErrDuplicateDocumentNumber) || !IsUniqueViolation(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrDuplicateDocumentNumber, err)
}

// IsDomainError reports whether err is one of the expected rejection kinds.
func IsDomainError(err error) bool {
	for _, target := range []error{ErrNotFound, ErrAlreadyFulfilled, ErrStockUnavailable, ErrInconsistentStockReference,
		ErrNothingToFulfill, ErrDuplicateDocumentNumber, ErrValidation, ErrIdempotencyConflict, ErrConcurrentUpdate} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
