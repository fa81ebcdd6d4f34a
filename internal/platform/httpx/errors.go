package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/fulfillment/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	msg := shared.UserSafeMessage(err)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", msg)
	case errors.Is(err, shared.ErrAlreadyFulfilled):
		Problem(w, http.StatusConflict, "Already Fulfilled", msg)
	case errors.Is(err, shared.ErrDuplicateDocumentNumber):
		Problem(w, http.StatusConflict, "Duplicate Document Number", msg)
	case errors.Is(err, shared.ErrIdempotencyConflict):
		Problem(w, http.StatusConflict, "Duplicate Request", msg)
	case errors.Is(err, shared.ErrConcurrentUpdate):
		Problem(w, http.StatusConflict, "Concurrent Update", msg)
	case errors.Is(err, shared.ErrStockUnavailable):
		Problem(w, http.StatusUnprocessableEntity, "Stock Unavailable", msg)
	case errors.Is(err, shared.ErrInconsistentStockReference):
		Problem(w, http.StatusUnprocessableEntity, "Inconsistent Stock Reference", msg)
	case errors.Is(err, shared.ErrNothingToFulfill):
		Problem(w, http.StatusUnprocessableEntity, "Nothing To Fulfill", msg)
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", msg)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
