package httperr

import (
	"errors"
	"net/http"
)

// StatusCode maps a domain error to its HTTP status. Unknown errors map to
// 500 so handlers never leak internal failures as client faults.
func StatusCode(err error) int {
	var (
		ve ValidationError
		ce ConflictError
		ne NotFoundError
		se InvalidStateError
		te InvalidTransitionError
		re AlreadyResolvedError
	)
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest
	case errors.As(err, &ne):
		return http.StatusNotFound
	case errors.As(err, &ce), errors.As(err, &re):
		return http.StatusConflict
	case errors.As(err, &se), errors.As(err, &te):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
