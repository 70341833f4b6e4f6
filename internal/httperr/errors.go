package httperr

import (
	"errors"
	"fmt"
)

// ValidationError reports input that fails a domain precondition.
type ValidationError struct {
	Msg string
}

func (e ValidationError) Error() string { return e.Msg }

// Validationf builds a ValidationError from a format string.
func Validationf(format string, args ...interface{}) error {
	return ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// ConflictError reports a collision with existing state, such as an
// overlapping appointment or a duplicate pending reschedule request.
type ConflictError struct {
	Msg string
}

func (e ConflictError) Error() string { return e.Msg }

// Conflictf builds a ConflictError from a format string.
func Conflictf(format string, args ...interface{}) error {
	return ConflictError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError reports a missing entity.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// NotFound builds a NotFoundError for the given resource and id.
func NotFound(resource, id string) error {
	return NotFoundError{Resource: resource, ID: id}
}

// InvalidStateError reports an operation attempted while the entity is in a
// state that does not permit it.
type InvalidStateError struct {
	Op      string
	Current string
}

func (e InvalidStateError) Error() string {
	return fmt.Sprintf("cannot %s in status %s", e.Op, e.Current)
}

// InvalidTransitionError reports a lifecycle transition absent from the
// transition table. It always names both states.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %s to %s", e.From, e.To)
}

// AlreadyResolvedError reports a resolution attempt on a request that has
// already been approved or rejected.
type AlreadyResolvedError struct {
	Status string
}

func (e AlreadyResolvedError) Error() string {
	return fmt.Sprintf("request already resolved (%s)", e.Status)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var ce ConflictError
	return errors.As(err, &ce)
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var ne NotFoundError
	return errors.As(err, &ne)
}
