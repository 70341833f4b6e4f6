package scheduling

import "github.com/clinio/clinio/internal/httperr"

// Appointment lifecycle statuses, stored in canonical uppercase form.
// CANCELLED, COMPLETED and MISSED are terminal.
const (
	StatusPending           = "PENDING"
	StatusConfirmed         = "CONFIRMED"
	StatusPendingReschedule = "PENDING_RESCHEDULE"
	StatusRescheduled       = "RESCHEDULED"
	StatusCancelled         = "CANCELLED"
	StatusCompleted         = "COMPLETED"
	StatusMissed            = "MISSED"
)

var validStatuses = map[string]bool{
	StatusPending:           true,
	StatusConfirmed:         true,
	StatusPendingReschedule: true,
	StatusRescheduled:       true,
	StatusCancelled:         true,
	StatusCompleted:         true,
	StatusMissed:            true,
}

// transitions is the full lifecycle table. Any pair absent here is
// rejected with InvalidTransitionError.
var transitions = map[string]map[string]bool{
	StatusPending: {
		StatusConfirmed: true,
		StatusCancelled: true,
	},
	StatusConfirmed: {
		StatusPendingReschedule: true,
		StatusCancelled:         true,
		StatusCompleted:         true,
		StatusMissed:            true,
	},
	StatusPendingReschedule: {
		StatusRescheduled: true,
		StatusConfirmed:   true,
	},
	StatusRescheduled: {
		StatusPendingReschedule: true,
		StatusCancelled:         true,
	},
}

// ValidStatus reports whether s is a known appointment status.
func ValidStatus(s string) bool {
	return validStatuses[s]
}

// CanTransition reports whether from → to is in the lifecycle table.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Transition validates a lifecycle change, naming both states on
// rejection. Callers handle the idempotent same-status repeat before
// calling this.
func Transition(from, to string) error {
	if !CanTransition(from, to) {
		return httperr.InvalidTransitionError{From: from, To: to}
	}
	return nil
}
