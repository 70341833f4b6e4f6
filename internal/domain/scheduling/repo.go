package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppointmentRepository persists appointments.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	// GetByIDForUpdate locks the row for the ambient transaction.
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment) error
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// ListBusyBetween returns the therapist's non-cancelled appointments
	// overlapping [from, to).
	ListBusyBetween(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]*Appointment, error)
	// HasOverlap reports whether any non-cancelled appointment of the
	// therapist collides with iv, locking the colliding rows. excludeID
	// leaves one appointment out of the check when rescheduling it.
	HasOverlap(ctx context.Context, therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error)
	ListByMaster(ctx context.Context, masterID uuid.UUID) ([]*Appointment, error)
}

// RescheduleRequestRepository persists reschedule requests.
type RescheduleRequestRepository interface {
	Create(ctx context.Context, r *RescheduleRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error)
	Update(ctx context.Context, r *RescheduleRequest) error
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*RescheduleRequest, error)
	HasPending(ctx context.Context, appointmentID uuid.UUID) (bool, error)
}

// TreatmentCycleRepository persists treatment-cycle master records.
type TreatmentCycleRepository interface {
	Create(ctx context.Context, c *TreatmentCycle) error
	GetByID(ctx context.Context, id uuid.UUID) (*TreatmentCycle, error)
}
