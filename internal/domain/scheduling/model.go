package scheduling

import (
	"time"

	"github.com/google/uuid"
)

// Appointment types accepted by the booking API.
const (
	TypeInitialAssessment = "initial-assessment"
	TypeFollowUp          = "follow-up"
	TypeTreatment         = "treatment"
	TypeConsultation      = "consultation"
	TypeEmergency         = "emergency"
)

var validAppointmentTypes = map[string]bool{
	TypeInitialAssessment: true,
	TypeFollowUp:          true,
	TypeTreatment:         true,
	TypeConsultation:      true,
	TypeEmergency:         true,
}

// Appointment is a single session between a patient and a therapist.
// Rows are never physically deleted; cancellation is a status change
// that keeps the history intact.
type Appointment struct {
	ID                  uuid.UUID  `json:"id"`
	PatientID           uuid.UUID  `json:"patient_id"`
	TherapistID         uuid.UUID  `json:"therapist_id"`
	StartTime           time.Time  `json:"start_time"`
	EndTime             time.Time  `json:"end_time"`
	DurationMinutes     int        `json:"duration_minutes"`
	Status              string     `json:"status"`
	Type                string     `json:"type"`
	Issue               string     `json:"issue,omitempty"`
	Notes               string     `json:"notes,omitempty"`
	SessionCode         *string    `json:"session_code,omitempty"`
	CancellationReason  *string    `json:"cancellation_reason,omitempty"`
	MasterAppointmentID *uuid.UUID `json:"master_appointment_id,omitempty"`
	TotalFee            *float64   `json:"total_fee,omitempty"`
	PlatformFee         *float64   `json:"platform_fee,omitempty"`
	AdminEarnings       *float64   `json:"admin_earnings,omitempty"`
	TherapistEarnings   *float64   `json:"therapist_earnings,omitempty"`
	DoctorEarnings      *float64   `json:"doctor_earnings,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// Interval returns the appointment's occupancy as a half-open interval.
func (a *Appointment) Interval() Interval {
	return Interval{Start: a.StartTime, End: a.EndTime}
}

// AppointmentFilter narrows List queries. Nil/empty fields are skipped.
type AppointmentFilter struct {
	TherapistID *uuid.UUID
	PatientID   *uuid.UUID
	Status      string
	From        *time.Time
	To          *time.Time
}

// Reschedule request statuses, stored lowercase.
const (
	RequestPending  = "pending"
	RequestApproved = "approved"
	RequestRejected = "rejected"
)

// RescheduleRequest records one party asking to move an appointment.
// At most one pending request may exist per appointment.
type RescheduleRequest struct {
	ID              uuid.UUID  `json:"id"`
	AppointmentID   uuid.UUID  `json:"appointment_id"`
	RequestedByRole string     `json:"requested_by_role"`
	RequestedByID   uuid.UUID  `json:"requested_by_id"`
	ProposedStart   *time.Time `json:"proposed_start,omitempty"`
	Reason          string     `json:"reason"`
	Status          string     `json:"status"`
	ResolverNotes   *string    `json:"resolver_notes,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// TreatmentCycle is the master record grouping the per-day child
// appointments generated over an inclusive date range.
type TreatmentCycle struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	StartDate       time.Time  `json:"start_date"`
	EndDate         time.Time  `json:"end_date"`
	TimeOfDay       string     `json:"time_of_day"`
	DurationMinutes int        `json:"duration_minutes"`
	AppointmentType string     `json:"appointment_type"`
	Issue           string     `json:"issue,omitempty"`
	Notes           string     `json:"notes,omitempty"`
	TreatmentPlanID *uuid.UUID `json:"treatment_plan_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// CycleInput carries a treatment-cycle request. Dates and time of day
// arrive as strings ("2006-01-02", "15:04") and are resolved against
// the clinic timezone.
type CycleInput struct {
	PatientID       uuid.UUID  `json:"patient_id"`
	TherapistID     uuid.UUID  `json:"therapist_id"`
	StartDate       string     `json:"start_date"`
	EndDate         string     `json:"end_date"`
	TimeOfDay       string     `json:"time_of_day"`
	DurationMinutes int        `json:"duration_minutes"`
	Type            string     `json:"type"`
	Issue           string     `json:"issue"`
	Notes           string     `json:"notes"`
	TreatmentPlanID *uuid.UUID `json:"treatment_plan_id"`
}

// CycleResult is what treatment-cycle creation returns: the master, the
// children that were booked and the days skipped over conflicts.
type CycleResult struct {
	Master       *TreatmentCycle `json:"master"`
	Created      []*Appointment  `json:"created"`
	SkippedDates []string        `json:"skipped_dates"`
}
