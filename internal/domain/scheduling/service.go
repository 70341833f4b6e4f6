package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/internal/httperr"
	"github.com/clinio/clinio/internal/platform/db"
)

// Outbox event types emitted by the scheduling service.
const (
	EventAppointmentBooked      = "appointment.booked"
	EventAppointmentConfirmed   = "appointment.confirmed"
	EventAppointmentCancelled   = "appointment.cancelled"
	EventAppointmentCompleted   = "appointment.completed"
	EventAppointmentMissed      = "appointment.missed"
	EventRescheduleRequested    = "appointment.reschedule_requested"
	EventAppointmentRescheduled = "appointment.rescheduled"
	EventRescheduleRejected     = "appointment.reschedule_rejected"
	EventTreatmentCycleCreated  = "treatment_cycle.created"
)

// EventRecorder appends lifecycle events to the transactional outbox.
type EventRecorder interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Settings carries the clinic-day and reschedule policy knobs.
type Settings struct {
	Location       *time.Location
	OpeningMinutes int
	ClosingMinutes int
	SlotInterval   time.Duration
	MinNoticeDays  int
}

// DefaultSettings returns the stock clinic policy: 08:00 to 20:30 on a
// 30-minute grid with one day of reschedule notice, UTC wall clock.
func DefaultSettings() Settings {
	return Settings{
		Location:       time.UTC,
		OpeningMinutes: 8 * 60,
		ClosingMinutes: 20*60 + 30,
		SlotInterval:   30 * time.Minute,
		MinNoticeDays:  1,
	}
}

// DayWindow returns the clinic opening and closing instants for the day
// containing t, evaluated on the clinic wall clock.
func (s Settings) DayWindow(t time.Time) (time.Time, time.Time) {
	local := t.In(s.Location)
	y, m, d := local.Date()
	opensAt := time.Date(y, m, d, s.OpeningMinutes/60, s.OpeningMinutes%60, 0, 0, s.Location)
	closesAt := time.Date(y, m, d, s.ClosingMinutes/60, s.ClosingMinutes%60, 0, 0, s.Location)
	return opensAt, closesAt
}

// Service implements the scheduling engine: booking, availability, the
// appointment lifecycle, the reschedule workflow and treatment cycles.
type Service struct {
	appts    AppointmentRepository
	requests RescheduleRequestRepository
	cycles   TreatmentCycleRepository
	tx       db.TxRunner
	events   EventRecorder
	settings Settings
	now      func() time.Time
}

func NewService(
	appts AppointmentRepository,
	requests RescheduleRequestRepository,
	cycles TreatmentCycleRepository,
	tx db.TxRunner,
	events EventRecorder,
	settings Settings,
) *Service {
	if settings.Location == nil {
		settings.Location = time.UTC
	}
	if settings.SlotInterval <= 0 {
		settings.SlotInterval = 30 * time.Minute
	}
	return &Service{
		appts:    appts,
		requests: requests,
		cycles:   cycles,
		tx:       tx,
		events:   events,
		settings: settings,
		now:      time.Now,
	}
}

// Book creates a PENDING appointment after checking the clinic-day
// window and the therapist's calendar inside one transaction.
func (s *Service) Book(ctx context.Context, a *Appointment) (*Appointment, error) {
	if a.PatientID == uuid.Nil {
		return nil, httperr.Validationf("patient_id is required")
	}
	if a.TherapistID == uuid.Nil {
		return nil, httperr.Validationf("therapist_id is required")
	}
	if a.StartTime.IsZero() {
		return nil, httperr.Validationf("start_time is required")
	}
	if a.DurationMinutes <= 0 {
		return nil, httperr.Validationf("duration_minutes must be positive")
	}
	if a.Type == "" {
		return nil, httperr.Validationf("type is required")
	}
	if !validAppointmentTypes[a.Type] {
		return nil, httperr.Validationf("unknown appointment type %q", a.Type)
	}

	a.EndTime = a.StartTime.Add(time.Duration(a.DurationMinutes) * time.Minute)
	if err := s.checkDayWindow(a.Interval()); err != nil {
		return nil, err
	}

	// Server-owned fields; ignore whatever the client sent.
	a.Status = StatusPending
	a.SessionCode = nil
	a.CancellationReason = nil
	a.MasterAppointmentID = nil
	a.TotalFee = nil
	a.PlatformFee = nil
	a.AdminEarnings = nil
	a.TherapistEarnings = nil
	a.DoctorEarnings = nil

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		overlap, err := s.appts.HasOverlap(ctx, a.TherapistID, a.Interval(), nil)
		if err != nil {
			return err
		}
		if overlap {
			return s.overlapErr(a.Interval())
		}
		if err := s.appts.Create(ctx, a); err != nil {
			return err
		}
		return s.record(ctx, EventAppointmentBooked, a)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, 0, httperr.Validationf("unknown status %q", f.Status)
	}
	return s.appts.List(ctx, f, limit, offset)
}

// AvailableSlots enumerates the free "HH:MM" start times for a
// therapist on a date. A zero duration defaults to one grid interval.
func (s *Service) AvailableSlots(ctx context.Context, therapistID uuid.UUID, date string, durationMinutes int) ([]string, error) {
	if therapistID == uuid.Nil {
		return nil, httperr.Validationf("therapist_id is required")
	}
	day, err := s.ParseDay(date)
	if err != nil {
		return nil, err
	}
	if durationMinutes < 0 {
		return nil, httperr.Validationf("duration_minutes must be positive")
	}
	if durationMinutes == 0 {
		durationMinutes = int(s.settings.SlotInterval / time.Minute)
	}

	opensAt, closesAt := s.settings.DayWindow(day)
	existing, err := s.appts.ListBusyBetween(ctx, therapistID, opensAt, closesAt)
	if err != nil {
		return nil, err
	}
	busy := make([]Interval, 0, len(existing))
	for _, a := range existing {
		busy = append(busy, a.Interval())
	}

	starts := GridSlots(opensAt, closesAt, s.settings.SlotInterval, time.Duration(durationMinutes)*time.Minute, busy)
	slots := make([]string, 0, len(starts))
	for _, t := range starts {
		slots = append(slots, t.In(s.settings.Location).Format("15:04"))
	}
	return slots, nil
}

// Confirm moves an appointment to CONFIRMED, minting its session code
// on the first confirmation.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, id, StatusConfirmed, EventAppointmentConfirmed, func(a *Appointment) error {
		if a.SessionCode == nil {
			code := NewSessionCode()
			a.SessionCode = &code
		}
		return nil
	})
}

// Cancel retires an appointment, keeping the row and recording why.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	return s.applyTransition(ctx, id, StatusCancelled, EventAppointmentCancelled, func(a *Appointment) error {
		reason = strings.TrimSpace(reason)
		if reason == "" {
			return httperr.Validationf("cancellation reason is required")
		}
		a.CancellationReason = &reason
		return nil
	})
}

func (s *Service) Complete(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, id, StatusCompleted, EventAppointmentCompleted, nil)
}

func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.applyTransition(ctx, id, StatusMissed, EventAppointmentMissed, nil)
}

// applyTransition drives the state machine for one appointment under a
// row lock. Re-applying the state the appointment is already in is an
// idempotent no-op returning the unchanged row.
func (s *Service) applyTransition(ctx context.Context, id uuid.UUID, target, eventType string, mutate func(*Appointment) error) (*Appointment, error) {
	var out *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == target {
			out = a
			return nil
		}
		if err := Transition(a.Status, target); err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(a); err != nil {
				return err
			}
		}
		a.Status = target
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return s.record(ctx, eventType, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ParseDay resolves a "2006-01-02" date string to midnight on the
// clinic wall clock.
func (s *Service) ParseDay(value string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", value, s.settings.Location)
	if err != nil {
		return time.Time{}, httperr.Validationf("invalid date %q, want YYYY-MM-DD", value)
	}
	return day, nil
}

// checkDayWindow enforces the clinic-day invariants: the interval stays
// within one clinic day, starting no earlier than opening and ending by
// the closing boundary.
func (s *Service) checkDayWindow(iv Interval) error {
	opensAt, closesAt := s.settings.DayWindow(iv.Start)
	if iv.Start.Before(opensAt) {
		return httperr.Validationf("start_time %s is before clinic opening %s",
			iv.Start.In(s.settings.Location).Format("15:04"), opensAt.Format("15:04"))
	}
	if iv.End.After(closesAt) {
		return httperr.Validationf("appointment would end at %s, past the %s closing boundary",
			iv.End.In(s.settings.Location).Format("15:04"), closesAt.Format("15:04"))
	}
	return nil
}

func (s *Service) overlapErr(iv Interval) error {
	return httperr.Conflictf("therapist is already booked between %s and %s",
		iv.Start.In(s.settings.Location).Format("2006-01-02 15:04"),
		iv.End.In(s.settings.Location).Format("15:04"))
}

func (s *Service) record(ctx context.Context, eventType string, a *Appointment) error {
	if s.events == nil {
		return nil
	}
	return s.events.Record(ctx, "appointment", a.ID.String(), eventType, a)
}
