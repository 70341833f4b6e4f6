package scheduling

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/internal/httperr"
)

// RequestReschedule files a reschedule request for a CONFIRMED or
// RESCHEDULED appointment and parks the appointment in
// PENDING_RESCHEDULE until an admin resolves it.
func (s *Service) RequestReschedule(ctx context.Context, appointmentID uuid.UUID, req *RescheduleRequest) (*RescheduleRequest, error) {
	if req.RequestedByRole == "" {
		return nil, httperr.Validationf("requested_by_role is required")
	}
	if req.RequestedByID == uuid.Nil {
		return nil, httperr.Validationf("requested_by_id is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, httperr.Validationf("reason is required")
	}

	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByIDForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		pending, err := s.requests.HasPending(ctx, appointmentID)
		if err != nil {
			return err
		}
		if pending {
			return httperr.Conflictf("a pending reschedule request already exists for this appointment")
		}
		if a.Status != StatusConfirmed && a.Status != StatusRescheduled {
			return httperr.InvalidStateError{Op: "request a reschedule", Current: a.Status}
		}
		if err := s.checkMinNotice(a.StartTime); err != nil {
			return err
		}

		req.AppointmentID = appointmentID
		req.Status = RequestPending
		req.ResolverNotes = nil
		req.ResolvedAt = nil
		if err := s.requests.Create(ctx, req); err != nil {
			return err
		}
		a.Status = StatusPendingReschedule
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		return s.record(ctx, EventRescheduleRequested, a)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ApproveReschedule moves the appointment to its new start: the
// argument when given, else the request's own proposal. The new
// interval is conflict-checked against the therapist's calendar with
// the appointment itself excluded.
func (s *Service) ApproveReschedule(ctx context.Context, requestID uuid.UUID, newStart *time.Time, resolverNotes string) (*Appointment, error) {
	var out *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return httperr.AlreadyResolvedError{Status: req.Status}
		}
		effective := newStart
		if effective == nil {
			effective = req.ProposedStart
		}
		if effective == nil {
			return httperr.Validationf("the request has no proposed start; supply one to approve")
		}

		a, err := s.appts.GetByIDForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if err := Transition(a.Status, StatusRescheduled); err != nil {
			return err
		}

		iv := Interval{Start: *effective, End: effective.Add(time.Duration(a.DurationMinutes) * time.Minute)}
		if err := s.checkDayWindow(iv); err != nil {
			return err
		}
		overlap, err := s.appts.HasOverlap(ctx, a.TherapistID, iv, &a.ID)
		if err != nil {
			return err
		}
		if overlap {
			return s.overlapErr(iv)
		}

		if err := s.resolve(ctx, req, RequestApproved, resolverNotes); err != nil {
			return err
		}
		a.StartTime = iv.Start
		a.EndTime = iv.End
		a.Status = StatusRescheduled
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return s.record(ctx, EventAppointmentRescheduled, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RejectReschedule declines the request and restores the appointment to
// CONFIRMED with its start untouched. Resolver notes are mandatory so
// the requester learns why.
func (s *Service) RejectReschedule(ctx context.Context, requestID uuid.UUID, resolverNotes string) (*Appointment, error) {
	if strings.TrimSpace(resolverNotes) == "" {
		return nil, httperr.Validationf("resolver_notes are required to reject a reschedule request")
	}
	var out *Appointment
	err := s.tx.WithTx(ctx, func(ctx context.Context) error {
		req, err := s.requests.GetByIDForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != RequestPending {
			return httperr.AlreadyResolvedError{Status: req.Status}
		}
		a, err := s.appts.GetByIDForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if err := Transition(a.Status, StatusConfirmed); err != nil {
			return err
		}
		if err := s.resolve(ctx, req, RequestRejected, resolverNotes); err != nil {
			return err
		}
		a.Status = StatusConfirmed
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		out = a
		return s.record(ctx, EventRescheduleRejected, a)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListRescheduleRequests returns an appointment's requests, newest
// first.
func (s *Service) ListRescheduleRequests(ctx context.Context, appointmentID uuid.UUID) ([]*RescheduleRequest, error) {
	if _, err := s.appts.GetByID(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.requests.ListByAppointment(ctx, appointmentID)
}

func (s *Service) resolve(ctx context.Context, req *RescheduleRequest, status, notes string) error {
	now := s.now()
	req.Status = status
	req.ResolvedAt = &now
	if notes = strings.TrimSpace(notes); notes != "" {
		req.ResolverNotes = &notes
	}
	return s.requests.Update(ctx, req)
}

// checkMinNotice enforces the reschedule notice window against the
// appointment's current start.
func (s *Service) checkMinNotice(start time.Time) error {
	notice := time.Duration(s.settings.MinNoticeDays) * 24 * time.Hour
	if s.now().Add(notice).After(start) {
		return httperr.Validationf("reschedule requires at least %d day(s) of notice before the appointment", s.settings.MinNoticeDays)
	}
	return nil
}
