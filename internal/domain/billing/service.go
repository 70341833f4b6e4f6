package billing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/internal/domain/scheduling"
	"github.com/clinio/clinio/internal/httperr"
	"github.com/clinio/clinio/internal/platform/db"
)

// EventAppointmentFeeSet is published when a fee split is persisted on an
// appointment.
const EventAppointmentFeeSet = "appointment.fee_set"

// AppointmentStore is the slice of the appointment repository billing
// needs: locked reads and writes of single rows.
type AppointmentStore interface {
	GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*scheduling.Appointment, error)
	Update(ctx context.Context, a *scheduling.Appointment) error
}

// EventRecorder appends domain events to the outbox inside the ambient
// transaction.
type EventRecorder interface {
	Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error
}

// Service computes fee splits and earnings summaries.
type Service struct {
	appts  AppointmentStore
	repo   Repository
	alloc  *Allocator
	tx     db.TxRunner
	events EventRecorder
	loc    *time.Location
}

// NewService wires the billing service. events may be nil; loc defaults
// to UTC and governs how report dates are interpreted.
func NewService(appts AppointmentStore, repo Repository, alloc *Allocator, tx db.TxRunner, events EventRecorder, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{appts: appts, repo: repo, alloc: alloc, tx: tx, events: events, loc: loc}
}

// ComputeFeeSplit previews the allocation of totalFee without touching
// any appointment.
func (s *Service) ComputeFeeSplit(totalFee float64) (FeeSplit, error) {
	return s.alloc.Allocate(totalFee)
}

// SetAppointmentFee computes the split for totalFee and persists it on
// the appointment. Setting a new fee overwrites the previous split.
// Cancelled appointments cannot carry a fee.
func (s *Service) SetAppointmentFee(ctx context.Context, id uuid.UUID, totalFee float64) (*scheduling.Appointment, error) {
	split, err := s.alloc.Allocate(totalFee)
	if err != nil {
		return nil, err
	}

	var updated *scheduling.Appointment
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		a, err := s.appts.GetByIDForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if a.Status == scheduling.StatusCancelled {
			return httperr.InvalidStateError{Op: "set a fee", Current: a.Status}
		}
		a.TotalFee = &split.TotalFee
		a.PlatformFee = &split.PlatformFee
		a.AdminEarnings = &split.AdminEarnings
		a.TherapistEarnings = &split.TherapistEarnings
		a.DoctorEarnings = &split.DoctorEarnings
		if err := s.appts.Update(ctx, a); err != nil {
			return err
		}
		updated = a
		if s.events != nil {
			return s.events.Record(ctx, "appointment", a.ID.String(), EventAppointmentFeeSet, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Earnings reports one party's take over completed appointments. fromStr
// and toStr are inclusive dates; the returned report carries the
// half-open instant range that was queried.
func (s *Service) Earnings(ctx context.Context, party string, therapistID *uuid.UUID, fromStr, toStr string) (*EarningsReport, error) {
	party = strings.ToLower(strings.TrimSpace(party))
	if !validParties[party] {
		return nil, httperr.Validationf("unknown party %q, want platform, admin, therapist or doctor", party)
	}
	if fromStr == "" || toStr == "" {
		return nil, httperr.Validationf("from and to are required (YYYY-MM-DD)")
	}
	from, err := s.parseDay(fromStr)
	if err != nil {
		return nil, err
	}
	to, err := s.parseDay(toStr)
	if err != nil {
		return nil, err
	}
	if from.After(to) {
		return nil, httperr.Validationf("from must not be after to")
	}
	toExclusive := to.AddDate(0, 0, 1)

	total, count, err := s.repo.Earnings(ctx, party, therapistID, from, toExclusive)
	if err != nil {
		return nil, err
	}
	return &EarningsReport{
		Party:            party,
		TherapistID:      therapistID,
		From:             from,
		To:               toExclusive,
		AppointmentCount: count,
		Total:            round2(total),
	}, nil
}

func (s *Service) parseDay(v string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", v, s.loc)
	if err != nil {
		return time.Time{}, httperr.Validationf("invalid date %q, want YYYY-MM-DD", v)
	}
	return day, nil
}
