package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/internal/httperr"
)

// parseTimeOfDay resolves "15:04" into hour and minute components.
func parseTimeOfDay(value string) (int, int, error) {
	t, err := time.Parse("15:04", value)
	if err != nil {
		return 0, 0, httperr.Validationf("invalid time_of_day %q, want HH:MM", value)
	}
	return t.Hour(), t.Minute(), nil
}

// CreateTreatmentCycle creates the master record plus one PENDING child
// appointment per conflict-free day in the inclusive date range.
// Conflicting days are skipped and reported as data, not errors. The
// whole cycle commits in a single transaction.
func (s *Service) CreateTreatmentCycle(ctx context.Context, in CycleInput) (*CycleResult, error) {
	if in.PatientID == uuid.Nil {
		return nil, httperr.Validationf("patient_id is required")
	}
	if in.TherapistID == uuid.Nil {
		return nil, httperr.Validationf("therapist_id is required")
	}
	if in.DurationMinutes <= 0 {
		return nil, httperr.Validationf("duration_minutes must be positive")
	}
	if in.Type == "" {
		in.Type = TypeTreatment
	}
	if !validAppointmentTypes[in.Type] {
		return nil, httperr.Validationf("unknown appointment type %q", in.Type)
	}
	startDate, err := s.ParseDay(in.StartDate)
	if err != nil {
		return nil, err
	}
	endDate, err := s.ParseDay(in.EndDate)
	if err != nil {
		return nil, err
	}
	if startDate.After(endDate) {
		return nil, httperr.Validationf("start_date must not be after end_date")
	}
	hour, minute, err := parseTimeOfDay(in.TimeOfDay)
	if err != nil {
		return nil, err
	}

	// The daily interval must fit the clinic day before any row is written.
	duration := time.Duration(in.DurationMinutes) * time.Minute
	first := s.slotOn(startDate, hour, minute)
	if err := s.checkDayWindow(Interval{Start: first, End: first.Add(duration)}); err != nil {
		return nil, err
	}

	master := &TreatmentCycle{
		PatientID:       in.PatientID,
		TherapistID:     in.TherapistID,
		StartDate:       startDate,
		EndDate:         endDate,
		TimeOfDay:       in.TimeOfDay,
		DurationMinutes: in.DurationMinutes,
		AppointmentType: in.Type,
		Issue:           in.Issue,
		Notes:           in.Notes,
		TreatmentPlanID: in.TreatmentPlanID,
	}
	result := &CycleResult{Master: master, Created: []*Appointment{}, SkippedDates: []string{}}

	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.cycles.Create(ctx, master); err != nil {
			return err
		}
		for day := startDate; !day.After(endDate); day = day.AddDate(0, 0, 1) {
			start := s.slotOn(day, hour, minute)
			iv := Interval{Start: start, End: start.Add(duration)}
			overlap, err := s.appts.HasOverlap(ctx, in.TherapistID, iv, nil)
			if err != nil {
				return err
			}
			if overlap {
				result.SkippedDates = append(result.SkippedDates, day.Format("2006-01-02"))
				continue
			}
			child := &Appointment{
				PatientID:           in.PatientID,
				TherapistID:         in.TherapistID,
				StartTime:           iv.Start,
				EndTime:             iv.End,
				DurationMinutes:     in.DurationMinutes,
				Status:              StatusPending,
				Type:                in.Type,
				Issue:               in.Issue,
				Notes:               in.Notes,
				MasterAppointmentID: &master.ID,
			}
			if err := s.appts.Create(ctx, child); err != nil {
				return err
			}
			result.Created = append(result.Created, child)
		}
		if s.events == nil {
			return nil
		}
		return s.events.Record(ctx, "treatment_cycle", master.ID.String(), EventTreatmentCycleCreated, result)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// slotOn places the cycle's wall-clock time on a calendar day.
func (s *Service) slotOn(day time.Time, hour, minute int) time.Time {
	y, m, d := day.In(s.settings.Location).Date()
	return time.Date(y, m, d, hour, minute, 0, 0, s.settings.Location)
}

func (s *Service) GetTreatmentCycle(ctx context.Context, id uuid.UUID) (*TreatmentCycle, error) {
	return s.cycles.GetByID(ctx, id)
}

// ChildAppointments lists a cycle's children ordered by start.
func (s *Service) ChildAppointments(ctx context.Context, masterID uuid.UUID) ([]*Appointment, error) {
	if _, err := s.cycles.GetByID(ctx, masterID); err != nil {
		return nil, err
	}
	return s.appts.ListByMaster(ctx, masterID)
}
