package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/clinio/clinio/internal/domain/scheduling"
	"github.com/clinio/clinio/internal/httperr"
)

type mockApptStore struct {
	items map[uuid.UUID]*scheduling.Appointment
}

func newMockApptStore() *mockApptStore {
	return &mockApptStore{items: map[uuid.UUID]*scheduling.Appointment{}}
}

func (m *mockApptStore) GetByIDForUpdate(_ context.Context, id uuid.UUID) (*scheduling.Appointment, error) {
	a, ok := m.items[id]
	if !ok {
		return nil, httperr.NotFound("appointment", id.String())
	}
	cp := *a
	return &cp, nil
}

func (m *mockApptStore) Update(_ context.Context, a *scheduling.Appointment) error {
	if _, ok := m.items[a.ID]; !ok {
		return httperr.NotFound("appointment", a.ID.String())
	}
	cp := *a
	m.items[a.ID] = &cp
	return nil
}

type mockEarningsRepo struct {
	total float64
	count int

	gotParty     string
	gotTherapist *uuid.UUID
	gotFrom      time.Time
	gotTo        time.Time
}

func (m *mockEarningsRepo) Earnings(_ context.Context, party string, therapistID *uuid.UUID, from, to time.Time) (float64, int, error) {
	m.gotParty = party
	m.gotTherapist = therapistID
	m.gotFrom = from
	m.gotTo = to
	return m.total, m.count, nil
}

type noopTx struct{}

func (noopTx) WithTx(ctx context.Context, fn func(context.Context) error) error { return fn(ctx) }

type eventSink struct {
	types []string
}

func (s *eventSink) Record(_ context.Context, _, _, eventType string, _ any) error {
	s.types = append(s.types, eventType)
	return nil
}

func newBillingService() (*Service, *mockApptStore, *mockEarningsRepo, *eventSink) {
	appts := newMockApptStore()
	repo := &mockEarningsRepo{}
	sink := &eventSink{}
	svc := NewService(appts, repo, NewAllocator(DefaultRates()), noopTx{}, sink, time.UTC)
	return svc, appts, repo, sink
}

func seedAppt(store *mockApptStore, status string) *scheduling.Appointment {
	a := &scheduling.Appointment{
		ID:          uuid.New(),
		PatientID:   uuid.New(),
		TherapistID: uuid.New(),
		Status:      status,
	}
	store.items[a.ID] = a
	return a
}

func TestSetAppointmentFee(t *testing.T) {
	svc, store, _, sink := newBillingService()
	a := seedAppt(store, scheduling.StatusCompleted)

	updated, err := svc.SetAppointmentFee(context.Background(), a.ID, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if updated.TotalFee == nil || *updated.TotalFee != 1000 {
		t.Errorf("total = %v, want 1000", updated.TotalFee)
	}
	if updated.PlatformFee == nil || *updated.PlatformFee != 30 {
		t.Errorf("platform = %v, want 30", updated.PlatformFee)
	}
	if updated.AdminEarnings == nil || *updated.AdminEarnings != 388 {
		t.Errorf("admin = %v, want 388", updated.AdminEarnings)
	}
	if updated.TherapistEarnings == nil || *updated.TherapistEarnings != 388 {
		t.Errorf("therapist = %v, want 388", updated.TherapistEarnings)
	}
	if updated.DoctorEarnings == nil || *updated.DoctorEarnings != 194 {
		t.Errorf("doctor = %v, want 194", updated.DoctorEarnings)
	}

	kept := store.items[a.ID]
	if kept.TotalFee == nil || *kept.TotalFee != 1000 {
		t.Error("split not persisted")
	}
	if len(sink.types) != 1 || sink.types[0] != EventAppointmentFeeSet {
		t.Errorf("events = %v, want [%s]", sink.types, EventAppointmentFeeSet)
	}
}

func TestSetAppointmentFeeOverwrites(t *testing.T) {
	svc, store, _, _ := newBillingService()
	a := seedAppt(store, scheduling.StatusCompleted)

	if _, err := svc.SetAppointmentFee(context.Background(), a.ID, 1000); err != nil {
		t.Fatalf("first fee: %v", err)
	}
	updated, err := svc.SetAppointmentFee(context.Background(), a.ID, 500)
	if err != nil {
		t.Fatalf("second fee: %v", err)
	}
	if *updated.TotalFee != 500 || *updated.PlatformFee != 15 {
		t.Errorf("overwrite = total %v platform %v, want 500 and 15", *updated.TotalFee, *updated.PlatformFee)
	}
	if *updated.AdminEarnings != 194 || *updated.TherapistEarnings != 194 || *updated.DoctorEarnings != 97 {
		t.Errorf("overwrite shares = %v/%v/%v, want 194/194/97",
			*updated.AdminEarnings, *updated.TherapistEarnings, *updated.DoctorEarnings)
	}
}

func TestSetAppointmentFeeOnCancelled(t *testing.T) {
	svc, store, _, sink := newBillingService()
	a := seedAppt(store, scheduling.StatusCancelled)

	_, err := svc.SetAppointmentFee(context.Background(), a.ID, 100)
	var se httperr.InvalidStateError
	if !errors.As(err, &se) {
		t.Fatalf("expected InvalidStateError, got %v", err)
	}
	if store.items[a.ID].TotalFee != nil {
		t.Error("fee must not be persisted on a cancelled appointment")
	}
	if len(sink.types) != 0 {
		t.Errorf("no event expected, got %v", sink.types)
	}
}

func TestSetAppointmentFeeNegative(t *testing.T) {
	svc, store, _, _ := newBillingService()
	a := seedAppt(store, scheduling.StatusCompleted)

	if _, err := svc.SetAppointmentFee(context.Background(), a.ID, -1); !httperr.IsValidation(err) {
		t.Errorf("expected ValidationError, got %v", err)
	}
	if store.items[a.ID].TotalFee != nil {
		t.Error("store must stay untouched on a rejected fee")
	}
}

func TestSetAppointmentFeeNotFound(t *testing.T) {
	svc, _, _, _ := newBillingService()
	if _, err := svc.SetAppointmentFee(context.Background(), uuid.New(), 100); !httperr.IsNotFound(err) {
		t.Errorf("expected NotFoundError, got %v", err)
	}
}

func TestEarnings(t *testing.T) {
	svc, _, repo, _ := newBillingService()
	repo.total = 1234.567
	repo.count = 7

	report, err := svc.Earnings(context.Background(), "therapist", nil, "2024-06-01", "2024-06-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Party != PartyTherapist || report.AppointmentCount != 7 {
		t.Errorf("report = %s/%d, want therapist/7", report.Party, report.AppointmentCount)
	}
	if report.Total != 1234.57 {
		t.Errorf("total = %v, want 1234.57 after rounding", report.Total)
	}
	if !repo.gotFrom.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("from = %v, want midnight June 1", repo.gotFrom)
	}
	// The inclusive end date queries up to, but not including, July 1.
	if !repo.gotTo.Equal(time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("to = %v, want midnight July 1", repo.gotTo)
	}
}

func TestEarningsPartyNormalised(t *testing.T) {
	svc, _, repo, _ := newBillingService()
	if _, err := svc.Earnings(context.Background(), " Admin ", nil, "2024-06-01", "2024-06-30"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.gotParty != PartyAdmin {
		t.Errorf("party = %q, want %q", repo.gotParty, PartyAdmin)
	}
}

func TestEarningsTherapistFilter(t *testing.T) {
	svc, _, repo, _ := newBillingService()
	id := uuid.New()
	report, err := svc.Earnings(context.Background(), "doctor", &id, "2024-06-01", "2024-06-30")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if repo.gotTherapist == nil || *repo.gotTherapist != id {
		t.Errorf("therapist filter = %v, want %s", repo.gotTherapist, id)
	}
	if report.TherapistID == nil || *report.TherapistID != id {
		t.Errorf("report therapist = %v, want %s", report.TherapistID, id)
	}
}

func TestEarningsValidation(t *testing.T) {
	svc, _, _, _ := newBillingService()
	tests := []struct {
		name            string
		party, from, to string
	}{
		{"unknown party", "ceo", "2024-06-01", "2024-06-30"},
		{"empty party", "", "2024-06-01", "2024-06-30"},
		{"missing from", "admin", "", "2024-06-30"},
		{"missing to", "admin", "2024-06-01", ""},
		{"bad from", "admin", "June 1", "2024-06-30"},
		{"bad to", "admin", "2024-06-01", "30/06/2024"},
		{"from after to", "admin", "2024-07-01", "2024-06-30"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Earnings(context.Background(), tt.party, nil, tt.from, tt.to); !httperr.IsValidation(err) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestEarningsSingleDayRange(t *testing.T) {
	svc, _, repo, _ := newBillingService()
	if _, err := svc.Earnings(context.Background(), "platform", nil, "2024-06-15", "2024-06-15"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !repo.gotTo.Equal(repo.gotFrom.AddDate(0, 0, 1)) {
		t.Errorf("single day must query one full day, got [%v, %v)", repo.gotFrom, repo.gotTo)
	}
}
