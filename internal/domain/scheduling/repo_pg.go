package scheduling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinio/clinio/internal/httperr"
	"github.com/clinio/clinio/internal/platform/db"
)

// queryable is satisfied by *pgxpool.Pool and pgx.Tx, so repositories
// run against the ambient transaction when one is on the context.
type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres error codes the schema raises on concurrent writes.
const (
	pgExclusionViolation = "23P01"
	pgUniqueViolation    = "23505"
)

func isPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}

type apptRepoPG struct {
	pool *pgxpool.Pool
}

// NewAppointmentRepoPG returns the Postgres-backed appointment repository.
func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &apptRepoPG{pool: pool}
}

func (r *apptRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const apptCols = `id, patient_id, therapist_id, start_time, end_time, duration_minutes,
	status, appointment_type, issue, notes, session_code, cancellation_reason,
	master_appointment_id, total_fee, platform_fee, admin_earnings,
	therapist_earnings, doctor_earnings, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(
		&a.ID, &a.PatientID, &a.TherapistID, &a.StartTime, &a.EndTime, &a.DurationMinutes,
		&a.Status, &a.Type, &a.Issue, &a.Notes, &a.SessionCode, &a.CancellationReason,
		&a.MasterAppointmentID, &a.TotalFee, &a.PlatformFee, &a.AdminEarnings,
		&a.TherapistEarnings, &a.DoctorEarnings, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *apptRepoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, therapist_id, start_time, end_time,
			duration_minutes, status, appointment_type, issue, notes,
			master_appointment_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.TherapistID, a.StartTime, a.EndTime,
		a.DurationMinutes, a.Status, a.Type, a.Issue, a.Notes,
		a.MasterAppointmentID,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if isPGCode(err, pgExclusionViolation) {
		return httperr.Conflictf("appointment overlaps an existing booking for this therapist")
	}
	return err
}

func (r *apptRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFound("appointment", id.String())
	}
	return a, err
}

func (r *apptRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointment WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFound("appointment", id.String())
	}
	return a, err
}

func (r *apptRepoPG) Update(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET start_time = $2, end_time = $3, duration_minutes = $4, status = $5,
			appointment_type = $6, issue = $7, notes = $8, session_code = $9,
			cancellation_reason = $10, total_fee = $11, platform_fee = $12,
			admin_earnings = $13, therapist_earnings = $14, doctor_earnings = $15,
			updated_at = now()
		WHERE id = $1
		RETURNING updated_at`,
		a.ID, a.StartTime, a.EndTime, a.DurationMinutes, a.Status,
		a.Type, a.Issue, a.Notes, a.SessionCode,
		a.CancellationReason, a.TotalFee, a.PlatformFee,
		a.AdminEarnings, a.TherapistEarnings, a.DoctorEarnings,
	).Scan(&a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return httperr.NotFound("appointment", a.ID.String())
	}
	if isPGCode(err, pgExclusionViolation) {
		return httperr.Conflictf("appointment overlaps an existing booking for this therapist")
	}
	return err
}

func (r *apptRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	where := " WHERE 1=1"
	args := []any{}
	idx := 1
	if f.TherapistID != nil {
		where += fmt.Sprintf(" AND therapist_id = $%d", idx)
		args = append(args, *f.TherapistID)
		idx++
	}
	if f.PatientID != nil {
		where += fmt.Sprintf(" AND patient_id = $%d", idx)
		args = append(args, *f.PatientID)
		idx++
	}
	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, f.Status)
		idx++
	}
	if f.From != nil {
		where += fmt.Sprintf(" AND start_time >= $%d", idx)
		args = append(args, *f.From)
		idx++
	}
	if f.To != nil {
		where += fmt.Sprintf(" AND start_time < $%d", idx)
		args = append(args, *f.To)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM appointment"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := "SELECT " + apptCols + " FROM appointment" + where +
		fmt.Sprintf(" ORDER BY start_time LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		appts = append(appts, a)
	}
	return appts, total, rows.Err()
}

func (r *apptRepoPG) ListBusyBetween(ctx context.Context, therapistID uuid.UUID, from, to time.Time) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+`
		FROM appointment
		WHERE therapist_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time < $3
		  AND end_time > $2
		ORDER BY start_time`,
		therapistID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

func (r *apptRepoPG) HasOverlap(ctx context.Context, therapistID uuid.UUID, iv Interval, excludeID *uuid.UUID) (bool, error) {
	// Locks colliding rows so a concurrent cancel or move cannot race the
	// re-check; the exclusion constraint backstops writes this cannot see.
	query := `
		SELECT id FROM appointment
		WHERE therapist_id = $1
		  AND status <> 'CANCELLED'
		  AND start_time < $3
		  AND end_time > $2`
	args := []any{therapistID, iv.Start, iv.End}
	if excludeID != nil {
		query += " AND id <> $4"
		args = append(args, *excludeID)
	}
	query += " FOR UPDATE"

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return false, err
	}
	defer rows.Close()
	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

func (r *apptRepoPG) ListByMaster(ctx context.Context, masterID uuid.UUID) ([]*Appointment, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+apptCols+`
		FROM appointment
		WHERE master_appointment_id = $1
		ORDER BY start_time`,
		masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, a)
	}
	return appts, rows.Err()
}

type requestRepoPG struct {
	pool *pgxpool.Pool
}

// NewRescheduleRequestRepoPG returns the Postgres-backed reschedule
// request repository.
func NewRescheduleRequestRepoPG(pool *pgxpool.Pool) RescheduleRequestRepository {
	return &requestRepoPG{pool: pool}
}

func (r *requestRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const requestCols = `id, appointment_id, requested_by_role, requested_by_id, proposed_start,
	reason, status, resolver_notes, resolved_at, created_at`

func scanRequest(row pgx.Row) (*RescheduleRequest, error) {
	var req RescheduleRequest
	err := row.Scan(
		&req.ID, &req.AppointmentID, &req.RequestedByRole, &req.RequestedByID, &req.ProposedStart,
		&req.Reason, &req.Status, &req.ResolverNotes, &req.ResolvedAt, &req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *requestRepoPG) Create(ctx context.Context, req *RescheduleRequest) error {
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO reschedule_request (id, appointment_id, requested_by_role,
			requested_by_id, proposed_start, reason, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		req.ID, req.AppointmentID, req.RequestedByRole,
		req.RequestedByID, req.ProposedStart, req.Reason, req.Status,
	).Scan(&req.CreatedAt)
	// The partial unique index on pending requests backstops concurrent
	// duplicate filings.
	if isPGCode(err, pgUniqueViolation) {
		return httperr.Conflictf("a pending reschedule request already exists for this appointment")
	}
	return err
}

func (r *requestRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM reschedule_request WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFound("reschedule request", id.String())
	}
	return req, err
}

func (r *requestRepoPG) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*RescheduleRequest, error) {
	req, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM reschedule_request WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFound("reschedule request", id.String())
	}
	return req, err
}

func (r *requestRepoPG) Update(ctx context.Context, req *RescheduleRequest) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reschedule_request
		SET status = $2, resolver_notes = $3, resolved_at = $4
		WHERE id = $1`,
		req.ID, req.Status, req.ResolverNotes, req.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return httperr.NotFound("reschedule request", req.ID.String())
	}
	return nil
}

func (r *requestRepoPG) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]*RescheduleRequest, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+requestCols+`
		FROM reschedule_request
		WHERE appointment_id = $1
		ORDER BY created_at DESC`,
		appointmentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var reqs []*RescheduleRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

func (r *requestRepoPG) HasPending(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reschedule_request
			WHERE appointment_id = $1 AND status = 'pending'
		)`,
		appointmentID).Scan(&exists)
	return exists, err
}

type cycleRepoPG struct {
	pool *pgxpool.Pool
}

// NewTreatmentCycleRepoPG returns the Postgres-backed treatment-cycle
// repository.
func NewTreatmentCycleRepoPG(pool *pgxpool.Pool) TreatmentCycleRepository {
	return &cycleRepoPG{pool: pool}
}

func (r *cycleRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const cycleCols = `id, patient_id, therapist_id, start_date, end_date, time_of_day,
	duration_minutes, appointment_type, issue, notes, treatment_plan_id, created_at`

func scanCycle(row pgx.Row) (*TreatmentCycle, error) {
	var c TreatmentCycle
	err := row.Scan(
		&c.ID, &c.PatientID, &c.TherapistID, &c.StartDate, &c.EndDate, &c.TimeOfDay,
		&c.DurationMinutes, &c.AppointmentType, &c.Issue, &c.Notes, &c.TreatmentPlanID, &c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *cycleRepoPG) Create(ctx context.Context, c *TreatmentCycle) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.conn(ctx).QueryRow(ctx, `
		INSERT INTO treatment_cycle (id, patient_id, therapist_id, start_date, end_date,
			time_of_day, duration_minutes, appointment_type, issue, notes, treatment_plan_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at`,
		c.ID, c.PatientID, c.TherapistID, c.StartDate, c.EndDate,
		c.TimeOfDay, c.DurationMinutes, c.AppointmentType, c.Issue, c.Notes, c.TreatmentPlanID,
	).Scan(&c.CreatedAt)
}

func (r *cycleRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*TreatmentCycle, error) {
	c, err := scanCycle(r.conn(ctx).QueryRow(ctx,
		`SELECT `+cycleCols+` FROM treatment_cycle WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, httperr.NotFound("treatment cycle", id.String())
	}
	return c, err
}
