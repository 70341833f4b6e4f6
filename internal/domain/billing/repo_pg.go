package billing

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinio/clinio/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Earnings columns by party. The allocator writes all four when a fee is
// set, so summing any one of them is safe.
var partyColumns = map[string]string{
	PartyPlatform:  "platform_fee",
	PartyAdmin:     "admin_earnings",
	PartyTherapist: "therapist_earnings",
	PartyDoctor:    "doctor_earnings",
}

type repoPG struct {
	pool *pgxpool.Pool
}

// NewRepoPG returns the Postgres-backed earnings repository.
func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Earnings(ctx context.Context, party string, therapistID *uuid.UUID, from, to time.Time) (float64, int, error) {
	col, ok := partyColumns[party]
	if !ok {
		return 0, 0, fmt.Errorf("unknown earnings party %q", party)
	}

	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(%s), 0), COUNT(*)
		FROM appointment
		WHERE status = 'COMPLETED'
		  AND total_fee IS NOT NULL
		  AND start_time >= $1 AND start_time < $2`, col)
	args := []any{from, to}
	if therapistID != nil {
		query += " AND therapist_id = $3"
		args = append(args, *therapistID)
	}

	var total float64
	var count int
	if err := r.conn(ctx).QueryRow(ctx, query, args...).Scan(&total, &count); err != nil {
		return 0, 0, fmt.Errorf("aggregate %s earnings: %w", party, err)
	}
	return total, count, nil
}
