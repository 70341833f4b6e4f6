package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository aggregates earnings out of the appointment table.
type Repository interface {
	// Earnings sums one party's earnings column over completed
	// appointments starting in [from, to), optionally narrowed to a
	// single therapist. It returns the sum and the number of
	// fee-carrying appointments it covered.
	Earnings(ctx context.Context, party string, therapistID *uuid.UUID, from, to time.Time) (float64, int, error)
}
