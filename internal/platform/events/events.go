// Package events implements a transactional outbox. Domain services record
// events in the same database transaction as their state change; a background
// publisher relays them to Kafka. The Kafka topic name equals the event type.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinio/clinio/internal/platform/db"
)

// Event is the domain event envelope written to the outbox table.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is an outbox row awaiting publication.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
}

// Recorder writes events to the outbox table. When the context carries an
// ambient transaction (db.WithTx), the insert joins it so the event commits
// or rolls back with the state change that produced it.
type Recorder struct {
	pool *pgxpool.Pool
}

// NewRecorder creates a Recorder backed by the given pool.
func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

// Record marshals payload to JSON and inserts the event into the outbox.
func (r *Recorder) Record(ctx context.Context, aggregateType, aggregateID, eventType string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal event payload: %w", err)
	}

	const q = `
		INSERT INTO outbox_event (aggregate_type, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`

	if tx := db.TxFromContext(ctx); tx != nil {
		_, err = tx.Exec(ctx, q, aggregateType, aggregateID, eventType, body)
	} else {
		_, err = r.pool.Exec(ctx, q, aggregateType, aggregateID, eventType, body)
	}
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}
