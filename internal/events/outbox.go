package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DefaultMaxAttempts is how many failed deliveries an event gets before it
// is parked for an operator.
const DefaultMaxAttempts = 10

// OutboxEntry is an event waiting in the outbox.
type OutboxEntry struct {
	ID        uuid.UUID
	OrgID     string
	Type      string
	Payload   json.RawMessage
	CreatedAt time.Time
	Attempts  int
}

// Execer is satisfied by pgx pools, connections and transactions.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// DB abstracts the pgx query interface for testing.
type DB interface {
	Execer
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// InsertTx writes an event through exec. Pass the open transaction of the
// change the event describes so both commit or roll back together.
func InsertTx(ctx context.Context, exec Execer, orgID string, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: marshal %s payload: %w", eventType, err)
	}
	id := uuid.New()
	_, err = exec.Exec(ctx, `INSERT INTO outbox (id, org_id, type, payload) VALUES ($1, $2, $3, $4)`, id, orgID, eventType, data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("events: insert %s: %w", eventType, err)
	}
	return id, nil
}

// OutboxStore is the Postgres outbox.
type OutboxStore struct {
	db          DB
	maxAttempts int
}

// NewOutboxStore creates an outbox on db.
func NewOutboxStore(db DB) *OutboxStore {
	if db == nil {
		panic("events: pgx pool required")
	}
	return &OutboxStore{db: db, maxAttempts: DefaultMaxAttempts}
}

// WithMaxAttempts changes when failing events stop being fetched.
func (s *OutboxStore) WithMaxAttempts(n int) *OutboxStore {
	if n > 0 {
		s.maxAttempts = n
	}
	return s
}

// Insert writes an event outside of any caller transaction.
func (s *OutboxStore) Insert(ctx context.Context, orgID string, eventType string, payload any) (uuid.UUID, error) {
	return InsertTx(ctx, s.db, orgID, eventType, payload)
}

// FetchPending returns the oldest undelivered events that still have
// attempts left.
func (s *OutboxStore) FetchPending(ctx context.Context, limit int32) ([]OutboxEntry, error) {
	query := `
		SELECT id, org_id, type, payload, created_at, attempts
		FROM outbox
		WHERE delivered_at IS NULL AND attempts < $2
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := s.db.Query(ctx, query, limit, s.maxAttempts)
	if err != nil {
		return nil, fmt.Errorf("events: fetch pending: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxEntry, error) {
		var e OutboxEntry
		var payload []byte
		if err := row.Scan(&e.ID, &e.OrgID, &e.Type, &payload, &e.CreatedAt, &e.Attempts); err != nil {
			return OutboxEntry{}, fmt.Errorf("events: scan outbox: %w", err)
		}
		e.Payload = append(json.RawMessage(nil), payload...)
		return e, nil
	})
}

// MarkDelivered reports false when another deliverer got there first.
func (s *OutboxStore) MarkDelivered(ctx context.Context, id uuid.UUID) (bool, error) {
	ct, err := s.db.Exec(ctx, `UPDATE outbox SET delivered_at = now() WHERE id = $1 AND delivered_at IS NULL`, id)
	if err != nil {
		return false, fmt.Errorf("events: mark delivered: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

// MarkFailed counts a failed delivery and keeps the latest error.
func (s *OutboxStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	query := `
		UPDATE outbox
		SET attempts = attempts + 1, last_error = $2
		WHERE id = $1 AND delivered_at IS NULL
	`
	if _, err := s.db.Exec(ctx, query, id, reason); err != nil {
		return fmt.Errorf("events: mark failed: %w", err)
	}
	return nil
}
