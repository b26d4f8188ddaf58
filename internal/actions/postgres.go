package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/events"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// DB abstracts the pgx pool for testing.
type DB interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PostgresStore persists actions in scheduled_actions.
type PostgresStore struct {
	db DB
}

// NewPostgresStore creates an action store backed by scheduled_actions.
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("actions: pgx pool required")
	}
	return &PostgresStore{db: db}
}

const actionColumns = `
		SELECT id, org_id, kind, params, status, preview, result_message, failure_reason,
		       proposed_by, decided_by, created_at, updated_at, decided_at, executed_at
		FROM scheduled_actions
	`

func (s *PostgresStore) Insert(ctx context.Context, a Action) error {
	params, err := json.Marshal(a.Params)
	if err != nil {
		return fmt.Errorf("actions: marshal params: %w", err)
	}
	preview, err := json.Marshal(a.Preview)
	if err != nil {
		return fmt.Errorf("actions: marshal preview: %w", err)
	}
	query := `
		INSERT INTO scheduled_actions (id, org_id, kind, params, status, preview, proposed_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := s.db.Exec(ctx, query, a.ID, a.OrgID, string(a.Kind), params, string(a.Status), preview, a.ProposedBy, a.CreatedAt, a.UpdatedAt); err != nil {
		return appointments.WrapStorage("insert action", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, orgID string, id uuid.UUID) (*Action, error) {
	a, err := scanAction(s.db.QueryRow(ctx, actionColumns+`WHERE org_id = $1 AND id = $2`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, appointments.ErrNotFound
		}
		return nil, appointments.WrapStorage("get action", err)
	}
	return a, nil
}

func (s *PostgresStore) ListByStatus(ctx context.Context, orgID string, statuses ...Status) ([]Action, error) {
	names := make([]string, 0, len(statuses))
	for _, st := range statuses {
		names = append(names, string(st))
	}
	query := actionColumns + `WHERE org_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2)) ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, orgID, names)
	if err != nil {
		return nil, appointments.WrapStorage("list actions", err)
	}
	defer rows.Close()

	var out []Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, appointments.WrapStorage("scan action", err)
		}
		out = append(out, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, appointments.WrapStorage("iterate actions", err)
	}
	return out, nil
}

func (s *PostgresStore) Decide(ctx context.Context, orgID string, id uuid.UUID, from, to Status, actor string, at time.Time) (bool, error) {
	query := `
		UPDATE scheduled_actions
		SET status = $4, decided_by = $5, decided_at = $6, updated_at = $6
		WHERE org_id = $1 AND id = $2 AND status = $3
	`
	tag, err := s.db.Exec(ctx, query, orgID, id, string(from), string(to), actor, at)
	if err != nil {
		return false, appointments.WrapStorage("decide action", err)
	}
	return s.swapped(ctx, orgID, id, tag)
}

func (s *PostgresStore) ClaimExecution(ctx context.Context, orgID string, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	query := `
		UPDATE scheduled_actions
		SET execution_claimed_at = $3, updated_at = $3
		WHERE org_id = $1 AND id = $2 AND status = 'confirmed'
		  AND (execution_claimed_at IS NULL OR execution_claimed_at < $4)
	`
	tag, err := s.db.Exec(ctx, query, orgID, id, at, staleBefore)
	if err != nil {
		return false, appointments.WrapStorage("claim action", err)
	}
	return s.swapped(ctx, orgID, id, tag)
}

// Finish writes the terminal status and the outbox event in one transaction.
func (s *PostgresStore) Finish(ctx context.Context, orgID string, id uuid.UUID, to Status, res Result, at time.Time) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, appointments.WrapStorage("begin tx", err)
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE scheduled_actions
		SET status = $3, result_message = $4, failure_reason = $5, executed_at = $6, updated_at = $6
		WHERE org_id = $1 AND id = $2 AND status = 'confirmed'
		RETURNING kind
	`
	var kind string
	if err := tx.QueryRow(ctx, query, orgID, id, string(to), res.Message, res.FailureReason, at).Scan(&kind); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, appointments.WrapStorage("finish action", err)
	}
	evt := resolvedEvent(Action{ID: id, OrgID: orgID, Kind: Kind(kind)}, to, res, at)
	if _, err := events.InsertTx(ctx, tx, orgID, resolvedEventType(to), evt); err != nil {
		return false, appointments.WrapStorage("record action event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return false, appointments.WrapStorage("commit", err)
	}
	return true, nil
}

// swapped distinguishes a lost compare-and-set from a missing action.
func (s *PostgresStore) swapped(ctx context.Context, orgID string, id uuid.UUID, tag pgconn.CommandTag) (bool, error) {
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	var exists bool
	err := s.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM scheduled_actions WHERE org_id = $1 AND id = $2)`, orgID, id).Scan(&exists)
	if err != nil {
		return false, appointments.WrapStorage("check action", err)
	}
	if !exists {
		return false, appointments.ErrNotFound
	}
	return false, nil
}

func scanAction(row pgx.Row) (*Action, error) {
	var (
		a         Action
		kind      string
		status    string
		params    []byte
		preview   []byte
		decidedBy *string
	)
	if err := row.Scan(&a.ID, &a.OrgID, &kind, &params, &status, &preview, &a.ResultMessage, &a.FailureReason,
		&a.ProposedBy, &decidedBy, &a.CreatedAt, &a.UpdatedAt, &a.DecidedAt, &a.ExecutedAt); err != nil {
		return nil, err
	}
	a.Kind = Kind(kind)
	a.Status = Status(status)
	if decidedBy != nil {
		a.DecidedBy = *decidedBy
	}
	if len(params) > 0 {
		if err := json.Unmarshal(params, &a.Params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if len(preview) > 0 {
		if err := json.Unmarshal(preview, &a.Preview); err != nil {
			return nil, fmt.Errorf("decode preview: %w", err)
		}
	}
	return &a, nil
}
