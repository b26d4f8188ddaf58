// Package audit keeps an append-only trail of schedule changes made through
// confirmed actions and of failed POS propagation.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/wolfman30/salon-scheduler/internal/actions"
	"github.com/wolfman30/salon-scheduler/internal/possync"
)

// EventType classifies an audit row.
type EventType string

const (
	EventActionProposed  EventType = "action.proposed"
	EventActionConfirmed EventType = "action.confirmed"
	EventActionRejected  EventType = "action.rejected"
	EventActionExecuted  EventType = "action.executed"
	EventActionFailed    EventType = "action.failed"
	EventSyncFailed      EventType = "possync.failed"
)

// Event is one immutable audit record.
type Event struct {
	ID             string          `json:"id"`
	EventType      EventType       `json:"event_type"`
	OrgID          string          `json:"org_id"`
	SubjectID      string          `json:"subject_id,omitempty"`
	Actor          string          `json:"actor,omitempty"`
	AppointmentIDs []string        `json:"appointment_ids,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Service writes audit events through database/sql.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

// NewService creates an audit service on db.
func NewService(db *sql.DB) *Service {
	return &Service{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// LogEvent records an event, filling in the id and timestamp when missing.
func (s *Service) LogEvent(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = s.now()
	}
	if event.AppointmentIDs == nil {
		event.AppointmentIDs = []string{}
	}

	query := `
		INSERT INTO scheduling_audit_events (
			id, event_type, org_id, subject_id, actor, appointment_ids, details, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.ID,
		event.EventType,
		event.OrgID,
		nullString(event.SubjectID),
		nullString(event.Actor),
		pq.Array(event.AppointmentIDs),
		nullJSON(event.Details),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: failed to log event: %w", err)
	}
	return nil
}

type actionDetails struct {
	Kind          string `json:"kind"`
	Status        string `json:"status"`
	Summary       string `json:"summary,omitempty"`
	ResultMessage string `json:"result_message,omitempty"`
	FailureReason string `json:"failure_reason,omitempty"`
}

// RecordAction logs the current state of an action.
func (s *Service) RecordAction(ctx context.Context, a actions.Action) error {
	details, err := json.Marshal(actionDetails{
		Kind:          string(a.Kind),
		Status:        string(a.Status),
		Summary:       a.Preview.Summary,
		ResultMessage: a.ResultMessage,
		FailureReason: a.FailureReason,
	})
	if err != nil {
		return fmt.Errorf("audit: marshal action details: %w", err)
	}
	actor := a.ProposedBy
	if a.Status != actions.StatusPendingConfirmation && a.DecidedBy != "" {
		actor = a.DecidedBy
	}
	return s.LogEvent(ctx, Event{
		EventType:      actionEventType(a.Status),
		OrgID:          a.OrgID,
		SubjectID:      a.ID.String(),
		Actor:          actor,
		AppointmentIDs: appointmentIDs(a.Params),
		Details:        details,
	})
}

// RecordSyncFailure satisfies possync.FailureRecorder.
func (s *Service) RecordSyncFailure(ctx context.Context, f possync.Failure) error {
	details, err := json.Marshal(map[string]string{"mutation": string(f.Kind), "reason": f.Reason})
	if err != nil {
		return fmt.Errorf("audit: marshal sync details: %w", err)
	}
	return s.LogEvent(ctx, Event{
		EventType:      EventSyncFailed,
		OrgID:          f.OrgID,
		SubjectID:      f.AppointmentID.String(),
		Actor:          "system",
		AppointmentIDs: []string{f.AppointmentID.String()},
		Details:        details,
		CreatedAt:      f.OccurredAt,
	})
}

// Filter narrows QueryEvents.
type Filter struct {
	OrgID         string
	EventType     EventType
	AppointmentID string
	StartTime     time.Time
	EndTime       time.Time
	Limit         int
	Offset        int
}

// QueryEvents returns matching events, newest first.
func (s *Service) QueryEvents(ctx context.Context, filter Filter) ([]Event, error) {
	query := `
		SELECT id, event_type, org_id, subject_id, actor, appointment_ids, details, created_at
		FROM scheduling_audit_events
		WHERE org_id = $1
	`
	args := []any{filter.OrgID}
	argIdx := 2

	if filter.EventType != "" {
		query += fmt.Sprintf(" AND event_type = $%d", argIdx)
		args = append(args, filter.EventType)
		argIdx++
	}
	if filter.AppointmentID != "" {
		query += fmt.Sprintf(" AND $%d = ANY(appointment_ids)", argIdx)
		args = append(args, filter.AppointmentID)
		argIdx++
	}
	if !filter.StartTime.IsZero() {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, filter.StartTime)
		argIdx++
	}
	if !filter.EndTime.IsZero() {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, filter.EndTime)
	}

	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to query events: %w", err)
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var (
			e              Event
			subject, actor sql.NullString
			details        []byte
		)
		if err := rows.Scan(&e.ID, &e.EventType, &e.OrgID, &subject, &actor,
			pq.Array(&e.AppointmentIDs), &details, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: failed to scan event: %w", err)
		}
		e.SubjectID = subject.String
		e.Actor = actor.String
		if len(details) > 0 {
			e.Details = json.RawMessage(details)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: failed to iterate events: %w", err)
	}
	return out, nil
}

func actionEventType(status actions.Status) EventType {
	switch status {
	case actions.StatusConfirmed:
		return EventActionConfirmed
	case actions.StatusCancelled:
		return EventActionRejected
	case actions.StatusExecuted:
		return EventActionExecuted
	case actions.StatusFailed:
		return EventActionFailed
	}
	return EventActionProposed
}

func appointmentIDs(p actions.Params) []string {
	switch {
	case p.Reschedule != nil:
		return []string{p.Reschedule.AppointmentID.String()}
	case p.Cancel != nil:
		return []string{p.Cancel.AppointmentID.String()}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullJSON(b json.RawMessage) any {
	if len(b) == 0 {
		return nil
	}
	return []byte(b)
}
