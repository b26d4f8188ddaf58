package appointments

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

// RecordedEvent is an outbox event captured by the in-memory store.
type RecordedEvent struct {
	OrgID   string
	Type    string
	Payload json.RawMessage
}

// MemoryStore is an in-process Store for development and tests.
// Transactions are serialised and applied to a copy that replaces the live
// rows only on success. Every other write also holds txMu so it cannot be
// overwritten by a commit.
type MemoryStore struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	rows   map[uuid.UUID]Appointment
	events []RecordedEvent
	now    func() time.Time
}

// NewMemoryStore creates an empty in-memory appointment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rows: make(map[uuid.UUID]Appointment),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts appointments directly, bypassing conflict checks.
func (s *MemoryStore) Seed(appts ...Appointment) {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range appts {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		if a.Status == "" {
			a.Status = StatusBooked
		}
		s.rows[a.ID] = a.Clone()
	}
}

// Events returns the outbox events committed so far.
func (s *MemoryStore) Events() []RecordedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecordedEvent(nil), s.events...)
}

func (s *MemoryStore) Get(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRow(s.rows, orgID, id)
}

func (s *MemoryStore) ListForDay(ctx context.Context, orgID, staffID string, date calendar.Date) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listForDay(s.rows, orgID, staffID, date), nil
}

func (s *MemoryStore) ListGroup(ctx context.Context, orgID string, groupID uuid.UUID) ([]Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Appointment
	for _, a := range s.rows {
		if a.OrgID == orgID && a.RecurrenceGroupID != nil && *a.RecurrenceGroupID == groupID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return *out[i].RecurrenceIndex < *out[j].RecurrenceIndex })
	return out, nil
}

// SetExternalID records the POS id of a committed appointment.
func (s *MemoryStore) SetExternalID(ctx context.Context, orgID string, id uuid.UUID, externalID string) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	if !ok || a.OrgID != orgID {
		return ErrNotFound
	}
	a.ExternalID = externalID
	a.UpdatedAt = s.now()
	s.rows[id] = a
	return nil
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := make(map[uuid.UUID]Appointment, len(s.rows))
	for id, a := range s.rows {
		working[id] = a.Clone()
	}
	s.mu.RUnlock()

	tx := &memoryTx{rows: working, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return WrapStorage("commit", err)
	}

	s.mu.Lock()
	s.rows = working
	s.events = append(s.events, tx.events...)
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	rows   map[uuid.UUID]Appointment
	events []RecordedEvent
	now    func() time.Time
}

func (t *memoryTx) ListForDay(ctx context.Context, orgID, staffID string, date calendar.Date) ([]Appointment, error) {
	return listForDay(t.rows, orgID, staffID, date), nil
}

func (t *memoryTx) GetForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Appointment, error) {
	return getRow(t.rows, orgID, id)
}

func (t *memoryTx) LockSlot(ctx context.Context, orgID, staffID string, date calendar.Date) error {
	// Transactions are already serialised by MemoryStore.txMu.
	return nil
}

func (t *memoryTx) Insert(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if _, exists := t.rows[a.ID]; exists {
		return WrapStorage("insert appointment", fmt.Errorf("duplicate id %s", a.ID))
	}
	if a.RecurrenceGroupID != nil && a.RecurrenceIndex != nil {
		for _, other := range t.rows {
			if other.RecurrenceGroupID != nil && *other.RecurrenceGroupID == *a.RecurrenceGroupID &&
				other.RecurrenceIndex != nil && *other.RecurrenceIndex == *a.RecurrenceIndex {
				return WrapStorage("insert appointment", fmt.Errorf("recurrence index %d already used in group %s", *a.RecurrenceIndex, *a.RecurrenceGroupID))
			}
		}
	}
	now := t.now()
	a.CreatedAt = now
	a.UpdatedAt = now
	t.rows[a.ID] = a.Clone()
	return nil
}

func (t *memoryTx) UpdateSchedule(ctx context.Context, a *Appointment) error {
	row, ok := t.rows[a.ID]
	if !ok || row.OrgID != a.OrgID {
		return ErrNotFound
	}
	row.Date = a.Date
	row.Start = a.Start
	row.End = a.End
	row.StaffID = a.StaffID
	row.UpdatedAt = t.now()
	a.UpdatedAt = row.UpdatedAt
	t.rows[a.ID] = row
	return nil
}

func (t *memoryTx) UpdateStatus(ctx context.Context, orgID string, id uuid.UUID, status Status) error {
	row, ok := t.rows[id]
	if !ok || row.OrgID != orgID {
		return ErrNotFound
	}
	row.Status = status
	row.UpdatedAt = t.now()
	t.rows[id] = row
	return nil
}

func (t *memoryTx) TagRecurrence(ctx context.Context, orgID string, id uuid.UUID, groupID uuid.UUID, index int, rule *RecurrenceRule) error {
	row, ok := t.rows[id]
	if !ok || row.OrgID != orgID {
		return ErrNotFound
	}
	row.RecurrenceGroupID = &groupID
	row.RecurrenceIndex = &index
	if rule != nil {
		r := *rule
		row.RecurrenceRule = &r
	}
	row.UpdatedAt = t.now()
	t.rows[id] = row
	return nil
}

func (t *memoryTx) RecordEvent(ctx context.Context, orgID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("appointments: marshal event: %w", err)
	}
	t.events = append(t.events, RecordedEvent{OrgID: orgID, Type: eventType, Payload: data})
	return nil
}

func getRow(rows map[uuid.UUID]Appointment, orgID string, id uuid.UUID) (*Appointment, error) {
	a, ok := rows[id]
	if !ok || a.OrgID != orgID {
		return nil, ErrNotFound
	}
	out := a.Clone()
	return &out, nil
}

func listForDay(rows map[uuid.UUID]Appointment, orgID, staffID string, date calendar.Date) []Appointment {
	var out []Appointment
	for _, a := range rows {
		if a.OrgID != orgID || a.StaffID != staffID || a.Date != date || a.Cancelled() {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
