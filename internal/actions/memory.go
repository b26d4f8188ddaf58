package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/events"
)

type memoryAction struct {
	action    Action
	claimedAt time.Time
}

// MemoryStore keeps actions in process.
type MemoryStore struct {
	mu      sync.Mutex
	actions map[uuid.UUID]*memoryAction
	events  []appointments.RecordedEvent
}

// NewMemoryStore creates an empty action store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{actions: make(map[uuid.UUID]*memoryAction)}
}

// Events returns the resolution events recorded so far.
func (s *MemoryStore) Events() []appointments.RecordedEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}

func (s *MemoryStore) Insert(_ context.Context, a Action) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actions[a.ID]; exists {
		return appointments.WrapStorage("insert action", fmt.Errorf("duplicate action id %s", a.ID))
	}
	s.actions[a.ID] = &memoryAction{action: a}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, orgID string, id uuid.UUID) (*Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actions[id]
	if !ok || m.action.OrgID != orgID {
		return nil, appointments.ErrNotFound
	}
	out := m.action
	return &out, nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, orgID string, statuses ...Status) ([]Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Action
	for _, m := range s.actions {
		if m.action.OrgID != orgID {
			continue
		}
		if len(statuses) > 0 && !slices.Contains(statuses, m.action.Status) {
			continue
		}
		out = append(out, m.action)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) Decide(_ context.Context, orgID string, id uuid.UUID, from, to Status, actor string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actions[id]
	if !ok || m.action.OrgID != orgID {
		return false, appointments.ErrNotFound
	}
	if m.action.Status != from {
		return false, nil
	}
	m.action.Status = to
	m.action.DecidedBy = actor
	m.action.DecidedAt = &at
	m.action.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) ClaimExecution(_ context.Context, orgID string, id uuid.UUID, at, staleBefore time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actions[id]
	if !ok || m.action.OrgID != orgID {
		return false, appointments.ErrNotFound
	}
	if m.action.Status != StatusConfirmed {
		return false, nil
	}
	if !m.claimedAt.IsZero() && !m.claimedAt.Before(staleBefore) {
		return false, nil
	}
	m.claimedAt = at
	m.action.UpdatedAt = at
	return true, nil
}

func (s *MemoryStore) Finish(_ context.Context, orgID string, id uuid.UUID, to Status, res Result, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.actions[id]
	if !ok || m.action.OrgID != orgID {
		return false, appointments.ErrNotFound
	}
	if m.action.Status != StatusConfirmed {
		return false, nil
	}
	payload, err := json.Marshal(resolvedEvent(m.action, to, res, at))
	if err != nil {
		return false, appointments.WrapStorage("finish action", err)
	}
	m.action.Status = to
	m.action.ResultMessage = res.Message
	m.action.FailureReason = res.FailureReason
	m.action.ExecutedAt = &at
	m.action.UpdatedAt = at
	s.events = append(s.events, appointments.RecordedEvent{OrgID: orgID, Type: resolvedEventType(to), Payload: payload})
	return true, nil
}

func resolvedEventType(status Status) string {
	if status == StatusExecuted {
		return events.TypeActionExecuted
	}
	return events.TypeActionFailed
}

func resolvedEvent(a Action, to Status, res Result, at time.Time) events.ActionResolvedV1 {
	msg := res.Message
	if to == StatusFailed {
		msg = res.FailureReason
	}
	return events.ActionResolvedV1{
		EventID:    uuid.NewString(),
		OrgID:      a.OrgID,
		ActionID:   a.ID.String(),
		Kind:       string(a.Kind),
		Status:     string(to),
		Message:    msg,
		OccurredAt: at,
	}
}
