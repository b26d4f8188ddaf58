package dayrate

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/salon-scheduler/internal/appointments"
	"github.com/wolfman30/salon-scheduler/internal/calendar"
)

type blackoutKey struct {
	location uuid.UUID
	date     calendar.Date
}

type memoryState struct {
	locations map[uuid.UUID]Location
	units     map[uuid.UUID]Unit
	bookings  map[uuid.UUID]Booking
	blackouts map[blackoutKey]Blackout
}

func (s memoryState) clone() memoryState {
	out := memoryState{
		locations: make(map[uuid.UUID]Location, len(s.locations)),
		units:     make(map[uuid.UUID]Unit, len(s.units)),
		bookings:  make(map[uuid.UUID]Booking, len(s.bookings)),
		blackouts: make(map[blackoutKey]Blackout, len(s.blackouts)),
	}
	for k, v := range s.locations {
		out.locations[k] = v
	}
	for k, v := range s.units {
		out.units[k] = v
	}
	for k, v := range s.bookings {
		out.bookings[k] = v
	}
	for k, v := range s.blackouts {
		out.blackouts[k] = v
	}
	return out
}

// RecordedEvent is an outbox event captured by the in-memory store.
type RecordedEvent struct {
	OrgID   string
	Type    string
	Payload json.RawMessage
}

// MemoryStore is an in-process Store. Transactions are serialised, which is
// the in-memory equivalent of the location row lock.
type MemoryStore struct {
	txMu   sync.Mutex
	mu     sync.RWMutex
	state  memoryState
	events []RecordedEvent
	now    func() time.Time
}

// NewMemoryStore creates an empty day-rate store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		state: memoryState{
			locations: make(map[uuid.UUID]Location),
			units:     make(map[uuid.UUID]Unit),
			bookings:  make(map[uuid.UUID]Booking),
			blackouts: make(map[blackoutKey]Blackout),
		},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SeedLocation adds a location and its units.
func (s *MemoryStore) SeedLocation(loc Location, units ...Unit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.locations[loc.ID] = loc
	for _, u := range units {
		u.LocationID = loc.ID
		if u.ID == uuid.Nil {
			u.ID = uuid.New()
		}
		s.state.units[u.ID] = u
	}
}

// Events returns the committed outbox events.
func (s *MemoryStore) Events() []RecordedEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]RecordedEvent(nil), s.events...)
}

func (s *MemoryStore) GetLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.location(orgID, locationID)
}

func (s *MemoryStore) ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.listUnits(locationID), nil
}

func (s *MemoryStore) CountBooked(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) (map[calendar.Date]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[calendar.Date]int)
	for _, b := range s.state.bookings {
		if b.LocationID != locationID || b.Status == StatusCancelled || b.Date.Before(from) || b.Date.After(to) {
			continue
		}
		if u, ok := s.state.units[b.UnitID]; !ok || !u.Active {
			continue
		}
		out[b.Date]++
	}
	return out, nil
}

func (s *MemoryStore) ListBlackouts(ctx context.Context, locationID uuid.UUID, from, to calendar.Date) ([]Blackout, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Blackout
	for k, b := range s.state.blackouts {
		if k.location != locationID || k.date.Before(from) || k.date.After(to) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *MemoryStore) GetBooking(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.booking(orgID, id)
}

func (s *MemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	working := s.state.clone()
	s.mu.RUnlock()

	tx := &memoryTx{state: working, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return appointments.WrapStorage("commit", err)
	}

	s.mu.Lock()
	s.state = working
	s.events = append(s.events, tx.events...)
	s.mu.Unlock()
	return nil
}

type memoryTx struct {
	state  memoryState
	events []RecordedEvent
	now    func() time.Time
}

func (t *memoryTx) LockLocation(ctx context.Context, orgID string, locationID uuid.UUID) (*Location, error) {
	return t.state.location(orgID, locationID)
}

func (t *memoryTx) ListUnits(ctx context.Context, locationID uuid.UUID) ([]Unit, error) {
	return t.state.listUnits(locationID), nil
}

func (t *memoryTx) BookedUnitIDs(ctx context.Context, locationID uuid.UUID, date calendar.Date) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for _, b := range t.state.bookings {
		if b.LocationID == locationID && b.Date == date && b.Status != StatusCancelled {
			out = append(out, b.UnitID)
		}
	}
	return out, nil
}

func (t *memoryTx) GetBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (*Blackout, error) {
	b, ok := t.state.blackouts[blackoutKey{locationID, date}]
	if !ok {
		return nil, nil
	}
	return &b, nil
}

func (t *memoryTx) InsertBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	for _, other := range t.state.bookings {
		if other.UnitID == b.UnitID && other.Date == b.Date && other.Status != StatusCancelled {
			return appointments.WrapStorage("insert booking", fmt.Errorf("unit %s already booked on %s", b.UnitID, b.Date))
		}
	}
	now := t.now()
	b.CreatedAt = now
	b.UpdatedAt = now
	t.state.bookings[b.ID] = *b
	return nil
}

func (t *memoryTx) GetBookingForUpdate(ctx context.Context, orgID string, id uuid.UUID) (*Booking, error) {
	return t.state.booking(orgID, id)
}

func (t *memoryTx) UpdateBookingStatus(ctx context.Context, orgID string, id uuid.UUID, status BookingStatus) error {
	b, ok := t.state.bookings[id]
	if !ok || b.OrgID != orgID {
		return appointments.ErrNotFound
	}
	b.Status = status
	b.UpdatedAt = t.now()
	t.state.bookings[id] = b
	return nil
}

func (t *memoryTx) UpsertBlackout(ctx context.Context, b Blackout) error {
	t.state.blackouts[blackoutKey{b.LocationID, b.Date}] = b
	return nil
}

func (t *memoryTx) DeleteBlackout(ctx context.Context, locationID uuid.UUID, date calendar.Date) (bool, error) {
	key := blackoutKey{locationID, date}
	if _, ok := t.state.blackouts[key]; !ok {
		return false, nil
	}
	delete(t.state.blackouts, key)
	return true, nil
}

func (t *memoryTx) RecordEvent(ctx context.Context, orgID, eventType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("dayrate: marshal event: %w", err)
	}
	t.events = append(t.events, RecordedEvent{OrgID: orgID, Type: eventType, Payload: data})
	return nil
}

func (s memoryState) location(orgID string, id uuid.UUID) (*Location, error) {
	loc, ok := s.locations[id]
	if !ok || loc.OrgID != orgID {
		return nil, appointments.ErrNotFound
	}
	return &loc, nil
}

func (s memoryState) booking(orgID string, id uuid.UUID) (*Booking, error) {
	b, ok := s.bookings[id]
	if !ok || b.OrgID != orgID {
		return nil, appointments.ErrNotFound
	}
	return &b, nil
}

func (s memoryState) listUnits(locationID uuid.UUID) []Unit {
	var out []Unit
	for _, u := range s.units {
		if u.LocationID == locationID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
