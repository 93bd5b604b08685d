package appointment

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps appointments in process. A single mutex makes every
// write atomic, giving the same uniqueness guarantees as the postgres indexes.
type MemoryRepository struct {
	mu      sync.RWMutex
	byID    map[uuid.UUID]*Appointment
	active  map[int64]uuid.UUID
	tickets map[string]uuid.UUID
	idem    map[string]uuid.UUID
	events  []EventLog
	nextEv  int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID:    make(map[uuid.UUID]*Appointment),
		active:  make(map[int64]uuid.UUID),
		tickets: make(map[string]uuid.UUID),
		idem:    make(map[string]uuid.UUID),
	}
}

func instantKey(t time.Time) int64 {
	return t.UnixNano()
}

func idemKey(subjectID, key string) string {
	return subjectID + "\x00" + key
}

func (r *MemoryRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if appt.Status != StatusCancelled {
		if holder, taken := r.active[instantKey(appt.ScheduledFor)]; taken {
			return nil, fmt.Errorf("%w: held by %s", ErrSlotConflict, holder)
		}
	}
	if _, taken := r.tickets[appt.TicketNumber]; taken {
		return nil, fmt.Errorf("%w: %s", ErrTicketConflict, appt.TicketNumber)
	}
	if appt.IdempotencyKey != "" {
		if _, taken := r.idem[idemKey(appt.SubjectID, appt.IdempotencyKey)]; taken {
			return nil, ErrIdempotencyConflict
		}
	}

	stored := *appt
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	if _, exists := r.byID[stored.ID]; exists {
		return nil, fmt.Errorf("appointment %s already exists", stored.ID)
	}
	now := time.Now()
	stored.CreatedAt = now
	stored.UpdatedAt = now

	r.byID[stored.ID] = &stored
	r.tickets[stored.TicketNumber] = stored.ID
	if stored.Status != StatusCancelled {
		r.active[instantKey(stored.ScheduledFor)] = stored.ID
	}
	if stored.IdempotencyKey != "" {
		r.idem[idemKey(stored.SubjectID, stored.IdempotencyKey)] = stored.ID
	}

	out := stored
	return &out, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byID[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}

	key := instantKey(a.ScheduledFor)
	switch {
	case from != StatusCancelled && to == StatusCancelled:
		if r.active[key] == id {
			delete(r.active, key)
		}
	case from == StatusCancelled && to != StatusCancelled:
		if holder, taken := r.active[key]; taken {
			return nil, fmt.Errorf("%w: held by %s", ErrSlotConflict, holder)
		}
		r.active[key] = id
	}

	a.Status = to
	a.UpdatedAt = time.Now()

	out := *a
	return &out, nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.byID[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *a
	return &out, nil
}

func (r *MemoryRepository) GetByIdempotencyKey(ctx context.Context, subjectID, key string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.idem[idemKey(subjectID, key)]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *MemoryRepository) FindByInstant(ctx context.Context, at time.Time) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.active[instantKey(at)]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *MemoryRepository) TicketExists(ctx context.Context, ticket string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.tickets[ticket]
	return ok, nil
}

func (r *MemoryRepository) ListOccupied(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []time.Time
	for _, id := range r.active {
		at := r.byID[id].ScheduledFor
		if !at.Before(from) && at.Before(to) {
			out = append(out, at)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

func (r *MemoryRepository) ListByOwner(ctx context.Context, subjectID string) ([]Appointment, error) {
	return r.collect(func(a *Appointment) bool { return a.SubjectID == subjectID }, 0, 0), nil
}

func (r *MemoryRepository) ListAll(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	match := func(a *Appointment) bool {
		return filter.Status == nil || a.Status == *filter.Status
	}
	return r.collect(match, filter.Limit, filter.Offset), nil
}

// collect returns matching appointments newest scheduled_for first.
func (r *MemoryRepository) collect(match func(*Appointment) bool, limit, offset int) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if match(a) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.After(out[j].ScheduledFor)
	})
	return page(out, limit, offset)
}

func page(items []Appointment, limit, offset int) []Appointment {
	if offset > 0 {
		if offset >= len(items) {
			return nil
		}
		items = items[offset:]
	}
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}

func (r *MemoryRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[Status]int, len(Statuses))
	for _, a := range r.byID {
		counts[a.Status]++
	}
	return counts, nil
}

func (r *MemoryRepository) ListRecent(ctx context.Context, n int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Appointment, 0, len(r.byID))
	for _, a := range r.byID {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return page(out, n, 0), nil
}

func (r *MemoryRepository) FindConfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.byID {
		if a.Status == StatusConfirmed && a.ScheduledFor.Before(cutoff) {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ScheduledFor.Before(out[j].ScheduledFor)
	})
	return page(out, limit, 0), nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEv++
	ev.ID = r.nextEv
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the audit log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}
