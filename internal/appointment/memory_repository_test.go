package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newRecord(subject, ticket string, at time.Time) *Appointment {
	return &Appointment{
		ID:           uuid.New(),
		TicketNumber: ticket,
		SubjectID:    subject,
		ServiceID:    "1",
		ServiceLabel: "Depression Therapy",
		ScheduledFor: at,
		Status:       StatusConfirmed,
	}
}

func TestMemoryCreateConflicts(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	at := Slot{9, 0}.On(day(2025, 7, 1), clinicZone)

	first := newRecord("u1", "T-1", at)
	first.IdempotencyKey = "k"
	if _, err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	// Same instant expressed in UTC is still the same instant.
	if _, err := repo.Create(ctx, newRecord("u2", "T-2", at.UTC())); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("err = %v, want ErrSlotConflict", err)
	}
	if _, err := repo.Create(ctx, newRecord("u2", "T-1", at.Add(time.Hour))); !errors.Is(err, ErrTicketConflict) {
		t.Fatalf("err = %v, want ErrTicketConflict", err)
	}

	dup := newRecord("u1", "T-3", at.Add(2*time.Hour))
	dup.IdempotencyKey = "k"
	if _, err := repo.Create(ctx, dup); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("err = %v, want ErrIdempotencyConflict", err)
	}

	other := newRecord("u2", "T-4", at.Add(2*time.Hour))
	other.IdempotencyKey = "k"
	if _, err := repo.Create(ctx, other); err != nil {
		t.Fatalf("same key for a different subject: %v", err)
	}
}

func TestMemoryCreateConcurrent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	at := Slot{12, 0}.On(day(2025, 7, 1), clinicZone)

	const workers = 64
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := repo.Create(ctx, newRecord("u", uuid.NewString(), at))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else if !errors.Is(err, ErrSlotConflict) {
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if wins != 1 {
		t.Fatalf("wins = %d, want 1", wins)
	}
}

func TestMemoryUpdateStatusIsConditional(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	at := Slot{9, 0}.On(day(2025, 7, 1), clinicZone)

	created, _ := repo.Create(ctx, newRecord("u1", "T-1", at))

	if _, err := repo.UpdateStatus(ctx, created.ID, StatusAttended, StatusMissed); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("stale from: err = %v, want ErrAppointmentNotFound", err)
	}
	if _, err := repo.UpdateStatus(ctx, uuid.New(), StatusConfirmed, StatusCancelled); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("missing id: err = %v, want ErrAppointmentNotFound", err)
	}

	if _, err := repo.UpdateStatus(ctx, created.ID, StatusConfirmed, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := repo.FindByInstant(ctx, at); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("cancelled appointment still holds the instant: %v", err)
	}

	replacement, err := repo.Create(ctx, newRecord("u2", "T-2", at))
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}

	// Reviving the cancelled record would break uniqueness.
	if _, err := repo.UpdateStatus(ctx, created.ID, StatusCancelled, StatusConfirmed); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("revive: err = %v, want ErrSlotConflict", err)
	}

	occupied, _ := repo.ListOccupied(ctx, day(2025, 7, 1), day(2025, 7, 2))
	if len(occupied) != 1 || !occupied[0].Equal(replacement.ScheduledFor) {
		t.Fatalf("occupied = %v", occupied)
	}
}

func TestMemoryReturnsCopies(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	created, _ := repo.Create(ctx, newRecord("u1", "T-1", Slot{9, 0}.On(day(2025, 7, 1), clinicZone)))
	created.Status = StatusMissed

	stored, _ := repo.GetByID(ctx, created.ID)
	if stored.Status != StatusConfirmed {
		t.Fatal("caller mutation leaked into the store")
	}
}
