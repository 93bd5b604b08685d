package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/db"
)

// newPgRepository migrates a throwaway schema in the database named by
// POSTGRES_DSN and drops it when the test ends.
func newPgRepository(t *testing.T) *PgRepository {
	t.Helper()

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	schema := "booking_test_" + uuid.NewString()[:8]

	admin, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(admin.Close)
	if _, err := admin.Exec(ctx, "CREATE SCHEMA "+schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), "DROP SCHEMA "+schema+" CASCADE")
	})

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse dsn: %v", err)
	}
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	cfg.MaxConns = 16
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("connect schema pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, pool, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPgRepository(pool)
}

func pgInstant(hour int) time.Time {
	return time.Date(2030, 1, 15, hour, 0, 0, 0, clinicZone)
}

func TestPgCreateWithoutNotes(t *testing.T) {
	repo := newPgRepository(t)
	ctx := context.Background()

	rec := newRecord("u1", "T-PG-1", pgInstant(9))
	created, err := repo.Create(ctx, rec)
	if err != nil {
		t.Fatalf("Create without notes: %v", err)
	}
	if created.Notes != "" || created.IdempotencyKey != "" {
		t.Fatalf("created = %+v", created)
	}
	if !created.ScheduledFor.Equal(rec.ScheduledFor) || created.Status != StatusConfirmed {
		t.Fatalf("created = %+v", created)
	}

	withNotes := newRecord("u1", "T-PG-2", pgInstant(10))
	withNotes.Notes = "bring referral letter"
	withNotes.IdempotencyKey = "k1"
	if _, err := repo.Create(ctx, withNotes); err != nil {
		t.Fatalf("Create with notes: %v", err)
	}

	got, err := repo.GetByIdempotencyKey(ctx, "u1", "k1")
	if err != nil {
		t.Fatalf("GetByIdempotencyKey: %v", err)
	}
	if got.Notes != "bring referral letter" || got.ID != withNotes.ID {
		t.Fatalf("got = %+v", got)
	}
}

func TestPgCreateConflicts(t *testing.T) {
	repo := newPgRepository(t)
	ctx := context.Background()

	first := newRecord("u1", "T-PG-1", pgInstant(9))
	first.IdempotencyKey = "k"
	if _, err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.Create(ctx, newRecord("u2", "T-PG-2", pgInstant(9).UTC())); !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("same instant: err = %v, want ErrSlotConflict", err)
	}
	if _, err := repo.Create(ctx, newRecord("u2", "T-PG-1", pgInstant(11))); !errors.Is(err, ErrTicketConflict) {
		t.Fatalf("same ticket: err = %v, want ErrTicketConflict", err)
	}

	dup := newRecord("u1", "T-PG-3", pgInstant(12))
	dup.IdempotencyKey = "k"
	if _, err := repo.Create(ctx, dup); !errors.Is(err, ErrIdempotencyConflict) {
		t.Fatalf("same key: err = %v, want ErrIdempotencyConflict", err)
	}

	exists, err := repo.TicketExists(ctx, "T-PG-1")
	if err != nil || !exists {
		t.Fatalf("TicketExists = %v, %v", exists, err)
	}
}

func TestPgCreateConcurrentSameInstant(t *testing.T) {
	repo := newPgRepository(t)
	ctx := context.Background()

	const workers = 20
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, err := repo.Create(ctx, newRecord(fmt.Sprintf("u%d", i), fmt.Sprintf("T-RACE-%d", i), pgInstant(13)))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, ErrSlotConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	close(start)
	wg.Wait()

	if wins != 1 || conflicts != workers-1 {
		t.Fatalf("wins = %d conflicts = %d", wins, conflicts)
	}
}

func TestPgUpdateStatusAndRebook(t *testing.T) {
	repo := newPgRepository(t)
	ctx := context.Background()
	at := pgInstant(15)

	created, err := repo.Create(ctx, newRecord("u1", "T-PG-1", at))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if _, err := repo.UpdateStatus(ctx, created.ID, StatusAttended, StatusMissed); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("stale from: err = %v, want ErrAppointmentNotFound", err)
	}
	if _, err := repo.UpdateStatus(ctx, uuid.New(), StatusConfirmed, StatusCancelled); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("missing id: err = %v, want ErrAppointmentNotFound", err)
	}

	cancelled, err := repo.UpdateStatus(ctx, created.ID, StatusConfirmed, StatusCancelled)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != StatusCancelled {
		t.Fatalf("cancelled = %+v", cancelled)
	}
	if _, err := repo.UpdateStatus(ctx, created.ID, StatusConfirmed, StatusAttended); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("second transition: err = %v, want ErrAppointmentNotFound", err)
	}
	if _, err := repo.FindByInstant(ctx, at); !errors.Is(err, ErrAppointmentNotFound) {
		t.Fatalf("cancelled appointment still holds the instant: %v", err)
	}

	rebooked, err := repo.Create(ctx, newRecord("u2", "T-PG-2", at))
	if err != nil {
		t.Fatalf("rebook: %v", err)
	}
	holder, err := repo.FindByInstant(ctx, at)
	if err != nil || holder.ID != rebooked.ID {
		t.Fatalf("holder = %+v, %v", holder, err)
	}

	day := time.Date(2030, 1, 15, 0, 0, 0, 0, clinicZone)
	occupied, err := repo.ListOccupied(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		t.Fatalf("ListOccupied: %v", err)
	}
	if len(occupied) != 1 || !occupied[0].Equal(at) {
		t.Fatalf("occupied = %v", occupied)
	}
}

func TestPgListsCountsAndEvents(t *testing.T) {
	repo := newPgRepository(t)
	ctx := context.Background()

	var ids []uuid.UUID
	for i, hour := range []int{9, 10, 12} {
		a, err := repo.Create(ctx, newRecord(fmt.Sprintf("u%d", i%2), fmt.Sprintf("T-PG-%d", i), pgInstant(hour)))
		if err != nil {
			t.Fatalf("Create: %v", err)
		}
		ids = append(ids, a.ID)
	}
	if _, err := repo.UpdateStatus(ctx, ids[0], StatusConfirmed, StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	all, err := repo.ListAll(ctx, ListFilter{Limit: 10})
	if err != nil || len(all) != 3 {
		t.Fatalf("ListAll = %d, %v", len(all), err)
	}
	if !all[0].ScheduledFor.After(all[1].ScheduledFor) {
		t.Fatal("ListAll is not newest first")
	}

	cancelled := StatusCancelled
	only, err := repo.ListAll(ctx, ListFilter{Status: &cancelled, Limit: 10})
	if err != nil || len(only) != 1 || only[0].ID != ids[0] {
		t.Fatalf("filtered = %+v, %v", only, err)
	}

	paged, err := repo.ListAll(ctx, ListFilter{Limit: 1, Offset: 2})
	if err != nil || len(paged) != 1 || paged[0].ID != ids[0] {
		t.Fatalf("paged = %+v, %v", paged, err)
	}

	mine, err := repo.ListByOwner(ctx, "u0")
	if err != nil || len(mine) != 2 {
		t.Fatalf("ListByOwner = %d, %v", len(mine), err)
	}

	counts, err := repo.CountByStatus(ctx)
	if err != nil || counts[StatusConfirmed] != 2 || counts[StatusCancelled] != 1 {
		t.Fatalf("counts = %v, %v", counts, err)
	}

	recent, err := repo.ListRecent(ctx, 2)
	if err != nil || len(recent) != 2 {
		t.Fatalf("ListRecent = %d, %v", len(recent), err)
	}

	before, err := repo.FindConfirmedBefore(ctx, pgInstant(11), 10)
	if err != nil || len(before) != 1 || before[0].ID != ids[1] {
		t.Fatalf("FindConfirmedBefore = %+v, %v", before, err)
	}

	payload, _ := json.Marshal(map[string]any{"ticket_number": "T-PG-1"})
	id := ids[1]
	if err := repo.InsertEvent(ctx, EventLog{EventType: EventAppointmentCreated, AppointmentID: &id, Payload: payload, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertEvent: %v", err)
	}
	if err := repo.InsertEvent(ctx, EventLog{EventType: EventAppointmentCreated, CreatedAt: time.Now()}); err != nil {
		t.Fatalf("InsertEvent without payload: %v", err)
	}
}

func TestPgBookWithoutNotesAndRetry(t *testing.T) {
	repo := newPgRepository(t)
	f := newFixtureWithRepo(t, nil, repo)
	ctx := context.Background()

	req := bookReq("u1", "1", day(2025, 7, 1), mustSlot(t, "09:00"))
	req.Notes = ""

	first, err := f.svc.Book(ctx, req)
	if err != nil {
		t.Fatalf("Book without notes: %v", err)
	}
	if first.Appointment.Notes != "" {
		t.Fatalf("notes = %q", first.Appointment.Notes)
	}

	retry, err := f.svc.Book(ctx, req)
	if err != nil || !retry.Replayed || retry.Ticket.TicketNumber != first.Ticket.TicketNumber {
		t.Fatalf("retry = %+v, %v", retry, err)
	}
}
