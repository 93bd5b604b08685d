package appointment

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"

	"github.com/hackgods/session-booking/internal/notify"
)

var clinicZone = time.FixedZone("EAT", 3*60*60)

// 2025-06-30 08:00 local, the day before most bookings in these tests.
var testNow = time.Date(2025, 6, 30, 8, 0, 0, 0, clinicZone)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Notify(ctx context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Notification, len(r.sent))
	copy(out, r.sent)
	return out
}

type fixture struct {
	svc      *Service
	repo     *MemoryRepository
	clock    *testClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T, opts ...TicketOption) *fixture {
	t.Helper()

	repo := NewMemoryRepository()
	return newFixtureWithRepo(t, repo, repo, opts...)
}

// newFixtureWithRepo lets a test wrap the memory store to inject failures.
func newFixtureWithRepo(t *testing.T, mem *MemoryRepository, repo Repository, opts ...TicketOption) *fixture {
	t.Helper()

	clock := &testClock{now: testNow}
	notifier := &recordingNotifier{}
	svc := NewService(Dependencies{
		Repo:     repo,
		Catalog:  DefaultCatalog(),
		Tickets:  NewTicketIssuer(repo, "PREFIX", DefaultTicketMaxAttempts, clinicZone, opts...),
		Notifier: notifier,
		Location: clinicZone,
		Clinic:   ClinicInfo{Address: "2344, Kiambu", Practitioner: "Psychologist Joan"},
		Now:      clock.Now,
	})
	return &fixture{svc: svc, repo: mem, clock: clock, notifier: notifier}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, clinicZone)
}

func mustSlot(t *testing.T, raw string) Slot {
	t.Helper()
	s, err := ParseSlot(raw)
	if err != nil {
		t.Fatalf("ParseSlot(%q): %v", raw, err)
	}
	return s
}

func bookReq(subject, service string, date time.Time, slot Slot) BookRequest {
	return BookRequest{
		SubjectID:    subject,
		ContactName:  gofakeit.Name(),
		ContactEmail: gofakeit.Email(),
		ServiceID:    service,
		ServiceLabel: "Service " + service,
		Date:         date,
		Slot:         slot,
		Notes:        gofakeit.Phrase(),
	}
}

// flakyRepository fails selected calls before delegating to the memory store.
type flakyRepository struct {
	*MemoryRepository

	mu             sync.Mutex
	ticketConflict int
	createErr      error
	listErr        error
}

func (f *flakyRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	f.mu.Lock()
	if f.createErr != nil {
		err := f.createErr
		f.mu.Unlock()
		return nil, err
	}
	if f.ticketConflict > 0 {
		f.ticketConflict--
		f.mu.Unlock()
		return nil, ErrTicketConflict
	}
	f.mu.Unlock()
	return f.MemoryRepository.Create(ctx, appt)
}

func (f *flakyRepository) ListOccupied(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.MemoryRepository.ListOccupied(ctx, from, to)
}

var errStoreDown = errors.New("connection refused")
