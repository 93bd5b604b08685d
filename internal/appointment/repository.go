package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Store level errors. Create reports which uniqueness rule rejected the row.
var (
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotConflict        = errors.New("instant already held by an active appointment")
	ErrTicketConflict      = errors.New("ticket number already issued")
	ErrIdempotencyConflict = errors.New("idempotency key already used by subject")
)

// Repository contains all persistence needed by the service.
// Create and UpdateStatus are the only writers and each one is atomic: no two
// non-cancelled appointments may share a scheduled instant.
type Repository interface {
	Create(ctx context.Context, appt *Appointment) (*Appointment, error)
	// UpdateStatus applies the change only while the row is still in status from.
	// A missing row or a lost race both report ErrAppointmentNotFound.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetByIdempotencyKey(ctx context.Context, subjectID, key string) (*Appointment, error)
	FindByInstant(ctx context.Context, at time.Time) (*Appointment, error)
	TicketExists(ctx context.Context, ticket string) (bool, error)

	// ListOccupied returns the instants in [from, to) held by non-cancelled appointments.
	ListOccupied(ctx context.Context, from, to time.Time) ([]time.Time, error)
	ListByOwner(ctx context.Context, subjectID string) ([]Appointment, error)
	ListAll(ctx context.Context, filter ListFilter) ([]Appointment, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
	ListRecent(ctx context.Context, n int) ([]Appointment, error)

	// Attendance sweeper
	FindConfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error)

	InsertEvent(ctx context.Context, ev EventLog) error
}
