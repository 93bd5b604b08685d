package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation = "23505"

	constraintActiveInstant = "appointments_active_instant_uq"
	constraintTicket        = "appointments_ticket_number_uq"
	constraintIdempotency   = "appointments_idempotency_uq"
)

const appointmentColumns = `id, ticket_number, subject_id, contact_name, contact_email,
	service_id, service_label, scheduled_for, notes, status, idempotency_key,
	created_at, updated_at`

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var notes, idemKey *string

	err := row.Scan(
		&a.ID,
		&a.TicketNumber,
		&a.SubjectID,
		&a.ContactName,
		&a.ContactEmail,
		&a.ServiceID,
		&a.ServiceLabel,
		&a.ScheduledFor,
		&notes,
		&a.Status,
		&idemKey,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	if notes != nil {
		a.Notes = *notes
	}
	if idemKey != nil {
		a.IdempotencyKey = *idemKey
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// mapWriteError turns unique violations into the store's conflict errors.
func mapWriteError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return err
	}

	switch pgErr.ConstraintName {
	case constraintActiveInstant:
		return fmt.Errorf("%w: %s", ErrSlotConflict, pgErr.Detail)
	case constraintTicket:
		return fmt.Errorf("%w: %s", ErrTicketConflict, pgErr.Detail)
	case constraintIdempotency:
		return fmt.Errorf("%w: %s", ErrIdempotencyConflict, pgErr.Detail)
	}
	return err
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, appt *Appointment) (*Appointment, error) {
	id := appt.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := r.pool.QueryRow(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now(), now())
		RETURNING `+appointmentColumns,
		id,
		appt.TicketNumber,
		appt.SubjectID,
		appt.ContactName,
		appt.ContactEmail,
		appt.ServiceID,
		appt.ServiceLabel,
		appt.ScheduledFor,
		appt.Notes,
		appt.Status,
		nullableString(appt.IdempotencyKey),
	)

	created, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return created, nil
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns, id, to, from)

	updated, err := scanAppointment(row)
	if err != nil {
		return nil, mapWriteError(err)
	}
	return updated, nil
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetByIdempotencyKey(ctx context.Context, subjectID, key string) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_id = $1
		  AND idempotency_key = $2
	`, subjectID, key)
	return scanAppointment(row)
}

func (r *PgRepository) FindByInstant(ctx context.Context, at time.Time) (*Appointment, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE scheduled_for = $1
		  AND status <> 'cancelled'
	`, at)
	return scanAppointment(row)
}

func (r *PgRepository) TicketExists(ctx context.Context, ticket string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointments WHERE ticket_number = $1)
	`, ticket).Scan(&exists)
	return exists, err
}

func (r *PgRepository) ListOccupied(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT scheduled_for
		FROM appointments
		WHERE status <> 'cancelled'
		  AND scheduled_for >= $1
		  AND scheduled_for < $2
		ORDER BY scheduled_for
	`, from, to)
	if err != nil {
		return nil, err
	}

	return pgx.CollectRows(rows, pgx.RowTo[time.Time])
}

func (r *PgRepository) ListByOwner(ctx context.Context, subjectID string) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_id = $1
		ORDER BY scheduled_for DESC
	`, subjectID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) ListAll(ctx context.Context, filter ListFilter) ([]Appointment, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}

	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY scheduled_for DESC
		LIMIT $2 OFFSET $3
	`, status, filter.Limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, count(*)
		FROM appointments
		GROUP BY status
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int, len(Statuses))
	for rows.Next() {
		var s Status
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, err
		}
		counts[s] = n
	}
	return counts, rows.Err()
}

func (r *PgRepository) ListRecent(ctx context.Context, n int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		ORDER BY created_at DESC
		LIMIT $1
	`, n)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) FindConfirmedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed'
		  AND scheduled_for < $1
		ORDER BY scheduled_for
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_logs (event_type, appointment_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.AppointmentID, ev.Payload, ev.CreatedAt)
	return err
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
