package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/notify"
)

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrForbidden         = errors.New("actor may not perform this action")
)

var allowedTransitions = map[Status][]Status{
	StatusConfirmed: {StatusAttended, StatusMissed, StatusCancelled},
}

var transitionEvents = map[Status]string{
	StatusAttended:  EventAppointmentAttended,
	StatusMissed:    EventAppointmentMissed,
	StatusCancelled: EventAppointmentCancelled,
}

func CanTransition(from, to Status) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// authorize: owners and admins may cancel, only admins record attendance.
func authorize(appt *Appointment, to Status, actor Actor) error {
	if actor.Admin {
		return nil
	}
	if to == StatusCancelled && actor.Owns(appt) {
		return nil
	}
	return ErrForbidden
}

// Transition moves an appointment to status to. Authorisation is checked before
// legality so a stranger learns nothing about the appointment's state.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status, actor Actor) (*Appointment, error) {
	if !to.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}

	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if err := authorize(appt, to, actor); err != nil {
		return nil, err
	}
	if !CanTransition(appt.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, to)
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, to)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, fmt.Errorf("%w: status changed concurrently", ErrInvalidTransition)
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, transitionEvents[to], map[string]any{
		"from":  string(appt.Status),
		"to":    string(to),
		"actor": actor.SubjectID,
	})

	if to == StatusCancelled {
		s.notify(ctx, notify.KindBookingCancelled, updated, "Appointment Cancelled - "+updated.ServiceLabel, s.TicketFor(updated))
	}

	return updated, nil
}

func (s *Service) Cancel(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	return s.Transition(ctx, id, StatusCancelled, actor)
}

// SweepMissed marks confirmed appointments older than grace as missed and returns
// how many it changed. Appointments that move concurrently are skipped.
func (s *Service) SweepMissed(ctx context.Context, grace time.Duration) (int, error) {
	cutoff := s.now().Add(-grace)

	candidates, err := s.repo.FindConfirmedBefore(ctx, cutoff, sweepBatchSize)
	if err != nil {
		return 0, fmt.Errorf("find confirmed appointments before %s: %w", cutoff.Format(time.RFC3339), err)
	}

	marked := 0
	for _, appt := range candidates {
		if ctx.Err() != nil {
			return marked, ctx.Err()
		}

		_, err := s.Transition(ctx, appt.ID, StatusMissed, SystemActor)
		switch {
		case err == nil:
			marked++
		case errors.Is(err, ErrInvalidTransition):
		default:
			s.logger.Error("failed to mark appointment missed",
				zap.String("appointment_id", appt.ID.String()),
				zap.Error(err),
			)
		}
	}
	return marked, nil
}
