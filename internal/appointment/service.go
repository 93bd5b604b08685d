package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/notify"
)

const (
	EventAppointmentCreated   = "APPOINTMENT_CREATED"
	EventAppointmentReplayed  = "APPOINTMENT_REPLAYED"
	EventAppointmentCancelled = "APPOINTMENT_CANCELLED"
	EventAppointmentAttended  = "APPOINTMENT_ATTENDED"
	EventAppointmentMissed    = "APPOINTMENT_MISSED"
)

const (
	dashboardRecent = 5
	defaultPage     = 50
	maxPage         = 200
	sweepBatchSize  = 100
)

var (
	ErrInvalidDate          = errors.New("date is in the past or malformed")
	ErrInvalidSlot          = errors.New("slot is not offered")
	ErrSlotTaken            = errors.New("slot already booked")
	ErrInvalidStatus        = errors.New("unknown status")
	ErrIdempotencyKeyReused = errors.New("idempotency key reused with different booking details")
)

// Dependencies wires the service. Repo is required; everything else has a default.
type Dependencies struct {
	Repo     Repository
	Catalog  *Catalog
	Tickets  *TicketIssuer
	Notifier notify.Notifier
	Location *time.Location
	Clinic   ClinicInfo
	Logger   *zap.Logger
	Now      func() time.Time
}

type Service struct {
	repo     Repository
	catalog  *Catalog
	tickets  *TicketIssuer
	notifier notify.Notifier
	loc      *time.Location
	clinic   ClinicInfo
	logger   *zap.Logger
	now      func() time.Time
}

func NewService(deps Dependencies) *Service {
	s := &Service{
		repo:     deps.Repo,
		catalog:  deps.Catalog,
		tickets:  deps.Tickets,
		notifier: deps.Notifier,
		loc:      deps.Location,
		clinic:   deps.Clinic,
		logger:   deps.Logger,
		now:      deps.Now,
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.catalog == nil {
		s.catalog = DefaultCatalog()
	}
	if s.tickets == nil {
		s.tickets = NewTicketIssuer(deps.Repo, DefaultTicketPrefix, DefaultTicketMaxAttempts, s.loc)
	}
	if s.notifier == nil {
		s.notifier = notify.Nop
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) Location() *time.Location {
	return s.loc
}

func (s *Service) Catalog() *Catalog {
	return s.catalog
}

// BookRequest carries a validated identity and service; SubjectID comes from the
// identity collaborator, ServiceLabel from the service catalog.
type BookRequest struct {
	SubjectID      string
	ContactName    string
	ContactEmail   string
	ServiceID      string
	ServiceLabel   string
	Date           time.Time
	Slot           Slot
	Notes          string
	IdempotencyKey string
}

type BookResult struct {
	Appointment *Appointment
	Ticket      Ticket
	Replayed    bool
}

// Book claims the (date, slot) instant for the subject. The store's atomic insert
// decides races; there is no availability pre-check.
func (s *Service) Book(ctx context.Context, req BookRequest) (*BookResult, error) {
	now := s.now().In(s.loc)
	date := dayStart(req.Date, s.loc)

	if req.Date.IsZero() || date.Before(dayStart(now, s.loc)) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, date.Format(DateLayout))
	}
	if !s.catalog.Contains(date, req.Slot) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidSlot, req.Slot)
	}
	at := req.Slot.On(date, s.loc)
	if !at.After(now) {
		return nil, fmt.Errorf("%w: %s on %s has already started", ErrInvalidSlot, req.Slot, date.Format(DateLayout))
	}

	key := strings.TrimSpace(req.IdempotencyKey)
	if key != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, req.SubjectID, key)
		switch {
		case err == nil:
			return s.replay(ctx, existing, req, at)
		case !errors.Is(err, ErrAppointmentNotFound):
			return nil, fmt.Errorf("lookup idempotency key: %w", err)
		}
	}

	var created *Appointment
	for attempt := 1; ; attempt++ {
		ticket, err := s.tickets.Issue(ctx, date)
		if err != nil {
			return nil, err
		}

		created, err = s.repo.Create(ctx, &Appointment{
			ID:             uuid.New(),
			TicketNumber:   ticket,
			SubjectID:      req.SubjectID,
			ContactName:    req.ContactName,
			ContactEmail:   req.ContactEmail,
			ServiceID:      req.ServiceID,
			ServiceLabel:   req.ServiceLabel,
			ScheduledFor:   at,
			Notes:          strings.TrimSpace(req.Notes),
			Status:         StatusConfirmed,
			IdempotencyKey: key,
		})
		if err == nil {
			break
		}

		switch {
		case errors.Is(err, ErrSlotConflict):
			if prior := s.priorAttempt(ctx, req, key, at); prior != nil {
				return s.replay(ctx, prior, req, at)
			}
			return nil, fmt.Errorf("%w: %s", ErrSlotTaken, at.Format(time.RFC3339))
		case errors.Is(err, ErrIdempotencyConflict):
			existing, lookupErr := s.repo.GetByIdempotencyKey(ctx, req.SubjectID, key)
			if lookupErr != nil {
				return nil, fmt.Errorf("load idempotent booking: %w", lookupErr)
			}
			return s.replay(ctx, existing, req, at)
		case errors.Is(err, ErrTicketConflict):
			if attempt >= s.tickets.MaxAttempts() {
				return nil, fmt.Errorf("%w: ticket raced %d times", ErrIssuanceExhausted, attempt)
			}
			continue
		default:
			return nil, fmt.Errorf("create appointment: %w", err)
		}
	}

	s.logEvent(ctx, created.ID, EventAppointmentCreated, map[string]any{
		"ticket_number": created.TicketNumber,
		"subject_id":    created.SubjectID,
		"service_id":    created.ServiceID,
		"scheduled_for": created.ScheduledFor,
	})

	ticket := s.TicketFor(created)
	s.notify(ctx, notify.KindBookingConfirmed, created, "Appointment Confirmation - "+created.ServiceLabel, ticket)

	return &BookResult{Appointment: created, Ticket: ticket}, nil
}

// priorAttempt finds the caller's own earlier booking of the instant, so a retry
// after a lost response gets its ticket back instead of slot_taken. With a key
// only the keyed booking counts; without one the holder must be the same
// subject and service.
func (s *Service) priorAttempt(ctx context.Context, req BookRequest, key string, at time.Time) *Appointment {
	if key != "" {
		existing, err := s.repo.GetByIdempotencyKey(ctx, req.SubjectID, key)
		if err != nil {
			return nil
		}
		return existing
	}

	holder, err := s.repo.FindByInstant(ctx, at)
	if err != nil {
		if !errors.Is(err, ErrAppointmentNotFound) {
			s.logger.Warn("failed to load slot holder", zap.Time("scheduled_for", at), zap.Error(err))
		}
		return nil
	}
	if holder.SubjectID != req.SubjectID || holder.ServiceID != req.ServiceID {
		return nil
	}
	return holder
}

func (s *Service) replay(ctx context.Context, existing *Appointment, req BookRequest, at time.Time) (*BookResult, error) {
	if !existing.ScheduledFor.Equal(at) || existing.ServiceID != req.ServiceID {
		return nil, ErrIdempotencyKeyReused
	}

	s.logEvent(ctx, existing.ID, EventAppointmentReplayed, map[string]any{
		"idempotency_key": existing.IdempotencyKey,
	})
	return &BookResult{Appointment: existing, Ticket: s.TicketFor(existing), Replayed: true}, nil
}

// TicketFor renders the client-facing receipt for an appointment.
func (s *Service) TicketFor(a *Appointment) Ticket {
	local := a.ScheduledFor.In(s.loc)
	return Ticket{
		TicketNumber: a.TicketNumber,
		Service:      a.ServiceLabel,
		Date:         local.Format(DateLayout),
		Time:         local.Format("3:04 PM"),
		Location:     s.clinic.Address,
		Practitioner: s.clinic.Practitioner,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	appt, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if !actor.Admin && !actor.Owns(appt) {
		return nil, ErrForbidden
	}
	return appt, nil
}

func (s *Service) ListMine(ctx context.Context, subjectID string) ([]Appointment, error) {
	list, err := s.repo.ListByOwner(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by owner: %w", err)
	}
	return list, nil
}

func (s *Service) ListAll(ctx context.Context, filter ListFilter, actor Actor) ([]Appointment, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}
	if filter.Limit <= 0 {
		filter.Limit = defaultPage
	}
	if filter.Limit > maxPage {
		filter.Limit = maxPage
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	list, err := s.repo.ListAll(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return list, nil
}

func (s *Service) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	if !actor.Admin {
		return nil, ErrForbidden
	}

	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("count appointments: %w", err)
	}
	recent, err := s.repo.ListRecent(ctx, dashboardRecent)
	if err != nil {
		return nil, fmt.Errorf("list recent appointments: %w", err)
	}

	d := &Dashboard{ByStatus: make(map[Status]int, len(Statuses)), Recent: recent}
	for _, st := range Statuses {
		d.ByStatus[st] = counts[st]
		d.Total += counts[st]
	}
	return d, nil
}

// Close waits for queued notifications when the notifier supports it.
func (s *Service) Close(ctx context.Context) error {
	switch n := s.notifier.(type) {
	case interface{ Close(context.Context) error }:
		return n.Close(ctx)
	case io.Closer:
		return n.Close()
	}
	return nil
}

func (s *Service) notify(ctx context.Context, kind notify.Kind, a *Appointment, subject string, ticket Ticket) {
	n := notify.Notification{
		ID:            uuid.NewString(),
		Kind:          kind,
		AppointmentID: a.ID.String(),
		Recipient:     a.SubjectID,
		Name:          a.ContactName,
		Email:         a.ContactEmail,
		Subject:       subject,
		Content: map[string]any{
			"ticket_number": ticket.TicketNumber,
			"service":       ticket.Service,
			"date":          ticket.Date,
			"time":          ticket.Time,
			"location":      ticket.Location,
			"practitioner":  ticket.Practitioner,
			"status":        string(a.Status),
		},
		CreatedAt: s.now().UTC(),
	}

	if err := s.notifier.Notify(ctx, n); err != nil {
		s.logger.Warn("notification failed",
			zap.String("kind", string(kind)),
			zap.String("appointment_id", a.ID.String()),
			zap.Error(err),
		)
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.String("appointment_id", appointmentID.String()),
			zap.Error(err),
		)
	}
}
