package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusConfirmed Status = "confirmed"
	StatusAttended  Status = "attended"
	StatusMissed    Status = "missed"
	StatusCancelled Status = "cancelled"
)

// Statuses lists every status in lifecycle order.
var Statuses = []Status{StatusConfirmed, StatusAttended, StatusMissed, StatusCancelled}

func (s Status) Valid() bool {
	switch s {
	case StatusConfirmed, StatusAttended, StatusMissed, StatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s Status) Terminal() bool {
	return s == StatusAttended || s == StatusMissed || s == StatusCancelled
}

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
	}
	return s, nil
}

// Appointment is one claim on a (date, slot) instant. ServiceLabel, ContactName and
// ContactEmail are copied at booking time and never follow later catalog or profile edits.
type Appointment struct {
	ID             uuid.UUID
	TicketNumber   string
	SubjectID      string
	ContactName    string
	ContactEmail   string
	ServiceID      string
	ServiceLabel   string
	ScheduledFor   time.Time
	Notes          string
	Status         Status
	IdempotencyKey string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Actor is the caller as vouched for by the identity collaborator.
type Actor struct {
	SubjectID string
	Admin     bool
}

// SystemActor is used by background jobs acting with administrative rights.
var SystemActor = Actor{SubjectID: "system", Admin: true}

func (a Actor) Owns(appt *Appointment) bool {
	return a.SubjectID != "" && a.SubjectID == appt.SubjectID
}

type ListFilter struct {
	Status *Status
	Limit  int
	Offset int
}

type Dashboard struct {
	Total    int
	ByStatus map[Status]int
	Recent   []Appointment
}

// ClinicInfo is printed on tickets and notifications.
type ClinicInfo struct {
	Address      string
	Practitioner string
}

// Ticket is the client-facing receipt for a booking.
type Ticket struct {
	TicketNumber string `json:"ticket_number"`
	Service      string `json:"service"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Location     string `json:"location"`
	Practitioner string `json:"practitioner"`
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
