// Package notify delivers booking notifications to the outside world. Delivery is
// best effort: callers log failures and never roll back the booking.
package notify

import (
	"context"
	"encoding/json"
	"strings"
	"time"
)

type Kind string

const (
	KindBookingConfirmed Kind = "booking.confirmed"
	KindBookingCancelled Kind = "booking.cancelled"
)

// Notification is a transport-neutral message about one appointment.
type Notification struct {
	ID            string         `json:"id"`
	Kind          Kind           `json:"kind"`
	AppointmentID string         `json:"appointment_id"`
	Recipient     string         `json:"recipient"`
	Name          string         `json:"name,omitempty"`
	Email         string         `json:"email,omitempty"`
	Subject       string         `json:"subject"`
	Content       map[string]any `json:"content,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

func (n Notification) Marshal() ([]byte, error) {
	return json.Marshal(n)
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}

// Nop drops every notification.
var Nop Notifier = NotifierFunc(func(context.Context, Notification) error { return nil })

// SplitBrokers parses a comma separated broker list.
func SplitBrokers(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
