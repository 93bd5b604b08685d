package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/session-booking/internal/appointment"
)

type CreateAppointmentRequest struct {
	ServiceID string `json:"service_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Notes     string `json:"notes,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type AppointmentResponse struct {
	ID           uuid.UUID `json:"id"`
	TicketNumber string    `json:"ticket_number"`
	SubjectID    string    `json:"subject_id"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
	ServiceID    string    `json:"service_id"`
	Service      string    `json:"service"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Date         string    `json:"date"`
	Time         string    `json:"time"`
	Notes        string    `json:"notes,omitempty"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type BookingResponse struct {
	Appointment AppointmentResponse `json:"appointment"`
	Ticket      appointment.Ticket  `json:"ticket"`
	Replayed    bool                `json:"replayed,omitempty"`
}

type DashboardResponse struct {
	Total    int                   `json:"total"`
	ByStatus map[string]int        `json:"by_status"`
	Recent   []AppointmentResponse `json:"recent"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment, loc *time.Location) AppointmentResponse {
	local := a.ScheduledFor.In(loc)
	return AppointmentResponse{
		ID:           a.ID,
		TicketNumber: a.TicketNumber,
		SubjectID:    a.SubjectID,
		ContactName:  a.ContactName,
		ContactEmail: a.ContactEmail,
		ServiceID:    a.ServiceID,
		Service:      a.ServiceLabel,
		ScheduledFor: local,
		Date:         local.Format(appointment.DateLayout),
		Time:         appointment.SlotOf(local, loc).String(),
		Notes:        a.Notes,
		Status:       string(a.Status),
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func toAppointmentList(list []appointment.Appointment, loc *time.Location) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(list))
	for i := range list {
		out = append(out, toAppointmentResponse(&list[i], loc))
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
