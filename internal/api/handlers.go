package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/session-booking/internal/appointment"
	"github.com/hackgods/session-booking/internal/catalog"
)

func listServicesHandler(cat *catalog.Static) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, cat.List())
	}
}

func availableTimesHandler(svc *appointment.Service, cat *catalog.Static, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := appointment.ParseDate(q.Get("date"), svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		serviceID := q.Get("service_id")
		if serviceID != "" {
			if _, ok := cat.Lookup(serviceID); !ok {
				writeError(w, http.StatusBadRequest, "unknown_service", "service_id is not in the catalog")
				return
			}
		}

		slots, err := svc.AvailableSlots(r.Context(), date, serviceID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		times := make([]string, len(slots))
		for i, s := range slots {
			times[i] = s.String()
		}
		writeJSON(w, http.StatusOK, times)
	}
}

func createAppointmentHandler(svc *appointment.Service, cat *catalog.Static, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		service, ok := cat.Lookup(req.ServiceID)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown_service", "service_id is not in the catalog")
			return
		}

		date, err := appointment.ParseDate(req.Date, svc.Location())
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		slot, err := appointment.ParseSlot(req.Time)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot", "time must be HH:MM or H:MM AM/PM")
			return
		}

		p, _ := GetPrincipal(r.Context())
		res, err := svc.Book(r.Context(), appointment.BookRequest{
			SubjectID:      p.SubjectID,
			ContactName:    p.Name,
			ContactEmail:   p.Email,
			ServiceID:      service.ID,
			ServiceLabel:   service.Title,
			Date:           date,
			Slot:           slot,
			Notes:          req.Notes,
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
		})
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}

		writeJSON(w, status, BookingResponse{
			Appointment: toAppointmentResponse(res.Appointment, svc.Location()),
			Ticket:      res.Ticket,
			Replayed:    res.Replayed,
		})
	}
}

func listMineHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, _ := GetPrincipal(r.Context())

		list, err := svc.ListMine(r.Context(), p.SubjectID)
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list, svc.Location()))
	}
}

func getAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Get(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func cancelAppointmentHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func listAllHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		var filter appointment.ListFilter
		if raw := q.Get("status"); raw != "" {
			status, err := appointment.ParseStatus(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
				return
			}
			filter.Status = &status
		}
		filter.Limit, _ = strconv.Atoi(q.Get("limit"))
		filter.Offset, _ = strconv.Atoi(q.Get("offset"))

		list, err := svc.ListAll(r.Context(), filter, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentList(list, svc.Location()))
	}
}

func updateStatusHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseID(w, r)
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		status, err := appointment.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
			return
		}

		appt, err := svc.Transition(r.Context(), id, status, actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt, svc.Location()))
	}
}

func dashboardHandler(svc *appointment.Service, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, err := svc.Dashboard(r.Context(), actorFrom(r.Context()))
		if err != nil {
			handleServiceError(w, r, logger, err)
			return
		}

		byStatus := make(map[string]int, len(d.ByStatus))
		for s, n := range d.ByStatus {
			byStatus[string(s)] = n
		}
		writeJSON(w, http.StatusOK, DashboardResponse{
			Total:    d.Total,
			ByStatus: byStatus,
			Recent:   toAppointmentList(d.Recent, svc.Location()),
		})
	}
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, "id")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func handleServiceError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	switch {
	case errors.Is(err, appointment.ErrInvalidDate):
		writeError(w, http.StatusBadRequest, "invalid_date", err.Error())
	case errors.Is(err, appointment.ErrInvalidSlot):
		writeError(w, http.StatusBadRequest, "invalid_slot", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatus):
		writeError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken):
		writeError(w, http.StatusConflict, "slot_taken", "this time slot is already booked")
	case errors.Is(err, appointment.ErrIdempotencyKeyReused):
		writeError(w, http.StatusUnprocessableEntity, "idempotency_key_reused", err.Error())
	case errors.Is(err, appointment.ErrIssuanceExhausted):
		writeError(w, http.StatusServiceUnavailable, "issuance_exhausted", "could not issue a ticket, please retry")
	case errors.Is(err, appointment.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, appointment.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, appointment.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
