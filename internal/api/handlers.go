package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/booking"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

// Appointments

func createAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCreateAppointment(w, r)
		if !ok {
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), callerFrom(r), req)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func bookHandler(desk *booking.Desk) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeCreateAppointment(w, r)
		if !ok {
			return
		}

		out, err := desk.Book(r.Context(), callerFrom(r), req)
		if err != nil {
			handleError(w, err)
			return
		}

		if out.Waitlisted() {
			entry := toWaitlistEntryResponse(out.WaitlistEntry)
			writeJSON(w, http.StatusAccepted, BookingResponse{Outcome: "WAITLISTED", WaitlistEntry: &entry})
			return
		}
		appt := toAppointmentResponse(out.Appointment)
		writeJSON(w, http.StatusCreated, BookingResponse{Outcome: "BOOKED", Appointment: &appt})
	}
}

func decodeCreateAppointment(w http.ResponseWriter, r *http.Request) (appointment.CreateRequest, bool) {
	var body CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return appointment.CreateRequest{}, false
	}

	refs, err := parseRefs(body.HospitalID, body.ServiceCategoryID, body.DoctorID)
	if err != nil {
		handleError(w, err)
		return appointment.CreateRequest{}, false
	}

	at, err := parseDateTime("appointmentDateTime", body.AppointmentDateTime)
	if err != nil {
		handleError(w, err)
		return appointment.CreateRequest{}, false
	}

	return appointment.CreateRequest{
		Refs:          refs,
		ScheduledAt:   at,
		Priority:      body.Priority,
		PaymentMethod: body.PaymentMethod,
		PaymentAmount: body.PaymentAmount,
	}, true
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetAppointment(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentDetailResponse(detail))
	}
}

func listMyAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListPatientAppointments(r.Context(), callerFrom(r))
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDetailList(list))
	}
}

func listAllAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListAllAppointments(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentDetailList(list))
	}
}

func updateAppointmentStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentStatusHandler(svc.UpdateStatus)
}

func overrideAppointmentStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return appointmentStatusHandler(svc.OverrideStatus)
}

type appointmentStatusFunc func(ctx context.Context, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error)

func appointmentStatusHandler(update appointmentStatusFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var body UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		to, err := appointment.ParseStatus(body.Status)
		if err != nil {
			handleError(w, err)
			return
		}

		appt, err := update(r.Context(), id, to)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

// Slots

func getSlotsHandler(calc *appointment.SlotCalculator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "doctorId")
		if !ok {
			return
		}

		date := time.Now().UTC()
		if raw := r.URL.Query().Get("date"); raw != "" {
			parsed, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			date = parsed
		}

		av, err := calc.GetAvailability(r.Context(), doctorID, date)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, AvailabilityResponse{
			DoctorID:   av.DoctorID,
			DoctorName: av.DoctorName,
			Date:       av.Date.Format(time.DateOnly),
			Capacity:   av.Capacity,
			Booked:     av.Booked,
			Available:  av.Available,
		})
	}
}

// Waitlist

func addToWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body AddToWaitlistRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		refs, err := parseRefs(body.HospitalID, body.ServiceCategoryID, body.DoctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		desired, err := parseDateTime("desiredDateTime", body.DesiredDateTime)
		if err != nil {
			handleError(w, err)
			return
		}

		entry, err := svc.AddToWaitlist(r.Context(), callerFrom(r), waitlist.AddRequest{
			Refs:      refs,
			DesiredAt: desired,
			Priority:  body.Priority,
		})
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toWaitlistEntryResponse(entry))
	}
}

func listMyWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListMine(r.Context(), callerFrom(r))
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistList(entries))
	}
}

func listActiveWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListAllActive(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistList(entries))
	}
}

func listAllWaitlistHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := svc.ListAll(r.Context())
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistList(entries))
	}
}

func listDoctorQueueHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "doctorId")
		if !ok {
			return
		}
		entries, err := svc.ListQueuedByDoctor(r.Context(), doctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistList(entries))
	}
}

func cancelWaitlistEntryHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		entry, err := svc.Cancel(r.Context(), callerFrom(r), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
	}
}

func promoteHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.PromoteToAppointment(r.Context(), id)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPromotionResponse(p))
	}
}

func promoteNextHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathID(w, r, "doctorId")
		if !ok {
			return
		}
		p, err := svc.PromoteNext(r.Context(), doctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPromotionResponse(p))
	}
}

func updateWaitlistStatusHandler(svc *waitlist.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var body UpdateStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entry, err := svc.UpdateStatus(r.Context(), id, body.Status)
		if err != nil {
			handleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toWaitlistEntryResponse(entry))
	}
}

// Helpers

func callerFrom(r *http.Request) identity.Caller {
	c, _ := identity.FromContext(r.Context())
	return c
}

func pathID(w http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, param))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+param, param+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parseRefs(hospitalID, categoryID, doctorID string) (directory.Refs, error) {
	var refs directory.Refs
	var err error
	if refs.HospitalID, err = optionalID("hospitalId", hospitalID); err != nil {
		return refs, err
	}
	if refs.ServiceCategoryID, err = optionalID("serviceCategoryId", categoryID); err != nil {
		return refs, err
	}
	if refs.DoctorID, err = optionalID("doctorId", doctorID); err != nil {
		return refs, err
	}
	return refs, nil
}

func optionalID(field, raw string) (*uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be a valid UUID", apperr.ErrInvalidInput, field)
	}
	return &id, nil
}

// Date-times without a zone are read as UTC.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// parseDateTime returns the zero time for an empty value so the services
// report the missing field themselves.
func parseDateTime(field, raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %s must be an ISO-8601 date-time", apperr.ErrInvalidInput, field)
}

func handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, waitlist.ErrNoSlotAvailable):
		writeError(w, http.StatusConflict, "no_slot_available", err.Error())
	case errors.Is(err, waitlist.ErrDoctorBusy):
		writeError(w, http.StatusConflict, "doctor_busy", err.Error())
	case errors.Is(err, booking.ErrDayFull):
		writeError(w, http.StatusConflict, "day_full", err.Error())
	case errors.Is(err, appointment.ErrInvalidStatusTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.Is(err, apperr.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrConfiguration):
		writeError(w, http.StatusUnprocessableEntity, "configuration_error", err.Error())
	case errors.Is(err, apperr.ErrFeatureDisabled):
		writeError(w, http.StatusForbidden, "feature_disabled", err.Error())
	case errors.Is(err, apperr.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, apperr.ErrSlotConflict):
		writeError(w, http.StatusConflict, "slot_conflict", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
