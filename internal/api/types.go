package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

// Directory ids are strings so that an absent or empty id reaches the
// fallback chain instead of failing JSON decoding.

type CreateAppointmentRequest struct {
	HospitalID          string   `json:"hospitalId"`
	ServiceCategoryID   string   `json:"serviceCategoryId"`
	DoctorID            string   `json:"doctorId"`
	AppointmentDateTime string   `json:"appointmentDateTime"`
	Priority            bool     `json:"priority"`
	PaymentMethod       string   `json:"paymentMethod,omitempty"`
	PaymentAmount       *float64 `json:"paymentAmount,omitempty"`
}

type AddToWaitlistRequest struct {
	HospitalID        string `json:"hospitalId"`
	ServiceCategoryID string `json:"serviceCategoryId"`
	DoctorID          string `json:"doctorId"`
	DesiredDateTime   string `json:"desiredDateTime"`
	Priority          bool   `json:"priority"`
}

type UpdateStatusRequest struct {
	Status string `json:"status"`
}

type NamedRef struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
}

type AppointmentResponse struct {
	ID                  uuid.UUID `json:"id"`
	PatientID           uuid.UUID `json:"patientId"`
	DoctorID            uuid.UUID `json:"doctorId"`
	HospitalID          uuid.UUID `json:"hospitalId"`
	ServiceCategoryID   uuid.UUID `json:"serviceCategoryId"`
	AppointmentDateTime time.Time `json:"appointmentDateTime"`
	Status              string    `json:"status"`
	Priority            bool      `json:"priority"`
	PaymentMethod       *string   `json:"paymentMethod,omitempty"`
	PaymentAmount       *float64  `json:"paymentAmount,omitempty"`
	CreatedAt           time.Time `json:"createdAt"`

	Patient         *NamedRef `json:"patient,omitempty"`
	Doctor          *NamedRef `json:"doctor,omitempty"`
	Hospital        *NamedRef `json:"hospital,omitempty"`
	ServiceCategory *NamedRef `json:"serviceCategory,omitempty"`
}

type WaitlistEntryResponse struct {
	ID                uuid.UUID  `json:"id"`
	PatientID         uuid.UUID  `json:"patientId"`
	DoctorID          uuid.UUID  `json:"doctorId"`
	HospitalID        uuid.UUID  `json:"hospitalId"`
	ServiceCategoryID uuid.UUID  `json:"serviceCategoryId"`
	DesiredDateTime   time.Time  `json:"desiredDateTime"`
	Priority          bool       `json:"priority"`
	Status            string     `json:"status"`
	AppointmentID     *uuid.UUID `json:"appointmentId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

type AvailabilityResponse struct {
	DoctorID   uuid.UUID `json:"doctorId"`
	DoctorName string    `json:"doctorName"`
	Date       string    `json:"date"`
	Capacity   int       `json:"capacity"`
	Booked     int       `json:"booked"`
	Available  int       `json:"available"`
}

type PromotionResponse struct {
	Status      string                `json:"status"`
	Entry       WaitlistEntryResponse `json:"entry"`
	Appointment AppointmentResponse   `json:"appointment"`
}

// BookingResponse carries exactly one of Appointment or WaitlistEntry.
type BookingResponse struct {
	Outcome       string                 `json:"outcome"` // BOOKED or WAITLISTED
	Appointment   *AppointmentResponse   `json:"appointment,omitempty"`
	WaitlistEntry *WaitlistEntryResponse `json:"waitlistEntry,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func toAppointmentResponse(a *appointment.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:                  a.ID,
		PatientID:           a.PatientID,
		DoctorID:            a.DoctorID,
		HospitalID:          a.HospitalID,
		ServiceCategoryID:   a.ServiceCategoryID,
		AppointmentDateTime: a.ScheduledAt,
		Status:              string(a.Status),
		Priority:            a.Priority,
		PaymentMethod:       a.PaymentMethod,
		PaymentAmount:       a.PaymentAmount,
		CreatedAt:           a.CreatedAt,
	}
}

func toAppointmentDetailResponse(d *appointment.AppointmentDetail) AppointmentResponse {
	resp := toAppointmentResponse(&d.Appointment)
	if d.Patient != nil {
		resp.Patient = &NamedRef{ID: d.Patient.ID, Name: d.Patient.Name}
	}
	if d.Doctor != nil {
		resp.Doctor = &NamedRef{ID: d.Doctor.ID, Name: d.Doctor.Name}
	}
	if d.Hospital != nil {
		resp.Hospital = &NamedRef{ID: d.Hospital.ID, Name: d.Hospital.Name}
	}
	if d.ServiceCategory != nil {
		resp.ServiceCategory = &NamedRef{ID: d.ServiceCategory.ID, Name: d.ServiceCategory.Name}
	}
	return resp
}

func toAppointmentDetailList(in []appointment.AppointmentDetail) []AppointmentResponse {
	out := make([]AppointmentResponse, 0, len(in))
	for i := range in {
		out = append(out, toAppointmentDetailResponse(&in[i]))
	}
	return out
}

func toWaitlistEntryResponse(e *waitlist.Entry) WaitlistEntryResponse {
	return WaitlistEntryResponse{
		ID:                e.ID,
		PatientID:         e.PatientID,
		DoctorID:          e.DoctorID,
		HospitalID:        e.HospitalID,
		ServiceCategoryID: e.ServiceCategoryID,
		DesiredDateTime:   e.DesiredAt,
		Priority:          e.Priority,
		Status:            string(e.Status),
		AppointmentID:     e.AppointmentID,
		CreatedAt:         e.CreatedAt,
	}
}

func toWaitlistList(in []waitlist.Entry) []WaitlistEntryResponse {
	out := make([]WaitlistEntryResponse, 0, len(in))
	for i := range in {
		out = append(out, toWaitlistEntryResponse(&in[i]))
	}
	return out
}

func toPromotionResponse(p *waitlist.Promotion) PromotionResponse {
	return PromotionResponse{
		Status:      string(p.Entry.Status),
		Entry:       toWaitlistEntryResponse(p.Entry),
		Appointment: toAppointmentResponse(p.Appointment),
	}
}
