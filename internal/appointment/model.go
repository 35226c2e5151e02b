package appointment

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
)

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "PENDING"
	StatusConfirmed AppointmentStatus = "CONFIRMED"
	StatusCancelled AppointmentStatus = "CANCELLED"
	StatusCompleted AppointmentStatus = "COMPLETED"
)

var transitions = map[AppointmentStatus][]AppointmentStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusCompleted},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

// ParseStatus accepts any case and surrounding spaces.
func ParseStatus(raw string) (AppointmentStatus, error) {
	s := AppointmentStatus(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown appointment status %q", apperr.ErrInvalidInput, raw)
}

func (s AppointmentStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

func (s AppointmentStatus) CanTransitionTo(to AppointmentStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// InitialStatus is the only automatic confirmation rule: priority requests
// skip the pending-approval step.
func InitialStatus(priority bool) AppointmentStatus {
	if priority {
		return StatusConfirmed
	}
	return StatusPending
}

type Appointment struct {
	ID                uuid.UUID
	PatientID         uuid.UUID
	DoctorID          uuid.UUID
	HospitalID        uuid.UUID
	ServiceCategoryID uuid.UUID
	ScheduledAt       time.Time
	Status            AppointmentStatus
	Priority          bool
	PaymentMethod     *string
	PaymentAmount     *float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type AppointmentDetail struct {
	Appointment
	Patient         *directory.Patient
	Doctor          *directory.Doctor
	Hospital        *directory.Hospital
	ServiceCategory *directory.ServiceCategory
}

// Availability is a doctor's remaining capacity on one calendar date.
type Availability struct {
	DoctorID   uuid.UUID
	DoctorName string
	Date       time.Time
	Capacity   int
	Booked     int
	Available  int
}

// DayBounds returns the first and last instant of date's calendar day in
// date's location.
func DayBounds(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return start, start.AddDate(0, 0, 1).Add(-time.Nanosecond)
}
