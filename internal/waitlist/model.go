package waitlist

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
)

type Status string

const (
	StatusQueued    Status = "QUEUED"
	StatusPromoted  Status = "PROMOTED"
	StatusCancelled Status = "CANCELLED"
	StatusRejected  Status = "REJECTED"
)

func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	switch s {
	case StatusQueued, StatusPromoted, StatusCancelled, StatusRejected:
		return s, nil
	}
	return "", fmt.Errorf("%w: unknown waitlist status %q", apperr.ErrInvalidInput, raw)
}

// Entry is a booking request that could not be placed immediately.
// Seq is the insertion order and breaks created_at ties in FIFO listings.
type Entry struct {
	ID                uuid.UUID
	Seq               int64
	PatientID         uuid.UUID
	DoctorID          uuid.UUID
	HospitalID        uuid.UUID
	ServiceCategoryID uuid.UUID
	DesiredAt         time.Time
	Priority          bool
	Status            Status
	AppointmentID     *uuid.UUID
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Before reports FIFO order: created_at ascending, then insertion order.
func (e Entry) Before(other Entry) bool {
	if !e.CreatedAt.Equal(other.CreatedAt) {
		return e.CreatedAt.Before(other.CreatedAt)
	}
	return e.Seq < other.Seq
}
