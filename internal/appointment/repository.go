package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
)

var (
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment", apperr.ErrNotFound)
	// ErrStatusChanged is returned when a compare-and-set lost to a
	// concurrent update.
	ErrStatusChanged = fmt.Errorf("%w: appointment status changed concurrently", apperr.ErrInvalidState)
)

// Repository contains all DB interactions needed by the scheduler. Reads that
// feed a conflict decision must run inside the transaction that holds
// LockDoctor for the same doctor.
type Repository interface {
	Create(ctx context.Context, a *Appointment) (*Appointment, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error)

	// UpdateStatus sets status unconditionally.
	UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error)
	// CompareAndSetStatus only updates when the current status is from.
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error)
	ListAll(ctx context.Context) ([]AppointmentDetail, error)

	// For conflict checks and slot counting. Both bounds are inclusive and
	// cancelled appointments are excluded.
	ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error)
	CountByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error)

	// LockDoctor serializes writers of one doctor's appointment set until
	// the surrounding transaction ends.
	LockDoctor(ctx context.Context, doctorID uuid.UUID) error
}
