package waitlist

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
)

var (
	ErrEntryNotFound = fmt.Errorf("%w: waitlist entry", apperr.ErrNotFound)
	ErrNotQueued     = fmt.Errorf("%w: waitlist entry already processed", apperr.ErrInvalidState)
)

// Repository stores waitlist entries. Every list is FIFO ordered
// (created_at, seq).
type Repository interface {
	Create(ctx context.Context, e *Entry) (*Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	// GetForUpdate locks the row for the surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Entry, error)

	// MarkPromoted moves a QUEUED entry to PROMOTED and links the
	// appointment. It returns ErrNotQueued when the entry is not QUEUED.
	MarkPromoted(ctx context.Context, id, appointmentID uuid.UUID) (*Entry, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Entry, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Entry, error)
	ListByStatus(ctx context.Context, status Status) ([]Entry, error)
	ListAll(ctx context.Context) ([]Entry, error)
	ListQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Entry, error)
	OldestQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) (*Entry, error)
	DoctorsWithQueued(ctx context.Context) ([]uuid.UUID, error)
}
