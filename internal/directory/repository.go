package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
)

var (
	ErrHospitalNotFound        = fmt.Errorf("%w: hospital", apperr.ErrNotFound)
	ErrServiceCategoryNotFound = fmt.Errorf("%w: service category", apperr.ErrNotFound)
	ErrDoctorNotFound          = fmt.Errorf("%w: doctor", apperr.ErrNotFound)
	ErrPatientNotFound         = fmt.Errorf("%w: patient", apperr.ErrNotFound)

	ErrNoHospitals          = fmt.Errorf("%w: No hospitals configured", apperr.ErrConfiguration)
	ErrNoServiceCategories  = fmt.Errorf("%w: No service categories configured", apperr.ErrConfiguration)
	ErrNoDoctors            = fmt.Errorf("%w: No doctors configured", apperr.ErrConfiguration)
	ErrPatientNotRegistered = fmt.Errorf("%w: no patient profile for caller", apperr.ErrConfiguration)
)

// Repository contains the directory reads and the placeholder writes used by
// the resolver. "First" lookups order by created_at, id so they are
// deterministic for a given dataset.
type Repository interface {
	GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error)
	FirstHospital(ctx context.Context) (*Hospital, error)

	GetServiceCategory(ctx context.Context, id uuid.UUID) (*ServiceCategory, error)
	FirstServiceCategory(ctx context.Context) (*ServiceCategory, error)

	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	FirstDoctorByServiceCategory(ctx context.Context, categoryID uuid.UUID) (*Doctor, error)
	FirstDoctorByHospital(ctx context.Context, hospitalID uuid.UUID) (*Doctor, error)
	FirstDoctor(ctx context.Context) (*Doctor, error)
	CreateDoctor(ctx context.Context, user User, d Doctor) (*Doctor, error)

	GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetPatientByEmail(ctx context.Context, email string) (*Patient, error)
	// CreatePatient returns the existing patient when the email is taken.
	CreatePatient(ctx context.Context, user User, p Patient) (*Patient, error)
}

func isNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound)
}
