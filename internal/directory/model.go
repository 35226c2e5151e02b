package directory

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RolePatient Role = "PATIENT"
	RoleDoctor  Role = "DOCTOR"
)

type User struct {
	ID          uuid.UUID
	Email       string
	Name        string
	Role        Role
	Placeholder bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Hospital struct {
	ID        uuid.UUID
	Name      string
	Address   *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type ServiceCategory struct {
	ID         uuid.UUID
	HospitalID *uuid.UUID
	Name       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type Doctor struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	HospitalID        *uuid.UUID
	ServiceCategoryID *uuid.UUID
	Name              string
	Specialization    *string
	Placeholder       bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type Patient struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Email       string
	Placeholder bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Refs are the optional directory ids carried by a booking request.
type Refs struct {
	HospitalID        *uuid.UUID
	ServiceCategoryID *uuid.UUID
	DoctorID          *uuid.UUID
}

// Resolution is the concrete set of directory entities a booking uses.
type Resolution struct {
	Patient         *Patient
	Hospital        *Hospital
	ServiceCategory *ServiceCategory
	Doctor          *Doctor
	// Placeholders lists ids of patients or doctors synthesized while
	// resolving. They are committed together with the booking.
	Placeholders []Placeholder
}

type Placeholder struct {
	Kind string // "patient" or "doctor"
	ID   uuid.UUID
}
