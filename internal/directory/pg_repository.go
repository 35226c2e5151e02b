package directory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const (
	hospitalCols = `id, name, address, created_at, updated_at`
	categoryCols = `id, hospital_id, name, created_at, updated_at`
	doctorCols   = `id, user_id, hospital_id, service_category_id, name, specialization, placeholder, created_at, updated_at`
	patientCols  = `id, user_id, name, email, placeholder, created_at, updated_at`
)

// Helpers

func scanHospital(row pgx.Row) (*Hospital, error) {
	var h Hospital
	err := row.Scan(&h.ID, &h.Name, &h.Address, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrHospitalNotFound
		}
		return nil, apperr.Storage("scan hospital", err)
	}
	return &h, nil
}

func scanCategory(row pgx.Row) (*ServiceCategory, error) {
	var c ServiceCategory
	err := row.Scan(&c.ID, &c.HospitalID, &c.Name, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceCategoryNotFound
		}
		return nil, apperr.Storage("scan service category", err)
	}
	return &c, nil
}

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(
		&d.ID,
		&d.UserID,
		&d.HospitalID,
		&d.ServiceCategoryID,
		&d.Name,
		&d.Specialization,
		&d.Placeholder,
		&d.CreatedAt,
		&d.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDoctorNotFound
		}
		return nil, apperr.Storage("scan doctor", err)
	}
	return &d, nil
}

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.UserID, &p.Name, &p.Email, &p.Placeholder, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, apperr.Storage("scan patient", err)
	}
	return &p, nil
}

// Hospitals

func (r *PgRepository) GetHospital(ctx context.Context, id uuid.UUID) (*Hospital, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+hospitalCols+` FROM hospitals WHERE id = $1`, id)
	return scanHospital(row)
}

func (r *PgRepository) FirstHospital(ctx context.Context) (*Hospital, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+hospitalCols+`
		FROM hospitals
		ORDER BY created_at, id
		LIMIT 1
	`)
	return scanHospital(row)
}

// Service categories

func (r *PgRepository) GetServiceCategory(ctx context.Context, id uuid.UUID) (*ServiceCategory, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+categoryCols+` FROM service_categories WHERE id = $1`, id)
	return scanCategory(row)
}

func (r *PgRepository) FirstServiceCategory(ctx context.Context) (*ServiceCategory, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+categoryCols+`
		FROM service_categories
		ORDER BY created_at, id
		LIMIT 1
	`)
	return scanCategory(row)
}

// Doctors

func (r *PgRepository) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctors WHERE id = $1`, id)
	return scanDoctor(row)
}

func (r *PgRepository) FirstDoctorByServiceCategory(ctx context.Context, categoryID uuid.UUID) (*Doctor, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors
		WHERE service_category_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, categoryID)
	return scanDoctor(row)
}

func (r *PgRepository) FirstDoctorByHospital(ctx context.Context, hospitalID uuid.UUID) (*Doctor, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors
		WHERE hospital_id = $1
		ORDER BY created_at, id
		LIMIT 1
	`, hospitalID)
	return scanDoctor(row)
}

func (r *PgRepository) FirstDoctor(ctx context.Context) (*Doctor, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+doctorCols+`
		FROM doctors
		ORDER BY created_at, id
		LIMIT 1
	`)
	return scanDoctor(row)
}

func (r *PgRepository) CreateDoctor(ctx context.Context, user User, d Doctor) (*Doctor, error) {
	userID, err := r.upsertUser(ctx, user)
	if err != nil {
		return nil, err
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO doctors (id, user_id, hospital_id, service_category_id, name, specialization, placeholder, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+doctorCols,
		uuid.New(), userID, d.HospitalID, d.ServiceCategoryID, d.Name, d.Specialization, d.Placeholder)
	return scanDoctor(row)
}

// Patients

func (r *PgRepository) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

func (r *PgRepository) GetPatientByEmail(ctx context.Context, email string) (*Patient, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE email = $1`, email)
	return scanPatient(row)
}

// CreatePatient returns the existing row when a concurrent request created
// the same email first.
func (r *PgRepository) CreatePatient(ctx context.Context, user User, p Patient) (*Patient, error) {
	userID, err := r.upsertUser(ctx, user)
	if err != nil {
		return nil, err
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patients (id, user_id, name, email, placeholder, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING `+patientCols,
		uuid.New(), userID, p.Name, p.Email, p.Placeholder)
	return scanPatient(row)
}

// upsertUser reuses an existing account with the same email.
func (r *PgRepository) upsertUser(ctx context.Context, u User) (uuid.UUID, error) {
	var id uuid.UUID
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO users (id, email, name, role, placeholder, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, now(), now())
		ON CONFLICT (email) DO UPDATE SET updated_at = now()
		RETURNING id
	`, uuid.New(), u.Email, u.Name, u.Role, u.Placeholder).Scan(&id)
	if err != nil {
		return uuid.Nil, apperr.Storage(fmt.Sprintf("upsert %s user", u.Role), err)
	}
	return id, nil
}
