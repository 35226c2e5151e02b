package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const appointmentCols = `id, patient_id, doctor_id, hospital_id, service_category_id,
	scheduled_at, status, priority, payment_method, payment_amount, created_at, updated_at`

// detailSelect eager-loads every cross reference so admin listings never
// return half-populated rows.
const detailSelect = `
	SELECT a.id, a.patient_id, a.doctor_id, a.hospital_id, a.service_category_id,
	       a.scheduled_at, a.status, a.priority, a.payment_method, a.payment_amount,
	       a.created_at, a.updated_at,
	       p.id, p.user_id, p.name, p.email, p.placeholder, p.created_at, p.updated_at,
	       d.id, d.user_id, d.hospital_id, d.service_category_id, d.name, d.specialization,
	       d.placeholder, d.created_at, d.updated_at,
	       h.id, h.name, h.address, h.created_at, h.updated_at,
	       c.id, c.hospital_id, c.name, c.created_at, c.updated_at
	FROM appointments a
	JOIN patients p ON p.id = a.patient_id
	JOIN doctors d ON d.id = a.doctor_id
	JOIN hospitals h ON h.id = a.hospital_id
	JOIN service_categories c ON c.id = a.service_category_id`

// Helpers

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment

	err := row.Scan(
		&a.ID,
		&a.PatientID,
		&a.DoctorID,
		&a.HospitalID,
		&a.ServiceCategoryID,
		&a.ScheduledAt,
		&a.Status,
		&a.Priority,
		&a.PaymentMethod,
		&a.PaymentAmount,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Storage("scan appointment", err)
	}

	return &a, nil
}

func scanDetail(row pgx.Row) (*AppointmentDetail, error) {
	var (
		a AppointmentDetail
		p directory.Patient
		d directory.Doctor
		h directory.Hospital
		c directory.ServiceCategory
	)

	err := row.Scan(
		&a.ID, &a.PatientID, &a.DoctorID, &a.HospitalID, &a.ServiceCategoryID,
		&a.ScheduledAt, &a.Status, &a.Priority, &a.PaymentMethod, &a.PaymentAmount,
		&a.CreatedAt, &a.UpdatedAt,
		&p.ID, &p.UserID, &p.Name, &p.Email, &p.Placeholder, &p.CreatedAt, &p.UpdatedAt,
		&d.ID, &d.UserID, &d.HospitalID, &d.ServiceCategoryID, &d.Name, &d.Specialization,
		&d.Placeholder, &d.CreatedAt, &d.UpdatedAt,
		&h.ID, &h.Name, &h.Address, &h.CreatedAt, &h.UpdatedAt,
		&c.ID, &c.HospitalID, &c.Name, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, apperr.Storage("scan appointment detail", err)
	}

	a.Patient, a.Doctor, a.Hospital, a.ServiceCategory = &p, &d, &h, &c
	return &a, nil
}

func collectDetails(rows pgx.Rows) ([]AppointmentDetail, error) {
	defer rows.Close()

	var result []AppointmentDetail
	for rows.Next() {
		a, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate appointments", err)
	}
	return result, nil
}

// Interface methods

func (r *PgRepository) Create(ctx context.Context, a *Appointment) (*Appointment, error) {
	id := a.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO appointments (id, patient_id, doctor_id, hospital_id, service_category_id,
			scheduled_at, status, priority, payment_method, payment_amount, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now(), now())
		RETURNING `+appointmentCols,
		id, a.PatientID, a.DoctorID, a.HospitalID, a.ServiceCategoryID,
		a.ScheduledAt, a.Status, a.Priority, a.PaymentMethod, a.PaymentAmount)

	return scanAppointment(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+appointmentCols+` FROM appointments WHERE id = $1`, id)
	return scanAppointment(row)
}

func (r *PgRepository) GetDetail(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, detailSelect+` WHERE a.id = $1`, id)
	return scanDetail(row)
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentCols, id, to)

	return scanAppointment(row)
}

func (r *PgRepository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentCols, id, to, from)

	a, err := scanAppointment(row)
	if errors.Is(err, ErrAppointmentNotFound) {
		return nil, ErrStatusChanged
	}
	return a, err
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]AppointmentDetail, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, detailSelect+`
		WHERE a.patient_id = $1
		ORDER BY a.scheduled_at DESC, a.id
	`, patientID)
	if err != nil {
		return nil, apperr.Storage("list appointments by patient", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]AppointmentDetail, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, detailSelect+`
		ORDER BY a.scheduled_at DESC, a.id
	`)
	if err != nil {
		return nil, apperr.Storage("list appointments", err)
	}
	return collectDetails(rows)
}

func (r *PgRepository) ListByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+appointmentCols+`
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at BETWEEN $2 AND $3
		  AND status <> 'CANCELLED'
		ORDER BY scheduled_at
	`, doctorID, from, to)
	if err != nil {
		return nil, apperr.Storage("list appointments by doctor", err)
	}
	defer rows.Close()

	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, apperr.Storage("iterate appointments by doctor", err)
	}

	return result, nil
}

func (r *PgRepository) CountByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	var n int
	err := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT COUNT(*)
		FROM appointments
		WHERE doctor_id = $1
		  AND scheduled_at BETWEEN $2 AND $3
		  AND status <> 'CANCELLED'
	`, doctorID, from, to).Scan(&n)
	if err != nil {
		return 0, apperr.Storage("count appointments by doctor", err)
	}
	return n, nil
}

var errLockOutsideTx = errors.New("doctor lock requires a transaction")

func (r *PgRepository) LockDoctor(ctx context.Context, doctorID uuid.UUID) error {
	tx := db.TxFromContext(ctx)
	if tx == nil {
		return apperr.Storage("lock doctor", errLockOutsideTx)
	}

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`, doctorID.String()); err != nil {
		return apperr.Storage("lock doctor", err)
	}
	return nil
}
