package waitlist

import (
	"context"
	"errors"

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

const entryCols = `id, seq, patient_id, doctor_id, hospital_id, service_category_id,
	desired_at, priority, status, appointment_id, created_at, updated_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.Seq,
		&e.PatientID,
		&e.DoctorID,
		&e.HospitalID,
		&e.ServiceCategoryID,
		&e.DesiredAt,
		&e.Priority,
		&e.Status,
		&e.AppointmentID,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrEntryNotFound
		}
		return nil, apperr.Storage("scan waitlist entry", err)
	}
	return &e, nil
}

func (r *PgRepository) list(ctx context.Context, op, where string, args ...any) ([]Entry, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+entryCols+`
		FROM waitlist_entries
		`+where+`
		ORDER BY created_at, seq
	`, args...)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Storage(op, err)
	}
	return result, nil
}

func (r *PgRepository) Create(ctx context.Context, e *Entry) (*Entry, error) {
	id := e.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO waitlist_entries (id, patient_id, doctor_id, hospital_id, service_category_id,
			desired_at, priority, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now())
		RETURNING `+entryCols,
		id, e.PatientID, e.DoctorID, e.HospitalID, e.ServiceCategoryID,
		e.DesiredAt, e.Priority, e.Status)

	return scanEntry(row)
}

func (r *PgRepository) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+entryCols+` FROM waitlist_entries WHERE id = $1`, id)
	return scanEntry(row)
}

func (r *PgRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*Entry, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `SELECT `+entryCols+` FROM waitlist_entries WHERE id = $1 FOR UPDATE`, id)
	return scanEntry(row)
}

func (r *PgRepository) MarkPromoted(ctx context.Context, id, appointmentID uuid.UUID) (*Entry, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = 'PROMOTED',
		    appointment_id = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = 'QUEUED'
		RETURNING `+entryCols, id, appointmentID)

	e, err := scanEntry(row)
	if errors.Is(err, ErrEntryNotFound) {
		return nil, ErrNotQueued
	}
	return e, err
}

func (r *PgRepository) UpdateStatus(ctx context.Context, id uuid.UUID, to Status) (*Entry, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		UPDATE waitlist_entries
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+entryCols, id, to)
	return scanEntry(row)
}

func (r *PgRepository) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]Entry, error) {
	return r.list(ctx, "list waitlist by patient", `WHERE patient_id = $1`, patientID)
}

func (r *PgRepository) ListByStatus(ctx context.Context, status Status) ([]Entry, error) {
	return r.list(ctx, "list waitlist by status", `WHERE status = $1`, status)
}

func (r *PgRepository) ListAll(ctx context.Context) ([]Entry, error) {
	return r.list(ctx, "list waitlist", ``)
}

func (r *PgRepository) ListQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Entry, error) {
	return r.list(ctx, "list queued by doctor", `WHERE doctor_id = $1 AND status = 'QUEUED'`, doctorID)
}

func (r *PgRepository) OldestQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) (*Entry, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+entryCols+`
		FROM waitlist_entries
		WHERE doctor_id = $1
		  AND status = 'QUEUED'
		ORDER BY created_at, seq
		LIMIT 1
	`, doctorID)
	return scanEntry(row)
}

func (r *PgRepository) DoctorsWithQueued(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT doctor_id
		FROM waitlist_entries
		WHERE status = 'QUEUED'
		GROUP BY doctor_id
		ORDER BY MIN(created_at)
	`)
	if err != nil {
		return nil, apperr.Storage("list doctors with queued entries", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, apperr.Storage("scan doctor ids", err)
	}
	return ids, nil
}
