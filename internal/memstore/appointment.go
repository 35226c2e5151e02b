package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
)

type AppointmentRepo struct{ s *Store }

func (s *Store) Appointments() *AppointmentRepo { return &AppointmentRepo{s: s} }

// AppointmentCount returns the number of stored appointments in any status.
func (s *Store) AppointmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.appointments)
}

func (r *AppointmentRepo) Create(_ context.Context, a *appointment.Appointment) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("appointment.Create"); err != nil {
		return nil, err
	}
	created := *a
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	now := r.s.Now()
	created.CreatedAt, created.UpdatedAt = now, now
	r.s.st.appointments[created.ID] = created
	return &created, nil
}

func (r *AppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	return &a, nil
}

// caller must hold s.mu
func (s *Store) detail(a appointment.Appointment) appointment.AppointmentDetail {
	d := appointment.AppointmentDetail{Appointment: a}
	if p, ok := s.st.patients[a.PatientID]; ok {
		d.Patient = &p
	}
	if doc, ok := s.st.doctors[a.DoctorID]; ok {
		d.Doctor = &doc
	}
	if h, ok := s.st.hospitals[a.HospitalID]; ok {
		d.Hospital = &h
	}
	if c, ok := s.st.categories[a.ServiceCategoryID]; ok {
		d.ServiceCategory = &c
	}
	return d
}

func (r *AppointmentRepo) GetDetail(_ context.Context, id uuid.UUID) (*appointment.AppointmentDetail, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	d := r.s.detail(a)
	return &d, nil
}

func (r *AppointmentRepo) UpdateStatus(_ context.Context, id uuid.UUID, to appointment.AppointmentStatus) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	a.Status, a.UpdatedAt = to, r.s.Now()
	r.s.st.appointments[id] = a
	return &a, nil
}

func (r *AppointmentRepo) CompareAndSetStatus(_ context.Context, id uuid.UUID, from, to appointment.AppointmentStatus) (*appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.st.appointments[id]
	if !ok {
		return nil, appointment.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, appointment.ErrStatusChanged
	}
	a.Status, a.UpdatedAt = to, r.s.Now()
	r.s.st.appointments[id] = a
	return &a, nil
}

func (r *AppointmentRepo) listDetails(match func(appointment.Appointment) bool) []appointment.AppointmentDetail {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.st.appointments, func(a, b appointment.Appointment) bool {
		if !a.ScheduledAt.Equal(b.ScheduledAt) {
			return a.ScheduledAt.After(b.ScheduledAt)
		}
		return a.ID.String() < b.ID.String()
	})
	var out []appointment.AppointmentDetail
	for _, a := range all {
		if match(a) {
			out = append(out, r.s.detail(a))
		}
	}
	return out
}

func (r *AppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]appointment.AppointmentDetail, error) {
	return r.listDetails(func(a appointment.Appointment) bool { return a.PatientID == patientID }), nil
}

func (r *AppointmentRepo) ListAll(_ context.Context) ([]appointment.AppointmentDetail, error) {
	return r.listDetails(func(appointment.Appointment) bool { return true }), nil
}

func (r *AppointmentRepo) ListByDoctorBetween(_ context.Context, doctorID uuid.UUID, from, to time.Time) ([]appointment.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("appointment.ListByDoctorBetween"); err != nil {
		return nil, err
	}
	all := sortedValues(r.s.st.appointments, func(a, b appointment.Appointment) bool {
		return a.ScheduledAt.Before(b.ScheduledAt)
	})
	var out []appointment.Appointment
	for _, a := range all {
		if a.DoctorID != doctorID || a.Status == appointment.StatusCancelled {
			continue
		}
		if a.ScheduledAt.Before(from) || a.ScheduledAt.After(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (r *AppointmentRepo) CountByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	list, err := r.ListByDoctorBetween(ctx, doctorID, from, to)
	return len(list), err
}

// LockDoctor only records the call; WithinTx already serializes writers.
func (r *AppointmentRepo) LockDoctor(_ context.Context, doctorID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.lockedDocs = append(r.s.lockedDocs, doctorID)
	return nil
}
