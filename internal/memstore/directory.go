package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/directory"
)

type DirectoryRepo struct{ s *Store }

func (s *Store) Directory() *DirectoryRepo { return &DirectoryRepo{s: s} }

// Seeding helpers

func (s *Store) AddHospital(name string) directory.Hospital {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	h := directory.Hospital{ID: uuid.New(), Name: name, CreatedAt: now, UpdatedAt: now}
	s.st.hospitals[h.ID] = h
	return h
}

func (s *Store) AddServiceCategory(name string, hospitalID *uuid.UUID) directory.ServiceCategory {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	c := directory.ServiceCategory{ID: uuid.New(), HospitalID: hospitalID, Name: name, CreatedAt: now, UpdatedAt: now}
	s.st.categories[c.ID] = c
	return c
}

func (s *Store) AddDoctor(name string, hospitalID, categoryID *uuid.UUID) directory.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	u := directory.User{ID: uuid.New(), Email: uuid.NewString() + "@doctors.test", Name: name, Role: directory.RoleDoctor, CreatedAt: now}
	s.st.users[u.Email] = u
	d := directory.Doctor{
		ID: uuid.New(), UserID: u.ID, HospitalID: hospitalID, ServiceCategoryID: categoryID,
		Name: name, CreatedAt: now, UpdatedAt: now,
	}
	s.st.doctors[d.ID] = d
	return d
}

func (s *Store) AddPatient(email, name string) directory.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.Now()
	u := directory.User{ID: uuid.New(), Email: email, Name: name, Role: directory.RolePatient, CreatedAt: now}
	s.st.users[email] = u
	p := directory.Patient{ID: uuid.New(), UserID: u.ID, Name: name, Email: email, CreatedAt: now, UpdatedAt: now}
	s.st.patients[p.ID] = p
	return p
}

func (s *Store) Doctors() []directory.Doctor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.doctors, func(a, b directory.Doctor) bool {
		return createdFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
}

func (s *Store) Patients() []directory.Patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedValues(s.st.patients, func(a, b directory.Patient) bool {
		return createdFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
}

// Repository methods

func (r *DirectoryRepo) GetHospital(_ context.Context, id uuid.UUID) (*directory.Hospital, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("directory.GetHospital"); err != nil {
		return nil, err
	}
	h, ok := r.s.st.hospitals[id]
	if !ok {
		return nil, directory.ErrHospitalNotFound
	}
	return &h, nil
}

func (r *DirectoryRepo) FirstHospital(_ context.Context) (*directory.Hospital, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.st.hospitals, func(a, b directory.Hospital) bool {
		return createdFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	if len(all) == 0 {
		return nil, directory.ErrHospitalNotFound
	}
	return &all[0], nil
}

func (r *DirectoryRepo) GetServiceCategory(_ context.Context, id uuid.UUID) (*directory.ServiceCategory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.st.categories[id]
	if !ok {
		return nil, directory.ErrServiceCategoryNotFound
	}
	return &c, nil
}

func (r *DirectoryRepo) FirstServiceCategory(_ context.Context) (*directory.ServiceCategory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.st.categories, func(a, b directory.ServiceCategory) bool {
		return createdFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	if len(all) == 0 {
		return nil, directory.ErrServiceCategoryNotFound
	}
	return &all[0], nil
}

func (r *DirectoryRepo) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.st.doctors[id]
	if !ok {
		return nil, directory.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *DirectoryRepo) firstDoctor(match func(directory.Doctor) bool) (*directory.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.st.doctors, func(a, b directory.Doctor) bool {
		return createdFirst(a.CreatedAt, a.ID, b.CreatedAt, b.ID)
	})
	for _, d := range all {
		if match(d) {
			return &d, nil
		}
	}
	return nil, directory.ErrDoctorNotFound
}

func (r *DirectoryRepo) FirstDoctorByServiceCategory(_ context.Context, categoryID uuid.UUID) (*directory.Doctor, error) {
	return r.firstDoctor(func(d directory.Doctor) bool {
		return d.ServiceCategoryID != nil && *d.ServiceCategoryID == categoryID
	})
}

func (r *DirectoryRepo) FirstDoctorByHospital(_ context.Context, hospitalID uuid.UUID) (*directory.Doctor, error) {
	return r.firstDoctor(func(d directory.Doctor) bool {
		return d.HospitalID != nil && *d.HospitalID == hospitalID
	})
}

func (r *DirectoryRepo) FirstDoctor(_ context.Context) (*directory.Doctor, error) {
	return r.firstDoctor(func(directory.Doctor) bool { return true })
}

func (r *DirectoryRepo) CreateDoctor(_ context.Context, user directory.User, d directory.Doctor) (*directory.Doctor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("directory.CreateDoctor"); err != nil {
		return nil, err
	}
	now := r.s.Now()
	u := r.s.upsertUser(user, now)
	d.ID, d.UserID, d.CreatedAt, d.UpdatedAt = uuid.New(), u.ID, now, now
	r.s.st.doctors[d.ID] = d
	return &d, nil
}

func (r *DirectoryRepo) GetPatient(_ context.Context, id uuid.UUID) (*directory.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.patients[id]
	if !ok {
		return nil, directory.ErrPatientNotFound
	}
	return &p, nil
}

func (r *DirectoryRepo) GetPatientByEmail(_ context.Context, email string) (*directory.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.patients {
		if p.Email == email {
			return &p, nil
		}
	}
	return nil, directory.ErrPatientNotFound
}

func (r *DirectoryRepo) CreatePatient(_ context.Context, user directory.User, p directory.Patient) (*directory.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("directory.CreatePatient"); err != nil {
		return nil, err
	}
	now := r.s.Now()
	u := r.s.upsertUser(user, now)
	for id, existing := range r.s.st.patients {
		if existing.Email == p.Email {
			existing.UpdatedAt = now
			r.s.st.patients[id] = existing
			return &existing, nil
		}
	}
	p.ID, p.UserID, p.CreatedAt, p.UpdatedAt = uuid.New(), u.ID, now, now
	r.s.st.patients[p.ID] = p
	return &p, nil
}

// caller must hold s.mu
func (s *Store) upsertUser(u directory.User, now time.Time) directory.User {
	if existing, ok := s.st.users[u.Email]; ok {
		return existing
	}
	u.ID, u.CreatedAt, u.UpdatedAt = uuid.New(), now, now
	s.st.users[u.Email] = u
	return u
}
