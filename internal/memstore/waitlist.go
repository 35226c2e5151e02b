package memstore

import (
	"context"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

type WaitlistRepo struct{ s *Store }

func (s *Store) Waitlist() *WaitlistRepo { return &WaitlistRepo{s: s} }

func (r *WaitlistRepo) Create(_ context.Context, e *waitlist.Entry) (*waitlist.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("waitlist.Create"); err != nil {
		return nil, err
	}
	created := *e
	if created.ID == uuid.Nil {
		created.ID = uuid.New()
	}
	r.s.st.seq++
	now := r.s.Now()
	created.Seq, created.CreatedAt, created.UpdatedAt = r.s.st.seq, now, now
	r.s.st.entries[created.ID] = created
	return &created, nil
}

func (r *WaitlistRepo) GetByID(_ context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.entries[id]
	if !ok {
		return nil, waitlist.ErrEntryNotFound
	}
	return &e, nil
}

// GetForUpdate is a plain read; WithinTx holds the store for the whole unit
// of work.
func (r *WaitlistRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*waitlist.Entry, error) {
	return r.GetByID(ctx, id)
}

func (r *WaitlistRepo) MarkPromoted(_ context.Context, id, appointmentID uuid.UUID) (*waitlist.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.injected("waitlist.MarkPromoted"); err != nil {
		return nil, err
	}
	e, ok := r.s.st.entries[id]
	if !ok {
		return nil, waitlist.ErrEntryNotFound
	}
	if e.Status != waitlist.StatusQueued {
		return nil, waitlist.ErrNotQueued
	}
	e.Status, e.AppointmentID, e.UpdatedAt = waitlist.StatusPromoted, &appointmentID, r.s.Now()
	r.s.st.entries[id] = e
	return &e, nil
}

func (r *WaitlistRepo) UpdateStatus(_ context.Context, id uuid.UUID, to waitlist.Status) (*waitlist.Entry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.st.entries[id]
	if !ok {
		return nil, waitlist.ErrEntryNotFound
	}
	e.Status, e.UpdatedAt = to, r.s.Now()
	r.s.st.entries[id] = e
	return &e, nil
}

func (r *WaitlistRepo) list(match func(waitlist.Entry) bool) []waitlist.Entry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := sortedValues(r.s.st.entries, func(a, b waitlist.Entry) bool { return a.Before(b) })
	var out []waitlist.Entry
	for _, e := range all {
		if match(e) {
			out = append(out, e)
		}
	}
	return out
}

func (r *WaitlistRepo) ListByPatient(_ context.Context, patientID uuid.UUID) ([]waitlist.Entry, error) {
	return r.list(func(e waitlist.Entry) bool { return e.PatientID == patientID }), nil
}

func (r *WaitlistRepo) ListByStatus(_ context.Context, status waitlist.Status) ([]waitlist.Entry, error) {
	return r.list(func(e waitlist.Entry) bool { return e.Status == status }), nil
}

func (r *WaitlistRepo) ListAll(_ context.Context) ([]waitlist.Entry, error) {
	return r.list(func(waitlist.Entry) bool { return true }), nil
}

func (r *WaitlistRepo) ListQueuedByDoctor(_ context.Context, doctorID uuid.UUID) ([]waitlist.Entry, error) {
	return r.list(func(e waitlist.Entry) bool {
		return e.DoctorID == doctorID && e.Status == waitlist.StatusQueued
	}), nil
}

func (r *WaitlistRepo) OldestQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) (*waitlist.Entry, error) {
	queued, _ := r.ListQueuedByDoctor(ctx, doctorID)
	if len(queued) == 0 {
		return nil, waitlist.ErrEntryNotFound
	}
	return &queued[0], nil
}

func (r *WaitlistRepo) DoctorsWithQueued(ctx context.Context) ([]uuid.UUID, error) {
	seen := map[uuid.UUID]bool{}
	var out []uuid.UUID
	for _, e := range r.list(func(e waitlist.Entry) bool { return e.Status == waitlist.StatusQueued }) {
		if !seen[e.DoctorID] {
			seen[e.DoctorID] = true
			out = append(out, e.DoctorID)
		}
	}
	return out, nil
}
