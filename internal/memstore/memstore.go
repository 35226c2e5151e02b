// Package memstore is an in-memory implementation of the directory,
// appointment and waitlist repositories plus a transaction runner that
// restores the previous state when a unit of work fails. Package tests and
// the HTTP tests run the real services against it.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

type state struct {
	users        map[string]directory.User
	hospitals    map[uuid.UUID]directory.Hospital
	categories   map[uuid.UUID]directory.ServiceCategory
	doctors      map[uuid.UUID]directory.Doctor
	patients     map[uuid.UUID]directory.Patient
	appointments map[uuid.UUID]appointment.Appointment
	entries      map[uuid.UUID]waitlist.Entry
	seq          int64
}

func (s *state) clone() *state {
	return &state{
		users:        cloneMap(s.users),
		hospitals:    cloneMap(s.hospitals),
		categories:   cloneMap(s.categories),
		doctors:      cloneMap(s.doctors),
		patients:     cloneMap(s.patients),
		appointments: cloneMap(s.appointments),
		entries:      cloneMap(s.entries),
		seq:          s.seq,
	}
}

func cloneMap[K comparable, V any](in map[K]V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

type Store struct {
	mu    sync.Mutex
	txMu  sync.Mutex
	st    *state
	fails map[string]error

	// Now stamps created_at and updated_at. Tests may pin it.
	Now func() time.Time

	tick       time.Duration
	lockedDocs []uuid.UUID
	events     []audit.EventLog
}

func New() *Store {
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	s := &Store{
		st: &state{
			users:        map[string]directory.User{},
			hospitals:    map[uuid.UUID]directory.Hospital{},
			categories:   map[uuid.UUID]directory.ServiceCategory{},
			doctors:      map[uuid.UUID]directory.Doctor{},
			patients:     map[uuid.UUID]directory.Patient{},
			appointments: map[uuid.UUID]appointment.Appointment{},
			entries:      map[uuid.UUID]waitlist.Entry{},
		},
		fails: map[string]error{},
	}
	// strictly increasing timestamps keep "first" lookups in insertion order
	s.Now = func() time.Time {
		s.tick += time.Millisecond
		return base.Add(s.tick)
	}
	return s
}

// FailOn makes the next call of op return err. Op names are
// "<package>.<Method>", e.g. "appointment.Create".
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fails[op] = err
}

// caller must hold s.mu
func (s *Store) injected(op string) error {
	if err, ok := s.fails[op]; ok {
		delete(s.fails, op)
		return err
	}
	return nil
}

// LockedDoctors returns the doctor ids passed to LockDoctor, in order.
func (s *Store) LockedDoctors() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.lockedDocs...)
}

type txKey struct{}

// WithinTx serializes units of work and rolls the whole store back when fn
// fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		return err
	}
	return nil
}

func sortedValues[K comparable, V any](in map[K]V, less func(a, b V) bool) []V {
	out := make([]V, 0, len(in))
	for _, v := range in {
		out = append(out, v)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

func createdFirst(aAt time.Time, aID uuid.UUID, bAt time.Time, bID uuid.UUID) bool {
	if !aAt.Equal(bAt) {
		return aAt.Before(bAt)
	}
	return aID.String() < bID.String()
}
