package memstore

import (
	"context"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

var (
	_ directory.Repository   = (*DirectoryRepo)(nil)
	_ appointment.Repository = (*AppointmentRepo)(nil)
	_ waitlist.Repository    = (*WaitlistRepo)(nil)
	_ db.TxRunner            = (*Store)(nil)
	_ audit.Sink             = (*Store)(nil)
)

// InsertEvent keeps audit events outside the transactional state, the same
// way the Postgres sink writes through the pool.
func (s *Store) InsertEvent(_ context.Context, ev audit.EventLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.injected("audit.InsertEvent"); err != nil {
		return err
	}
	s.events = append(s.events, ev)
	return nil
}

// EventTypes returns recorded event types in insertion order.
func (s *Store) EventTypes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, ev := range s.events {
		out = append(out, ev.EventType)
	}
	return out
}
