// Package booking routes a booking request either to the scheduler or, when
// the doctor's day is full, to the waitlist.
package booking

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

var ErrDayFull = appointment.ErrDayFull

// Outcome holds exactly one of Appointment or WaitlistEntry.
type Outcome struct {
	Appointment   *appointment.Appointment
	WaitlistEntry *waitlist.Entry
}

func (o Outcome) Waitlisted() bool { return o.WaitlistEntry != nil }

type Desk struct {
	appointments *appointment.Service
	slots        *appointment.SlotCalculator
	waitlist     *waitlist.Service
	log          zerolog.Logger
}

func NewDesk(appointments *appointment.Service, slots *appointment.SlotCalculator, wl *waitlist.Service, log zerolog.Logger) *Desk {
	return &Desk{appointments: appointments, slots: slots, waitlist: wl, log: log}
}

// Book creates an appointment directly unless the requested doctor's day is
// full. The capacity verdict is taken under the doctor lock together with
// the insert. A full day goes to the waitlist when it is enabled and fails
// with ErrDayFull otherwise. Capacity is only checked when the request names
// a known doctor; otherwise the directory fallback chain picks the doctor.
func (d *Desk) Book(ctx context.Context, caller identity.Caller, req appointment.CreateRequest) (*Outcome, error) {
	if req.ScheduledAt.IsZero() {
		return nil, appointment.ErrMissingDateTime
	}

	appt, err := d.appointments.CreateWithinCapacity(ctx, caller, req, d.slots)
	if errors.Is(err, appointment.ErrDayFull) {
		return d.redirect(ctx, caller, req)
	}
	if err != nil {
		return nil, err
	}
	return &Outcome{Appointment: appt}, nil
}

func (d *Desk) redirect(ctx context.Context, caller identity.Caller, req appointment.CreateRequest) (*Outcome, error) {
	if !d.waitlist.Enabled() {
		return nil, ErrDayFull
	}

	entry, err := d.waitlist.AddToWaitlist(ctx, caller, waitlist.AddRequest{
		Refs:      req.Refs,
		DesiredAt: req.ScheduledAt,
		Priority:  req.Priority,
	})
	if err != nil {
		return nil, fmt.Errorf("queue on waitlist: %w", err)
	}

	d.log.Info().Stringer("entry_id", entry.ID).Msg("doctor fully booked, request queued on waitlist")
	return &Outcome{WaitlistEntry: entry}, nil
}
