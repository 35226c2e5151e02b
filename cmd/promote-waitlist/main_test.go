package main

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/memstore"
	redisclient "github.com/clinicdesk/appointment-waitlist/internal/redis"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

func newService(store *memstore.Store) *waitlist.Service {
	return waitlist.NewService(waitlist.Deps{
		Repo:         store.Waitlist(),
		Appointments: store.Appointments(),
		Resolver:     directory.NewResolver(store.Directory(), directory.FallbackPolicy{AllowImplicitCreation: true}, zerolog.Nop()),
		Tx:           store,
		Locker:       redisclient.NewLocalLocker(),
		Enabled:      true,
		Log:          zerolog.Nop(),
	})
}

func TestRunOnce(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	h := store.AddHospital("H1")
	free := store.AddDoctor("Free", &h.ID, nil)
	busy := store.AddDoctor("Busy", &h.ID, nil)
	store.AddServiceCategory("General", &h.ID)
	svc := newService(store)

	at := time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)
	patient := store.AddPatient("booked@example.com", "Booked")
	_, err := store.Appointments().Create(ctx, &appointment.Appointment{
		PatientID: patient.ID, DoctorID: busy.ID, ScheduledAt: at, Status: appointment.StatusConfirmed,
	})
	require.NoError(t, err)

	caller := identity.Caller{Email: "queued@example.com"}
	for _, d := range []directory.Doctor{free, busy} {
		_, err := svc.AddToWaitlist(ctx, caller, waitlist.AddRequest{Refs: directory.Refs{DoctorID: &d.ID}, DesiredAt: at})
		require.NoError(t, err)
	}

	// a conflict is not a failure of the run
	assert.True(t, runOnce(ctx, svc, nil, zerolog.Nop()))
	assert.Equal(t, 2, store.AppointmentCount())

	queued, err := svc.ListAllActive(ctx)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, busy.ID, queued[0].DoctorID)
}

func TestRunOnce_SingleDoctor(t *testing.T) {
	store := memstore.New()
	svc := newService(store)

	missing := uuid.New()
	assert.True(t, runOnce(context.Background(), svc, &missing, zerolog.Nop()))
	assert.Zero(t, store.AppointmentCount())
}
