package booking_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/booking"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/memstore"
	redisclient "github.com/clinicdesk/appointment-waitlist/internal/redis"
	"github.com/clinicdesk/appointment-waitlist/internal/waitlist"
)

var frank = identity.Caller{Email: "frank@example.com", Name: "Frank"}

type fixture struct {
	store    *memstore.Store
	desk     *booking.Desk
	waitlist *waitlist.Service
	doctor   directory.Doctor
}

func newFixture(t *testing.T, capacity int, waitlistEnabled bool) *fixture {
	t.Helper()
	return newFixtureWithSlotRepo(t, capacity, waitlistEnabled, nil)
}

// newFixtureWithSlotRepo lets a test wrap the repository the slot
// calculator counts through.
func newFixtureWithSlotRepo(t *testing.T, capacity int, waitlistEnabled bool, wrap func(appointment.Repository) appointment.Repository) *fixture {
	t.Helper()

	store := memstore.New()
	h := store.AddHospital("H1")
	c := store.AddServiceCategory("C1", &h.ID)
	d := store.AddDoctor("D1", &h.ID, &c.ID)

	log := zerolog.Nop()
	events := audit.NewRecorder(store, log)
	resolver := directory.NewResolver(store.Directory(), directory.FallbackPolicy{AllowImplicitCreation: true}, log)

	appts := appointment.NewService(store.Appointments(), resolver, store, nil, events, log)
	var slotRepo appointment.Repository = store.Appointments()
	if wrap != nil {
		slotRepo = wrap(slotRepo)
	}
	slots := appointment.NewSlotCalculator(slotRepo, store.Directory(), true, capacity)
	wl := waitlist.NewService(waitlist.Deps{
		Repo:         store.Waitlist(),
		Appointments: store.Appointments(),
		Resolver:     resolver,
		Tx:           store,
		Locker:       redisclient.NewLocalLocker(),
		Events:       events,
		Enabled:      waitlistEnabled,
		Log:          log,
	})

	return &fixture{store: store, desk: booking.NewDesk(appts, slots, wl, log), waitlist: wl, doctor: d}
}

func (f *fixture) request(at time.Time) appointment.CreateRequest {
	return appointment.CreateRequest{Refs: directory.Refs{DoctorID: &f.doctor.ID}, ScheduledAt: at}
}

func TestBook_Direct(t *testing.T) {
	f := newFixture(t, 2, true)

	out, err := f.desk.Book(context.Background(), frank, f.request(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.False(t, out.Waitlisted())
	require.NotNil(t, out.Appointment)
	assert.Equal(t, appointment.StatusPending, out.Appointment.Status)
}

func TestBook_FullDayGoesToWaitlist(t *testing.T) {
	f := newFixture(t, 1, true)
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := f.desk.Book(ctx, frank, f.request(day))
	require.NoError(t, err)

	out, err := f.desk.Book(ctx, frank, f.request(day.Add(3*time.Hour)))
	require.NoError(t, err)
	assert.True(t, out.Waitlisted())
	assert.Nil(t, out.Appointment)
	assert.Equal(t, waitlist.StatusQueued, out.WaitlistEntry.Status)
	assert.Equal(t, day.Add(3*time.Hour), out.WaitlistEntry.DesiredAt)
	assert.Equal(t, 1, f.store.AppointmentCount())

	// another day still has room
	out, err = f.desk.Book(ctx, frank, f.request(day.AddDate(0, 0, 1)))
	require.NoError(t, err)
	assert.False(t, out.Waitlisted())
}

func TestBook_FullDayWithoutWaitlist(t *testing.T) {
	f := newFixture(t, 1, false)
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	_, err := f.desk.Book(ctx, frank, f.request(day))
	require.NoError(t, err)

	_, err = f.desk.Book(ctx, frank, f.request(day.Add(time.Hour)))
	assert.ErrorIs(t, err, booking.ErrDayFull)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)
}

// slowCounter stretches the window between counting and inserting.
type slowCounter struct {
	appointment.Repository
	delay time.Duration
}

func (r slowCounter) CountByDoctorBetween(ctx context.Context, doctorID uuid.UUID, from, to time.Time) (int, error) {
	n, err := r.Repository.CountByDoctorBetween(ctx, doctorID, from, to)
	time.Sleep(r.delay)
	return n, err
}

func TestBook_ConcurrentRespectsCapacity(t *testing.T) {
	const (
		capacity = 2
		callers  = 6
	)
	f := newFixtureWithSlotRepo(t, capacity, true, func(r appointment.Repository) appointment.Repository {
		return slowCounter{Repository: r, delay: 20 * time.Millisecond}
	})
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		booked  int
		queued  int
		failure error
	)
	start := make(chan struct{})
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			out, err := f.desk.Book(ctx, frank, f.request(day.Add(time.Duration(i)*time.Hour)))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				failure = err
			case out.Waitlisted():
				queued++
			default:
				booked++
			}
		}()
	}
	close(start)
	wg.Wait()

	require.NoError(t, failure)
	assert.Equal(t, capacity, booked)
	assert.Equal(t, callers-capacity, queued)
	assert.Equal(t, capacity, f.store.AppointmentCount())

	entries, err := f.waitlist.ListQueuedByDoctor(ctx, f.doctor.ID)
	require.NoError(t, err)
	assert.Len(t, entries, callers-capacity)
}

func TestBook_ConcurrentFullDayWithoutWaitlist(t *testing.T) {
	f := newFixtureWithSlotRepo(t, 1, false, func(r appointment.Repository) appointment.Repository {
		return slowCounter{Repository: r, delay: 20 * time.Millisecond}
	})
	ctx := context.Background()
	day := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.desk.Book(ctx, frank, f.request(day.Add(time.Duration(i)*time.Hour)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var full int
	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, booking.ErrDayFull)
			full++
		}
	}
	assert.Equal(t, 1, full)
	assert.Equal(t, 1, f.store.AppointmentCount())
}

func TestBook_CapacityCountedUnderDoctorLock(t *testing.T) {
	f := newFixture(t, 1, true)
	ctx := context.Background()

	_, err := f.desk.Book(ctx, frank, f.request(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	out, err := f.desk.Book(ctx, frank, f.request(time.Date(2025, 1, 10, 11, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	assert.True(t, out.Waitlisted())

	// both attempts took the doctor lock, including the rejected one
	assert.Equal(t, []uuid.UUID{f.doctor.ID, f.doctor.ID}, f.store.LockedDoctors())
}

func TestBook_UnknownDoctorUsesFallback(t *testing.T) {
	f := newFixture(t, 1, true)
	missing := uuid.New()

	out, err := f.desk.Book(context.Background(), frank, appointment.CreateRequest{
		Refs:        directory.Refs{DoctorID: &missing},
		ScheduledAt: time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.NotNil(t, out.Appointment)
	assert.Equal(t, f.doctor.ID, out.Appointment.DoctorID)
}

func TestBook_MissingDateTime(t *testing.T) {
	f := newFixture(t, 1, true)

	_, err := f.desk.Book(context.Background(), frank, f.request(time.Time{}))
	assert.ErrorIs(t, err, appointment.ErrMissingDateTime)
}

func TestEndToEnd_PromotionAroundExistingBooking(t *testing.T) {
	f := newFixture(t, 1, true)
	ctx := context.Background()

	a, err := f.desk.Book(ctx, frank, f.request(time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	require.NotNil(t, a.Appointment)
	assert.Equal(t, appointment.StatusPending, a.Appointment.Status)

	w1, err := f.waitlist.AddToWaitlist(ctx, frank, waitlist.AddRequest{
		Refs:      directory.Refs{DoctorID: &f.doctor.ID},
		DesiredAt: time.Date(2025, 1, 10, 10, 5, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	_, err = f.waitlist.PromoteToAppointment(ctx, w1.ID)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)
	assert.Contains(t, err.Error(), "No slot available")

	w2, err := f.waitlist.AddToWaitlist(ctx, frank, waitlist.AddRequest{
		Refs:      directory.Refs{DoctorID: &f.doctor.ID},
		DesiredAt: time.Date(2025, 1, 10, 11, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	p, err := f.waitlist.PromoteToAppointment(ctx, w2.ID)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, p.Appointment.Status)
	assert.Equal(t, waitlist.StatusPromoted, p.Entry.Status)
	assert.Equal(t, 2, f.store.AppointmentCount())

	w1now, err := f.store.Waitlist().GetByID(ctx, w1.ID)
	require.NoError(t, err)
	assert.Equal(t, waitlist.StatusQueued, w1now.Status)
}
