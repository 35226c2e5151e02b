package appointment_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
)

func (f *fixture) book(t *testing.T, n int, day time.Time) []*appointment.Appointment {
	t.Helper()
	out := make([]*appointment.Appointment, 0, n)
	for i := 0; i < n; i++ {
		a, err := f.svc.CreateAppointment(context.Background(), bob, f.request(day.Add(time.Duration(i)*10*time.Minute), false))
		require.NoError(t, err)
		out = append(out, a)
	}
	return out
}

func TestGetAvailability(t *testing.T) {
	tests := []struct {
		name          string
		booked        int
		wantAvailable int
	}{
		{"empty day", 0, 10},
		{"partly booked", 3, 7},
		{"exactly full", 10, 0},
		{"overbooked never goes negative", 13, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.book(t, tt.booked, monday10)
			calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), true, 10)

			av, err := calc.GetAvailability(context.Background(), f.doctor.ID, monday10)
			require.NoError(t, err)
			assert.Equal(t, 10, av.Capacity)
			assert.Equal(t, tt.booked, av.Booked)
			assert.Equal(t, tt.wantAvailable, av.Available)
			assert.Equal(t, "Dr Heart", av.DoctorName)

			ok, err := calc.CanBook(context.Background(), f.doctor.ID, monday10)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAvailable > 0, ok)
		})
	}
}

func TestGetAvailability_CountsOnlyThatDay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.book(t, 2, monday10)
	f.book(t, 4, monday10.AddDate(0, 0, 1))
	// first and last instants of the day count
	f.book(t, 1, time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC))
	f.book(t, 1, time.Date(2025, 3, 3, 23, 59, 59, 0, time.UTC))

	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), true, 10)
	av, err := calc.GetAvailability(ctx, f.doctor.ID, time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 4, av.Booked)
	assert.Equal(t, 6, av.Available)
}

func TestGetAvailability_IgnoresCancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	booked := f.book(t, 3, monday10)
	_, err := f.svc.UpdateStatus(ctx, booked[0].ID, appointment.StatusCancelled)
	require.NoError(t, err)

	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), true, 10)
	av, err := calc.GetAvailability(ctx, f.doctor.ID, monday10)
	require.NoError(t, err)
	assert.Equal(t, 2, av.Booked)
}

func TestGetAvailability_Disabled(t *testing.T) {
	f := newFixture(t)
	f.book(t, 3, monday10)
	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), false, 10)

	av, err := calc.GetAvailability(context.Background(), f.doctor.ID, monday10)
	require.NoError(t, err)
	assert.Zero(t, av.Capacity)
	assert.Zero(t, av.Booked)
	assert.Zero(t, av.Available)
	assert.False(t, calc.Enabled())
}

func TestGetAvailability_DisabledSkipsDoctorLookup(t *testing.T) {
	f := newFixture(t)
	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), false, 10)
	unknown := uuid.New()

	av, err := calc.GetAvailability(context.Background(), unknown, monday10)
	require.NoError(t, err)
	assert.Equal(t, unknown, av.DoctorID)
	assert.Zero(t, av.Capacity)
	assert.Zero(t, av.Available)
}

func TestCreateWithinCapacity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), true, 2)
	f.book(t, 2, monday10)

	newcomer := identity.Caller{Email: "nina@example.com", Name: "Nina"}
	_, err := f.svc.CreateWithinCapacity(ctx, newcomer, f.request(monday10.Add(4*time.Hour), false), calc)
	assert.ErrorIs(t, err, appointment.ErrDayFull)
	assert.ErrorIs(t, err, apperr.ErrSlotConflict)
	assert.Equal(t, 2, f.store.AppointmentCount())
	// the placeholder patient went down with the rejected booking
	for _, p := range f.store.Patients() {
		assert.NotEqual(t, newcomer.Email, p.Email)
	}

	a, err := f.svc.CreateWithinCapacity(ctx, bob, f.request(monday10.AddDate(0, 0, 1), false), calc)
	require.NoError(t, err)
	assert.Equal(t, f.doctor.ID, a.DoctorID)
}

func TestCreateWithinCapacity_Disabled(t *testing.T) {
	f := newFixture(t)
	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), false, 1)
	f.book(t, 3, monday10)

	_, err := f.svc.CreateWithinCapacity(context.Background(), bob, f.request(monday10.Add(time.Hour), false), calc)
	require.NoError(t, err)
	assert.Equal(t, 4, f.store.AppointmentCount())
}

func TestGetAvailability_UnknownDoctor(t *testing.T) {
	f := newFixture(t)
	calc := appointment.NewSlotCalculator(f.store.Appointments(), f.store.Directory(), true, 10)

	_, err := calc.GetAvailability(context.Background(), uuid.New(), monday10)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDayBounds(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	from, to := appointment.DayBounds(time.Date(2025, 3, 3, 1, 30, 0, 0, loc))

	assert.Equal(t, time.Date(2025, 3, 3, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2025, 3, 3, 23, 59, 59, 999999999, loc), to)
}
