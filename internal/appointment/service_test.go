package appointment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/memstore"
	"github.com/clinicdesk/appointment-waitlist/internal/payment"
)

var bob = identity.Caller{Email: "bob@example.com", Name: "Bob"}

type fixture struct {
	store    *memstore.Store
	svc      *appointment.Service
	hospital directory.Hospital
	category directory.ServiceCategory
	doctor   directory.Doctor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memstore.New()
	h := store.AddHospital("North")
	c := store.AddServiceCategory("Cardiology", &h.ID)
	d := store.AddDoctor("Dr Heart", &h.ID, &c.ID)

	payments, err := payment.NewRegistry([]string{"CASH", "CARD", "INSURANCE"})
	require.NoError(t, err)

	resolver := directory.NewResolver(store.Directory(), directory.FallbackPolicy{AllowImplicitCreation: true}, zerolog.Nop())
	svc := appointment.NewService(store.Appointments(), resolver, store, payments, audit.NewRecorder(store, zerolog.Nop()), zerolog.Nop())

	return &fixture{store: store, svc: svc, hospital: h, category: c, doctor: d}
}

func (f *fixture) request(at time.Time, priority bool) appointment.CreateRequest {
	return appointment.CreateRequest{
		Refs:        directory.Refs{DoctorID: &f.doctor.ID},
		ScheduledAt: at,
		Priority:    priority,
	}
}

var monday10 = time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

func TestCreateAppointment_InitialStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	regular, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10, false))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, regular.Status)

	urgent, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10.Add(time.Hour), true))
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusConfirmed, urgent.Status)
	assert.True(t, urgent.Priority)

	assert.Equal(t, f.doctor.ID, urgent.DoctorID)
	assert.Equal(t, f.hospital.ID, urgent.HospitalID)
	assert.Equal(t, f.category.ID, urgent.ServiceCategoryID)
	assert.Equal(t, []uuid.UUID{f.doctor.ID, f.doctor.ID}, f.store.LockedDoctors())
}

func TestCreateAppointment_PlaceholderPatientAndEvents(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), bob, f.request(monday10, false))
	require.NoError(t, err)

	require.Len(t, f.store.Patients(), 1)
	assert.Equal(t, bob.Email, f.store.Patients()[0].Email)
	assert.Equal(t,
		[]string{audit.EventPlaceholderCreated, audit.EventAppointmentCreated},
		f.store.EventTypes())
}

func TestCreateAppointment_MissingDateTime(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateAppointment(context.Background(), bob, f.request(time.Time{}, false))
	assert.ErrorIs(t, err, appointment.ErrMissingDateTime)
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)
}

func TestCreateAppointment_FailedInsertRollsBackPlaceholders(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn("appointment.Create", apperr.Storage("insert appointment", errors.New("disk full")))

	_, err := f.svc.CreateAppointment(context.Background(), bob, f.request(monday10, false))
	require.ErrorIs(t, err, apperr.ErrStorage)

	assert.Empty(t, f.store.Patients())
	assert.Zero(t, f.store.AppointmentCount())
	assert.Empty(t, f.store.EventTypes())
}

func TestCreateAppointment_Payment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	amount := 120.0
	req := f.request(monday10, false)
	req.PaymentMethod, req.PaymentAmount = "card", &amount

	a, err := f.svc.CreateAppointment(ctx, bob, req)
	require.NoError(t, err)
	require.NotNil(t, a.PaymentMethod)
	assert.Equal(t, "CARD", *a.PaymentMethod)
	assert.Equal(t, 120.0, *a.PaymentAmount)

	tests := []struct {
		name   string
		method string
		amount *float64
	}{
		{"unknown method", "BITCOIN", &amount},
		{"method without amount", "CASH", nil},
		{"amount without method", "", &amount},
		{"card needs positive amount", "CARD", new(float64)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request(monday10, false)
			req.PaymentMethod, req.PaymentAmount = tt.method, tt.amount

			_, err := f.svc.CreateAppointment(ctx, bob, req)
			assert.ErrorIs(t, err, apperr.ErrInvalidInput)
		})
	}
}

func TestUpdateStatus_StateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		from    bool // priority: true starts CONFIRMED
		steps   []appointment.AppointmentStatus
		wantErr bool
	}{
		{"pending to confirmed", false, []appointment.AppointmentStatus{appointment.StatusConfirmed}, false},
		{"pending to cancelled", false, []appointment.AppointmentStatus{appointment.StatusCancelled}, false},
		{"confirmed to completed", true, []appointment.AppointmentStatus{appointment.StatusCompleted}, false},
		{"confirmed back to pending", true, []appointment.AppointmentStatus{appointment.StatusPending}, true},
		{"cancelled is terminal", false, []appointment.AppointmentStatus{appointment.StatusCancelled, appointment.StatusConfirmed}, true},
		{"completed is terminal", true, []appointment.AppointmentStatus{appointment.StatusCompleted, appointment.StatusCancelled}, true},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10.Add(time.Duration(i)*time.Hour), tt.from))
			require.NoError(t, err)

			for _, to := range tt.steps {
				_, err = f.svc.UpdateStatus(ctx, a.ID, to)
				if err != nil {
					break
				}
			}

			if tt.wantErr {
				assert.ErrorIs(t, err, appointment.ErrInvalidStatusTransition)
				assert.ErrorIs(t, err, apperr.ErrInvalidState)
				return
			}
			require.NoError(t, err)
			got, err := f.svc.GetAppointment(ctx, a.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.steps[len(tt.steps)-1], got.Status)
		})
	}
}

func TestUpdateStatus_SameStatusIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10, false))
	require.NoError(t, err)

	got, err := f.svc.UpdateStatus(ctx, a.ID, appointment.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, got.Status)
}

func TestUpdateStatus_NotFound(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.UpdateStatus(context.Background(), uuid.New(), appointment.StatusConfirmed)
	assert.ErrorIs(t, err, appointment.ErrAppointmentNotFound)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestOverrideStatus_IgnoresStateMachine(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10, true))
	require.NoError(t, err)
	_, err = f.svc.UpdateStatus(ctx, a.ID, appointment.StatusCompleted)
	require.NoError(t, err)

	got, err := f.svc.OverrideStatus(ctx, a.ID, appointment.StatusPending)
	require.NoError(t, err)
	assert.Equal(t, appointment.StatusPending, got.Status)
}

func TestGetAppointment_Detail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10, false))
	require.NoError(t, err)

	d, err := f.svc.GetAppointment(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, d.Doctor)
	require.NotNil(t, d.Patient)
	assert.Equal(t, "Dr Heart", d.Doctor.Name)
	assert.Equal(t, bob.Email, d.Patient.Email)
	assert.Equal(t, "North", d.Hospital.Name)
	assert.Equal(t, "Cardiology", d.ServiceCategory.Name)
}

func TestListPatientAppointments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	list, err := f.svc.ListPatientAppointments(ctx, bob)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	early, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10, false))
	require.NoError(t, err)
	late, err := f.svc.CreateAppointment(ctx, bob, f.request(monday10.Add(48*time.Hour), false))
	require.NoError(t, err)
	_, err = f.svc.CreateAppointment(ctx, identity.Caller{Email: "carol@example.com"}, f.request(monday10, false))
	require.NoError(t, err)

	list, err = f.svc.ListPatientAppointments(ctx, bob)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, late.ID, list[0].ID)
	assert.Equal(t, early.ID, list[1].ID)

	all, err := f.svc.ListAllAppointments(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestCreateAppointment_DirectoryFallback(t *testing.T) {
	ctx := context.Background()

	t.Run("no hospitals", func(t *testing.T) {
		store := memstore.New()
		resolver := directory.NewResolver(store.Directory(), directory.FallbackPolicy{AllowImplicitCreation: true}, zerolog.Nop())
		svc := appointment.NewService(store.Appointments(), resolver, store, nil, nil, zerolog.Nop())

		_, err := svc.CreateAppointment(ctx, bob, appointment.CreateRequest{ScheduledAt: monday10})
		require.ErrorIs(t, err, apperr.ErrConfiguration)
		assert.Contains(t, err.Error(), "hospitals")
		assert.Empty(t, store.Patients())
	})

	t.Run("missing ids resolve to the only hospital", func(t *testing.T) {
		f := newFixture(t)
		missing := uuid.New()

		a, err := f.svc.CreateAppointment(ctx, bob, appointment.CreateRequest{
			Refs:        directory.Refs{HospitalID: &missing},
			ScheduledAt: monday10,
		})
		require.NoError(t, err)
		assert.Equal(t, f.hospital.ID, a.HospitalID)
		assert.Equal(t, f.doctor.ID, a.DoctorID)
	})
}
