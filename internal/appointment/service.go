package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	"github.com/clinicdesk/appointment-waitlist/internal/payment"
)

var (
	ErrMissingDateTime         = fmt.Errorf("%w: appointmentDateTime is required", apperr.ErrInvalidInput)
	ErrInvalidStatusTransition = fmt.Errorf("%w: invalid status transition", apperr.ErrInvalidState)
	ErrDayFull                 = fmt.Errorf("%w: no capacity left for this doctor on the requested date", apperr.ErrSlotConflict)
)

// CreateRequest is a direct booking. Missing or unknown directory ids are
// resolved through the directory fallback chain.
type CreateRequest struct {
	Refs          directory.Refs
	ScheduledAt   time.Time
	Priority      bool
	PaymentMethod string
	PaymentAmount *float64
}

type Service struct {
	repo     Repository
	resolver *directory.Resolver
	tx       db.TxRunner
	payments *payment.Registry
	events   *audit.Recorder
	log      zerolog.Logger
}

func NewService(repo Repository, resolver *directory.Resolver, tx db.TxRunner, payments *payment.Registry, events *audit.Recorder, log zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		tx:       tx,
		payments: payments,
		events:   events,
		log:      log,
	}
}

// CreateAppointment books a visit for caller. Placeholder directory rows,
// the doctor lock and the insert share one transaction, so a failed insert
// leaves nothing behind.
func (s *Service) CreateAppointment(ctx context.Context, caller identity.Caller, req CreateRequest) (*Appointment, error) {
	return s.create(ctx, caller, req, nil)
}

// CreateWithinCapacity is CreateAppointment plus a daily capacity check on
// the requested doctor. The count runs under the doctor lock in the same
// transaction as the insert and a full day fails with ErrDayFull. A doctor
// picked by the fallback chain is not checked.
func (s *Service) CreateWithinCapacity(ctx context.Context, caller identity.Caller, req CreateRequest, slots *SlotCalculator) (*Appointment, error) {
	return s.create(ctx, caller, req, func(txCtx context.Context, doctorID uuid.UUID) error {
		if req.Refs.DoctorID == nil || *req.Refs.DoctorID != doctorID {
			return nil
		}
		return slots.ensureCapacity(txCtx, doctorID, req.ScheduledAt)
	})
}

// gate runs after the doctor lock is held and before the insert.
type gate func(txCtx context.Context, doctorID uuid.UUID) error

func (s *Service) create(ctx context.Context, caller identity.Caller, req CreateRequest, check gate) (*Appointment, error) {
	if req.ScheduledAt.IsZero() {
		return nil, ErrMissingDateTime
	}

	method, err := s.resolvePayment(req)
	if err != nil {
		return nil, err
	}

	var (
		created *Appointment
		res     *directory.Resolution
	)

	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.resolver.Resolve(txCtx, caller, req.Refs)
		if err != nil {
			return err
		}

		if err := s.repo.LockDoctor(txCtx, res.Doctor.ID); err != nil {
			return err
		}
		if check != nil {
			if err := check(txCtx, res.Doctor.ID); err != nil {
				return err
			}
		}

		created, err = s.repo.Create(txCtx, &Appointment{
			PatientID:         res.Patient.ID,
			DoctorID:          res.Doctor.ID,
			HospitalID:        res.Hospital.ID,
			ServiceCategoryID: res.ServiceCategory.ID,
			ScheduledAt:       req.ScheduledAt,
			Status:            InitialStatus(req.Priority),
			Priority:          req.Priority,
			PaymentMethod:     method,
			PaymentAmount:     req.PaymentAmount,
		})
		if err != nil {
			return fmt.Errorf("create appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range res.Placeholders {
		s.events.Record(ctx, p.ID, audit.EventPlaceholderCreated, map[string]any{"kind": p.Kind})
	}
	s.events.Record(ctx, created.ID, audit.EventAppointmentCreated, map[string]any{
		"patient_id":   created.PatientID.String(),
		"doctor_id":    created.DoctorID.String(),
		"scheduled_at": created.ScheduledAt,
		"status":       created.Status,
	})

	s.log.Info().
		Stringer("appointment_id", created.ID).
		Stringer("doctor_id", created.DoctorID).
		Str("status", string(created.Status)).
		Msg("appointment created")

	return created, nil
}

func (s *Service) resolvePayment(req CreateRequest) (*string, error) {
	if req.PaymentAmount == nil && req.PaymentMethod == "" {
		return nil, nil
	}
	if req.PaymentAmount == nil {
		return nil, fmt.Errorf("%w: paymentAmount is required with paymentMethod", apperr.ErrInvalidInput)
	}
	if req.PaymentMethod == "" {
		return nil, fmt.Errorf("%w: paymentMethod is required with paymentAmount", apperr.ErrInvalidInput)
	}
	if s.payments == nil {
		return nil, fmt.Errorf("%w: payments are not accepted", apperr.ErrInvalidInput)
	}

	h, err := s.payments.Resolve(req.PaymentMethod)
	if err != nil {
		return nil, err
	}
	if err := h.Validate(*req.PaymentAmount); err != nil {
		return nil, err
	}

	m := string(h.Method())
	return &m, nil
}

// UpdateStatus moves an appointment along the state machine. Terminal
// appointments and skipped steps are rejected.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	if current.Status == to {
		return current, nil
	}
	if !current.Status.CanTransitionTo(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidStatusTransition, current.Status, to)
	}

	updated, err := s.repo.CompareAndSetStatus(ctx, id, current.Status, to)
	if err != nil {
		return nil, fmt.Errorf("update appointment status: %w", err)
	}

	s.recordStatusChange(ctx, current.Status, updated, false)
	return updated, nil
}

// OverrideStatus is the administrative escape hatch: it sets any status
// regardless of the current one.
func (s *Service) OverrideStatus(ctx context.Context, id uuid.UUID, to AppointmentStatus) (*Appointment, error) {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	updated, err := s.repo.UpdateStatus(ctx, id, to)
	if err != nil {
		return nil, fmt.Errorf("override appointment status: %w", err)
	}

	if !current.Status.CanTransitionTo(to) && current.Status != to {
		s.log.Warn().
			Stringer("appointment_id", id).
			Str("from", string(current.Status)).
			Str("to", string(to)).
			Msg("administrative status override outside the state machine")
	}

	s.recordStatusChange(ctx, current.Status, updated, true)
	return updated, nil
}

func (s *Service) recordStatusChange(ctx context.Context, from AppointmentStatus, a *Appointment, override bool) {
	s.events.Record(ctx, a.ID, audit.EventAppointmentStatusChanged, map[string]any{
		"from":     from,
		"to":       a.Status,
		"override": override,
	})
}

// GetAppointment retrieves a fully hydrated appointment by ID
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*AppointmentDetail, error) {
	detail, err := s.repo.GetDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	return detail, nil
}

// ListPatientAppointments returns the caller's appointments, newest first.
// A caller without a patient profile simply has none.
func (s *Service) ListPatientAppointments(ctx context.Context, caller identity.Caller) ([]AppointmentDetail, error) {
	patient, err := s.resolver.FindPatient(ctx, caller)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return []AppointmentDetail{}, nil
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	appointments, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return nonNil(appointments), nil
}

// ListAllAppointments is the admin view, newest first.
func (s *Service) ListAllAppointments(ctx context.Context) ([]AppointmentDetail, error) {
	appointments, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return nonNil(appointments), nil
}

func nonNil(in []AppointmentDetail) []AppointmentDetail {
	if in == nil {
		return []AppointmentDetail{}
	}
	return in
}
