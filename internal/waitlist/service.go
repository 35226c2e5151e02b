package waitlist

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/apperr"
	"github.com/clinicdesk/appointment-waitlist/internal/appointment"
	"github.com/clinicdesk/appointment-waitlist/internal/audit"
	"github.com/clinicdesk/appointment-waitlist/internal/db"
	"github.com/clinicdesk/appointment-waitlist/internal/directory"
	"github.com/clinicdesk/appointment-waitlist/internal/identity"
	redisclient "github.com/clinicdesk/appointment-waitlist/internal/redis"
)

// ConflictBuffer is the half-width of the window around a desired time in
// which an existing appointment blocks promotion.
const ConflictBuffer = 15 * time.Minute

var (
	ErrWaitlistDisabled = fmt.Errorf("%w: waitlist is disabled", apperr.ErrFeatureDisabled)
	ErrNoSlotAvailable  = fmt.Errorf("%w: No slot available", apperr.ErrSlotConflict)
	ErrDoctorBusy       = fmt.Errorf("%w: doctor schedule is being updated, retry shortly", apperr.ErrSlotConflict)
	ErrNothingQueued    = fmt.Errorf("%w: no queued waitlist entry for doctor", apperr.ErrNotFound)
	ErrMissingDesiredAt = fmt.Errorf("%w: desiredDateTime is required", apperr.ErrInvalidInput)
	ErrPromotedIsFinal  = fmt.Errorf("%w: promoted waitlist entries cannot change", apperr.ErrInvalidState)
	ErrPromoteViaStatus = fmt.Errorf("%w: use promotion to move an entry to PROMOTED", apperr.ErrInvalidInput)
	ErrNotEntryOwner    = fmt.Errorf("%w: waitlist entry", apperr.ErrNotFound)
)

type AddRequest struct {
	Refs      directory.Refs
	DesiredAt time.Time
	Priority  bool
}

// Promotion is the result of a successful promotion.
type Promotion struct {
	Entry       *Entry
	Appointment *appointment.Appointment
}

type Service struct {
	repo         Repository
	appointments appointment.Repository
	resolver     *directory.Resolver
	tx           db.TxRunner
	locker       redisclient.Locker
	events       *audit.Recorder
	enabled      bool
	log          zerolog.Logger
}

type Deps struct {
	Repo         Repository
	Appointments appointment.Repository
	Resolver     *directory.Resolver
	Tx           db.TxRunner
	Locker       redisclient.Locker
	Events       *audit.Recorder
	Enabled      bool
	Log          zerolog.Logger
}

func NewService(d Deps) *Service {
	return &Service{
		repo:         d.Repo,
		appointments: d.Appointments,
		resolver:     d.Resolver,
		tx:           d.Tx,
		locker:       d.Locker,
		events:       d.Events,
		enabled:      d.Enabled,
		log:          d.Log,
	}
}

func (s *Service) Enabled() bool { return s.enabled }

// AddToWaitlist queues a booking request for caller.
func (s *Service) AddToWaitlist(ctx context.Context, caller identity.Caller, req AddRequest) (*Entry, error) {
	if !s.enabled {
		return nil, ErrWaitlistDisabled
	}
	if req.DesiredAt.IsZero() {
		return nil, ErrMissingDesiredAt
	}

	var (
		created *Entry
		res     *directory.Resolution
	)
	err := s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		var err error
		res, err = s.resolver.Resolve(txCtx, caller, req.Refs)
		if err != nil {
			return err
		}

		created, err = s.repo.Create(txCtx, &Entry{
			PatientID:         res.Patient.ID,
			DoctorID:          res.Doctor.ID,
			HospitalID:        res.Hospital.ID,
			ServiceCategoryID: res.ServiceCategory.ID,
			DesiredAt:         req.DesiredAt,
			Priority:          req.Priority,
			Status:            StatusQueued,
		})
		if err != nil {
			return fmt.Errorf("create waitlist entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, p := range res.Placeholders {
		s.events.Record(ctx, p.ID, audit.EventPlaceholderCreated, map[string]any{"kind": p.Kind})
	}
	s.events.Record(ctx, created.ID, audit.EventWaitlistQueued, map[string]any{
		"doctor_id":  created.DoctorID.String(),
		"desired_at": created.DesiredAt,
		"priority":   created.Priority,
	})

	s.log.Info().Stringer("entry_id", created.ID).Stringer("doctor_id", created.DoctorID).Msg("waitlist entry queued")
	return created, nil
}

// PromoteToAppointment turns a QUEUED entry into an appointment when no
// other appointment of the same doctor lies within ConflictBuffer of the
// desired time. The appointment insert and the status change commit
// together; concurrent promotions for one doctor are serialized.
func (s *Service) PromoteToAppointment(ctx context.Context, id uuid.UUID) (*Promotion, error) {
	if !s.enabled {
		return nil, ErrWaitlistDisabled
	}

	entry, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load waitlist entry: %w", err)
	}
	if entry.Status != StatusQueued {
		return nil, ErrNotQueued
	}

	return s.promote(ctx, entry)
}

// PromoteNext attempts exactly one promotion: the oldest QUEUED entry for
// doctorID. A conflict is returned to the caller, who may retry.
func (s *Service) PromoteNext(ctx context.Context, doctorID uuid.UUID) (*Promotion, error) {
	if !s.enabled {
		return nil, ErrWaitlistDisabled
	}

	entry, err := s.repo.OldestQueuedByDoctor(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrEntryNotFound) {
			return nil, ErrNothingQueued
		}
		return nil, fmt.Errorf("load oldest queued entry: %w", err)
	}

	return s.promote(ctx, entry)
}

func (s *Service) promote(ctx context.Context, entry *Entry) (*Promotion, error) {
	var result Promotion

	err := s.locker.WithDoctorLock(ctx, entry.DoctorID, func(lockCtx context.Context) error {
		return s.tx.WithinTx(lockCtx, func(txCtx context.Context) error {
			if err := s.appointments.LockDoctor(txCtx, entry.DoctorID); err != nil {
				return err
			}

			// re-read under lock; another promotion may have won
			current, err := s.repo.GetForUpdate(txCtx, entry.ID)
			if err != nil {
				return fmt.Errorf("reload waitlist entry: %w", err)
			}
			if current.Status != StatusQueued {
				return ErrNotQueued
			}

			if err := s.checkConflict(txCtx, current); err != nil {
				return err
			}

			appt, err := s.appointments.Create(txCtx, &appointment.Appointment{
				PatientID:         current.PatientID,
				DoctorID:          current.DoctorID,
				HospitalID:        current.HospitalID,
				ServiceCategoryID: current.ServiceCategoryID,
				ScheduledAt:       current.DesiredAt,
				Status:            appointment.InitialStatus(current.Priority),
				Priority:          current.Priority,
			})
			if err != nil {
				return fmt.Errorf("create appointment from waitlist: %w", err)
			}

			promoted, err := s.repo.MarkPromoted(txCtx, current.ID, appt.ID)
			if err != nil {
				return fmt.Errorf("mark waitlist entry promoted: %w", err)
			}

			result = Promotion{Entry: promoted, Appointment: appt}
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrDoctorBusy
		}
		return nil, err
	}

	s.events.Record(ctx, result.Entry.ID, audit.EventWaitlistPromoted, map[string]any{
		"appointment_id": result.Appointment.ID.String(),
		"status":         result.Appointment.Status,
	})
	s.events.Record(ctx, result.Appointment.ID, audit.EventAppointmentCreated, map[string]any{
		"patient_id":   result.Appointment.PatientID.String(),
		"doctor_id":    result.Appointment.DoctorID.String(),
		"scheduled_at": result.Appointment.ScheduledAt,
		"status":       result.Appointment.Status,
		"waitlist_id":  result.Entry.ID.String(),
	})

	s.log.Info().
		Stringer("entry_id", result.Entry.ID).
		Stringer("appointment_id", result.Appointment.ID).
		Msg("waitlist entry promoted")

	return &result, nil
}

func (s *Service) checkConflict(ctx context.Context, e *Entry) error {
	from := e.DesiredAt.Add(-ConflictBuffer)
	to := e.DesiredAt.Add(ConflictBuffer)

	existing, err := s.appointments.ListByDoctorBetween(ctx, e.DoctorID, from, to)
	if err != nil {
		return fmt.Errorf("load doctor appointments: %w", err)
	}
	for _, a := range existing {
		if !a.ScheduledAt.Before(from) && !a.ScheduledAt.After(to) {
			s.log.Debug().
				Stringer("entry_id", e.ID).
				Stringer("conflicting_appointment_id", a.ID).
				Msg("promotion blocked by nearby appointment")
			return ErrNoSlotAvailable
		}
	}
	return nil
}

// UpdateStatus is the administrative override for an entry's status. It is
// deliberately unchecked except that PROMOTED entries stay final and
// PROMOTED can only be reached through promotion.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, raw string) (*Entry, error) {
	if !s.enabled {
		return nil, ErrWaitlistDisabled
	}

	to, err := ParseStatus(raw)
	if err != nil {
		return nil, err
	}
	if to == StatusPromoted {
		return nil, ErrPromoteViaStatus
	}

	var from Status
	var updated *Entry
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		if current.Status == StatusPromoted {
			return ErrPromotedIsFinal
		}
		from = current.Status

		updated, err = s.repo.UpdateStatus(txCtx, id, to)
		if err != nil {
			return fmt.Errorf("update waitlist status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, id, audit.EventWaitlistStatusChanged, map[string]any{"from": from, "to": to})
	return updated, nil
}

// Cancel withdraws the caller's own QUEUED entry.
func (s *Service) Cancel(ctx context.Context, caller identity.Caller, id uuid.UUID) (*Entry, error) {
	if !s.enabled {
		return nil, ErrWaitlistDisabled
	}

	patient, err := s.resolver.FindPatient(ctx, caller)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return nil, ErrNotEntryOwner
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	var updated *Entry
	err = s.tx.WithinTx(ctx, func(txCtx context.Context) error {
		current, err := s.repo.GetForUpdate(txCtx, id)
		if err != nil {
			return fmt.Errorf("load waitlist entry: %w", err)
		}
		if current.PatientID != patient.ID {
			return ErrNotEntryOwner
		}
		if current.Status != StatusQueued {
			return ErrNotQueued
		}

		updated, err = s.repo.UpdateStatus(txCtx, id, StatusCancelled)
		if err != nil {
			return fmt.Errorf("cancel waitlist entry: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.events.Record(ctx, id, audit.EventWaitlistStatusChanged, map[string]any{"from": StatusQueued, "to": StatusCancelled})
	return updated, nil
}

// Listing operations return an empty list while the feature is disabled.

func (s *Service) ListMine(ctx context.Context, caller identity.Caller) ([]Entry, error) {
	if !s.enabled {
		return []Entry{}, nil
	}

	patient, err := s.resolver.FindPatient(ctx, caller)
	if err != nil {
		if errors.Is(err, directory.ErrPatientNotFound) {
			return []Entry{}, nil
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	entries, err := s.repo.ListByPatient(ctx, patient.ID)
	if err != nil {
		return nil, fmt.Errorf("list waitlist by patient: %w", err)
	}
	return nonNil(entries), nil
}

func (s *Service) ListAllActive(ctx context.Context) ([]Entry, error) {
	if !s.enabled {
		return []Entry{}, nil
	}
	entries, err := s.repo.ListByStatus(ctx, StatusQueued)
	if err != nil {
		return nil, fmt.Errorf("list active waitlist: %w", err)
	}
	return nonNil(entries), nil
}

func (s *Service) ListAll(ctx context.Context) ([]Entry, error) {
	if !s.enabled {
		return []Entry{}, nil
	}
	entries, err := s.repo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list waitlist: %w", err)
	}
	return nonNil(entries), nil
}

func (s *Service) ListQueuedByDoctor(ctx context.Context, doctorID uuid.UUID) ([]Entry, error) {
	if !s.enabled {
		return []Entry{}, nil
	}
	entries, err := s.repo.ListQueuedByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list queued by doctor: %w", err)
	}
	return nonNil(entries), nil
}

// DoctorsWithQueued lists doctors that have at least one QUEUED entry,
// longest-waiting first.
func (s *Service) DoctorsWithQueued(ctx context.Context) ([]uuid.UUID, error) {
	if !s.enabled {
		return []uuid.UUID{}, nil
	}
	ids, err := s.repo.DoctorsWithQueued(ctx)
	if err != nil {
		return nil, fmt.Errorf("list doctors with queued entries: %w", err)
	}
	return ids, nil
}

func nonNil(in []Entry) []Entry {
	if in == nil {
		return []Entry{}
	}
	return in
}
