package directory

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/appointment-waitlist/internal/identity"
)

// FallbackPolicy controls whether resolution may synthesize directory rows.
// With AllowImplicitCreation off, a missing patient or doctor is a
// configuration error instead of a placeholder.
type FallbackPolicy struct {
	AllowImplicitCreation bool
}

// Resolver turns optional booking references into concrete directory rows
// using a fixed fallback chain.
type Resolver struct {
	repo   Repository
	policy FallbackPolicy
	log    zerolog.Logger
}

func NewResolver(repo Repository, policy FallbackPolicy, log zerolog.Logger) *Resolver {
	return &Resolver{repo: repo, policy: policy, log: log}
}

// Resolve runs the whole chain for a booking. Call it inside the booking's
// transaction so placeholder rows commit or roll back with it.
func (r *Resolver) Resolve(ctx context.Context, caller identity.Caller, refs Refs) (*Resolution, error) {
	res := &Resolution{}

	patient, created, err := r.ResolvePatient(ctx, caller)
	if err != nil {
		return nil, err
	}
	res.Patient = patient
	if created {
		res.Placeholders = append(res.Placeholders, Placeholder{Kind: "patient", ID: patient.ID})
	}

	if res.Hospital, err = r.ResolveHospital(ctx, refs.HospitalID); err != nil {
		return nil, err
	}
	if res.ServiceCategory, err = r.ResolveServiceCategory(ctx, refs.ServiceCategoryID); err != nil {
		return nil, err
	}

	doctor, created, err := r.ResolveDoctor(ctx, refs.DoctorID, res.Hospital, res.ServiceCategory)
	if err != nil {
		return nil, err
	}
	res.Doctor = doctor
	if created {
		res.Placeholders = append(res.Placeholders, Placeholder{Kind: "doctor", ID: doctor.ID})
	}

	return res, nil
}

// ResolveHospital returns the hospital with id, or the first hospital when id
// is nil or unknown.
func (r *Resolver) ResolveHospital(ctx context.Context, id *uuid.UUID) (*Hospital, error) {
	if id != nil {
		h, err := r.repo.GetHospital(ctx, *id)
		if err == nil {
			return h, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("load hospital: %w", err)
		}
		r.log.Debug().Stringer("hospital_id", id).Msg("hospital not found, falling back to first hospital")
	}

	h, err := r.repo.FirstHospital(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNoHospitals
		}
		return nil, fmt.Errorf("load first hospital: %w", err)
	}
	return h, nil
}

func (r *Resolver) ResolveServiceCategory(ctx context.Context, id *uuid.UUID) (*ServiceCategory, error) {
	if id != nil {
		c, err := r.repo.GetServiceCategory(ctx, *id)
		if err == nil {
			return c, nil
		}
		if !isNotFound(err) {
			return nil, fmt.Errorf("load service category: %w", err)
		}
		r.log.Debug().Stringer("service_category_id", id).Msg("service category not found, falling back to first category")
	}

	c, err := r.repo.FirstServiceCategory(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNoServiceCategories
		}
		return nil, fmt.Errorf("load first service category: %w", err)
	}
	return c, nil
}

// ResolveDoctor tries, in order: the id itself, the first doctor of the
// category, the first doctor of the hospital, any doctor, and finally a
// placeholder doctor when the policy allows it. The bool result reports
// whether a placeholder was created.
func (r *Resolver) ResolveDoctor(ctx context.Context, id *uuid.UUID, hospital *Hospital, category *ServiceCategory) (*Doctor, bool, error) {
	tiers := make([]func() (*Doctor, error), 0, 4)
	if id != nil {
		tiers = append(tiers, func() (*Doctor, error) { return r.repo.GetDoctor(ctx, *id) })
	}
	if category != nil {
		tiers = append(tiers, func() (*Doctor, error) { return r.repo.FirstDoctorByServiceCategory(ctx, category.ID) })
	}
	if hospital != nil {
		tiers = append(tiers, func() (*Doctor, error) { return r.repo.FirstDoctorByHospital(ctx, hospital.ID) })
	}
	tiers = append(tiers, func() (*Doctor, error) { return r.repo.FirstDoctor(ctx) })

	for _, tier := range tiers {
		d, err := tier()
		if err == nil {
			return d, false, nil
		}
		if !isNotFound(err) {
			return nil, false, fmt.Errorf("load doctor: %w", err)
		}
	}

	if !r.policy.AllowImplicitCreation {
		return nil, false, ErrNoDoctors
	}

	d, err := r.createPlaceholderDoctor(ctx, hospital, category)
	if err != nil {
		return nil, false, err
	}
	return d, true, nil
}

func (r *Resolver) createPlaceholderDoctor(ctx context.Context, hospital *Hospital, category *ServiceCategory) (*Doctor, error) {
	tag := uuid.NewString()[:8]
	user := User{
		Email:       fmt.Sprintf("placeholder-doctor-%s@clinic.local", tag),
		Name:        "Placeholder Doctor " + tag,
		Role:        RoleDoctor,
		Placeholder: true,
	}
	d := Doctor{
		Name:        user.Name,
		Placeholder: true,
	}
	if hospital != nil {
		d.HospitalID = &hospital.ID
	}
	if category != nil {
		d.ServiceCategoryID = &category.ID
	}

	created, err := r.repo.CreateDoctor(ctx, user, d)
	if err != nil {
		return nil, fmt.Errorf("create placeholder doctor: %w", err)
	}

	r.log.Warn().Stringer("doctor_id", created.ID).Msg("no doctor available, created placeholder doctor")
	return created, nil
}

// ResolvePatient finds the caller's patient profile by email, creating a
// minimal one when the policy allows it.
func (r *Resolver) ResolvePatient(ctx context.Context, caller identity.Caller) (*Patient, bool, error) {
	p, err := r.repo.GetPatientByEmail(ctx, caller.Email)
	if err == nil {
		return p, false, nil
	}
	if !isNotFound(err) {
		return nil, false, fmt.Errorf("load patient: %w", err)
	}

	if !r.policy.AllowImplicitCreation {
		return nil, false, ErrPatientNotRegistered
	}

	name := caller.DisplayName()
	created, err := r.repo.CreatePatient(ctx,
		User{Email: caller.Email, Name: name, Role: RolePatient, Placeholder: true},
		Patient{Email: caller.Email, Name: name, Placeholder: true},
	)
	if err != nil {
		return nil, false, fmt.Errorf("create placeholder patient: %w", err)
	}

	r.log.Info().Stringer("patient_id", created.ID).Bool("anonymous", caller.Anonymous).Msg("created placeholder patient")
	return created, true, nil
}

// FindPatient looks the caller up without creating anything. Read paths use
// it so that listing never writes.
func (r *Resolver) FindPatient(ctx context.Context, caller identity.Caller) (*Patient, error) {
	return r.repo.GetPatientByEmail(ctx, caller.Email)
}
