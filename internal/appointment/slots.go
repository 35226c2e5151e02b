package appointment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clinicdesk/appointment-waitlist/internal/directory"
)

// DoctorLookup is the directory read the slot calculator needs.
type DoctorLookup interface {
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
}

// SlotCalculator reports a doctor's remaining daily capacity. Capacity is a
// single configured number shared by every doctor.
type SlotCalculator struct {
	repo     Repository
	doctors  DoctorLookup
	enabled  bool
	capacity int
}

func NewSlotCalculator(repo Repository, doctors DoctorLookup, enabled bool, capacity int) *SlotCalculator {
	return &SlotCalculator{repo: repo, doctors: doctors, enabled: enabled, capacity: capacity}
}

func (c *SlotCalculator) Enabled() bool { return c.enabled }

// GetAvailability counts the doctor's bookings on date. With the feature
// off every number is zero; that is a valid answer, not an error.
// The doctor is not looked up in that case either.
func (c *SlotCalculator) GetAvailability(ctx context.Context, doctorID uuid.UUID, date time.Time) (*Availability, error) {
	from, to := DayBounds(date)
	av := &Availability{DoctorID: doctorID, Date: from}
	if !c.enabled {
		return av, nil
	}

	doctor, err := c.doctors.GetDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("load doctor: %w", err)
	}
	av.DoctorName = doctor.Name

	booked, err := c.repo.CountByDoctorBetween(ctx, doctorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("count booked slots: %w", err)
	}

	av.Capacity = c.capacity
	av.Booked = booked
	av.Available = max(0, c.capacity-booked)
	return av, nil
}

func (c *SlotCalculator) CanBook(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, error) {
	av, err := c.GetAvailability(ctx, doctorID, date)
	if err != nil {
		return false, err
	}
	return av.Available > 0, nil
}

// ensureCapacity fails with ErrDayFull when the doctor has no capacity left
// on date. Callers hold the doctor lock inside the transaction in ctx.
func (c *SlotCalculator) ensureCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time) error {
	if !c.enabled {
		return nil
	}

	from, to := DayBounds(date)
	booked, err := c.repo.CountByDoctorBetween(ctx, doctorID, from, to)
	if err != nil {
		return fmt.Errorf("count booked slots: %w", err)
	}
	if booked >= c.capacity {
		return ErrDayFull
	}
	return nil
}
