package appointment

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Service enforces the slot lifecycle. Every mutation runs inside one
// repository transaction; the doctor's queue subscribers are notified
// exactly once, only after the transaction commits.
type Service struct {
	repo     Repository
	notifier QueueNotifier
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, notifier QueueNotifier, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// OpenSlot publishes a bookable slot for a doctor. The slot must be in
// the future and not already published or occupied.
func (s *Service) OpenSlot(ctx context.Context, doctorID uuid.UUID, at time.Time, feeCents int64) (*Appointment, error) {
	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "is required")
	}
	if at.IsZero() {
		return nil, validationErr("scheduled_at", "is required")
	}
	if !at.After(s.now()) {
		return nil, validationErr("scheduled_at", "must be in the future")
	}
	if feeCents < 0 {
		return nil, validationErr("fee_cents", "must not be negative")
	}

	slot := &Appointment{
		DoctorID:    doctorID,
		ScheduledAt: at.UTC(),
		Status:      StatusAvailable,
		FeeCents:    feeCents,
	}

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.repo.FindOpenSlot(ctx, doctorID, slot.ScheduledAt); err == nil {
			return &SlotConflictError{DoctorID: doctorID, ScheduledAt: slot.ScheduledAt.Format(time.RFC3339)}
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		taken, err := s.repo.ListQueue(ctx, doctorID, slot.ScheduledAt, slot.ScheduledAt.Add(time.Nanosecond))
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return &SlotConflictError{DoctorID: doctorID, ScheduledAt: slot.ScheduledAt.Format(time.RFC3339)}
		}
		return s.repo.Create(ctx, slot)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", slot.ID.String()).
		Str("doctor_id", doctorID.String()).
		Time("scheduled_at", slot.ScheduledAt).
		Msg("slot published")
	s.notifier.NotifyQueueUpdate(doctorID)
	return slot, nil
}

// BookAppointment claims a slot for a patient. A published open slot for
// the doctor/time is claimed in place; absent one, a fresh booking is
// created and the slot is held directly. Exactly one caller wins a
// contested slot; the rest get a SlotConflictError.
func (s *Service) BookAppointment(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	return s.claimSlot(ctx, doctorID, patientID, at, reason, StatusBooked, OpBook)
}

// RequestAppointment files a booking that needs staff approval before it
// is confirmed. The slot is held immediately so approval cannot race
// with another booking.
func (s *Service) RequestAppointment(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time, reason string) (*Appointment, error) {
	return s.claimSlot(ctx, doctorID, patientID, at, reason, StatusPending, OpRequest)
}

func (s *Service) claimSlot(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time, reason string, target Status, op Operation) (*Appointment, error) {
	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "is required")
	}
	if patientID == uuid.Nil {
		return nil, validationErr("patient_id", "is required")
	}
	if at.IsZero() {
		return nil, validationErr("scheduled_at", "is required")
	}
	if !at.After(s.now()) {
		return nil, validationErr("scheduled_at", "must be in the future")
	}
	if len(reason) > MaxReasonLen {
		return nil, validationErr("reason", "too long")
	}

	at = at.UTC()
	var appt *Appointment

	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.claim(ctx, doctorID, patientID, at, reason, 0, target, op)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("doctor_id", doctorID.String()).
		Str("status", appt.Status.String()).
		Msg("slot claimed")
	s.notifier.NotifyQueueUpdate(doctorID)
	return appt, nil
}

// claim takes the doctor/time slot inside the caller's transaction. A
// published open row is claimed with a compare-and-set so concurrent
// claimers cannot both win; without one a fresh occupying row is
// inserted and the active-slot index arbitrates.
func (s *Service) claim(ctx context.Context, doctorID, patientID uuid.UUID, at time.Time, reason string, feeCents int64, target Status, op Operation) (*Appointment, error) {
	slot, err := s.repo.FindOpenSlot(ctx, doctorID, at)
	switch {
	case err == nil:
		next, ok := Next(slot.Status, op)
		if !ok {
			return nil, &InvalidTransitionError{From: slot.Status, Op: op}
		}
		from := slot.Status
		slot.Status = next
		slot.PatientID = &patientID
		slot.Reason = reason
		if err := s.repo.Update(ctx, slot, from); err != nil {
			if errors.Is(err, ErrStale) {
				return nil, &SlotConflictError{DoctorID: doctorID, ScheduledAt: at.Format(time.RFC3339)}
			}
			return nil, err
		}
		return slot, nil

	case errors.Is(err, ErrNotFound):
		appt := &Appointment{
			DoctorID:    doctorID,
			PatientID:   &patientID,
			ScheduledAt: at,
			Status:      target,
			FeeCents:    feeCents,
			Reason:      reason,
		}
		if err := s.repo.Create(ctx, appt); err != nil {
			return nil, err
		}
		return appt, nil

	default:
		return nil, err
	}
}

// ApproveAppointment confirms a pending request.
func (s *Service) ApproveAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, OpApprove, nil, nil)
}

// StartConsultation moves a booked appointment into the consultation.
// Only the appointment's own doctor may start it.
func (s *Service) StartConsultation(ctx context.Context, id, actorID uuid.UUID) (*Appointment, error) {
	guard := func(a *Appointment) error {
		if actorID != uuid.Nil && actorID != a.DoctorID {
			return validationErr("doctor_id", "appointment belongs to another doctor")
		}
		return nil
	}
	return s.transition(ctx, id, OpStart, guard, nil)
}

// CompleteConsultation finishes an in-progress consultation.
func (s *Service) CompleteConsultation(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.transition(ctx, id, OpComplete, nil, nil)
}

// MarkNoShow records that the patient never arrived. Only allowed once
// the scheduled time has passed.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	guard := func(a *Appointment) error {
		if s.now().Before(a.ScheduledAt) {
			return validationErr("scheduled_at", "appointment time has not passed")
		}
		return nil
	}
	return s.transition(ctx, id, OpNoShow, guard, nil)
}

// CancelAppointment withdraws a pending or booked appointment and
// releases its slot back into circulation.
func (s *Service) CancelAppointment(ctx context.Context, id uuid.UUID, reason string) (*Appointment, error) {
	if len(reason) > MaxReasonLen {
		return nil, validationErr("reason", "too long")
	}
	mutate := func(a *Appointment) {
		if reason != "" {
			a.Reason = reason
		}
	}
	appt, err := s.transitionInTx(ctx, id, OpCancel, nil, mutate, func(ctx context.Context, a *Appointment) error {
		return s.reopenSlot(ctx, a, StatusReopenedFromCancellation)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyQueueUpdate(appt.DoctorID)
	return appt, nil
}

// RescheduleAppointment moves a booked appointment to a new time. Only
// the holding patient may move it; a Nil actorID (staff) skips the
// check. The new slot is claimed first; only then is the old booking
// released, so a failed claim leaves the original untouched. The
// vacated slot is republished.
func (s *Service) RescheduleAppointment(ctx context.Context, id uuid.UUID, newAt time.Time, actorID uuid.UUID) (*Appointment, error) {
	if newAt.IsZero() {
		return nil, validationErr("scheduled_at", "is required")
	}
	if !newAt.After(s.now()) {
		return nil, validationErr("scheduled_at", "must be in the future")
	}
	newAt = newAt.UTC()

	var moved *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		old, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if _, ok := Next(old.Status, OpReschedule); !ok {
			return &InvalidTransitionError{From: old.Status, Op: OpReschedule}
		}
		if actorID != uuid.Nil && (old.PatientID == nil || *old.PatientID != actorID) {
			return validationErr("patient_id", "appointment belongs to another patient")
		}
		if old.ScheduledAt.Equal(newAt) {
			return validationErr("scheduled_at", "same as current time")
		}

		moved, err = s.claim(ctx, old.DoctorID, *old.PatientID, newAt, old.Reason, old.FeeCents, StatusBooked, OpBook)
		if err != nil {
			return err
		}

		from := old.Status
		next, _ := Next(from, OpReschedule)
		old.Status = next
		if err := s.repo.Update(ctx, old, from); err != nil {
			if errors.Is(err, ErrStale) {
				return &InvalidTransitionError{From: from, Op: OpReschedule}
			}
			return err
		}
		return s.reopenSlot(ctx, old, StatusReopenedFromReschedule)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("new_appointment_id", moved.ID.String()).
		Time("scheduled_at", newAt).
		Msg("appointment rescheduled")
	s.notifier.NotifyQueueUpdate(moved.DoctorID)
	return moved, nil
}

// reopenSlot puts the doctor/time slot a released appointment held back
// into circulation. If an open sibling row already exists the slot is
// bookable and nothing is created.
func (s *Service) reopenSlot(ctx context.Context, released *Appointment, reopened Status) error {
	if !released.ScheduledAt.After(s.now()) {
		return nil // past slots stay closed
	}
	_, err := s.repo.FindOpenSlot(ctx, released.DoctorID, released.ScheduledAt)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.repo.Create(ctx, &Appointment{
		DoctorID:    released.DoctorID,
		ScheduledAt: released.ScheduledAt,
		Status:      reopened,
		FeeCents:    released.FeeCents,
	})
}

// transition applies op to the appointment and notifies the doctor's
// queue on success.
func (s *Service) transition(ctx context.Context, id uuid.UUID, op Operation, guard func(*Appointment) error, mutate func(*Appointment)) (*Appointment, error) {
	appt, err := s.transitionInTx(ctx, id, op, guard, mutate, nil)
	if err != nil {
		return nil, err
	}
	s.notifier.NotifyQueueUpdate(appt.DoctorID)
	return appt, nil
}

func (s *Service) transitionInTx(ctx context.Context, id uuid.UUID, op Operation, guard func(*Appointment) error, mutate func(*Appointment), after func(context.Context, *Appointment) error) (*Appointment, error) {
	var appt *Appointment
	err := s.repo.InTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		next, ok := Next(appt.Status, op)
		if !ok {
			return &InvalidTransitionError{From: appt.Status, Op: op}
		}
		if guard != nil {
			if err := guard(appt); err != nil {
				return err
			}
		}

		from := appt.Status
		appt.Status = next
		if mutate != nil {
			mutate(appt)
		}
		if err := s.repo.Update(ctx, appt, from); err != nil {
			if errors.Is(err, ErrStale) {
				return &InvalidTransitionError{From: from, Op: op}
			}
			return err
		}
		if after != nil {
			return after(ctx, appt)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("operation", string(op)).
		Str("status", appt.Status.String()).
		Msg("appointment transitioned")
	return appt, nil
}

// -- Queries --

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, int, error) {
	if doctorID == uuid.Nil {
		return nil, 0, validationErr("doctor_id", "is required")
	}
	return s.repo.ListByDoctor(ctx, doctorID, f)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	if patientID == uuid.Nil {
		return nil, 0, validationErr("patient_id", "is required")
	}
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// DoctorQueue returns the doctor's occupying appointments for the day
// containing at, in scheduled order.
func (s *Service) DoctorQueue(ctx context.Context, doctorID uuid.UUID, day time.Time) ([]*Appointment, error) {
	if doctorID == uuid.Nil {
		return nil, validationErr("doctor_id", "is required")
	}
	if day.IsZero() {
		day = s.now()
	}
	start := day.UTC().Truncate(24 * time.Hour)
	return s.repo.ListQueue(ctx, doctorID, start, start.Add(24*time.Hour))
}
