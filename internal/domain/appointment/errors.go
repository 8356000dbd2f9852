package appointment

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when the requested appointment does not exist.
var ErrNotFound = errors.New("appointment not found")

// ErrStale is returned by compare-and-set updates when the row's status
// no longer matches the one the caller read. The losing side of a race
// sees this.
var ErrStale = errors.New("appointment modified concurrently")

// ValidationError rejects malformed input before any state changes.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

func validationErr(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// SlotConflictError is returned when a doctor/time slot is already held
// by another appointment.
type SlotConflictError struct {
	DoctorID    uuid.UUID
	ScheduledAt string
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("slot for doctor %s at %s is already taken", e.DoctorID, e.ScheduledAt)
}

// InvalidTransitionError is returned when an operation is not permitted
// from the appointment's current status.
type InvalidTransitionError struct {
	From Status
	Op   Operation
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an appointment in status %s", e.Op, e.From)
}

// UnavailableError wraps storage or transport failures where the request
// was sound but the backend could not serve it.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error {
	return e.Err
}
