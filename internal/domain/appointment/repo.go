package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ListFilter narrows doctor-scoped listings. Zero values mean "no
// constraint"; Statuses nil means all statuses.
type ListFilter struct {
	Statuses []Status
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}

// Repository is the persistence boundary for appointments.
//
// Update is a compare-and-set: it applies only when the row still holds
// the status the caller read, and returns ErrStale otherwise. Create
// returns SlotConflictError when an occupying row already holds the
// doctor/time slot.
type Repository interface {
	// InTx runs fn atomically. Repository calls made with the ctx fn
	// receives join the same transaction; any error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context) error) error

	Create(ctx context.Context, a *Appointment) error
	Get(ctx context.Context, id uuid.UUID) (*Appointment, error)
	Update(ctx context.Context, a *Appointment, expect Status) error

	// FindOpenSlot returns a bookable row for the doctor/time, or
	// ErrNotFound when none is published.
	FindOpenSlot(ctx context.Context, doctorID uuid.UUID, at time.Time) (*Appointment, error)

	ListByDoctor(ctx context.Context, doctorID uuid.UUID, f ListFilter) ([]*Appointment, int, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)

	// ListQueue returns the doctor's occupying appointments in the window,
	// ordered by scheduled time.
	ListQueue(ctx context.Context, doctorID uuid.UUID, from, to time.Time) ([]*Appointment, error)
}

// QueueNotifier receives a signal whenever a doctor's queue changes.
// Implemented by the websocket hub; a no-op implementation is fine for
// tests and offline tooling.
type QueueNotifier interface {
	NotifyQueueUpdate(doctorID uuid.UUID)
}
