// Package appointment implements the clinic's slot lifecycle: doctors
// publish bookable slots, patients claim them, and each claimed slot
// moves through a fixed state machine until it reaches a terminal state
// or is released back into circulation.
package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a slot. The numeric values are
// persisted; never renumber.
type Status int

const (
	// StatusAvailable is a published slot no patient has claimed.
	StatusAvailable Status = 0
	// StatusBooked is a slot a patient holds.
	StatusBooked Status = 1
	// StatusCancelled is terminal; the booking was withdrawn.
	StatusCancelled Status = 2
	// StatusInProgress means the consultation has started.
	StatusInProgress Status = 3
	// StatusCompleted is terminal; the consultation finished.
	StatusCompleted Status = 4
	// StatusPending is a patient request awaiting staff approval.
	StatusPending Status = 5
	// StatusReopenedFromCancellation is a slot released by a
	// cancellation and bookable again.
	StatusReopenedFromCancellation Status = 6
	// StatusReopenedFromReschedule is a slot released by a reschedule
	// and bookable again.
	StatusReopenedFromReschedule Status = 7
	// StatusNoShow is terminal; the patient never arrived.
	StatusNoShow Status = 8
)

var statusNames = map[Status]string{
	StatusAvailable:                "available",
	StatusBooked:                   "booked",
	StatusCancelled:                "cancelled",
	StatusInProgress:               "in_progress",
	StatusCompleted:                "completed",
	StatusPending:                  "pending",
	StatusReopenedFromCancellation: "reopened_from_cancellation",
	StatusReopenedFromReschedule:   "reopened_from_reschedule",
	StatusNoShow:                   "no_show",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// statusByName resolves a wire-format status name.
func statusByName(name string) (Status, bool) {
	for s, n := range statusNames {
		if n == name {
			return s, true
		}
	}
	return 0, false
}

// Valid reports whether s is one of the defined statuses.
func (s Status) Valid() bool {
	_, ok := statusNames[s]
	return ok
}

// Occupies reports whether an appointment in this status holds its
// doctor/time slot against other bookings. At most one occupying row may
// exist per (doctor, time); the database enforces this with a partial
// unique index over exactly these statuses.
func (s Status) Occupies() bool {
	switch s {
	case StatusBooked, StatusInProgress, StatusCompleted, StatusPending:
		return true
	}
	return false
}

// Open reports whether a slot in this status can be claimed by a patient.
func (s Status) Open() bool {
	switch s {
	case StatusAvailable, StatusReopenedFromCancellation, StatusReopenedFromReschedule:
		return true
	}
	return false
}

// Terminal reports whether no further transitions leave this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusCancelled, StatusCompleted, StatusNoShow:
		return true
	}
	return false
}

// Operation names a lifecycle action. Used in transition checks and
// error messages.
type Operation string

const (
	OpBook       Operation = "book"
	OpRequest    Operation = "request"
	OpApprove    Operation = "approve"
	OpStart      Operation = "start"
	OpComplete   Operation = "complete"
	OpCancel     Operation = "cancel"
	OpReschedule Operation = "reschedule"
	OpNoShow     Operation = "no_show"
)

// transitions is the full state machine. Booking and requesting are
// listed from every open status; everything absent is an invalid
// transition.
var transitions = map[Status]map[Operation]Status{
	StatusAvailable: {
		OpBook:    StatusBooked,
		OpRequest: StatusPending,
	},
	StatusReopenedFromCancellation: {
		OpBook:    StatusBooked,
		OpRequest: StatusPending,
	},
	StatusReopenedFromReschedule: {
		OpBook:    StatusBooked,
		OpRequest: StatusPending,
	},
	StatusPending: {
		OpApprove: StatusBooked,
		OpCancel:  StatusCancelled,
	},
	StatusBooked: {
		OpStart:      StatusInProgress,
		OpCancel:     StatusCancelled,
		OpReschedule: StatusCancelled,
		OpNoShow:     StatusNoShow,
	},
	StatusInProgress: {
		OpComplete: StatusCompleted,
		OpCancel:   StatusCancelled,
	},
}

// Next returns the status reached by applying op in status from. The
// second return is false when the state machine forbids the move.
func Next(from Status, op Operation) (Status, bool) {
	to, ok := transitions[from][op]
	return to, ok
}

// MaxReasonLen bounds the free-text reason attached to bookings and
// cancellations.
const MaxReasonLen = 500

// Appointment is one doctor/time slot and, once claimed, its booking.
// PatientID is nil while the slot is unclaimed.
type Appointment struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	DoctorID    uuid.UUID  `db:"doctor_id" json:"doctor_id"`
	PatientID   *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	ScheduledAt time.Time  `db:"scheduled_at" json:"scheduled_at"`
	Status      Status     `db:"status" json:"status"`
	FeeCents    int64      `db:"fee_cents" json:"fee_cents"`
	Reason      string     `db:"reason" json:"reason,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}
