package integration

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/clinicflow/clinicflow/internal/domain/appointment"
)

func TestBookingClaimsPublishedSlot(t *testing.T) {
	ctx := context.Background()
	svc, notifier := newIntegrationService(t)
	doctorID := uuid.New()
	at := futureAt(1)

	slot, err := svc.OpenSlot(ctx, doctorID, at, 7500)
	if err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	if slot.Status != appointment.StatusAvailable {
		t.Fatalf("slot status = %s, want available", slot.Status)
	}

	patientID := uuid.New()
	booked, err := svc.BookAppointment(ctx, doctorID, patientID, at, "annual checkup")
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}
	if booked.ID != slot.ID {
		t.Errorf("booking created a new row instead of claiming the published slot")
	}
	if booked.Status != appointment.StatusBooked {
		t.Errorf("status = %s, want booked", booked.Status)
	}
	if booked.FeeCents != 7500 {
		t.Errorf("fee = %d, want published fee 7500", booked.FeeCents)
	}
	if notifier.count(doctorID) != 2 {
		t.Errorf("notifications = %d, want 2 (publish + book)", notifier.count(doctorID))
	}

	got, err := svc.GetAppointment(ctx, booked.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if got.PatientID == nil || *got.PatientID != patientID {
		t.Errorf("patient not persisted on claimed slot")
	}
}

func TestActiveSlotIndexSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)
	doctorID := uuid.New()
	at := futureAt(2)

	const racers = 8
	var wg sync.WaitGroup
	errs := make([]error, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.BookAppointment(ctx, doctorID, uuid.New(), at, "walk-in")
		}(i)
	}
	wg.Wait()

	var wins, conflicts int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		default:
			var conflict *appointment.SlotConflictError
			if !errors.As(err, &conflict) {
				t.Fatalf("unexpected error: %v", err)
			}
			conflicts++
		}
	}
	if wins != 1 || conflicts != racers-1 {
		t.Errorf("wins = %d, conflicts = %d, want 1/%d", wins, conflicts, racers-1)
	}

	queue, err := svc.DoctorQueue(ctx, doctorID, at)
	if err != nil {
		t.Fatalf("DoctorQueue: %v", err)
	}
	if len(queue) != 1 {
		t.Errorf("queue has %d entries, want 1", len(queue))
	}
}

func TestCancelReopensSlotForRebooking(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)
	doctorID := uuid.New()
	at := futureAt(3)

	if _, err := svc.OpenSlot(ctx, doctorID, at, 5000); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	booked, err := svc.BookAppointment(ctx, doctorID, uuid.New(), at, "follow-up")
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}

	cancelled, err := svc.CancelAppointment(ctx, booked.ID, "patient request")
	if err != nil {
		t.Fatalf("CancelAppointment: %v", err)
	}
	if cancelled.Status != appointment.StatusCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}

	queue, err := svc.DoctorQueue(ctx, doctorID, at)
	if err != nil {
		t.Fatalf("DoctorQueue: %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("cancelled appointment still occupies the queue")
	}

	rebooked, err := svc.BookAppointment(ctx, doctorID, uuid.New(), at, "new patient")
	if err != nil {
		t.Fatalf("rebooking a cancelled slot: %v", err)
	}
	if rebooked.ID == booked.ID {
		t.Errorf("rebooking reused the cancelled row")
	}
	if rebooked.FeeCents != 5000 {
		t.Errorf("fee = %d, want reopened slot to keep published fee 5000", rebooked.FeeCents)
	}
}

func TestRescheduleReleasesOldSlot(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)
	doctorID := uuid.New()
	oldAt, newAt := futureAt(4), futureAt(5)

	if _, err := svc.OpenSlot(ctx, doctorID, oldAt, 6000); err != nil {
		t.Fatalf("OpenSlot: %v", err)
	}
	patientID := uuid.New()
	booked, err := svc.BookAppointment(ctx, doctorID, patientID, oldAt, "back pain")
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}

	if _, err := svc.RescheduleAppointment(ctx, booked.ID, newAt, uuid.New()); err == nil {
		t.Errorf("rescheduling someone else's appointment should fail")
	}

	moved, err := svc.RescheduleAppointment(ctx, booked.ID, newAt, patientID)
	if err != nil {
		t.Fatalf("RescheduleAppointment: %v", err)
	}
	if !moved.ScheduledAt.Equal(newAt) {
		t.Errorf("scheduled_at = %s, want %s", moved.ScheduledAt, newAt)
	}
	if moved.FeeCents != 6000 {
		t.Errorf("fee = %d, want carried fee 6000", moved.FeeCents)
	}

	old, err := svc.GetAppointment(ctx, booked.ID)
	if err != nil {
		t.Fatalf("GetAppointment: %v", err)
	}
	if old.Status != appointment.StatusCancelled {
		t.Errorf("old status = %s, want cancelled", old.Status)
	}

	// Vacated slot is republished and bookable again.
	if _, err := svc.BookAppointment(ctx, doctorID, uuid.New(), oldAt, "walk-in"); err != nil {
		t.Fatalf("booking the vacated slot: %v", err)
	}
}

func TestConsultationFlow(t *testing.T) {
	ctx := context.Background()
	svc, _ := newIntegrationService(t)
	doctorID := uuid.New()
	at := futureAt(6)

	booked, err := svc.BookAppointment(ctx, doctorID, uuid.New(), at, "lab results review")
	if err != nil {
		t.Fatalf("BookAppointment: %v", err)
	}

	if _, err := svc.CompleteConsultation(ctx, booked.ID); err == nil {
		t.Errorf("completing before start should fail")
	}

	started, err := svc.StartConsultation(ctx, booked.ID, doctorID)
	if err != nil {
		t.Fatalf("StartConsultation: %v", err)
	}
	if started.Status != appointment.StatusInProgress {
		t.Errorf("status = %s, want in_progress", started.Status)
	}

	done, err := svc.CompleteConsultation(ctx, booked.ID)
	if err != nil {
		t.Fatalf("CompleteConsultation: %v", err)
	}
	if done.Status != appointment.StatusCompleted {
		t.Errorf("status = %s, want completed", done.Status)
	}

	// Completed slots stay held; the time cannot be rebooked.
	if _, err := svc.BookAppointment(ctx, doctorID, uuid.New(), at, "walk-in"); err == nil {
		t.Errorf("booking over a completed consultation should conflict")
	}
}
