package appointment

import "testing"

func TestStatusString(t *testing.T) {
	if got := StatusBooked.String(); got != "booked" {
		t.Errorf("StatusBooked = %q", got)
	}
	if got := Status(42).String(); got != "unknown" {
		t.Errorf("undefined status = %q", got)
	}
}

func TestStatusByName(t *testing.T) {
	s, ok := statusByName("reopened_from_reschedule")
	if !ok || s != StatusReopenedFromReschedule {
		t.Errorf("got %v, %v", s, ok)
	}
	if _, ok := statusByName("bogus"); ok {
		t.Error("bogus name resolved")
	}
}

func TestStatusClasses(t *testing.T) {
	tests := []struct {
		status   Status
		occupies bool
		open     bool
		terminal bool
	}{
		{StatusAvailable, false, true, false},
		{StatusBooked, true, false, false},
		{StatusCancelled, false, false, true},
		{StatusInProgress, true, false, false},
		{StatusCompleted, true, false, true},
		{StatusPending, true, false, false},
		{StatusReopenedFromCancellation, false, true, false},
		{StatusReopenedFromReschedule, false, true, false},
		{StatusNoShow, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.status.String(), func(t *testing.T) {
			if got := tt.status.Occupies(); got != tt.occupies {
				t.Errorf("Occupies = %v, want %v", got, tt.occupies)
			}
			if got := tt.status.Open(); got != tt.open {
				t.Errorf("Open = %v, want %v", got, tt.open)
			}
			if got := tt.status.Terminal(); got != tt.terminal {
				t.Errorf("Terminal = %v, want %v", got, tt.terminal)
			}
		})
	}
}

func TestTransitions(t *testing.T) {
	tests := []struct {
		from Status
		op   Operation
		to   Status
		ok   bool
	}{
		{StatusAvailable, OpBook, StatusBooked, true},
		{StatusAvailable, OpRequest, StatusPending, true},
		{StatusReopenedFromCancellation, OpBook, StatusBooked, true},
		{StatusReopenedFromReschedule, OpRequest, StatusPending, true},
		{StatusPending, OpApprove, StatusBooked, true},
		{StatusPending, OpCancel, StatusCancelled, true},
		{StatusBooked, OpStart, StatusInProgress, true},
		{StatusBooked, OpCancel, StatusCancelled, true},
		{StatusBooked, OpReschedule, StatusCancelled, true},
		{StatusBooked, OpNoShow, StatusNoShow, true},
		{StatusInProgress, OpComplete, StatusCompleted, true},
		{StatusInProgress, OpCancel, StatusCancelled, true},

		{StatusAvailable, OpStart, 0, false},
		{StatusBooked, OpBook, 0, false},
		{StatusBooked, OpApprove, 0, false},
		{StatusInProgress, OpReschedule, 0, false},
		{StatusInProgress, OpNoShow, 0, false},
		{StatusCancelled, OpBook, 0, false},
		{StatusCompleted, OpComplete, 0, false},
		{StatusNoShow, OpCancel, 0, false},
		{StatusPending, OpStart, 0, false},
	}

	for _, tt := range tests {
		got, ok := Next(tt.from, tt.op)
		if ok != tt.ok {
			t.Errorf("Next(%s, %s): ok = %v, want %v", tt.from, tt.op, ok, tt.ok)
			continue
		}
		if ok && got != tt.to {
			t.Errorf("Next(%s, %s) = %s, want %s", tt.from, tt.op, got, tt.to)
		}
	}
}

func TestTerminalStatesHaveNoTransitions(t *testing.T) {
	ops := []Operation{OpBook, OpRequest, OpApprove, OpStart, OpComplete, OpCancel, OpReschedule, OpNoShow}
	for _, s := range []Status{StatusCancelled, StatusCompleted, StatusNoShow} {
		for _, op := range ops {
			if _, ok := Next(s, op); ok {
				t.Errorf("terminal status %s allows %s", s, op)
			}
		}
	}
}
