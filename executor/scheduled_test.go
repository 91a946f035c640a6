package executor

import (
	"testing"
	"time"
)

func TestSchedule_FiresAfterDelay(t *testing.T) {
	start := time.Now()
	sf := Schedule(20*time.Millisecond, func() (int, error) { return 9, nil })

	got, err := sf.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 9 {
		t.Fatalf("got %d, want 9", got)
	}
	if elapsed := time.Since(start); elapsed < 15*time.Millisecond {
		t.Fatalf("fired too early: %v elapsed", elapsed)
	}
}

// P7 for the scheduled variant: Cancel before the timer fires prevents the
// func from running, and still returns true.
func TestSchedule_CancelBeforeFirePreventsRun(t *testing.T) {
	ran := false
	sf := Schedule(50*time.Millisecond, func() (int, error) { ran = true; return 1, nil })

	if !sf.Cancel(true) {
		t.Fatal("Cancel must return true")
	}

	time.Sleep(80 * time.Millisecond)
	if ran {
		t.Fatal("cancelling before the timer fires must stop it from running")
	}
	if !sf.IsCancelled() {
		t.Fatal("IsCancelled should report true")
	}

	// Get must still unblock (with a cancellation error) rather than hang
	// forever, since Run always closes the completion channel even when
	// cancelled before the timer fired.
	_, err := sf.GetTimeout(time.Second)
	if err == nil {
		t.Fatal("expected a cancellation error from Get")
	}
}

func TestSchedule_CancelAfterFireStillReportsTrue(t *testing.T) {
	sf := Schedule(5*time.Millisecond, func() (int, error) { return 1, nil })
	sf.Get()

	if !sf.Cancel(true) {
		t.Fatal("Cancel after completion must still return true")
	}
}
