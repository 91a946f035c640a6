package executor

import (
	"errors"
	"testing"
	"time"
)

func TestFutureTask_GetReturnsResult(t *testing.T) {
	ft := NewFutureTask(func() (int, error) { return 42, nil })
	ft.Run()

	got, err := ft.Get()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 {
		t.Fatalf("got %d, want 42", got)
	}
	if !ft.IsDone() {
		t.Fatal("task should be done after Run")
	}
}

func TestFutureTask_GetPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	ft := NewFutureTask(func() (int, error) { return 0, boom })
	ft.Run()

	_, err := ft.Get()
	if err == nil {
		t.Fatal("expected an error")
	}
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Code != CodeExecution {
		t.Fatalf("expected CodeExecution, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Fatal("wrapped cause should be unwrappable to boom")
	}
}

// P7: Cancel always returns true, including after completion.
func TestFutureTask_P7_CancelAlwaysTrue(t *testing.T) {
	ft := NewFutureTask(func() (int, error) { return 1, nil })
	ft.Run()

	if !ft.Cancel(true) {
		t.Fatal("Cancel after completion must still return true")
	}
	if !ft.IsCancelled() {
		t.Fatal("IsCancelled should report true once Cancel has been called")
	}

	_, err := ft.Get()
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Code != CodeCancellation {
		t.Fatalf("Get after Cancel should report CodeCancellation, got %v", err)
	}
}

func TestFutureTask_CancelBeforeRunStillRunsTask(t *testing.T) {
	ran := false
	ft := NewFutureTask(func() (int, error) { ran = true; return 1, nil })

	ft.Cancel(true)
	ft.Run()

	if !ran {
		t.Fatal("Run must still execute the underlying func even if Cancel raced ahead of it")
	}
	if !ft.IsDone() {
		t.Fatal("task should be marked done")
	}
}

// P8: a GetTimeout call that times out does not poison a subsequent,
// longer-duration call once the task has completed.
func TestFutureTask_P8_TimeoutThenSucceed(t *testing.T) {
	release := make(chan struct{})
	ft := NewFutureTask(func() (int, error) {
		<-release
		return 7, nil
	})
	go ft.Run()

	if _, err := ft.GetTimeout(10 * time.Millisecond); err == nil {
		t.Fatal("expected a timeout error")
	}

	close(release)

	got, err := ft.GetTimeout(time.Second)
	if err != nil {
		t.Fatalf("unexpected error on second GetTimeout: %v", err)
	}
	if got != 7 {
		t.Fatalf("got %d, want 7", got)
	}
}

func TestFutureTask_RunIsIdempotent(t *testing.T) {
	calls := 0
	ft := NewFutureTask(func() (int, error) { calls++; return calls, nil })
	ft.Run()
	ft.Run()
	if calls != 1 {
		t.Fatalf("underlying func ran %d times, want 1", calls)
	}
}

func TestFutureTask_PanicIsRecoveredAsExecutionError(t *testing.T) {
	ft := NewFutureTask(func() (int, error) { panic("nope") })
	ft.Run()

	_, err := ft.Get()
	var execErr *Error
	if !errors.As(err, &execErr) || execErr.Code != CodeExecution {
		t.Fatalf("expected CodeExecution after panic, got %v", err)
	}
}
