package executor

import (
	"time"
)

// ScheduledFutureTask is the delayed-execution sub-variant from spec.md
// §4.3: fires exactly once at a scheduled instant, otherwise identical to
// FutureTask's Get/Cancel contract, except that a Cancel which stops the
// timer before it fires completes the task without running fn. original_source's
// ScheduledFutureTask.h drives this off a Poco::Util::TimerTask on one
// auxiliary timer thread; here a single time.AfterFunc timer plays that
// role without a dedicated goroutine per pending task.
type ScheduledFutureTask[T any] struct {
	*FutureTask[T]
	timer *time.Timer
}

// Schedule arms fn to run once after d elapses, on the Go runtime's timer
// goroutine (the stand-in for the original's single auxiliary timer
// thread). Cancel before it fires prevents fn from ever running; Cancel
// after it has started running has no effect on an in-flight fn, matching
// the base Task contract (the hint is not forcibly honored at this layer).
func Schedule[T any](d time.Duration, fn func() (T, error)) *ScheduledFutureTask[T] {
	ft := NewFutureTask(fn)
	s := &ScheduledFutureTask[T]{FutureTask: ft}
	// Once the timer fires, Run() executes fn even if Cancel raced in after
	// the fire — a well-behaved fn is expected to check IsCancelled itself
	// and short-circuit (spec.md §5).
	s.timer = time.AfterFunc(d, s.Run)
	return s
}

// Cancel sets the cancelled flag and stops the underlying timer. If Stop
// actually prevented the natural fire, the task is marked finished and its
// completion channel is closed here without running fn, so any
// Get/GetTimeout call unblocks with a cancellation error instead of
// waiting forever; a later Run is a no-op.
func (s *ScheduledFutureTask[T]) Cancel(mayInterruptIfRunning bool) bool {
	result := s.FutureTask.Cancel(mayInterruptIfRunning)
	if s.timer.Stop() && s.started.CompareAndSwap(false, true) {
		s.finished.Store(true)
		s.doneOnce.Do(func() { close(s.done) })
	}
	return result
}
