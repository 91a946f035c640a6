package executor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/xid"
)

// DefaultCorePoolSize and DefaultMaximumPoolSize mirror
// QueuedThreadPool::DefaultCorePoolSize/DefaultMaximumPoolSize from
// original_source/src/executorservice/QueuedThreadPool.cpp.
const (
	DefaultCorePoolSize    = 2
	DefaultMaximumPoolSize = 5
	workerIdleTimeout      = 10 * time.Second
)

// QueuedThreadPool is the C2 component: a fixed-band worker pool that
// drains a Queue, spilling tasks to it once every worker is busy.
// Grounded on original_source/src/executorservice/QueuedThreadPool.cpp,
// whose single m_queueMutex covers spawn-attempt, push, and pop+decrement
// together — mirrored here by guarding all three with the same mu instead
// of letting activeWorkers and the queue be governed by independent locks.
type QueuedThreadPool struct {
	corePoolSize uint
	maxPoolSize  uint
	queue        Queue

	terminated atomic.Bool

	mu            sync.Mutex
	activeWorkers int
	id            string
}

// NewQueuedThreadPool validates corePoolSize <= maxPoolSize, both > 0, and
// queue non-nil, matching QueuedThreadPool::initialize's IllegalArgument
// checks.
func NewQueuedThreadPool(corePoolSize, maxPoolSize uint, queue Queue) (*QueuedThreadPool, error) {
	if corePoolSize == 0 || maxPoolSize < corePoolSize {
		return nil, wrapError(CodeIllegalArgument,
			"corePoolSize must be > 0 and <= maxPoolSize", nil)
	}
	if queue == nil {
		return nil, wrapError(CodeIllegalArgument, "queue must not be nil", nil)
	}
	return &QueuedThreadPool{
		corePoolSize: corePoolSize,
		maxPoolSize:  maxPoolSize,
		queue:        queue,
		id:           xid.New().String(),
	}, nil
}

// NewDefaultQueuedThreadPool matches the original's zero-arg constructor:
// core=2, max=5, a BoundBlockingQueue-equivalent backing queue.
func NewDefaultQueuedThreadPool() *QueuedThreadPool {
	p, _ := NewQueuedThreadPool(DefaultCorePoolSize, DefaultMaximumPoolSize, NewBoundedQueue(DefaultMaxQueueSize))
	return p
}

// Start runs task on a free worker, or spills it onto the backing queue
// once the pool is saturated. Reproduces the saturation-retry loop from
// QueuedThreadPool::start: when saturated AND no worker is currently
// active, a 1ms backoff-and-retry handles the transient race where a
// worker hasn't yet transitioned to an accepting state. The spawn-decision
// and the queue push both happen while holding mu, the same critical
// section runWorker's pop+decrement uses, so a task can never be pushed
// onto the queue in the same instant every worker decides it has nothing
// left to do and exits.
func (p *QueuedThreadPool) Start(task Task) error {
	if p.terminated.Load() {
		return wrapError(CodeIllegalState, "QueuedThreadPool is already terminated", nil)
	}
	if task == nil {
		return wrapError(CodeIllegalArgument, "task must not be nil", nil)
	}

	for {
		p.mu.Lock()
		if uint(p.activeWorkers) < p.maxPoolSize {
			p.activeWorkers++
			p.mu.Unlock()
			go p.runWorker(task)
			return nil
		}
		if p.activeWorkers == 0 {
			p.mu.Unlock()
			time.Sleep(time.Millisecond)
			continue
		}
		ok := p.queue.Push(task)
		p.mu.Unlock()
		if !ok {
			return wrapError(CodeTooManyRequests,
				"number of tasks is greater than max queue size", nil)
		}
		return nil
	}
}

// runWorker executes its initial task, then drains the backing queue until
// empty, then exits — it never blocks on an empty queue. The pop and the
// decrement-on-empty happen under the same mu Start uses, so Start never
// observes a worker as still active right after that worker has already
// committed to exiting.
func (p *QueuedThreadPool) runWorker(initial Task) {
	initial.Run()
	for {
		p.mu.Lock()
		next := p.queue.Pop()
		if next == nil {
			p.activeWorkers--
			p.mu.Unlock()
			return
		}
		p.mu.Unlock()

		if t, ok := next.(Task); ok {
			t.Run()
		} else {
			next.Run()
		}
	}
}

// Shutdown marks the pool terminated without waiting for in-flight or
// queued work. Idempotent.
func (p *QueuedThreadPool) Shutdown() {
	p.terminated.Store(true)
}

// ShutdownAndJoinAll marks the pool terminated and blocks until every
// worker has drained its current task and the backing queue. Idempotent.
func (p *QueuedThreadPool) ShutdownAndJoinAll() {
	p.terminated.Store(true)
	for p.ActiveWorkerCount() > 0 || !p.queue.IsEmpty() {
		time.Sleep(time.Millisecond)
	}
}

// IsTerminated reports whether Shutdown/ShutdownAndJoinAll has been called.
func (p *QueuedThreadPool) IsTerminated() bool { return p.terminated.Load() }

// ActiveWorkerCount reports the number of workers currently spawned.
func (p *QueuedThreadPool) ActiveWorkerCount() int32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int32(p.activeWorkers)
}

// CorePoolSize and MaximumPoolSize expose the configured bounds.
func (p *QueuedThreadPool) CorePoolSize() uint    { return p.corePoolSize }
func (p *QueuedThreadPool) MaximumPoolSize() uint { return p.maxPoolSize }
