// Package connpool implements the Connection Pool sibling from spec.md
// §4.6: a fixed-size idle-connection pool with per-connection keep-alive
// expiry driven by the same executor substrate that backs the task
// execution core.
package connpool

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/projectdiscovery/fastdialer/fastdialer"
	"github.com/rs/xid"

	"go-httpcache/executor"
	"go-httpcache/internal/obslog"
)

// DefaultMaxIdleConnections and DefaultKeepAlive mirror the defaults named
// in spec.md §4.6.
const (
	DefaultMaxIdleConnections = 5
	DefaultKeepAlive          = 60 * time.Second
)

// Key identifies a pooled connection's endpoint — scheme determines
// whether Dial goes through DialTLS.
type Key struct {
	Scheme string
	Host   string
	Port   string
}

type idleEntry struct {
	id         string
	key        Key
	conn       net.Conn
	returnedAt time.Time
	timeout    *executor.ScheduledFutureTask[struct{}]
}

// Pool is the C6 component: adoption arms a keep-alive ScheduledFutureTask
// on a shared QueuedThreadPool; firing (or an early Connection: close)
// drops the connection from the pool.
type Pool struct {
	mu        sync.Mutex
	maxIdle   int
	keepAlive time.Duration
	idle      map[Key][]*idleEntry
	order     []*idleEntry // oldest-returned first, for the max-idle eviction rule

	dialer *fastdialer.Dialer
	exec   *executor.QueuedThreadPool
	log    *obslog.Logger
}

// New builds a Pool backed by dialer for connection establishment and exec
// for scheduling keep-alive expiry tasks. maxIdle <= 0 and keepAlive < 0
// fall back to the spec.md §4.6 defaults; keepAlive == 0 disables pooling
// entirely (Put always closes instead of adopting).
func New(dialer *fastdialer.Dialer, exec *executor.QueuedThreadPool, maxIdle int, keepAlive time.Duration) *Pool {
	if maxIdle <= 0 {
		maxIdle = DefaultMaxIdleConnections
	}
	if keepAlive < 0 {
		keepAlive = DefaultKeepAlive
	}
	return &Pool{
		maxIdle:   maxIdle,
		keepAlive: keepAlive,
		idle:      make(map[Key][]*idleEntry),
		dialer:    dialer,
		exec:      exec,
		log:       obslog.New("connpool"),
	}
}

// Get returns an idle connection matching key if one exists (cancelling its
// keep-alive task), otherwise dials a fresh one through fastdialer.
func (p *Pool) Get(ctx context.Context, key Key) (net.Conn, error) {
	if conn := p.takeIdle(key); conn != nil {
		return conn, nil
	}
	addr := net.JoinHostPort(key.Host, key.Port)
	if key.Scheme == "https" {
		return p.dialer.DialTLS(ctx, "tcp", addr)
	}
	return p.dialer.Dial(ctx, "tcp", addr)
}

func (p *Pool) takeIdle(key Key) net.Conn {
	p.mu.Lock()
	defer p.mu.Unlock()

	bucket := p.idle[key]
	if len(bucket) == 0 {
		return nil
	}
	e := bucket[len(bucket)-1]
	p.idle[key] = bucket[:len(bucket)-1]
	p.removeFromOrder(e)
	e.timeout.Cancel(false)
	return e.conn
}

// Put adopts conn into the pool under key. A pool-wide keepAlive of 0, or
// keepAliveAllowed == false for this call, drops the connection
// immediately rather than pooling it — the latter is the
// "Connection: close" case from spec.md §4.6.
func (p *Pool) Put(key Key, conn net.Conn, keepAliveAllowed bool) {
	if p.keepAlive == 0 || !keepAliveAllowed {
		conn.Close()
		return
	}

	p.mu.Lock()
	if len(p.order) >= p.maxIdle {
		victim := p.order[0]
		p.evictLocked(victim)
	}

	e := &idleEntry{id: xid.New().String(), key: key, conn: conn, returnedAt: time.Now()}
	e.timeout = executor.Schedule(p.keepAlive, func() (struct{}, error) {
		expiry := executor.NewFutureTask(func() (struct{}, error) {
			p.expire(e)
			return struct{}{}, nil
		})
		if err := p.exec.Start(expiry); err != nil {
			// The executor is shut down; expire inline so the entry still leaves the pool.
			p.expire(e)
		}
		return struct{}{}, nil
	})
	p.idle[key] = append(p.idle[key], e)
	p.order = append(p.order, e)
	p.mu.Unlock()
}

// expire is the keep-alive timeout task's runTask: remove the connection
// from the pool and close it. A connection taken by Get races harmlessly
// against a firing timer — Cancel always returns true but expire no-ops if
// the entry has already been removed by takeIdle.
func (p *Pool) expire(e *idleEntry) {
	p.mu.Lock()
	bucket := p.idle[e.key]
	found := false
	for i, c := range bucket {
		if c == e {
			p.idle[e.key] = append(bucket[:i], bucket[i+1:]...)
			found = true
			break
		}
	}
	if found {
		p.removeFromOrder(e)
	}
	p.mu.Unlock()

	if found {
		e.conn.Close()
	}
}

// evictLocked drops the least-recently-returned idle connection to make
// room for a new one. Caller must hold p.mu.
func (p *Pool) evictLocked(e *idleEntry) {
	bucket := p.idle[e.key]
	for i, c := range bucket {
		if c == e {
			p.idle[e.key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	p.removeFromOrder(e)
	e.timeout.Cancel(false)
	e.conn.Close()
}

func (p *Pool) removeFromOrder(e *idleEntry) {
	for i, c := range p.order {
		if c == e {
			p.order = append(p.order[:i], p.order[i+1:]...)
			return
		}
	}
}

// Close cancels every pending keep-alive task and closes every idle
// connection without waiting for timers to fire naturally — spec.md §4.6's
// sub-500ms shutdown bound.
func (p *Pool) Close() {
	p.mu.Lock()
	entries := p.order
	p.order = nil
	p.idle = make(map[Key][]*idleEntry)
	p.mu.Unlock()

	for _, e := range entries {
		e.timeout.Cancel(false)
		e.conn.Close()
	}
}

// IdleCount reports the total number of pooled idle connections, for tests.
func (p *Pool) IdleCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.order)
}
