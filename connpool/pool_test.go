package connpool

import (
	"net"
	"testing"
	"time"

	"go-httpcache/executor"
)

type fakeConn struct {
	net.Conn
	closed bool
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}

// P10: an idle connection added with timeout T is absent from the pool by
// time T + epsilon.
func TestPool_P10_KeepAliveExpiry(t *testing.T) {
	exec := executor.NewDefaultQueuedThreadPool()
	defer exec.ShutdownAndJoinAll()

	p := New(nil, exec, DefaultMaxIdleConnections, 30*time.Millisecond)
	key := Key{Scheme: "http", Host: "example.com", Port: "80"}
	conn := &fakeConn{}

	p.Put(key, conn, true)
	if p.IdleCount() != 1 {
		t.Fatal("connection should be idle immediately after Put")
	}

	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		if p.IdleCount() == 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	if p.IdleCount() != 0 {
		t.Fatal("connection should have expired from the pool")
	}
	if !conn.closed {
		t.Fatal("expired connection should have been closed")
	}
}

func TestPool_GetReturnsIdleConnectionAndCancelsTimer(t *testing.T) {
	exec := executor.NewDefaultQueuedThreadPool()
	defer exec.ShutdownAndJoinAll()

	p := New(nil, exec, DefaultMaxIdleConnections, time.Second)
	key := Key{Scheme: "http", Host: "example.com", Port: "80"}
	conn := &fakeConn{}
	p.Put(key, conn, true)

	got := p.takeIdle(key)
	if got == nil {
		t.Fatal("expected an idle connection")
	}
	if p.IdleCount() != 0 {
		t.Fatal("pool should be empty after taking the only idle connection")
	}
}

func TestPool_EvictsOldestWhenAtCapacity(t *testing.T) {
	exec := executor.NewDefaultQueuedThreadPool()
	defer exec.ShutdownAndJoinAll()

	p := New(nil, exec, 2, time.Minute)
	key := Key{Scheme: "http", Host: "example.com", Port: "80"}

	first := &fakeConn{}
	second := &fakeConn{}
	third := &fakeConn{}

	p.Put(key, first, true)
	p.Put(key, second, true)
	p.Put(key, third, true)

	if p.IdleCount() != 2 {
		t.Fatalf("IdleCount = %d, want 2", p.IdleCount())
	}
	if !first.closed {
		t.Fatal("the oldest idle connection should have been evicted and closed")
	}
}

func TestPool_CloseReturnsPromptlyAndClosesAll(t *testing.T) {
	exec := executor.NewDefaultQueuedThreadPool()
	defer exec.ShutdownAndJoinAll()

	p := New(nil, exec, DefaultMaxIdleConnections, time.Hour)
	key := Key{Scheme: "http", Host: "example.com", Port: "80"}
	conn := &fakeConn{}
	p.Put(key, conn, true)

	start := time.Now()
	p.Close()
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("Close took %v, want < 500ms", elapsed)
	}
	if !conn.closed {
		t.Fatal("Close should close every idle connection")
	}
	if p.IdleCount() != 0 {
		t.Fatal("pool should be empty after Close")
	}
}

func TestPool_ConnectionCloseHeaderDropsImmediately(t *testing.T) {
	exec := executor.NewDefaultQueuedThreadPool()
	defer exec.ShutdownAndJoinAll()

	p := New(nil, exec, DefaultMaxIdleConnections, time.Minute)
	key := Key{Scheme: "http", Host: "example.com", Port: "80"}
	conn := &fakeConn{}

	p.Put(key, conn, false)
	if p.IdleCount() != 0 {
		t.Fatal("a Connection: close response must not be pooled")
	}
	if !conn.closed {
		t.Fatal("a Connection: close response's connection should be closed immediately")
	}
}
