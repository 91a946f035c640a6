// Package config collects the tunables for the cache, connection pool, and
// executor substrate into one place, the way the teacher's own config.go
// gathered scan-wide defaults (user agent, timeouts, idle conns, job buffer
// size) before handing them to individual collaborators.
package config

import (
	"time"

	"go-httpcache/connpool"
)

const Version = "0.3.1"

// Cache holds the options httpcache.Open needs: where entries live on disk
// and how large the C4 LRU budget is allowed to grow.
type Cache struct {
	RootDir     string
	MaxSizeByte uint64
}

// DefaultCache mirrors the teacher's own defaults for disk-backed state: a
// generous byte budget (500MB) that a long cache session won't blow through
// in minutes.
func DefaultCache(rootDir string) Cache {
	return Cache{
		RootDir:     rootDir,
		MaxSizeByte: 500 * 1024 * 1024,
	}
}

// Pool holds the connpool tunables: how many idle connections to retain in
// total across all hosts, and how long an idle connection survives before
// eviction.
type Pool struct {
	MaxIdleConnections int
	KeepAlive          time.Duration
}

// DefaultPool matches spec.md's documented connpool defaults (a fixed
// maximum of 5 idle connections, 60s keep-alive). connpool.New already
// falls back to these same values when passed a non-positive maxIdle or a
// negative keepAlive (a zero keepAlive disables pooling instead); this just
// makes the default explicit for callers that want to see it.
func DefaultPool() Pool {
	return Pool{
		MaxIdleConnections: connpool.DefaultMaxIdleConnections,
		KeepAlive:          connpool.DefaultKeepAlive,
	}
}

// Executor holds the QueuedThreadPool tunables, named after the C++
// original's core/max/keepAlive triad.
type Executor struct {
	CorePoolSize  int
	MaxPoolSize   int
	KeepAliveTime time.Duration
	QueueCapacity int
}

func DefaultExecutor() Executor {
	return Executor{
		CorePoolSize:  4,
		MaxPoolSize:   16,
		KeepAliveTime: 60 * time.Second,
		QueueCapacity: jobBufferSize,
	}
}

// Other constants, carried over from the teacher's own config.go.
const (
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"
	defaultTimeout   = 30 * time.Second
	jobBufferSize    = 1000
)

// DefaultUserAgent and DefaultTimeout expose the above to httpengine.
func DefaultUserAgent() string      { return defaultUserAgent }
func DefaultTimeout() time.Duration { return defaultTimeout }
