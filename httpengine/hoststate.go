package httpengine

import (
	"sync"
	"time"

	"github.com/projectdiscovery/gcache"
)

// hostState tracks a single host's retry/backoff bookkeeping: consecutive
// failures and the epoch until which requests to it should be throttled.
type hostState struct {
	mu             sync.Mutex
	consecutiveErr int
	throttledUntil time.Time
}

func (s *hostState) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErr++
}

func (s *hostState) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.consecutiveErr = 0
	s.throttledUntil = time.Time{}
}

func (s *hostState) throttleFor(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.throttledUntil = time.Now().Add(d)
}

func (s *hostState) isThrottled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Now().Before(s.throttledUntil)
}

// hostStateCache is a size-bounded table of per-host retry state, the same
// bounded-LRU pattern the teacher used for ProbeResultsCache
// (internal/engine/probe/cache.go in the retrieved copy, there keying DNS
// probe results instead of retry counters).
type hostStateCache struct {
	cache gcache.Cache[string, *hostState]
}

func newHostStateCache(maxHosts int) *hostStateCache {
	if maxHosts <= 0 {
		maxHosts = 1000
	}
	return &hostStateCache{
		cache: gcache.New[string, *hostState](maxHosts).LRU().Build(),
	}
}

func (c *hostStateCache) get(host string) *hostState {
	s, err := c.cache.Get(host)
	if err == nil {
		return s
	}
	s = &hostState{}
	c.cache.Set(host, s)
	return s
}
