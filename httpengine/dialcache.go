package httpengine

import "github.com/VictoriaMetrics/fastcache"

// dialErrorCache remembers recently-failed dial targets, the same
// fastcache-backed negative-caching pattern the teacher's
// internal/utils/error/error.go ErrorHandler used for worker error
// tracking, reused here to avoid immediately re-dialing a host that just
// failed to connect.
type dialErrorCache struct {
	cache *fastcache.Cache
}

// fastcache enforces a 32MB floor regardless of the size requested; the
// teacher's own ErrorHandler comments this same constraint.
const dialErrorCacheSize = 32 * 1024 * 1024

func newDialErrorCache() *dialErrorCache {
	return &dialErrorCache{cache: fastcache.New(dialErrorCacheSize)}
}

func (c *dialErrorCache) recordFailure(hostPort string, errMsg string) {
	c.cache.Set([]byte(hostPort), []byte(errMsg))
}

func (c *dialErrorCache) lastFailure(hostPort string) (string, bool) {
	val, ok := c.cache.HasGet(nil, []byte(hostPort))
	if !ok {
		return "", false
	}
	return string(val), true
}

func (c *dialErrorCache) clear(hostPort string) {
	c.cache.Del([]byte(hostPort))
}
