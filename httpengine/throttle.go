package httpengine

import (
	"context"
	"time"

	"github.com/projectdiscovery/ratelimit"
)

// throttler wraps a token-bucket rate limiter, replacing the teacher's
// hand-rolled crypto/rand-jittered time.Sleep backoff
// (internal/engine/rawhttp/throttler.go in the retrieved copy) with a real
// limiter whose rate is reduced whenever the engine observes a
// too-many-requests status code, and restored once a host recovers.
type throttler struct {
	ctx        context.Context
	cancel     context.CancelFunc
	limiter    *ratelimit.Limiter
	normalRate uint
}

func newThrottler(requestsPerSecond uint) *throttler {
	if requestsPerSecond == 0 {
		requestsPerSecond = 50
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &throttler{
		ctx:        ctx,
		cancel:     cancel,
		limiter:    ratelimit.New(ctx, requestsPerSecond, time.Second),
		normalRate: requestsPerSecond,
	}
}

// wait blocks until a token is available.
func (t *throttler) wait() {
	t.limiter.Take()
}

// onThrottleSignal halves the limiter's rate in response to a 429 from the
// target, and onRecover restores it once a host stops throttling.
func (t *throttler) onThrottleSignal() {
	reduced := t.normalRate / 2
	if reduced == 0 {
		reduced = 1
	}
	t.limiter.ChangeMax(reduced)
}

func (t *throttler) onRecover() {
	t.limiter.ChangeMax(t.normalRate)
}

func (t *throttler) close() {
	t.cancel()
}
