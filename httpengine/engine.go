// Package httpengine is the demo HTTP protocol state machine from spec.md
// §1: an external collaborator that calls into httpcache/connpool/executor
// but whose own wire-level encoding is out of scope for the cache core.
// It exists to exercise the core components end-to-end, not as part of
// the spec's required surface.
package httpengine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/projectdiscovery/retryablehttp-go"
	"github.com/rs/xid"

	"go-httpcache/connpool"
	"go-httpcache/executor"
	"go-httpcache/httpcache"
	"go-httpcache/internal/obslog"
)

// Engine binds the cache, connection pool, and executor substrate into a
// retry-on-stale-connection dispatcher, grounded on the teacher's own
// retryablehttp-go client construction (request.go in the retrieved copy).
type Engine struct {
	cache  *httpcache.Cache
	pool   *connpool.Pool
	exec   *executor.QueuedThreadPool
	client *retryablehttp.Client

	throttle  *throttler
	hosts     *hostStateCache
	dialFails *dialErrorCache
	log       *obslog.Logger
}

// New builds an Engine. cache/exec are required collaborators; pool may be
// nil if connection reuse isn't desired by the caller.
func New(cache *httpcache.Cache, pool *connpool.Pool, exec *executor.QueuedThreadPool) *Engine {
	opts := retryablehttp.DefaultOptionsSpraying
	opts.RetryMax = 5
	opts.RetryWaitMin = time.Second
	opts.RetryWaitMax = 30 * time.Second

	return &Engine{
		cache:     cache,
		pool:      pool,
		exec:      exec,
		client:    retryablehttp.NewClient(opts),
		throttle:  newThrottler(50),
		hosts:     newHostStateCache(1000),
		dialFails: newDialErrorCache(),
		log:       obslog.New("httpengine"),
	}
}

// Close releases the engine's own resources. It does not close cache/pool,
// which outlive any single Engine.
func (e *Engine) Close() {
	e.throttle.close()
	e.client.HTTPClient.CloseIdleConnections()
}

// PoolIdleCount exposes the shared connection pool's idle count for
// observability/testing; Fetch itself dispatches through retryablehttp's
// own transport, with connpool reserved for callers that want to reuse a
// specific dialed connection directly (e.g. conditional revalidation).
func (e *Engine) PoolIdleCount() int {
	if e.pool == nil {
		return 0
	}
	return e.pool.IdleCount()
}

// Fetch resolves method+url through the cache first; on a miss it submits
// the dispatch as a cancellable future task on the shared executor pool and
// commits the response into the cache for next time.
func (e *Engine) Fetch(ctx context.Context, method, url string) (*httpcache.Entry, io.ReadCloser, error) {
	key, err := httpcache.BuildKey(method, url)
	if err != nil {
		return nil, nil, err
	}

	if meta, stream, err := e.cache.Get(key); err != nil {
		return nil, nil, err
	} else if stream != nil {
		return meta, stream, nil
	}

	future := executor.NewFutureTask(func() (*httpcache.Entry, error) {
		return e.dispatchAndCommit(ctx, method, url, key)
	})
	if err := e.exec.Start(future); err != nil {
		return nil, nil, err
	}

	meta, err := future.Get()
	if err != nil {
		return nil, nil, err
	}
	_, stream, err := e.cache.Get(key)
	if err != nil {
		return nil, nil, err
	}
	return meta, stream, nil
}

func (e *Engine) dispatchAndCommit(ctx context.Context, method, url string, key httpcache.CacheKey) (*httpcache.Entry, error) {
	host := extractHost(url)
	state := e.hosts.get(host)
	if state.isThrottled() {
		e.throttle.wait()
	}

	req, err := retryablehttp.NewRequestFromURLWithContext(ctx, method, url, nil)
	if err != nil {
		return nil, err
	}

	e.throttle.wait()
	resp, err := e.client.Do(req)
	if err != nil {
		state.recordFailure()
		e.dialFails.recordFailure(host, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		state.throttleFor(5 * time.Second)
		e.throttle.onThrottleSignal()
	} else {
		state.recordSuccess()
		e.throttle.onRecover()
	}
	e.dialFails.clear(host)

	tmp, err := os.CreateTemp("", "httpengine-body-"+xid.New().String())
	if err != nil {
		return nil, err
	}
	defer os.Remove(tmp.Name())

	size, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return nil, err
	}
	tmp.Close()

	now := time.Now().Unix()
	meta := &httpcache.Entry{
		Key:                    key,
		URL:                    url,
		Method:                 method,
		StatusCode:             resp.StatusCode,
		StatusMessage:          resp.Status,
		ResponseHeaders:        map[string][]string(resp.Header),
		ResponseBodySize:       uint64(size),
		SentRequestEpochS:      now,
		ReceivedResponseEpochS: now,
		CreatedEpochS:          now,
		LastAccessedEpochS:     now,
	}

	if ok, err := e.cache.Put(key, meta, tmp.Name()); err != nil {
		return nil, err
	} else if !ok {
		return meta, nil
	}
	return meta, nil
}

func extractHost(url string) string {
	idx := bytes.Index([]byte(url), []byte("://"))
	if idx < 0 {
		return url
	}
	rest := url[idx+3:]
	for i, ch := range rest {
		if ch == '/' || ch == '?' {
			return rest[:i]
		}
	}
	return rest
}
