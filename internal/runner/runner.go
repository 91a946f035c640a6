// Package runner wires httpcache, connpool, executor, and httpengine
// together for the httpcachectl demo binary, the same Initialize/Run shape
// the teacher's own internal/cli.Runner uses to drive its scanner.
package runner

import (
	"context"
	"fmt"
	"time"

	"go-httpcache/connpool"
	"go-httpcache/executor"
	"go-httpcache/httpcache"
	"go-httpcache/httpengine"
	"go-httpcache/internal/config"
	"go-httpcache/internal/obslog"
)

type Runner struct {
	opts  *Options
	log   *obslog.Logger
	cache *httpcache.Cache
}

func New(_ []string) (*Runner, error) {
	opts, err := parseFlags()
	if err != nil {
		return nil, err
	}

	log := obslog.New("runner")
	if opts.Debug {
		log.EnableDebug()
	}

	cacheCfg := config.DefaultCache(opts.CacheDir)
	if opts.MaxSizeByte > 0 {
		cacheCfg.MaxSizeByte = opts.MaxSizeByte
	}

	cache, err := httpcache.Open(cacheCfg.RootDir, cacheCfg.MaxSizeByte)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	return &Runner{opts: opts, log: log, cache: cache}, nil
}

func (r *Runner) Run() error {
	defer r.cache.Close()

	switch {
	case r.opts.EvictAll:
		return r.runEvictAll()
	case r.opts.Inspect:
		return r.runInspect()
	case r.opts.FetchURL != "":
		return r.runFetch()
	default:
		return r.runInspect()
	}
}

func (r *Runner) runEvictAll() error {
	if err := r.cache.EvictAll(); err != nil {
		return fmt.Errorf("evict all: %w", err)
	}
	r.log.Infof("cache at %s evicted", r.opts.CacheDir)
	return nil
}

func (r *Runner) runInspect() error {
	size, err := r.cache.GetSize()
	if err != nil {
		return fmt.Errorf("get size: %w", err)
	}
	r.log.Infof("cache at %s: %d bytes used", r.opts.CacheDir, size)

	err = r.cache.Enumerate(func(e *httpcache.Entry) bool {
		r.log.Infof("  %s  %s %s  %d  status=%d", e.Key, e.Method, e.URL, e.ResponseBodySize, e.StatusCode)
		return true
	})
	if err != nil {
		return fmt.Errorf("enumerate: %w", err)
	}
	return nil
}

func (r *Runner) runFetch() error {
	poolCfg := config.DefaultPool()
	execCfg := config.DefaultExecutor()

	exec, err := executor.NewQueuedThreadPool(
		uint(execCfg.CorePoolSize),
		uint(execCfg.MaxPoolSize),
		executor.NewBoundedQueue(execCfg.QueueCapacity),
	)
	if err != nil {
		return fmt.Errorf("new executor: %w", err)
	}
	defer exec.ShutdownAndJoinAll()

	pool := connpool.New(nil, exec, poolCfg.MaxIdleConnections, poolCfg.KeepAlive)
	defer pool.Close()

	eng := httpengine.New(r.cache, pool, exec)
	defer eng.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	meta, stream, err := eng.Fetch(ctx, r.opts.FetchMethod, r.opts.FetchURL)
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	defer stream.Close()

	r.log.Infof("fetched %s %s -> status=%d size=%d", r.opts.FetchMethod, r.opts.FetchURL, meta.StatusCode, meta.ResponseBodySize)
	return nil
}
