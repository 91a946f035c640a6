package httpcache

import (
	"context"
	"os"
	"sync"
)

// BodyStream is the reader handle spec.md §4.5 "Reader lifecycle" hands
// back from Get/CreateInputStream: a file handle, the key it belongs to,
// and a plain pointer back to the owning Cache. Go has no weak-reference
// need here (no GC cycle concern, see DESIGN.md) — a stream outliving a
// discarded Cache is a logic error this module doesn't defend against; in
// that case Close degrades to closing the file handle only.
type BodyStream struct {
	file  *os.File
	key   CacheKey
	cache *Cache

	closeOnce sync.Once
	closeErr  error
}

func newBodyStream(f *os.File, key CacheKey, c *Cache) *BodyStream {
	return &BodyStream{file: f, key: key, cache: c}
}

// Read forwards to the underlying file. ctx is consulted per spec.md §9
// Design Note (c): forwarding a cancellation hint into the stream read is
// the safe improvement the base Future's ignored
// cancel(mayInterruptIfRunning) flag invites in a language with first-class
// cancellation tokens.
func (s *BodyStream) Read(ctx context.Context, p []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return s.file.Read(p)
}

// Close releases the ref count on the owning Cache (which may transitively
// evict a reserved-remove entry) and closes the file handle. Idempotent:
// a second Close is a no-op, matching spec.md §4.5's close contract.
func (s *BodyStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cache != nil {
			s.cache.releaseDataRef(s.key)
		}
		s.closeErr = s.file.Close()
	})
	return s.closeErr
}
