package httpcache

import "go-httpcache/lru"

// reservedRemoveStrategy is the Go composition stand-in for
// HttpLruCacheStrategy's subclass override of LruCacheByDataSizeStrategy
// (original_source/src/HttpLruCacheStrategy.cpp): busy entries (live
// readers) are never chosen as eviction victims, and a remove() against a
// busy entry becomes a sticky reserved-remove tombstone instead of an
// immediate delete.
type reservedRemoveStrategy struct {
	*lru.Strategy
}

func newReservedRemoveStrategy(maxSize uint64) *reservedRemoveStrategy {
	s := lru.New(maxSize)
	r := &reservedRemoveStrategy{Strategy: s}
	s.Busy = func(e *lru.EntryIndex) bool { return e.DataRefCount > 0 }
	return r
}

// Update mirrors HttpLruCacheStrategy::update: run the base update, then if
// the committed entry has dropped to ref count zero while still marked
// reserved-remove, transitively delete it. This is the commit point of a
// deferred deletion (spec.md §4.4 HTTP refinement).
func (r *reservedRemoveStrategy) Update(key string, info *lru.EntryIndex) bool {
	ok := r.Strategy.Update(key, info)
	if ok && info.DataRefCount == 0 && info.ReservedRemove {
		ok = r.Strategy.Remove(key)
	}
	return ok
}

// Remove mirrors HttpLruCacheStrategy::remove: an entry with live readers is
// not physically removed — it is marked reserved_remove and left in place,
// still returning true so callers see the removal as having "taken".
func (r *reservedRemoveStrategy) Remove(key string) bool {
	info := r.Strategy.Peek(key)
	if info == nil {
		return false
	}
	if info.DataRefCount > 0 {
		if !info.ReservedRemove {
			info.ReservedRemove = true
			r.Strategy.Update(key, info)
		}
		return true
	}
	return r.Strategy.Remove(key)
}
