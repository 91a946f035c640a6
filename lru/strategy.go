// Package lru implements the C4 LRU Data-Size Strategy from spec.md §4.4:
// an in-memory index that enforces a total-size budget via
// least-recently-used eviction, ported from
// original_source/src/common/LruCacheByDataSizeStrategy.cpp.
package lru

import "container/list"

// EntryIndex is the in-memory projection of a cache entry tracked by
// Strategy: key, size, live-reader count, and the sticky reserved-remove
// tombstone flag from spec.md §3.
type EntryIndex struct {
	Key            string
	DataSize       uint64
	DataRefCount   uint32
	ReservedRemove bool
}

// clone returns a fresh copy, matching LruCacheByDataSizeStrategy::get's
// "freshly-allocated copy" contract (callers must not mutate the internal
// node through it).
func (e *EntryIndex) clone() *EntryIndex {
	c := *e
	return &c
}

// Listener is the veto-capable observer hook from spec.md §4.4: each
// callback runs before the corresponding mutation and can abort it by
// returning false.
type Listener interface {
	OnAdd(key string, info *EntryIndex) bool
	OnUpdate(key string, info *EntryIndex) bool
	OnRemove(key string) bool
	OnGet(key string, info *EntryIndex) bool
}

// Strategy holds no internal lock — spec.md §4.4 requires external
// serialization, which httpcache.Cache provides via its own mutex.
type Strategy struct {
	lruList  *list.List // front = MRU, back = LRU
	index    map[string]*list.Element
	totalSz  uint64
	maxSz    uint64
	listener Listener

	// Busy, when set, marks an entry ineligible for eviction under space
	// pressure and, during Clear(mayDeleteIfBusy=false), ineligible for
	// removal at all. httpcache's reserved-remove wrapper sets this to
	// "dataRefCount > 0" (spec.md §4.4 HTTP refinement, I5).
	Busy func(*EntryIndex) bool

	// newEntry lets subclass-style wrappers (httpcache's reserved-remove
	// strategy) substitute their own copy-constructor, standing in for the
	// original's virtual newCacheInfo() override.
	newEntry func(*EntryIndex) *EntryIndex
}

// New builds a Strategy with the given total-size budget.
func New(maxSize uint64) *Strategy {
	return &Strategy{
		lruList: list.New(),
		index:   make(map[string]*list.Element),
		maxSz:   maxSize,
		newEntry: func(e *EntryIndex) *EntryIndex {
			return e.clone()
		},
	}
}

// SetListener installs the veto-capable observer, replacing any previous one.
func (s *Strategy) SetListener(l Listener) { s.listener = l }

// SetEntryCloner overrides the copy used when inserting/returning entries —
// the Go analogue of overriding newCacheInfo in a subclass.
func (s *Strategy) SetEntryCloner(fn func(*EntryIndex) *EntryIndex) {
	s.newEntry = fn
}

// MaxSize and TotalSize expose the budget and current usage (I2).
func (s *Strategy) MaxSize() uint64   { return s.maxSz }
func (s *Strategy) TotalSize() uint64 { return s.totalSz }
func (s *Strategy) IsEmpty() bool     { return s.lruList.Len() == 0 }

// Add inserts a new entry at MRU, evicting LRU victims via MakeSpace if
// necessary. Returns false (no mutation) if the listener vetoes or
// MakeSpace cannot free enough room.
func (s *Strategy) Add(key string, info *EntryIndex) bool {
	if info == nil {
		return false
	}
	if s.listener != nil && !s.listener.OnAdd(key, info) {
		return false
	}
	return s.addOrUpdate(key, info)
}

// Update behaves like Add for the veto/space-making path. If key already
// exists and the new size is larger, MakeSpace runs and is guaranteed not
// to evict the key being updated.
func (s *Strategy) Update(key string, info *EntryIndex) bool {
	if info == nil {
		return false
	}
	if s.listener != nil && !s.listener.OnUpdate(key, info) {
		return false
	}
	return s.addOrUpdate(key, info)
}

// Remove deletes key outright. Listener veto is honored.
func (s *Strategy) Remove(key string) bool {
	el, ok := s.index[key]
	if !ok {
		return false
	}
	if s.listener != nil && !s.listener.OnRemove(key) {
		return false
	}
	entry := el.Value.(*EntryIndex)
	s.totalSz -= entry.DataSize
	s.lruList.Remove(el)
	delete(s.index, key)
	return true
}

// Get promotes key to MRU on a hit and returns a freshly allocated copy;
// returns nil on a miss or listener veto.
func (s *Strategy) Get(key string) *EntryIndex {
	el, ok := s.index[key]
	if !ok {
		return nil
	}
	s.lruList.MoveToFront(el)
	entry := el.Value.(*EntryIndex)

	if s.listener != nil && !s.listener.OnGet(key, entry) {
		return nil
	}
	return s.newEntry(entry)
}

// Peek returns a copy of the entry without promoting it or invoking the
// listener — used internally by subclass-style wrappers that need to
// inspect state (e.g. dataRefCount) without disturbing LRU order.
func (s *Strategy) Peek(key string) *EntryIndex {
	el, ok := s.index[key]
	if !ok {
		return nil
	}
	return s.newEntry(el.Value.(*EntryIndex))
}

// Clear evicts entries from MRU end to LRU end. With mayDeleteIfBusy=false,
// entries for which Busy returns true are skipped and the overall result is
// false (a partial clear), matching
// LruCacheByDataSizeStrategy::clear/createRemoveList.
func (s *Strategy) Clear(mayDeleteIfBusy bool) bool {
	keys, complete := s.collectAllKeys(mayDeleteIfBusy)
	for _, k := range keys {
		if !s.Remove(k) {
			complete = false
		}
	}
	return complete
}

func (s *Strategy) collectAllKeys(mayDeleteIfBusy bool) ([]string, bool) {
	keys := make([]string, 0, s.lruList.Len())
	complete := true
	for el := s.lruList.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*EntryIndex)
		if !mayDeleteIfBusy && s.Busy != nil && s.Busy(entry) {
			complete = false
			continue
		}
		keys = append(keys, entry.Key)
	}
	return keys, complete
}

// Reset drops all state without invoking the listener or Remove — used
// after destructive recovery (e.g. httpcache corruption handling).
func (s *Strategy) Reset() {
	s.lruList.Init()
	s.index = make(map[string]*list.Element)
	s.totalSz = 0
}

// MakeSpace evicts LRU-end, non-busy entries (the base Strategy treats all
// entries as non-busy) until requestSize bytes are free, or returns false
// if the walk exhausts the list first.
func (s *Strategy) MakeSpace(requestSize uint64) bool {
	return s.makeSpace(requestSize, "")
}

func (s *Strategy) addOrUpdate(key string, info *EntryIndex) bool {
	if el, ok := s.index[key]; ok {
		old := el.Value.(*EntryIndex)
		if old.DataSize < info.DataSize {
			if !s.makeSpace(info.DataSize, key) {
				return false
			}
		}
	} else {
		if !s.makeSpace(info.DataSize, "") {
			return false
		}
	}

	if el, ok := s.index[key]; ok {
		old := el.Value.(*EntryIndex)
		s.totalSz -= old.DataSize
		s.lruList.Remove(el)
	}

	newEl := s.lruList.PushFront(s.newEntry(info))
	s.index[key] = newEl
	s.totalSz += info.DataSize
	return true
}

// makeSpace is the LRU→MRU walk from
// LruCacheByDataSizeStrategy::makeSpace/createRemoveLruDataList:
// collect LRU-end keys whose cumulative size covers the deficit, then
// remove them all except updatedKey (protected because the caller is about
// to re-insert it).
func (s *Strategy) makeSpace(requestSize uint64, updatedKey string) bool {
	if s.totalSz+requestSize <= s.maxSz {
		return true
	}
	if s.lruList.Len() == 0 {
		return false
	}

	needed := s.totalSz + requestSize - s.maxSz
	keys, ok := s.collectRemovalKeys(needed)
	if !ok {
		return false
	}
	for _, k := range keys {
		if updatedKey != "" && k == updatedKey {
			continue
		}
		s.Remove(k)
	}
	return true
}

// collectRemovalKeys walks from the LRU end, collecting keys whose
// DataSize is not backed by a Busy entry, until their cumulative size
// meets removeSize (spec.md §4.4 make_space: busy entries are always
// skipped here, independent of any mayDeleteIfBusy flag).
func (s *Strategy) collectRemovalKeys(removeSize uint64) ([]string, bool) {
	var target uint64
	var keys []string
	for el := s.lruList.Back(); el != nil; el = el.Prev() {
		if target >= removeSize {
			break
		}
		entry := el.Value.(*EntryIndex)
		if s.Busy != nil && s.Busy(entry) {
			continue
		}
		keys = append(keys, entry.Key)
		target += entry.DataSize
	}
	if target < removeSize {
		return nil, false
	}
	return keys, true
}
