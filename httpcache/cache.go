package httpcache

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go-httpcache/internal/obslog"
	"go-httpcache/lru"
)

// Cache is the C5 HTTP Cache Core from spec.md §4.5: a single mutex
// serializes mutations of the in-memory LRU strategy and the metadata
// store's write path; body-file I/O happens outside the mutex.
type Cache struct {
	mu       sync.Mutex
	root     string
	tempDir  string
	maxSize  uint64
	strategy *reservedRemoveStrategy
	store    MetadataStore
	log      *obslog.Logger
}

// Open constructs a Cache rooted at root with the given total-size budget,
// creating the directory layout from spec.md §6 if absent, opening the
// metadata store, and rebuilding C4 from the store's last-accessed order
// (spec.md §4.5 "Startup rebuild").
func Open(root string, maxSize uint64) (*Cache, error) {
	if root == "" {
		return nil, wrapError(CodeIllegalArgument, "cache root must not be empty", nil)
	}
	tempDir := filepath.Join(root, "temp")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, wrapError(CodeExecution, "failed to create cache directory layout", err)
	}

	c := &Cache{
		root:     root,
		tempDir:  tempDir,
		maxSize:  maxSize,
		strategy: newReservedRemoveStrategy(maxSize),
		store:    newBoltMetadataStore(root),
		log:      obslog.New("httpcache"),
	}

	if err := c.store.Open(); err != nil {
		if !isCorrupt(err) {
			return nil, err
		}
		if err := c.purgeAndReset(); err != nil {
			return nil, err
		}
		return c, nil
	}

	if err := c.rebuild(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Cache) rebuild() error {
	err := c.store.Enumerate(func(e *Entry) bool {
		c.strategy.Add(string(e.Key), &lru.EntryIndex{Key: string(e.Key), DataSize: e.ResponseBodySize})
		return true
	})
	if err != nil {
		if isCorrupt(err) {
			c.log.Warningf("database reported corruption during startup rebuild, resetting cache")
			return c.purgeAndReset()
		}
		return err
	}
	return nil
}

// Close releases the metadata store handle. It does not touch in-flight
// body streams, matching the "stream may outlive the cache" contract.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Close()
}

// Get implements spec.md §4.5's `get`: on a hit, promotes the entry in C4,
// increments its data_ref_count, and opens the body file for read. An entry
// marked reserved-remove is reported as a miss (I4).
func (c *Cache) Get(key CacheKey) (*Entry, *BodyStream, error) {
	c.mu.Lock()
	idx := c.strategy.Get(string(key))
	if idx == nil || idx.ReservedRemove {
		c.mu.Unlock()
		return nil, nil, nil
	}
	idx.DataRefCount++
	c.strategy.Update(string(key), idx)
	c.mu.Unlock()

	meta, err := c.store.GetMetadata(key)
	if err != nil {
		c.releaseDataRef(key)
		if isCorrupt(err) {
			c.handleCorruption(err)
			return nil, nil, nil
		}
		return nil, nil, err
	}
	if meta == nil {
		// I1 violated — treat as a miss and drop the now-stale LRU entry.
		c.releaseDataRef(key)
		c.mu.Lock()
		c.strategy.Remove(string(key))
		c.mu.Unlock()
		return nil, nil, nil
	}
	c.touchLastAccessed(key)

	f, err := os.Open(c.bodyPath(key))
	if err != nil {
		c.releaseDataRef(key)
		return nil, nil, wrapError(CodeExecution, "failed to open cached body file", err)
	}
	return meta.clone(), newBodyStream(f, key, c), nil
}

// GetMetadata implements `get_metadata`: the same lookup, without touching
// the body file or the ref-count.
func (c *Cache) GetMetadata(key CacheKey) (*Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, err := c.store.GetMetadata(key)
	if err != nil {
		if isCorrupt(err) {
			c.handleCorruptionLocked(err)
			return nil, nil
		}
		return nil, err
	}
	if meta == nil {
		return nil, nil
	}
	if err := c.store.UpdateLastAccessed(key, time.Now().Unix()); err != nil && isCorrupt(err) {
		c.handleCorruptionLocked(err)
		return nil, nil
	}
	return meta.clone(), nil
}

// touchLastAccessed records a cache hit's access time in the store so the
// ordering c.rebuild() relies on at startup survives a restart (I6).
// Corruption here is reported but swallowed: a stale last-accessed time on
// an otherwise-successful hit shouldn't fail the caller's read.
func (c *Cache) touchLastAccessed(key CacheKey) {
	if err := c.store.UpdateLastAccessed(key, time.Now().Unix()); err != nil {
		if isCorrupt(err) {
			c.handleCorruption(err)
			return
		}
		c.log.Warningf("failed to update last-accessed time for %s: %v", key, err)
	}
}

// Put implements the atomic commit protocol from spec.md §4.5: reserve
// space in C4, move the temp file atomically, then write the metadata row,
// rolling back the earlier steps on any failure.
func (c *Cache) Put(key CacheKey, meta *Entry, tempFilePath string) (bool, error) {
	finalPath := c.bodyPath(key)

	c.mu.Lock()
	ok := c.strategy.Update(string(key), &lru.EntryIndex{Key: string(key), DataSize: meta.ResponseBodySize})
	c.mu.Unlock()
	if !ok {
		os.Remove(tempFilePath)
		return false, nil
	}

	if err := os.Rename(tempFilePath, finalPath); err != nil {
		os.Remove(tempFilePath)
		c.mu.Lock()
		c.strategy.Remove(string(key))
		c.mu.Unlock()
		return false, wrapError(CodeExecution, "failed to commit body file", err)
	}

	meta.Key = key
	c.mu.Lock()
	err := c.store.PutMetadata(meta)
	c.mu.Unlock()
	if err != nil {
		c.mu.Lock()
		c.strategy.Remove(string(key))
		c.mu.Unlock()
		os.Remove(finalPath)
		if isCorrupt(err) {
			c.handleCorruption(err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// PutMetadata implements `put_metadata`: metadata-only update, e.g. after a
// 304 revalidation — the body file and LRU size are untouched.
func (c *Cache) PutMetadata(key CacheKey, meta *Entry) (bool, error) {
	c.mu.Lock()
	present := c.strategy.Peek(string(key)) != nil
	if !present {
		c.mu.Unlock()
		return false, nil
	}
	meta.Key = key
	err := c.store.PutMetadata(meta)
	c.mu.Unlock()
	if err != nil {
		if isCorrupt(err) {
			c.handleCorruption(err)
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Remove implements `remove`: subject to reserved-remove if the entry is
// busy, physical deletion happens immediately once the entry is gone from
// C4 (i.e. it wasn't merely reserved).
func (c *Cache) Remove(key CacheKey) (bool, error) {
	c.mu.Lock()
	ok := c.strategy.Remove(string(key))
	stillPresent := c.strategy.Peek(string(key)) != nil
	c.mu.Unlock()
	if !ok {
		return false, nil
	}
	if stillPresent {
		// Reserved, not yet physically removed.
		return true, nil
	}
	return true, c.deleteDiskArtifacts(key)
}

// releaseDataRef implements `release_data_ref`, called back by BodyStream
// on Close.
func (c *Cache) releaseDataRef(key CacheKey) {
	c.mu.Lock()
	idx := c.strategy.Peek(string(key))
	if idx == nil {
		c.mu.Unlock()
		return
	}
	if idx.DataRefCount > 0 {
		idx.DataRefCount--
	}
	wasReserved := idx.ReservedRemove
	c.strategy.Update(string(key), idx)
	stillPresent := c.strategy.Peek(string(key)) != nil
	c.mu.Unlock()

	if wasReserved && !stillPresent {
		if err := c.deleteDiskArtifacts(key); err != nil {
			c.log.Errorf("failed to delete reserved-remove artifacts for %s: %v", key, err)
		}
	}
}

func (c *Cache) deleteDiskArtifacts(key CacheKey) error {
	os.Remove(c.bodyPath(key))
	err := c.store.DeleteMetadata(key)
	if err != nil && isCorrupt(err) {
		c.handleCorruption(err)
		return nil
	}
	return err
}

// EvictAll implements `evict_all`: purges every entry (including busy
// ones), deletes the temp directory, and resets C4. Open Question (a) from
// spec.md §9: on partial failure the cache continues serving whatever
// survived instead of entering a hard-error state.
func (c *Cache) EvictAll() error {
	c.mu.Lock()
	complete := c.strategy.Clear(true)
	c.mu.Unlock()

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return wrapError(CodeExecution, "evict_all failed to enumerate cache root", err)
	}
	for _, de := range entries {
		if de.Name() == "temp" || de.Name() == "cache.db" {
			continue
		}
		os.RemoveAll(filepath.Join(c.root, de.Name()))
	}
	os.RemoveAll(c.tempDir)
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return wrapError(CodeExecution, "evict_all failed to recreate temp directory", err)
	}

	c.mu.Lock()
	err = c.store.Reset()
	c.mu.Unlock()
	if err != nil {
		return wrapError(CodeExecution, "evict_all failed to reset metadata store", err)
	}

	if !complete {
		return wrapError(CodeExecution, "evict_all could not clear every entry", nil)
	}
	return nil
}

// GetSize implements `get_size`: sum of live body sizes, tracked
// incrementally by C4.
func (c *Cache) GetSize() (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strategy.TotalSize(), nil
}

// Enumerate streams every row ordered by last_accessed_epoch_s ascending.
func (c *Cache) Enumerate(fn func(*Entry) bool) error {
	err := c.store.Enumerate(fn)
	if err != nil && isCorrupt(err) {
		c.handleCorruption(err)
		return nil
	}
	return err
}

// CreateInputStream implements `create_input_stream`: the ref-count-bumping
// shortcut the HTTP engine uses when building a cached response, skipping
// the metadata read Get performs.
func (c *Cache) CreateInputStream(key CacheKey) (*BodyStream, error) {
	c.mu.Lock()
	idx := c.strategy.Get(string(key))
	if idx == nil || idx.ReservedRemove {
		c.mu.Unlock()
		return nil, nil
	}
	idx.DataRefCount++
	c.strategy.Update(string(key), idx)
	c.mu.Unlock()
	c.touchLastAccessed(key)

	f, err := os.Open(c.bodyPath(key))
	if err != nil {
		c.releaseDataRef(key)
		return nil, wrapError(CodeExecution, "failed to open cached body file", err)
	}
	return newBodyStream(f, key, c), nil
}

func (c *Cache) bodyPath(key CacheKey) string {
	return filepath.Join(c.root, hashKey(key))
}

func isCorrupt(err error) bool {
	return errors.Is(err, ErrDatabaseCorrupt)
}

// handleCorruption purges the cache (spec.md §4.5 "Corruption handling")
// and takes the mutex itself — callers must not already hold it.
func (c *Cache) handleCorruption(err error) {
	c.log.Warningf("database corruption detected, purging cache: %v", err)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handleCorruptionLocked(err)
}

func (c *Cache) handleCorruptionLocked(err error) {
	if perr := c.purgeAndReset(); perr != nil {
		c.log.Errorf("failed to purge corrupted cache: %v", perr)
	}
}

// purgeAndReset closes the store, deletes every file under cache_root, and
// resets C4 to empty — the exact recovery steps spec.md §4.5 requires.
// Callers must hold c.mu.
func (c *Cache) purgeAndReset() error {
	c.store.Close()

	entries, err := os.ReadDir(c.root)
	if err == nil {
		for _, de := range entries {
			os.RemoveAll(filepath.Join(c.root, de.Name()))
		}
	}
	if err := os.MkdirAll(c.tempDir, 0o755); err != nil {
		return wrapError(CodeExecution, "failed to recreate temp directory after purge", err)
	}

	c.strategy = newReservedRemoveStrategy(c.maxSize)
	return c.store.Open()
}
