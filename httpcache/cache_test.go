package httpcache

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestCache(t *testing.T, maxSize uint64) *Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := Open(dir, maxSize)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func writeTemp(t *testing.T, c *Cache, body string) string {
	t.Helper()
	f, err := os.CreateTemp(c.tempDir, "body-*")
	if err != nil {
		t.Fatalf("create temp: %v", err)
	}
	if _, err := f.WriteString(body); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	f.Close()
	return f.Name()
}

// Scenario 1: basic put/get round-trip.
func TestCache_Scenario1_BasicRoundTrip(t *testing.T) {
	c := newTestCache(t, 1<<20)

	key, err := BuildKey("GET", "http://example.com/K")
	if err != nil {
		t.Fatalf("BuildKey: %v", err)
	}

	body := "test1 response body"
	tmp := writeTemp(t, c, body)
	meta := &Entry{
		Key:              key,
		URL:              "http://example.com/K",
		Method:           "GET",
		StatusCode:       200,
		ResponseBodySize: uint64(len(body)),
	}

	ok, err := c.Put(key, meta, tmp)
	if err != nil || !ok {
		t.Fatalf("Put failed: ok=%v err=%v", ok, err)
	}

	got, stream, err := c.Get(key)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got == nil || stream == nil {
		t.Fatal("Get should hit")
	}
	if !got.Equal(meta) {
		t.Fatalf("metadata mismatch: got %+v, want %+v", got, meta)
	}

	buf := make([]byte, 64)
	n, _ := stream.file.Read(buf)
	if string(buf[:n]) != body {
		t.Fatalf("body = %q, want %q", string(buf[:n]), body)
	}
	stream.Close()

	size, err := c.GetSize()
	if err != nil {
		t.Fatalf("GetSize: %v", err)
	}
	if size != uint64(len(body)) {
		t.Fatalf("GetSize = %d, want %d", size, len(body))
	}
}

// Scenario 4 / P3 / P4: reserved remove under a live reader.
func TestCache_Scenario4_ReservedRemove(t *testing.T) {
	c := newTestCache(t, 1<<20)
	key, _ := BuildKey("GET", "http://example.com/K")
	body := "0123456789012345678"
	tmp := writeTemp(t, c, body)
	meta := &Entry{Key: key, ResponseBodySize: uint64(len(body))}

	if ok, err := c.Put(key, meta, tmp); !ok || err != nil {
		t.Fatalf("Put failed: %v %v", ok, err)
	}

	_, stream, err := c.Get(key)
	if err != nil || stream == nil {
		t.Fatalf("Get should hit: %v %v", stream, err)
	}

	removed, err := c.Remove(key)
	if err != nil || !removed {
		t.Fatalf("Remove should report true (reserved): %v %v", removed, err)
	}

	if m, s, _ := c.Get(key); m != nil || s != nil {
		t.Fatal("Get after reserved remove must miss")
	}

	if _, err := os.Stat(c.bodyPath(key)); err != nil {
		t.Fatalf("body file should still exist while a reader is open: %v", err)
	}

	if err := stream.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if _, err := os.Stat(c.bodyPath(key)); !os.IsNotExist(err) {
		t.Fatal("body file should be deleted once the last reader closes")
	}
	if meta, err := c.GetMetadata(key); meta != nil || err != nil {
		t.Fatalf("metadata row should be gone: %v %v", meta, err)
	}
}

// P4: ref count safety across repeated get/close cycles.
func TestCache_P4_RefCountNeverNegative(t *testing.T) {
	c := newTestCache(t, 1<<20)
	key, _ := BuildKey("GET", "http://example.com/K")
	body := "hello"
	tmp := writeTemp(t, c, body)
	c.Put(key, &Entry{Key: key, ResponseBodySize: uint64(len(body))}, tmp)

	for i := 0; i < 3; i++ {
		_, stream, err := c.Get(key)
		if err != nil || stream == nil {
			t.Fatalf("iteration %d: Get should hit", i)
		}
		if err := stream.Close(); err != nil {
			t.Fatalf("iteration %d: Close: %v", i, err)
		}
	}

	idx := c.strategy.Peek(string(key))
	if idx == nil {
		t.Fatal("entry should still be present")
	}
	if idx.DataRefCount != 0 {
		t.Fatalf("DataRefCount = %d, want 0", idx.DataRefCount)
	}
}

// P5: put atomicity — a failed rename leaves the cache state untouched.
func TestCache_P5_PutAtomicityOnRenameFailure(t *testing.T) {
	c := newTestCache(t, 1<<20)
	key, _ := BuildKey("GET", "http://example.com/K")

	sizeBefore, _ := c.GetSize()

	// A temp path that does not exist makes os.Rename fail.
	missingTemp := filepath.Join(c.tempDir, "does-not-exist")
	ok, err := c.Put(key, &Entry{Key: key, ResponseBodySize: 10}, missingTemp)
	if ok || err == nil {
		t.Fatalf("Put should fail when the rename source is missing: ok=%v err=%v", ok, err)
	}

	if idx := c.strategy.Peek(string(key)); idx != nil {
		t.Fatal("LRU must not retain an entry for a failed put")
	}
	if meta, _ := c.GetMetadata(key); meta != nil {
		t.Fatal("no metadata row should exist for a failed put")
	}
	if _, err := os.Stat(c.bodyPath(key)); !os.IsNotExist(err) {
		t.Fatal("no body file should exist for a failed put")
	}

	sizeAfter, _ := c.GetSize()
	if sizeAfter != sizeBefore {
		t.Fatalf("cache size changed on a failed put: before=%d after=%d", sizeBefore, sizeAfter)
	}
}

func TestCache_PutMetadataOnly(t *testing.T) {
	c := newTestCache(t, 1<<20)
	key, _ := BuildKey("GET", "http://example.com/K")
	body := "abcde"
	tmp := writeTemp(t, c, body)
	c.Put(key, &Entry{Key: key, ResponseBodySize: uint64(len(body)), StatusCode: 200}, tmp)

	ok, err := c.PutMetadata(key, &Entry{Key: key, ResponseBodySize: uint64(len(body)), StatusCode: 304})
	if err != nil || !ok {
		t.Fatalf("PutMetadata failed: %v %v", ok, err)
	}

	meta, err := c.GetMetadata(key)
	if err != nil || meta == nil {
		t.Fatalf("GetMetadata failed: %v %v", meta, err)
	}
	if meta.StatusCode != 304 {
		t.Fatalf("StatusCode = %d, want 304", meta.StatusCode)
	}
}

func TestCache_EvictAll(t *testing.T) {
	c := newTestCache(t, 1<<20)
	for _, k := range []string{"A", "B", "C"} {
		key, _ := BuildKey("GET", "http://example.com/"+k)
		body := "payload-" + k
		tmp := writeTemp(t, c, body)
		if ok, err := c.Put(key, &Entry{Key: key, ResponseBodySize: uint64(len(body))}, tmp); !ok || err != nil {
			t.Fatalf("Put %s failed: %v %v", k, ok, err)
		}
	}

	if err := c.EvictAll(); err != nil {
		t.Fatalf("EvictAll: %v", err)
	}

	size, _ := c.GetSize()
	if size != 0 {
		t.Fatalf("size after EvictAll = %d, want 0", size)
	}
	for _, k := range []string{"A", "B", "C"} {
		key, _ := BuildKey("GET", "http://example.com/"+k)
		if meta, _ := c.GetMetadata(key); meta != nil {
			t.Fatalf("metadata for %s should be gone after EvictAll", k)
		}
	}
}
