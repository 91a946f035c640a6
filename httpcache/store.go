package httpcache

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

// MetadataStore stands for the "on-disk SQL metadata store" collaborator
// from spec.md §1: a typed key-value table with ordered enumeration.
// boltMetadataStore is the only implementation, grounded on
// go.etcd.io/bbolt (an indirect teacher dependency promoted to direct here
// since nothing in the retrieved corpus ships an embedded SQL engine).
type MetadataStore interface {
	Open() error
	Close() error
	GetMetadata(key CacheKey) (*Entry, error)
	PutMetadata(e *Entry) error
	DeleteMetadata(key CacheKey) error
	UpdateLastAccessed(key CacheKey, epochS int64) error
	// Enumerate streams every row in ascending last-accessed order, calling
	// fn once per row. It stops early if fn returns false. Matches spec.md
	// §9's "finite, non-restartable" enumerate requirement — rows are read
	// off a single bbolt cursor, never buffered wholesale.
	Enumerate(fn func(*Entry) bool) error
	// Reset closes, deletes, and recreates an empty database file —
	// the self-healing step of spec.md §4.5's corruption handling.
	Reset() error
	Path() string
}

var (
	entriesBucket        = []byte("entries")
	byLastAccessedBucket = []byte("by_last_accessed")
)

type boltMetadataStore struct {
	path string
	db   *bolt.DB
}

func newBoltMetadataStore(cacheRoot string) *boltMetadataStore {
	return &boltMetadataStore{path: filepath.Join(cacheRoot, "cache.db")}
}

func (s *boltMetadataStore) Path() string { return s.path }

func (s *boltMetadataStore) Open() error {
	db, err := bolt.Open(s.path, 0o600, nil)
	if err != nil {
		return s.classify(err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(byLastAccessedBucket)
		return err
	})
	if err != nil {
		db.Close()
		return s.classify(err)
	}
	s.db = db
	return nil
}

func (s *boltMetadataStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func secondaryKey(key CacheKey, epochS int64) []byte {
	buf := make([]byte, 8+len(key))
	binary.BigEndian.PutUint64(buf[:8], uint64(epochS))
	copy(buf[8:], key)
	return buf
}

func (s *boltMetadataStore) GetMetadata(key CacheKey) (*Entry, error) {
	var e *Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(entriesBucket).Get([]byte(key))
		if raw == nil {
			return nil
		}
		decoded, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		e = decoded
		return nil
	})
	if err != nil {
		return nil, s.classify(err)
	}
	return e, nil
}

func (s *boltMetadataStore) PutMetadata(e *Entry) error {
	encoded, err := encodeEntry(e)
	if err != nil {
		return wrapError(CodeExecution, "failed to encode entry", err)
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		byAccess := tx.Bucket(byLastAccessedBucket)

		if old := entries.Get([]byte(e.Key)); old != nil {
			oldEntry, err := decodeEntry(old)
			if err != nil {
				return err
			}
			if err := byAccess.Delete(secondaryKey(oldEntry.Key, oldEntry.LastAccessedEpochS)); err != nil {
				return err
			}
		}
		if err := entries.Put([]byte(e.Key), encoded); err != nil {
			return err
		}
		return byAccess.Put(secondaryKey(e.Key, e.LastAccessedEpochS), nil)
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *boltMetadataStore) DeleteMetadata(key CacheKey) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		raw := entries.Get([]byte(key))
		if raw == nil {
			return nil
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		if err := tx.Bucket(byLastAccessedBucket).Delete(secondaryKey(key, e.LastAccessedEpochS)); err != nil {
			return err
		}
		return entries.Delete([]byte(key))
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *boltMetadataStore) UpdateLastAccessed(key CacheKey, epochS int64) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		raw := entries.Get([]byte(key))
		if raw == nil {
			return nil
		}
		e, err := decodeEntry(raw)
		if err != nil {
			return err
		}
		byAccess := tx.Bucket(byLastAccessedBucket)
		if err := byAccess.Delete(secondaryKey(key, e.LastAccessedEpochS)); err != nil {
			return err
		}
		e.LastAccessedEpochS = epochS
		encoded, err := encodeEntry(e)
		if err != nil {
			return err
		}
		if err := entries.Put([]byte(key), encoded); err != nil {
			return err
		}
		return byAccess.Put(secondaryKey(key, epochS), nil)
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *boltMetadataStore) Enumerate(fn func(*Entry) bool) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		c := tx.Bucket(byLastAccessedBucket).Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			key := k[8:]
			raw := entries.Get(key)
			if raw == nil {
				continue
			}
			e, err := decodeEntry(raw)
			if err != nil {
				return err
			}
			if !fn(e) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return s.classify(err)
	}
	return nil
}

func (s *boltMetadataStore) Reset() error {
	s.Close()
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return wrapError(CodeExecution, "failed to delete corrupted database file", err)
	}
	return s.Open()
}

// classify maps bbolt's own corruption signals onto ErrDatabaseCorrupt, the
// trigger spec.md §4.5 requires Cache to react to by purging and resetting.
func (s *boltMetadataStore) classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, bolt.ErrInvalid) || errors.Is(err, bolt.ErrChecksum) || errors.Is(err, bolt.ErrVersionMismatch) {
		return wrapError(CodeDatabaseCorrupt, "database store reported corruption", err)
	}
	return wrapError(CodeExecution, "database store operation failed", err)
}

func encodeEntry(e *Entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeEntry(raw []byte) (*Entry, error) {
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return nil, wrapError(CodeDatabaseCorrupt, "failed to decode stored entry", err)
	}
	return &e, nil
}
