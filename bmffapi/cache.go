package bmffapi

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"os"

	"go.etcd.io/bbolt"
	"golang.org/x/crypto/blake2b"
)

var probeCacheBucket = []byte("probe_results")

// ProbeCache persists ProbeResult values keyed by (file path, mtime,
// size), so repeated Probe calls over the same large file skip a full
// moov walk. Backed by bbolt, the same embedded key/value store
// SentryShot-sentryshot uses for its own small persisted records.
type ProbeCache struct {
	db *bbolt.DB
}

// OpenProbeCache opens (creating if absent) a bbolt database at path
// for use as a ProbeCache.
func OpenProbeCache(path string) (*ProbeCache, error) {
	db, err := bbolt.Open(path, 0o644, nil)
	if err != nil {
		return nil, fmt.Errorf("bmffapi: open probe cache: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(probeCacheBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &ProbeCache{db: db}, nil
}

// Close closes the underlying database.
func (c *ProbeCache) Close() error { return c.db.Close() }

// cacheKey derives the cache key for a file from its path and stat
// info, hashed with blake2b so varying path lengths never collide in
// the fixed-width key bbolt indexes on.
func cacheKey(path string, info os.FileInfo) ([]byte, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	h.Write([]byte(path))
	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], uint64(info.Size()))
	h.Write(sizeBuf[:])
	var mtimeBuf [8]byte
	binary.BigEndian.PutUint64(mtimeBuf[:], uint64(info.ModTime().UnixNano()))
	h.Write(mtimeBuf[:])
	return h.Sum(nil), nil
}

// Get returns the cached ProbeResult for path, if present and still
// fresh (matching path's current size and mtime).
func (c *ProbeCache) Get(path string) (ProbeResult, bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return ProbeResult{}, false, err
	}
	key, err := cacheKey(path, info)
	if err != nil {
		return ProbeResult{}, false, err
	}

	var result ProbeResult
	var found bool
	err = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(probeCacheBucket)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		found = true
		return gob.NewDecoder(bytes.NewReader(v)).Decode(&result)
	})
	if err != nil {
		return ProbeResult{}, false, err
	}
	return result, found, nil
}

// Put stores result under path's current (size, mtime) key.
func (c *ProbeCache) Put(path string, result ProbeResult) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	key, err := cacheKey(path, info)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(result); err != nil {
		return err
	}

	return c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(probeCacheBucket)
		return b.Put(key, buf.Bytes())
	})
}
