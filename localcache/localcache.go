// Package localcache is an optional bbolt-backed warm-restart snapshot
// cache sitting in front of Redis for baselines. It exists purely to
// shorten cold starts after a process restart; Redis remains the source
// of truth and the cache degrades gracefully to "absent" when not
// configured (spec §4.5's baselines are otherwise Redis-only).
package localcache

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	bolt "go.etcd.io/bbolt"
)

var bucketBaselines = []byte("baselines")

// Cache is a local, single-process snapshot store. A nil *Cache is valid
// and behaves as "always miss" — callers do not need to branch on whether
// a local cache is configured.
type Cache struct {
	db *bolt.DB
}

// Open opens (creating if absent) a bbolt database at dataDir/warm_cache.db.
// An empty dataDir disables the cache: Open returns (nil, nil).
func Open(dataDir string) (*Cache, error) {
	if dataDir == "" {
		return nil, nil
	}
	path := filepath.Join(dataDir, "warm_cache.db")

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("localcache: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, berr := tx.CreateBucketIfNotExists(bucketBaselines)
		return berr
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("localcache: create bucket: %w", err)
	}

	return &Cache{db: db}, nil
}

func (c *Cache) Close() error {
	if c == nil {
		return nil
	}
	return c.db.Close()
}

// Get reads a snapshot into dst. Returns (false, nil) on a cache miss —
// including when c is nil.
func (c *Cache) Get(key string, dst any) (bool, error) {
	if c == nil {
		return false, nil
	}
	var found bool
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBaselines)
		raw := b.Get([]byte(key))
		if raw == nil {
			return nil
		}
		found = true
		return json.Unmarshal(raw, dst)
	})
	if err != nil {
		return false, fmt.Errorf("localcache: get %s: %w", key, err)
	}
	return found, nil
}

// Put snapshots v under key. A no-op when c is nil.
func (c *Cache) Put(key string, v any) error {
	if c == nil {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localcache: marshal %s: %w", key, err)
	}
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBaselines)
		return b.Put([]byte(key), raw)
	})
}
