// Package kv wraps the Redis client with the JSON get/set, atomic
// compare-and-set, and sorted-set primitives the profile managers,
// ContextScorer cache, and PriorityQueue build on. Every key pattern named
// in spec.md §6 is produced through this package.
package kv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sentryhq/ghanomaly/redisclient"
)

// ErrNotFound is returned by GetJSON when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a thin, typed façade over redisclient.Client.
type Store struct {
	rc *redisclient.Client
}

func New(rc *redisclient.Client) *Store {
	return &Store{rc: rc}
}

// GetJSON fetches key and unmarshals it into dst. Returns ErrNotFound if
// the key is absent.
func (s *Store) GetJSON(ctx context.Context, key string, dst any) error {
	raw, err := s.rc.Raw().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("kv: get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("kv: unmarshal %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it at key with the given TTL (0 = no
// expiry).
func (s *Store) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("kv: marshal %s: %w", key, err)
	}
	if err := s.rc.Raw().Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("kv: set %s: %w", key, err)
	}
	return nil
}

// CompareAndSetJSON performs an optimistic read-modify-write of the value
// at key using a Redis WATCH transaction: it loads the current value (or
// nil if absent), lets mutate transform it, and writes the result back
// only if nothing else wrote to key in between. Callers retry on
// ErrConcurrentUpdate. This is the one-writer-per-key guard the profile
// managers and the rate-limit record rely on (§5).
func (s *Store) CompareAndSetJSON(ctx context.Context, key string, ttl time.Duration, mutate func(exists bool, cur []byte) (next any, skip bool, err error)) error {
	txf := func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, key).Bytes()
		exists := true
		if err != nil {
			if errors.Is(err, redis.Nil) {
				exists = false
			} else {
				return err
			}
		}

		next, skip, err := mutate(exists, cur)
		if err != nil {
			return err
		}
		if skip {
			return nil
		}

		raw, err := json.Marshal(next)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, ttl)
			return nil
		})
		return err
	}

	err := s.rc.Raw().Watch(ctx, txf, key)
	if err != nil {
		return fmt.Errorf("kv: cas %s: %w", key, err)
	}
	return nil
}

// Del removes one or more keys.
func (s *Store) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return s.rc.Raw().Del(ctx, keys...).Err()
}

// Raw exposes the underlying go-redis client for sorted-set and hash
// operations used directly by the priority queue.
func (s *Store) Raw() *redis.Client {
	return s.rc.Raw()
}
