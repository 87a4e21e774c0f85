// Package queue implements the PriorityQueue (spec §4.7): one Redis
// sorted set per severity band, with capacity-bounded eviction, atomic
// dequeue, attempt-tracked requeue with backoff decay, and a dead-letter
// lane.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sentryhq/ghanomaly/config"
	"github.com/sentryhq/ghanomaly/kv"
	"github.com/sentryhq/ghanomaly/severity"
)

var defaultDequeueOrder = []severity.Band{
	severity.Critical, severity.High, severity.Medium, severity.Low, severity.Info,
}

const deadLetterTTL = 7 * 24 * time.Hour
const maxAttemptsDefault = 3
const requeueDecay = 0.9
const evictFraction = 0.10
const highUtilizationWarning = 0.90

// Item is one queued anomaly, carrying the priority-formula inputs plus
// bookkeeping the queue itself owns.
type Item struct {
	Payload         json.RawMessage `json:"payload"` // the ScoredEvent, opaque to the queue
	Band            severity.Band   `json:"band"`
	FinalScore      float64         `json:"final_score"`
	RepoCriticality float64         `json:"repo_criticality"`
	Boost           float64         `json:"boost"`
	EnqueuedAt      time.Time       `json:"enqueued_at"`
	Attempts        int             `json:"attempts"`
}

// Priority computes P per spec §4.7.
func Priority(band severity.Band, finalScore float64, ts time.Time, repoCriticality, boost float64) float64 {
	k := band.Rank()
	exp := 1.0
	for i := 0; i < k; i++ {
		exp *= 10
	}
	return exp + 1000*finalScore + float64(ts.UnixMilli())*1e-3 + 100*repoCriticality + 50*boost
}

func bandCapacity(caps config.QueueCapacities, band severity.Band) int {
	switch band {
	case severity.Critical:
		return caps.Critical
	case severity.High:
		return caps.High
	case severity.Medium:
		return caps.Medium
	case severity.Low:
		return caps.Low
	default:
		return caps.Info
	}
}

// Queue is the band-partitioned sorted-set priority queue.
type Queue struct {
	store *kv.Store
	caps  config.QueueCapacities
}

func New(store *kv.Store, caps config.QueueCapacities) *Queue {
	return &Queue{store: store, caps: caps}
}

// Enqueue inserts item into its band's sorted set, evicting the 10%
// lowest-priority members first if the band is at capacity.
func (q *Queue) Enqueue(ctx context.Context, item Item) error {
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}
	key := kv.AnomalyQueueKey(string(item.Band))
	priority := Priority(item.Band, item.FinalScore, item.EnqueuedAt, item.RepoCriticality, item.Boost)

	raw, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("queue: marshal item: %w", err)
	}

	cap := bandCapacity(q.caps, item.Band)
	size, err := q.store.Raw().ZCard(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("queue: size %s: %w", key, err)
	}
	if int(size) >= cap {
		if err := q.evictLowest(ctx, key, cap); err != nil {
			return err
		}
	}

	if err := q.store.Raw().ZAdd(ctx, key, redis.Z{Score: priority, Member: raw}).Err(); err != nil {
		return fmt.Errorf("queue: zadd %s: %w", key, err)
	}
	ttl := time.Duration(item.Band.TTL()) * time.Hour
	q.store.Raw().Expire(ctx, key, ttl)
	return nil
}

func (q *Queue) evictLowest(ctx context.Context, key string, capacity int) error {
	evictCount := int(float64(capacity) * evictFraction)
	if evictCount < 1 {
		evictCount = 1
	}
	return q.store.Raw().ZRemRangeByRank(ctx, key, 0, int64(evictCount-1)).Err()
}

// Dequeue atomically pops the highest-priority item from the first
// non-empty band, scanning bands in the given order (default
// critical→info). Returns (nil, nil) when every band is empty.
func (q *Queue) Dequeue(ctx context.Context, bands []severity.Band) (*Item, error) {
	if len(bands) == 0 {
		bands = defaultDequeueOrder
	}
	for _, band := range bands {
		key := kv.AnomalyQueueKey(string(band))
		results, err := q.store.Raw().ZPopMax(ctx, key, 1).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: dequeue %s: %w", key, err)
		}
		if len(results) == 0 {
			continue
		}
		var item Item
		member, _ := results[0].Member.(string)
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			continue // malformed item: drop silently, per CleanupExpired's tolerance
		}
		item.Attempts++ // record dequeue attempt per spec's "attempt count, dequeued-at"
		return &item, nil
	}
	return nil, nil
}

// Peek is a non-destructive read of the top k items in a band, highest
// priority first.
func (q *Queue) Peek(ctx context.Context, band severity.Band, k int) ([]Item, error) {
	key := kv.AnomalyQueueKey(string(band))
	results, err := q.store.Raw().ZRevRangeWithScores(ctx, key, 0, int64(k-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: peek %s: %w", key, err)
	}
	items := make([]Item, 0, len(results))
	for _, r := range results {
		member, _ := r.Member.(string)
		var item Item
		if err := json.Unmarshal([]byte(member), &item); err != nil {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

// Requeue increments the attempt count and either reinserts the item with
// a decayed priority after delay, or routes it to the dead-letter queue
// once max_attempts is reached.
func (q *Queue) Requeue(ctx context.Context, item Item, delay time.Duration, maxAttempts int) error {
	if maxAttempts <= 0 {
		maxAttempts = maxAttemptsDefault
	}
	item.Attempts++

	if item.Attempts >= maxAttempts {
		raw, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("queue: marshal dead-letter item: %w", err)
		}
		priority := Priority(item.Band, item.FinalScore, item.EnqueuedAt, item.RepoCriticality, item.Boost)
		key := kv.AnomalyDeadLetterKey()
		if err := q.store.Raw().ZAdd(ctx, key, redis.Z{Score: priority, Member: raw}).Err(); err != nil {
			return fmt.Errorf("queue: dead-letter zadd: %w", err)
		}
		q.store.Raw().Expire(ctx, key, deadLetterTTL)
		return nil
	}

	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return ctx.Err()
	}

	item.Boost *= requeueDecay
	return q.Enqueue(ctx, item)
}

// CleanupExpired drops items whose enqueued_at predates the band's TTL,
// and any item that fails to unmarshal.
func (q *Queue) CleanupExpired(ctx context.Context, band severity.Band) (dropped int, err error) {
	key := kv.AnomalyQueueKey(string(band))
	cutoff := time.Now().Add(-time.Duration(band.TTL()) * time.Hour)

	members, err := q.store.Raw().ZRange(ctx, key, 0, -1).Result()
	if err != nil {
		return 0, fmt.Errorf("queue: scan %s: %w", key, err)
	}
	for _, m := range members {
		var item Item
		if jerr := json.Unmarshal([]byte(m), &item); jerr != nil {
			q.store.Raw().ZRem(ctx, key, m)
			dropped++
			continue
		}
		if item.EnqueuedAt.Before(cutoff) {
			q.store.Raw().ZRem(ctx, key, m)
			dropped++
		}
	}
	return dropped, nil
}

// BandStats is one band's occupancy snapshot.
type BandStats struct {
	Band        severity.Band `json:"band"`
	Size        int64         `json:"size"`
	Capacity    int           `json:"capacity"`
	Utilization float64       `json:"utilization"`
	Oldest      time.Time     `json:"oldest"`
	Newest      time.Time     `json:"newest"`
}

// Stats returns every band's occupancy snapshot.
func (q *Queue) Stats(ctx context.Context) ([]BandStats, error) {
	out := make([]BandStats, 0, len(defaultDequeueOrder))
	for _, band := range defaultDequeueOrder {
		key := kv.AnomalyQueueKey(string(band))
		size, err := q.store.Raw().ZCard(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("queue: stats %s: %w", key, err)
		}
		cap := bandCapacity(q.caps, band)

		stats := BandStats{Band: band, Size: size, Capacity: cap}
		if cap > 0 {
			stats.Utilization = float64(size) / float64(cap)
		}

		if oldest, err := q.store.Raw().ZRangeWithScores(ctx, key, 0, 0).Result(); err == nil && len(oldest) > 0 {
			if item, ok := decodeMember(oldest[0].Member); ok {
				stats.Oldest = item.EnqueuedAt
			}
		}
		if newest, err := q.store.Raw().ZRevRangeWithScores(ctx, key, 0, 0).Result(); err == nil && len(newest) > 0 {
			if item, ok := decodeMember(newest[0].Member); ok {
				stats.Newest = item.EnqueuedAt
			}
		}
		out = append(out, stats)
	}
	return out, nil
}

func decodeMember(member any) (Item, bool) {
	s, ok := member.(string)
	if !ok {
		return Item{}, false
	}
	var item Item
	if err := json.Unmarshal([]byte(s), &item); err != nil {
		return Item{}, false
	}
	return item, true
}

// HealthCheck reports Healthy=false when any band is at or above 90%
// utilization.
type HealthCheck struct {
	Healthy bool        `json:"healthy"`
	Bands   []BandStats `json:"bands"`
}

func (q *Queue) HealthCheck(ctx context.Context) (HealthCheck, error) {
	stats, err := q.Stats(ctx)
	if err != nil {
		return HealthCheck{}, err
	}
	healthy := true
	for _, s := range stats {
		if s.Utilization >= highUtilizationWarning {
			healthy = false
		}
	}
	return HealthCheck{Healthy: healthy, Bands: stats}, nil
}
