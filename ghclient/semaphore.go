package ghclient

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sentryhq/ghanomaly/kv"
)

const semaphoreSlotTTL = 30 * time.Second

// acquireSlot claims one of the N distributed semaphore slots shared by
// every process calling GitHub (spec §5 step 2), backed by a Redis set of
// live slot ids. Adapted from the per-key in-process Semaphore pattern,
// moved to Redis so the cap holds across processes rather than per-PID.
func (c *Client) acquireSlot(ctx context.Context) (release func(), err error) {
	id := uuid.NewString()
	count, addErr := c.store.Raw().SAdd(ctx, kv.GitHubSemaphoreKey, id).Result()
	if addErr != nil {
		return nil, addErr
	}
	c.store.Raw().Expire(ctx, kv.GitHubSemaphoreKey, semaphoreSlotTTL)

	size, sizeErr := c.store.Raw().SCard(ctx, kv.GitHubSemaphoreKey).Result()
	if sizeErr == nil && size > int64(c.cfg.GitHubSemaphoreSlots) {
		c.store.Raw().SRem(ctx, kv.GitHubSemaphoreKey, id)
		return nil, ErrNoSemaphoreSlot
	}
	_ = count

	return func() {
		c.store.Raw().SRem(ctx, kv.GitHubSemaphoreKey, id)
	}, nil
}
