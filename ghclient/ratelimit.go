package ghclient

import (
	"context"
	"strconv"
	"time"

	"github.com/sentryhq/ghanomaly/kv"
)

// rateLimitRecord is the shared rate-limit ledger all pollers read and
// update, per spec §5. Its TTL must outlive a full reset window.
type rateLimitRecord struct {
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const rateLimitRecordTTL = 3700 * time.Second

// checkSafetyMargin refuses the call when the shared record's remaining
// count is known and below the configured safety margin. An absent record
// (first call, or expired) is treated as permissive.
func (c *Client) checkSafetyMargin(ctx context.Context) error {
	var rec rateLimitRecord
	if err := c.store.GetJSON(ctx, kv.GitHubRateLimitKey, &rec); err != nil {
		return nil
	}
	if rec.Remaining < c.cfg.GitHubSafetyMargin {
		return ErrRateLimited
	}
	return nil
}

// recordRemaining updates the shared ledger from the API's response
// headers and flips the circuit breaker per the floor/reopen thresholds.
func (c *Client) recordRemaining(ctx context.Context, remaining int, resetAt time.Time) {
	_ = c.store.SetJSON(ctx, kv.GitHubRateLimitKey, rateLimitRecord{
		Remaining: remaining,
		ResetAt:   resetAt,
		UpdatedAt: time.Now(),
	}, rateLimitRecordTTL)

	switch {
	case remaining < c.cfg.CircuitBreakerFloor:
		c.circuitOpen(ctx)
	case remaining > c.cfg.CircuitBreakerReopen:
		c.circuitClose(ctx)
	}
}

func parseRateLimitHeaders(remainingHeader, resetHeader string) (remaining int, resetAt time.Time, ok bool) {
	r, err := strconv.Atoi(remainingHeader)
	if err != nil {
		return 0, time.Time{}, false
	}
	epoch, err := strconv.ParseInt(resetHeader, 10, 64)
	if err != nil {
		return r, time.Time{}, true
	}
	return r, time.Unix(epoch, 0), true
}
