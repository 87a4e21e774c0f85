package ghclient

import (
	"context"
	"time"

	"github.com/sentryhq/ghanomaly/kv"
)

// circuitState is the persisted, shared-across-processes breaker state for
// the GitHub API (spec §5).
type circuitState struct {
	Open     bool      `json:"open"`
	OpenedAt time.Time `json:"opened_at"`
}

// circuitAllow reports whether a call may proceed, auto-closing the
// breaker once its window has elapsed (the shared rate-limit record is the
// authoritative closer via recordRemaining; this is only the time-based
// fallback so a breaker never gets stuck open past its window).
func (c *Client) circuitAllow(ctx context.Context) bool {
	var st circuitState
	err := c.store.GetJSON(ctx, kv.GitHubCircuitBreakerKey, &st)
	if err != nil {
		return true // unknown state: fail open, let the call attempt and record its own result
	}
	if !st.Open {
		return true
	}
	return time.Since(st.OpenedAt) > c.cfg.CircuitBreakerWindow
}

func (c *Client) circuitOpen(ctx context.Context) {
	_ = c.store.SetJSON(ctx, kv.GitHubCircuitBreakerKey, circuitState{Open: true, OpenedAt: time.Now()}, c.cfg.CircuitBreakerWindow+time.Minute)
}

func (c *Client) circuitClose(ctx context.Context) {
	_ = c.store.SetJSON(ctx, kv.GitHubCircuitBreakerKey, circuitState{Open: false}, c.cfg.CircuitBreakerWindow+time.Minute)
}
