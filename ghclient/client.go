// Package ghclient is a rate-limited GitHub REST client. Every call is
// coordinated across processes through a distributed semaphore, a shared
// rate-limit ledger, and a circuit breaker (spec §5), with a local token
// bucket smoothing the request rate within this process between ledger
// refreshes.
package ghclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/sentryhq/ghanomaly/config"
	"github.com/sentryhq/ghanomaly/kv"
)

var (
	// ErrCircuitOpen is returned when the shared circuit breaker is open.
	ErrCircuitOpen = errors.New("ghclient: circuit breaker open")
	// ErrRateLimited is returned when the shared ledger shows too little
	// headroom to proceed safely.
	ErrRateLimited = errors.New("ghclient: below safety margin")
	// ErrNoSemaphoreSlot is returned when no distributed semaphore slot is
	// currently available.
	ErrNoSemaphoreSlot = errors.New("ghclient: no semaphore slot available")
)

const requestTimeout = 5 * time.Second

// Client is a bearer-authenticated GitHub REST client.
type Client struct {
	http   *http.Client
	cfg    *config.Config
	store  *kv.Store
	logger zerolog.Logger
	local  *rate.Limiter
}

func New(cfg *config.Config, store *kv.Store, logger zerolog.Logger) *Client {
	return &Client{
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        50,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		cfg:    cfg,
		store:  store,
		logger: logger.With().Str("component", "ghclient").Logger(),
		local:  rate.NewLimiter(rate.Limit(5), 10),
	}
}

// get runs the full coordination pipeline for one GET request and decodes
// the JSON body into dst.
func (c *Client) get(ctx context.Context, path string, dst any) error {
	if !c.circuitAllow(ctx) {
		return ErrCircuitOpen
	}
	if err := c.checkSafetyMargin(ctx); err != nil {
		return err
	}
	if err := c.local.Wait(ctx); err != nil {
		return fmt.Errorf("ghclient: local rate wait: %w", err)
	}

	release, err := c.acquireSlot(ctx)
	if err != nil {
		return err
	}
	defer release()

	reqCtx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.cfg.GitHubAPIBase+path, nil)
	if err != nil {
		return fmt.Errorf("ghclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("User-Agent", c.cfg.GitHubUserAgent)
	if c.cfg.GitHubToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.GitHubToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ghclient: request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if remaining, resetAt, ok := parseRateLimitHeaders(resp.Header.Get("X-RateLimit-Remaining"), resp.Header.Get("X-RateLimit-Reset")); ok {
		c.recordRemaining(ctx, remaining, resetAt)
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusTooManyRequests {
		c.circuitOpen(ctx)
		return ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("ghclient: %s returned %d: %s", path, resp.StatusCode, string(body))
	}

	if dst == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("ghclient: decode %s: %w", path, err)
	}
	return nil
}
