package ghclient

import (
	"context"
	"sort"
	"time"
)

type publicEvent struct {
	CreatedAt time.Time `json:"created_at"`
}

// PublicEventRate fetches a user's recent public events and returns their
// events-per-minute rate, used by the TemporalDetector as the baseline
// rate (spec §4.3). Returns temporal.NoBaseline-compatible 0 on any error
// or on too few samples to form a rate, rather than a literal ratio
// against a near-empty sample.
func (c *Client) PublicEventRate(ctx context.Context, login string) (float64, error) {
	var events []publicEvent
	if err := c.get(ctx, "/users/"+login+"/events/public?per_page=100", &events); err != nil {
		return 0, err
	}
	return rateFromTimestamps(events), nil
}

// RepoPublicEventRate is the repository-scoped analogue of
// PublicEventRate, used to seed a repo's temporal baseline.
func (c *Client) RepoPublicEventRate(ctx context.Context, fullName string) (float64, error) {
	owner, repo, ok := splitFullName(fullName)
	if !ok {
		return 0, nil
	}
	var events []publicEvent
	if err := c.get(ctx, "/repos/"+owner+"/"+repo+"/events?per_page=100", &events); err != nil {
		return 0, err
	}
	return rateFromTimestamps(events), nil
}

func rateFromTimestamps(events []publicEvent) float64 {
	if len(events) < 2 {
		return 0
	}
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	span := events[len(events)-1].CreatedAt.Sub(events[0].CreatedAt).Minutes()
	if span <= 0 {
		return 0
	}
	return float64(len(events)) / span
}

// MedianPublicEventRate fetches public-event rates for up to five user
// logins and returns their median, or 0 when no sample succeeded (spec
// §4.3's "baseline from cached GitHub public events (median)").
func (c *Client) MedianPublicEventRate(ctx context.Context, logins []string) float64 {
	var rates []float64
	for i, login := range logins {
		if i >= 5 {
			break
		}
		r, err := c.PublicEventRate(ctx, login)
		if err != nil || r <= 0 {
			continue
		}
		rates = append(rates, r)
	}
	if len(rates) == 0 {
		return 0
	}
	sort.Float64s(rates)
	mid := len(rates) / 2
	if len(rates)%2 == 1 {
		return rates[mid]
	}
	return (rates[mid-1] + rates[mid]) / 2
}
