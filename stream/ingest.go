package stream

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/kv"
)

// FetchBatch drains up to batchSize events from the event_queue list that
// the (out-of-scope) GitHub poller feeds (spec §5: poller → processor,
// FIFO, JSON-encoded). It blocks up to waitFor for the first item, then
// drains whatever else is immediately available without blocking
// further, so a quiet queue doesn't hold the caller past waitFor and a
// busy one doesn't starve it below batchSize.
func FetchBatch(ctx context.Context, rc *redis.Client, batchSize int, waitFor time.Duration) ([]event.Event, error) {
	var events []event.Event

	res, err := rc.BLPop(ctx, waitFor, kv.EventQueueKey).Result()
	switch {
	case err == redis.Nil:
		return nil, nil
	case err != nil:
		return nil, err
	}
	if e, ok := decodeEvent(res[1]); ok {
		events = append(events, e)
	}

	for len(events) < batchSize {
		raw, err := rc.LPop(ctx, kv.EventQueueKey).Result()
		if err == redis.Nil {
			break
		}
		if err != nil {
			return events, err
		}
		if e, ok := decodeEvent(raw); ok {
			events = append(events, e)
		}
	}
	return events, nil
}

func decodeEvent(raw string) (event.Event, bool) {
	var e event.Event
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return event.Event{}, false
	}
	return e, true
}
