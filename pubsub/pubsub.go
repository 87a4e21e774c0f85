// Package pubsub fans ScoredEvents out over Redis pub/sub channels
// (spec §6): "anomalies" for every non-INFO result, "anomalies_{band}"
// per band, and "user_{login}" for CRITICAL/HIGH only.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentryhq/ghanomaly/redisclient"
	"github.com/sentryhq/ghanomaly/severity"
)

// envelope is the JSON wrapper every published message carries.
type envelope struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Publisher publishes ScoredEvents on the channels spec §6 names.
type Publisher struct {
	rc *redisclient.Client
}

func New(rc *redisclient.Client) *Publisher {
	return &Publisher{rc: rc}
}

// Publish fans one scored event out to its channels. scoredEvent is
// marshaled as-is into the envelope's data field; login is empty when the
// event carries no actor. Callers should skip calling Publish at all for
// INFO-band events (spec §4.8 step 2.d).
func (p *Publisher) Publish(ctx context.Context, band severity.Band, login string, scoredEvent any) error {
	env := envelope{Type: "anomaly", Data: scoredEvent}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("pubsub: marshal envelope: %w", err)
	}

	if err := p.rc.Raw().Publish(ctx, "anomalies", raw).Err(); err != nil {
		return fmt.Errorf("pubsub: publish anomalies: %w", err)
	}
	if err := p.rc.Raw().Publish(ctx, "anomalies_"+string(band), raw).Err(); err != nil {
		return fmt.Errorf("pubsub: publish anomalies_%s: %w", band, err)
	}

	if login != "" && (band == severity.Critical || band == severity.High) {
		if err := p.rc.Raw().Publish(ctx, "user_"+login, raw).Err(); err != nil {
			return fmt.Errorf("pubsub: publish user_%s: %w", login, err)
		}
	}
	return nil
}
