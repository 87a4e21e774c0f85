// Package stream implements the StreamProcessor (spec §4.8): the
// orchestrator that groups a batch of events by (actor, repo), fans each
// group out across the four detectors and the ContextScorer, folds the
// results through the SeverityEngine, and dispatches the outcome to the
// summarizer, the priority queue, and pub/sub.
package stream

import (
	"time"

	"github.com/sentryhq/ghanomaly/contextscore"
	"github.com/sentryhq/ghanomaly/detector/behavioral"
	"github.com/sentryhq/ghanomaly/detector/content"
	"github.com/sentryhq/ghanomaly/detector/temporal"
	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/severity"
)

// ScoredEvent is the fully-scored, auditable output of one input event
// (spec §3). Every intermediate detector payload is retained so it can be
// persisted or inspected downstream without recomputation.
type ScoredEvent struct {
	EventID    string    `json:"event_id"`
	ActorLogin string    `json:"actor_login"`
	RepoName   string    `json:"repo_name"`
	Type       event.Type `json:"type"`
	Timestamp  time.Time `json:"timestamp"`

	Scores            severity.ComponentScores `json:"scores"`
	ContextMultiplier float64                   `json:"context_multiplier"`
	UrgencyFactor     float64                   `json:"urgency_factor"`
	BaseScore         float64                   `json:"base_score"`
	FinalScore        float64                   `json:"final_score"`
	Band              severity.Band             `json:"band"`

	AppliedContext []severity.ContextFactor   `json:"applied_context"`
	AppliedUrgency []severity.UrgencyIndicator `json:"applied_urgency"`

	Behavioral behavioral.Analysis   `json:"behavioral"`
	Content    content.Analysis      `json:"content"`
	Temporal   temporal.Analysis     `json:"temporal"`
	Context    contextscore.Result   `json:"context"`

	Summary     *string   `json:"summary,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}
