package behavioral

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

func mkEvent(actor, repo string, t time.Time, typ event.Type) event.Event {
	return event.Event{ID: "e", ActorLogin: actor, RepoName: repo, CreatedAt: t, Type: typ}
}

func TestExtractFeaturesEmpty(t *testing.T) {
	f := ExtractFeatures(nil)
	for i, v := range f {
		if v != 0 {
			t.Fatalf("expected zero vector for empty input, idx %d = %v", i, v)
		}
	}
	if len(f) != event.BehavioralDim {
		t.Fatalf("expected %d dims, got %d", event.BehavioralDim, len(f))
	}
}

func TestExtractFeaturesSingleEvent(t *testing.T) {
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) // Monday
	f := ExtractFeatures([]event.Event{mkEvent("alice", "acme/repo", base, event.TypePush)})
	if f[event.BehBurstScore] != 0 {
		t.Fatalf("expected burst_score 0 for single event, got %v", f[event.BehBurstScore])
	}
	if f[event.BehEventTypeEntropy] != 0 {
		t.Fatalf("expected entropy 0 for single event, got %v", f[event.BehEventTypeEntropy])
	}
	if f[event.BehTimeSpanHours] != 1 {
		t.Fatalf("expected time_span_hours default 1, got %v", f[event.BehTimeSpanHours])
	}
}

func TestBurstOfTenPushes(t *testing.T) {
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	var events []event.Event
	for i := 0; i < 10; i++ {
		events = append(events, mkEvent("alice", "acme/repo", base.Add(time.Duration(i)*10*time.Second), event.TypePush))
	}
	f := ExtractFeatures(events)
	if f[event.BehBurstScore] <= 0 {
		t.Fatalf("expected burst_score > 0, got %v", f[event.BehBurstScore])
	}
}

func TestDetectForcePush(t *testing.T) {
	e := mkEvent("alice", "acme/repo", time.Now(), event.TypePush)
	e.Payload.Push = &event.PushPayload{Forced: true, Commits: []event.Commit{{Message: "wip"}}}
	a := DetectForcePush([]event.Event{e})
	if a == nil || a.Severity < 0.89 {
		t.Fatalf("expected high-severity force-push anomaly, got %+v", a)
	}
}

func TestScoreColdStart(t *testing.T) {
	base := time.Date(2026, 1, 5, 3, 0, 0, 0, time.UTC) // off-hours
	var events []event.Event
	for i := 0; i < 30; i++ {
		events = append(events, mkEvent("bob", "acme/repo", base.Add(time.Duration(i)*time.Minute), event.TypePush))
	}
	analysis := Score(events, nil)
	if !analysis.ColdStart {
		t.Fatalf("expected cold start with nil baseline")
	}
	if analysis.Confidence != 0.3 {
		t.Fatalf("expected confidence 0.3, got %v", analysis.Confidence)
	}
}

func TestScoreWithReliableBaseline(t *testing.T) {
	baseline := &Baseline{
		Mean:     make([]float64, event.BehavioralDim),
		Std:      make([]float64, event.BehavioralDim),
		Reliable: true,
	}
	for i := range baseline.Std {
		baseline.Std[i] = 0.1
	}
	base := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	events := []event.Event{mkEvent("carol", "acme/repo", base, event.TypePush)}
	analysis := Score(events, baseline)
	if analysis.ColdStart {
		t.Fatalf("expected non-cold-start path with reliable baseline")
	}
	if analysis.Score < 0 || analysis.Score > 1 {
		t.Fatalf("score out of range: %v", analysis.Score)
	}
}
