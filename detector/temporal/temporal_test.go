package temporal

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

func mkEvent(actor string, repo string, t time.Time) event.Event {
	return event.Event{
		ID:         "e",
		Type:       event.TypePush,
		ActorLogin: actor,
		RepoName:   repo,
		CreatedAt:  t,
	}
}

func TestBurstOfTenIdenticalPushes(t *testing.T) {
	base := time.Date(2026, 7, 20, 12, 0, 0, 0, time.UTC)
	var events []event.Event
	for i := 0; i < 10; i++ {
		events = append(events, mkEvent("mallory", "acme/api", base.Add(time.Duration(i)*20*time.Second)))
	}

	a := Score(events, NoBaseline)

	if a.Features[event.TemEventsPerMinuteCurrent] < 6 {
		t.Fatalf("expected events_per_minute >= 6, got %v", a.Features[event.TemEventsPerMinuteCurrent])
	}
	if a.Features[event.TemBurstIntensity] <= 0 {
		t.Fatalf("expected burst_intensity > 0, got %v", a.Features[event.TemBurstIntensity])
	}

	found := false
	for _, p := range a.Patterns {
		if p.Kind == PatternActivityBurst {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected activity_burst pattern, got %+v", a.Patterns)
	}
	if a.Score < 0.3 {
		t.Fatalf("expected temporal score >= 0.3, got %v", a.Score)
	}
}

func TestTwentyRepoDiversityLowRegularity(t *testing.T) {
	base := time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC)
	var events []event.Event
	for i := 0; i < 20; i++ {
		events = append(events, mkEvent("dev1", "org/repo", base.Add(time.Duration(i)*5*time.Minute)))
	}

	a := Score(events, NoBaseline)

	if a.Features[event.TemRegularity] > 0.3 {
		t.Fatalf("expected low CV regularity for evenly spaced events, got %v", a.Features[event.TemRegularity])
	}
}

func TestScoreEmptyEvents(t *testing.T) {
	a := Score(nil, NoBaseline)
	if a.Score != 0 {
		t.Fatalf("expected zero score for empty window, got %v", a.Score)
	}
}

func TestNoBaselineIsNeutral(t *testing.T) {
	base := time.Date(2026, 7, 20, 9, 0, 0, 0, time.UTC)
	events := []event.Event{
		mkEvent("dev1", "org/repo", base),
		mkEvent("dev1", "org/repo", base.Add(10*time.Minute)),
	}
	a := Score(events, NoBaseline)
	if a.Features[event.TemRateOverBaseline] != 1.0 {
		t.Fatalf("expected neutral rate_over_baseline of 1.0 when no baseline, got %v", a.Features[event.TemRateOverBaseline])
	}
}

func TestCoordinatedActivityAcrossActors(t *testing.T) {
	base := time.Date(2026, 7, 20, 3, 0, 0, 0, time.UTC)
	var events []event.Event
	actors := []string{"a1", "a2", "a3", "a4"}
	for i, actor := range actors {
		for j := 0; j < 6; j++ {
			events = append(events, mkEvent(actor, "org/repo", base.Add(time.Duration(i)*time.Minute+time.Duration(j)*2*time.Minute)))
		}
	}

	a := Score(events, NoBaseline)

	found := false
	for _, p := range a.Patterns {
		if p.Kind == PatternCoordinatedActivity {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected coordinated_activity pattern, got %+v", a.Patterns)
	}
}
