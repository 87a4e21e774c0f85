package repo

import (
	"testing"
	"time"
)

func boolPtr(b bool) *bool { return &b }

func TestApplyUpdateFirstSampleSeedsRates(t *testing.T) {
	b := newBaseline("acme/api", time.Now())
	sample := ActivitySample{
		EventsToday: 12, ContributorsToday: 3, CommitsPerPush: 2,
		BuildSucceeded: boolPtr(true), IssueResolved: boolPtr(false),
		TopContributor: "alice",
	}
	applyUpdate(b, sample, time.Now())

	if b.EventsPerDay != 12 {
		t.Fatalf("expected first-sample events_per_day=12, got %v", b.EventsPerDay)
	}
	if b.BuildSuccessRate != 1.0 {
		t.Fatalf("expected build_success_rate=1.0 after one success, got %v", b.BuildSuccessRate)
	}
	if b.IssueResolutionRate != 0.0 {
		t.Fatalf("expected issue_resolution_rate=0.0 after one failure, got %v", b.IssueResolutionRate)
	}
	if b.TotalEvents != 1 {
		t.Fatalf("expected total_events=1, got %d", b.TotalEvents)
	}
}

func TestBuildSuccessRateAccumulatesAcrossUpdates(t *testing.T) {
	b := newBaseline("acme/api", time.Now())
	applyUpdate(b, ActivitySample{EventsToday: 1, BuildSucceeded: boolPtr(true)}, time.Now())
	applyUpdate(b, ActivitySample{EventsToday: 1, BuildSucceeded: boolPtr(false)}, time.Now())
	applyUpdate(b, ActivitySample{EventsToday: 1, BuildSucceeded: boolPtr(true)}, time.Now())

	if b.BuildObservations != 3 {
		t.Fatalf("expected 3 build observations, got %d", b.BuildObservations)
	}
	want := 2.0 / 3.0
	if diff := b.BuildSuccessRate - want; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected build_success_rate=%v, got %v", want, b.BuildSuccessRate)
	}
}

func TestRegularityOfConstantHistoryIsOne(t *testing.T) {
	history := []float64{5, 5, 5, 5}
	if r := regularityOf(history); r != 1 {
		t.Fatalf("expected regularity=1 for zero-variance history, got %v", r)
	}
}

func TestContributorEntropySingleContributorIsZero(t *testing.T) {
	e := ContributorEntropy(map[string]int{"alice": 10})
	if e != 0 {
		t.Fatalf("expected zero entropy for a single contributor, got %v", e)
	}
}

func TestContributorEntropyEvenSplitIsNormalizedOne(t *testing.T) {
	e := ContributorEntropy(map[string]int{"alice": 5, "bob": 5})
	if diff := e - 1.0; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("expected normalized entropy 1.0 for an even two-way split, got %v", e)
	}
}
