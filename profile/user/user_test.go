package user

import (
	"math"
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

func TestApplyUpdateFirstUpdateSetsMeanAndFloorStd(t *testing.T) {
	b := newBaseline("alice", time.Now())
	x := make(event.FeatureVector, event.BehavioralDim)
	for i := range x {
		x[i] = float64(i) + 1
	}

	applyUpdate(b, x, 10, "PushEvent", "acme/api", time.Now())

	for i, v := range b.Mean {
		if v != x[i] {
			t.Fatalf("expected mean[%d]=%v, got %v", i, x[i], v)
		}
	}
	for _, s := range b.Std {
		if s != initialStd {
			t.Fatalf("expected initial std %v, got %v", initialStd, s)
		}
	}
	if b.TotalEvents != 1 {
		t.Fatalf("expected total_events=1, got %d", b.TotalEvents)
	}
}

func TestUpdateProbDistDropsBelowFloor(t *testing.T) {
	dist := map[string]float64{"PushEvent": 0.995, "IssuesEvent": 0.005}
	updateProbDist(dist, "PushEvent", alphaFast)

	if _, ok := dist["IssuesEvent"]; ok {
		if dist["IssuesEvent"] >= probDropAt {
			t.Fatalf("expected IssuesEvent below floor to be dropped or sub-floor, got %v", dist["IssuesEvent"])
		}
	}

	var sum float64
	for _, v := range dist {
		sum += v
	}
	if math.Abs(sum-1.0) > 1e-6 {
		t.Fatalf("expected distribution to renormalize to 1.0, got %v", sum)
	}
}

func TestAnalyzeChangeFlagsLargeZScore(t *testing.T) {
	b := newBaseline("alice", time.Now())
	b.Mean[0] = 5
	b.Std[0] = 1
	b.TotalEvents = 25

	x := make(event.FeatureVector, event.BehavioralDim)
	x[0] = 20 // z = 15

	result := AnalyzeChange(b, x)
	if len(result.Changes) == 0 {
		t.Fatalf("expected a flagged change for extreme z-score")
	}
	if result.Changes[0].Direction != "increase" {
		t.Fatalf("expected increase direction, got %s", result.Changes[0].Direction)
	}
	if result.Score <= 0 {
		t.Fatalf("expected positive behavior-change score, got %v", result.Score)
	}
}

func TestStabilityOfConstantHistoryIsOne(t *testing.T) {
	b := newBaseline("alice", time.Now())
	b.Mean = make([]float64, 2)
	row := event.FeatureVector{3, 3}
	for i := 0; i < 5; i++ {
		b.History = append(b.History, row.Clone())
	}
	s := Stability(b)
	if s != 1 {
		t.Fatalf("expected stability 1 for zero-variance history, got %v", s)
	}
}
