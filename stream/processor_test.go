package stream

import (
	"context"
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/detector/content"
	"github.com/sentryhq/ghanomaly/detector/temporal"
	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/severity"
)

func mkEvent(actor, repo string, t time.Time, typ event.Type) event.Event {
	return event.Event{ID: "e1", ActorLogin: actor, RepoName: repo, CreatedAt: t, Type: typ}
}

func TestPartitionGroupsByActorAndRepo(t *testing.T) {
	p := &Processor{}
	now := time.Now()
	events := []event.Event{
		mkEvent("alice", "a/x", now, event.TypePush),
		mkEvent("alice", "a/x", now.Add(time.Minute), event.TypePush),
		mkEvent("bob", "a/x", now, event.TypePush),
		{ID: "bad"}, // missing actor/repo/timestamp: dropped
	}

	groups := p.partition(events)
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}
	key := event.GroupKey{ActorLogin: "alice", RepoName: "a/x"}
	if len(groups[key]) != 2 {
		t.Fatalf("expected 2 events in alice/a/x group, got %d", len(groups[key]))
	}
}

func TestWithDeadlineReturnsNeutralOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	got := withDeadline(ctx, "behavioral", func() int {
		time.Sleep(50 * time.Millisecond)
		return 42
	}, -1)
	if got != -1 {
		t.Fatalf("expected neutral default -1 on cancelled context, got %d", got)
	}
}

func TestContextFactorsForProtectedBranchAndProduction(t *testing.T) {
	e := event.Event{
		RepoName: "acme/prod-service",
		Payload:  event.Payload{Push: &event.PushPayload{Ref: "refs/heads/main"}},
	}
	factors := contextFactorsFor(e, groupResult{})

	has := func(f severity.ContextFactor) bool {
		for _, got := range factors {
			if got == f {
				return true
			}
		}
		return false
	}
	if !has(severity.FactorProtectedBranch) {
		t.Fatalf("expected protected_branch factor, got %v", factors)
	}
	if !has(severity.FactorProductionRepo) {
		t.Fatalf("expected production_repo factor, got %v", factors)
	}
}

func TestUrgencyFactorsForSecretsAndForcePush(t *testing.T) {
	e := event.Event{
		Payload: event.Payload{Push: &event.PushPayload{Ref: "refs/heads/main", Forced: true}},
	}
	res := groupResult{
		content: content.Analysis{SecretDetections: []content.Hit{{Severity: 0.9}}},
	}
	indicators := urgencyFactorsFor(e, res)

	want := map[severity.UrgencyIndicator]bool{
		severity.IndicatorSecretsExposed: false,
		severity.IndicatorForcePushMain:  false,
	}
	for _, got := range indicators {
		if _, ok := want[got]; ok {
			want[got] = true
		}
	}
	for k, seen := range want {
		if !seen {
			t.Fatalf("expected indicator %s, got %v", k, indicators)
		}
	}
}

func TestUrgencyFactorsForCoordinatedActivityPattern(t *testing.T) {
	res := groupResult{
		temporal: temporal.Analysis{Patterns: []temporal.Pattern{{Kind: temporal.PatternCoordinatedActivity}}},
	}
	indicators := urgencyFactorsFor(event.Event{}, res)
	found := false
	for _, i := range indicators {
		if i == severity.IndicatorCoordinatedAttack {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected coordinated_attack indicator, got %v", indicators)
	}
}
