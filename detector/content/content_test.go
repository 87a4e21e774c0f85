package content

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

func TestScoreLeakedAWSKey(t *testing.T) {
	e := event.Event{
		ID: "e1", ActorLogin: "alice", RepoName: "acme/prod-api",
		CreatedAt: time.Now(), Type: event.TypePush,
		Payload: event.Payload{Push: &event.PushPayload{
			Commits: []event.Commit{{SHA: "abc123", Message: "Add config with AKIA1234567890123456 key"}},
		}},
	}
	a := Score([]event.Event{e}, nil)

	found := false
	for _, h := range a.SecretDetections {
		if h.Type == "aws_access_key" {
			found = true
			if h.Severity != 0.9 {
				t.Fatalf("expected severity 0.9, got %v", h.Severity)
			}
		}
	}
	if !found {
		t.Fatalf("expected aws_access_key detection, got %+v", a.SecretDetections)
	}
	if a.RiskScore < 0.5 {
		t.Fatalf("expected content_risk >= 0.5, got %v", a.RiskScore)
	}
}

func TestCategorizeKeyFile(t *testing.T) {
	cat, ok := categorize("secrets/server.pem")
	if !ok || cat.Name != "keys" {
		t.Fatalf("expected keys category, got %+v ok=%v", cat, ok)
	}
}

func TestDiffOverSizeLimitNotScanned(t *testing.T) {
	big := make([]byte, 60_000)
	for i := range big {
		big[i] = 'a'
	}
	content := string(big) + "AKIA1234567890123456"
	hits := scanText(content, "big.txt")
	if len(hits) != 0 {
		t.Fatalf("expected no hits for oversized diff, got %d", len(hits))
	}
}
