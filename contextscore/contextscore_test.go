package contextscore

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/ghclient"
)

func TestCriticalityForWellKnownOrgIsHigh(t *testing.T) {
	m := &ghclient.RepoMetadata{
		Stars: 50000, Forks: 10000, Language: "go",
		CreatedAt: time.Now().AddDate(-5, 0, 0), UpdatedAt: time.Now(),
		OwnerType: "Organization", OwnerLogin: "kubernetes",
	}
	f := featuresFor(m, 500)
	crit := criticalityFor(f, m, "kubernetes/kubernetes")
	if crit < 0.8 {
		t.Fatalf("expected high criticality for a well-known org flagship repo, got %v", crit)
	}
}

func TestCriticalityForObscureRepoIsLow(t *testing.T) {
	m := &ghclient.RepoMetadata{
		Stars: 0, Forks: 0, Language: "",
		CreatedAt: time.Now(), UpdatedAt: time.Now().AddDate(-1, 0, 0),
		OwnerType: "User", OwnerLogin: "rando123",
	}
	f := featuresFor(m, 1)
	crit := criticalityFor(f, m, "rando123/test-repo")
	if crit > 0.3 {
		t.Fatalf("expected low criticality for an obscure repo, got %v", crit)
	}
}

func TestMultiplierForThresholds(t *testing.T) {
	cases := []struct {
		crit float64
		want float64
	}{{0.9, 1.5}, {0.7, 1.3}, {0.5, 1.1}, {0.1, 1.0}}
	for _, c := range cases {
		if got := multiplierFor(c.crit); got != c.want {
			t.Fatalf("multiplierFor(%v) = %v, want %v", c.crit, got, c.want)
		}
	}
}

func TestFeaturesForClampedToUnitRange(t *testing.T) {
	m := &ghclient.RepoMetadata{
		Stars: 1_000_000, Forks: 500_000, SizeKB: 5_000_000,
		CreatedAt: time.Now().AddDate(-20, 0, 0), UpdatedAt: time.Now(),
	}
	f := featuresFor(m, 10000)
	for i, v := range f {
		if v < 0 || v > 1 {
			t.Fatalf("feature %d out of [0,1] range: %v", i, v)
		}
	}
}
