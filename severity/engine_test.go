package severity

import (
	"testing"
	"time"

	"github.com/sentryhq/ghanomaly/config"
)

func mustEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := New(config.DefaultWeights())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestScoreAllZeroIsInfo(t *testing.T) {
	e := mustEngine(t)
	r := e.Score(Inputs{})
	if r.FinalScore != 0 {
		t.Fatalf("expected final score 0, got %v", r.FinalScore)
	}
	if r.Band != Info {
		t.Fatalf("expected Info band, got %v", r.Band)
	}
}

func TestScoreAllOnesWithProtectedBranchReachesCritical(t *testing.T) {
	e := mustEngine(t)
	r := e.Score(Inputs{
		Scores:         ComponentScores{Behavioral: 1, Content: 1, Temporal: 1, Repository: 1},
		ContextFactors: []ContextFactor{FactorProtectedBranch},
	})
	if r.Band != Critical {
		t.Fatalf("expected Critical band, got %v (final=%v)", r.Band, r.FinalScore)
	}
}

func TestDuplicateContextFactorDoesNotCompound(t *testing.T) {
	e := mustEngine(t)
	once := e.Score(Inputs{
		Scores:         ComponentScores{Behavioral: 1, Content: 1, Temporal: 1, Repository: 1},
		ContextFactors: []ContextFactor{FactorProtectedBranch},
	})
	twice := e.Score(Inputs{
		Scores:         ComponentScores{Behavioral: 1, Content: 1, Temporal: 1, Repository: 1},
		ContextFactors: []ContextFactor{FactorProtectedBranch, FactorProtectedBranch},
	})
	if once.ContextMultiplier != twice.ContextMultiplier {
		t.Fatalf("duplicate factor compounded: %v vs %v", once.ContextMultiplier, twice.ContextMultiplier)
	}
}

func TestFinalScoreClampedToOne(t *testing.T) {
	e := mustEngine(t)
	r := e.Score(Inputs{
		Scores:         ComponentScores{Behavioral: 1, Content: 1, Temporal: 1, Repository: 1},
		ContextFactors: []ContextFactor{FactorProtectedBranch, FactorProductionRepo, FactorOffHoursLikely, FactorPublicRepo},
		UrgencyFactors: []UrgencyIndicator{IndicatorSecretsExposed, IndicatorMassDeletion},
	})
	if r.FinalScore > 1 {
		t.Fatalf("expected final score clamped to 1, got %v", r.FinalScore)
	}
}

func TestApplyRepositoryMultiplierRescalesAndRebands(t *testing.T) {
	e := mustEngine(t)
	base := e.Score(Inputs{Scores: ComponentScores{Behavioral: 0.6, Content: 0.6, Temporal: 0.6, Repository: 0.6}})
	boosted := ApplyRepositoryMultiplier(base, 1.5)
	if boosted.FinalScore <= base.FinalScore {
		t.Fatalf("expected multiplier to raise final score: base=%v boosted=%v", base.FinalScore, boosted.FinalScore)
	}
	if boosted.Band.Rank() < base.Band.Rank() {
		t.Fatalf("expected boosted band to be at least as severe as base band")
	}
}

func TestBandOfBoundaries(t *testing.T) {
	cases := []struct {
		score float64
		want  Band
	}{
		{0.85, Critical}, {0.849999, High},
		{0.65, High}, {0.649999, Medium},
		{0.45, Medium}, {0.449999, Low},
		{0.20, Low}, {0.199999, Info},
	}
	for _, c := range cases {
		if got := BandOf(c.score); got != c.want {
			t.Fatalf("BandOf(%v) = %v, want %v", c.score, got, c.want)
		}
	}
}

func TestIsProtectedBranch(t *testing.T) {
	for _, ref := range []string{"refs/heads/main", "refs/heads/master", "production-hotfix", "prod"} {
		if !IsProtectedBranch(ref) {
			t.Fatalf("expected %q to be protected", ref)
		}
	}
	if IsProtectedBranch("refs/heads/feature/foo") {
		t.Fatalf("expected feature branch to not be protected")
	}
}

func TestIsOffHoursLikely(t *testing.T) {
	utc := time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	if !IsOffHoursLikely(utc) {
		t.Fatalf("expected 03:00 UTC to be off-hours")
	}
	businessHours := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	if IsOffHoursLikely(businessHours) {
		t.Fatalf("expected 11:00 UTC to not be off-hours")
	}
}
