// Package contextscore implements the ContextScorer (spec §4.4): cached
// repository metadata, a 9-D context feature vector, a criticality score,
// and the multiplier it feeds into the SeverityEngine.
package contextscore

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/ghclient"
	"github.com/sentryhq/ghanomaly/kv"
)

const (
	metadataTTL    = 2 * time.Hour
	contributorTTL = 1 * time.Hour
)

var highValueLanguages = map[string]struct{}{
	"go": {}, "rust": {}, "python": {}, "typescript": {}, "java": {},
}

var highValueTopics = map[string]struct{}{
	"security": {}, "infrastructure": {}, "kubernetes": {}, "payments": {}, "authentication": {},
}

var wellKnownOrgs = map[string]struct{}{
	"kubernetes": {}, "golang": {}, "hashicorp": {}, "microsoft": {}, "google": {}, "apache": {},
}

var nameKeywords = []string{"core", "platform", "infra", "auth", "payment", "api-gateway"}

// AnalysisType distinguishes a live fetch from the fallback path.
type AnalysisType string

const (
	AnalysisLive     AnalysisType = "live"
	AnalysisFallback AnalysisType = "fallback"
)

// Result is the ContextScorer's output for one repository.
type Result struct {
	Features     event.FeatureVector
	Criticality  float64
	Multiplier   float64
	AnalysisType AnalysisType
}

// Scorer fetches, caches, and scores repository context.
type Scorer struct {
	store *kv.Store
	gh    *ghclient.Client
}

func New(store *kv.Store, gh *ghclient.Client) *Scorer {
	return &Scorer{store: store, gh: gh}
}

// cachedMetadata mirrors ghclient.RepoMetadata for JSON round-tripping
// through the KV store (spec's RepoContext cache, §3).
type cachedMetadata struct {
	ghclient.RepoMetadata
}

// Score returns the cached or freshly fetched context score for a
// repository. Any fetch error (including a cold cache) falls back to a
// default criticality per spec §4.4.
func (s *Scorer) Score(ctx context.Context, fullName string) Result {
	meta, err := s.metadata(ctx, fullName)
	if err != nil {
		return Result{
			Features:     make(event.FeatureVector, event.ContextDim),
			Criticality:  0.5,
			Multiplier:   multiplierFor(0.5),
			AnalysisType: AnalysisFallback,
		}
	}

	contributors, _ := s.contributors(ctx, fullName)

	f := featuresFor(meta, contributors)
	crit := criticalityFor(f, meta, fullName)

	return Result{
		Features:     f,
		Criticality:  crit,
		Multiplier:   multiplierFor(crit),
		AnalysisType: AnalysisLive,
	}
}

func (s *Scorer) metadata(ctx context.Context, fullName string) (*ghclient.RepoMetadata, error) {
	key := kv.RepoContextKey(fullName)

	var cached cachedMetadata
	if err := s.store.GetJSON(ctx, key, &cached); err == nil {
		return &cached.RepoMetadata, nil
	}

	meta, err := s.gh.FetchRepoMetadata(ctx, fullName)
	if err != nil {
		return nil, err
	}
	_ = s.store.SetJSON(ctx, key, cachedMetadata{RepoMetadata: *meta}, metadataTTL)
	return meta, nil
}

func (s *Scorer) contributors(ctx context.Context, fullName string) (int, error) {
	key := kv.RepoContributorsKey(fullName)

	var cached struct {
		Count int `json:"count"`
	}
	if err := s.store.GetJSON(ctx, key, &cached); err == nil {
		return cached.Count, nil
	}

	count, err := s.gh.FetchContributorCount(ctx, fullName)
	if err != nil {
		return 0, err
	}
	_ = s.store.SetJSON(ctx, key, struct {
		Count int `json:"count"`
	}{Count: count}, contributorTTL)
	return count, nil
}

func featuresFor(m *ghclient.RepoMetadata, contributors int) event.FeatureVector {
	f := make(event.FeatureVector, event.ContextDim)

	f[event.CtxStarsNorm] = math.Min(math.Log10(float64(m.Stars)+1)/6, 1)
	f[event.CtxForksNorm] = math.Min(math.Log10(float64(m.Forks)+1)/5, 1)
	f[event.CtxContributorNorm] = math.Min(math.Log10(float64(contributors)+1)/3, 1)

	daysSinceUpdate := math.Max(time.Since(m.UpdatedAt).Hours()/24, 0)
	recency := math.Max(1-daysSinceUpdate/90, 0)
	f[event.CtxRecentActivity] = math.Min(recency+0.1, 1)

	secScore := 0.0
	if m.HasSecurityMD {
		secScore += 0.7
	}
	if m.HasBranchProt {
		secScore += 0.3
	}
	if _, ok := highValueLanguages[strings.ToLower(m.Language)]; ok {
		secScore += 0.1
	}
	f[event.CtxSecurityPolicyScore] = math.Min(secScore, 1)

	branchEstimate := 0.0
	if m.HasBranchProt {
		branchEstimate = 1
	} else if m.Stars > 1000 || m.Forks > 200 || m.OwnerType == "Organization" {
		branchEstimate = 0.5
	}
	f[event.CtxBranchProtection] = branchEstimate

	sizeKB := m.SizeKB
	var depRisk float64
	switch {
	case sizeKB > 100_000:
		depRisk = 0.8
	case sizeKB > 10_000:
		depRisk = 0.6
	case sizeKB > 1_000:
		depRisk = 0.4
	default:
		depRisk = 0.2
	}
	f[event.CtxDependencyRisk] = depRisk

	ageYears := math.Max(time.Since(m.CreatedAt).Hours()/(24*365), 1.0/365)
	momentum := (float64(m.Stars)/ageYears + float64(m.Forks)/ageYears*10) / 10
	f[event.CtxPopularityMomentum] = math.Min(momentum/100, 1)

	f.Clamp()
	return f
}

// contextWeights mirrors spec §4.4's published weight vector; index 0 is
// reserved and always 0.
var contextWeights = [event.ContextDim]float64{
	event.CtxReserved:             0,
	event.CtxStarsNorm:            0.25,
	event.CtxForksNorm:            0.20,
	event.CtxContributorNorm:      0.15,
	event.CtxRecentActivity:       0.15,
	event.CtxSecurityPolicyScore:  0.10,
	event.CtxBranchProtection:     0.05,
	event.CtxDependencyRisk:       0.05,
	event.CtxPopularityMomentum:   0.05,
}

func criticalityFor(f event.FeatureVector, m *ghclient.RepoMetadata, fullName string) float64 {
	var dot float64
	for i, x := range f {
		dot += contextWeights[i] * x
	}

	if _, ok := highValueLanguages[strings.ToLower(m.Language)]; ok {
		dot += 0.1
	}
	for _, topic := range m.Topics {
		if _, ok := highValueTopics[strings.ToLower(topic)]; ok {
			dot += 0.05
			break
		}
	}
	if m.OwnerType == "Organization" {
		dot += 0.1
	}
	if _, ok := wellKnownOrgs[strings.ToLower(m.OwnerLogin)]; ok {
		dot += 0.2
	}
	lowerName := strings.ToLower(fullName)
	for _, kw := range nameKeywords {
		if strings.Contains(lowerName, kw) {
			dot += 0.05
			break
		}
	}

	return math.Min(math.Max(dot, 0), 1)
}

// multiplierFor maps a criticality score to the SeverityEngine's
// repository multiplier (spec §4.4).
func multiplierFor(criticality float64) float64 {
	switch {
	case criticality >= 0.8:
		return 1.5
	case criticality >= 0.6:
		return 1.3
	case criticality >= 0.4:
		return 1.1
	default:
		return 1.0
	}
}
