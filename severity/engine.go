// Package severity composes the four detector sub-scores into a single
// final severity with contextual and urgency multipliers (spec §4.6).
package severity

import (
	"fmt"

	"github.com/sentryhq/ghanomaly/config"
)

// ContextFactor names a multiplicative context factor. Factors are
// present-or-absent, never additive per occurrence (spec invariant 9):
// applying the same factor set twice yields the same multiplier.
type ContextFactor string

const (
	FactorProtectedBranch   ContextFactor = "protected_branch"
	FactorProductionRepo    ContextFactor = "production_repo"
	FactorHighPrivilegeUser ContextFactor = "high_privilege_user"
	FactorOffHoursLikely    ContextFactor = "off_hours_likely"
	FactorPublicRepo        ContextFactor = "public_repo"
)

var contextMultipliers = map[ContextFactor]float64{
	FactorProtectedBranch:   1.5,
	FactorProductionRepo:    1.3,
	FactorHighPrivilegeUser: 1.2,
	FactorOffHoursLikely:    1.1,
	FactorPublicRepo:        1.1,
}

// UrgencyIndicator names a multiplicative urgency indicator.
type UrgencyIndicator string

const (
	IndicatorSecretsExposed      UrgencyIndicator = "secrets_exposed"
	IndicatorMassDeletion        UrgencyIndicator = "mass_deletion"
	IndicatorCoordinatedAttack   UrgencyIndicator = "coordinated_attack"
	IndicatorPrivilegeEscalation UrgencyIndicator = "privilege_escalation"
	IndicatorForcePushMain       UrgencyIndicator = "force_push_main"
	IndicatorBuildFailureCascade UrgencyIndicator = "build_failure_cascade"
)

var urgencyValues = map[UrgencyIndicator]float64{
	IndicatorSecretsExposed:      1.8,
	IndicatorMassDeletion:        1.5,
	IndicatorCoordinatedAttack:   1.4,
	IndicatorPrivilegeEscalation: 1.3,
	IndicatorForcePushMain:       1.3,
	IndicatorBuildFailureCascade: 1.2,
}

// ComponentScores holds the four clamped sub-scores fed into base_score.
type ComponentScores struct {
	Behavioral float64
	Content    float64
	Temporal   float64
	Repository float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Inputs bundles everything the engine needs for one event.
type Inputs struct {
	Scores        ComponentScores
	ContextFactors   []ContextFactor
	UrgencyFactors   []UrgencyIndicator
	IncidentType  string
	Confidence    float64 // informational only; never gates behavior (§9 open question)
}

// Result is the auditable output of one Score call: every intermediate
// value is retained so ScoredEvent can expose them for persistence.
type Result struct {
	BaseScore         float64
	ContextMultiplier float64
	UrgencyFactor     float64
	FinalScore        float64
	Band              Band
	AppliedContext    []ContextFactor
	AppliedUrgency    []UrgencyIndicator
	Weights           config.Weights
	IncidentType      string
	Confidence        float64
}

// Engine composes sub-scores into a final, banded severity.
type Engine struct {
	weights config.Weights
}

// New creates an Engine with the given weights. Weights are validated at
// construction — configuration errors are rejected here, never at
// scoring time (spec §7).
func New(w config.Weights) (*Engine, error) {
	if err := w.Validate(); err != nil {
		return nil, fmt.Errorf("severity: %w", err)
	}
	return &Engine{weights: w}, nil
}

// SetWeights atomically updates the engine's component weights after
// validating they still sum to 1.0 within tolerance.
func (e *Engine) SetWeights(w config.Weights) error {
	if err := w.Validate(); err != nil {
		return fmt.Errorf("severity: %w", err)
	}
	e.weights = w
	return nil
}

func (e *Engine) Weights() config.Weights { return e.weights }

// Score computes the final severity for one event (spec §4.6 steps 1-5).
func (e *Engine) Score(in Inputs) Result {
	s := in.Scores
	base := e.weights.Behavioral*clamp01(s.Behavioral) +
		e.weights.Content*clamp01(s.Content) +
		e.weights.Temporal*clamp01(s.Temporal) +
		e.weights.Repository*clamp01(s.Repository)

	ctxMult := 1.0
	applied := make([]ContextFactor, 0, len(in.ContextFactors))
	seen := make(map[ContextFactor]bool, len(in.ContextFactors))
	for _, f := range in.ContextFactors {
		if seen[f] {
			continue // present-or-absent: a repeated factor never compounds
		}
		seen[f] = true
		if m, ok := contextMultipliers[f]; ok {
			ctxMult *= m
			applied = append(applied, f)
		}
	}

	urgency := 1.0
	appliedU := make([]UrgencyIndicator, 0, len(in.UrgencyFactors))
	seenU := make(map[UrgencyIndicator]bool, len(in.UrgencyFactors))
	for _, u := range in.UrgencyFactors {
		if seenU[u] {
			continue
		}
		seenU[u] = true
		if v, ok := urgencyValues[u]; ok {
			urgency *= v
			appliedU = append(appliedU, u)
		}
	}

	final := base * ctxMult * urgency
	if final > 1 {
		final = 1
	}
	if final < 0 {
		final = 0
	}

	return Result{
		BaseScore:         base,
		ContextMultiplier: ctxMult,
		UrgencyFactor:     urgency,
		FinalScore:        final,
		Band:              BandOf(final),
		AppliedContext:    applied,
		AppliedUrgency:    appliedU,
		Weights:           e.weights,
		IncidentType:      in.IncidentType,
		Confidence:        in.Confidence,
	}
}

// ApplyRepositoryMultiplier folds the ContextScorer's criticality
// multiplier (spec §4.4) into an already-computed Result: repository
// criticality both contributes to base_score as a weighted component and,
// separately, scales the final score the way context_multiplier does —
// this is the spec's "feeds SeverityEngine" criticality multiplier. The
// band is recomputed from the rescaled score.
func ApplyRepositoryMultiplier(r Result, criticalityMultiplier float64) Result {
	final := r.FinalScore * criticalityMultiplier
	if final > 1 {
		final = 1
	}
	r.FinalScore = final
	r.Band = BandOf(final)
	return r
}
