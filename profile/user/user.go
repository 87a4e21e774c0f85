// Package user implements the UserProfileManager (spec §4.5): the
// EWMA-baselined, rate-limited per-user profile store behind the
// BehavioralDetector's baseline contract.
package user

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/sentryhq/ghanomaly/detector/behavioral"
	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/kv"
)

const (
	alphaFast   = 0.3
	alphaSlow   = 0.1
	historyCap  = 100
	reliableAt  = 20
	initialStd  = 0.1
	probDropAt  = 0.01
	topKRepos   = 10
	expireAfter = 30 * 24 * time.Hour
)

// Baseline is the persisted shape of a user's rolling profile (spec §3's
// UserBaseline).
type Baseline struct {
	Login            string               `json:"login"`
	Mean             []float64            `json:"mean"`
	Std              []float64            `json:"std"`
	TotalEvents      int                  `json:"total_events"`
	FirstSeen        time.Time            `json:"first_seen"`
	LastUpdated      time.Time            `json:"last_updated"`
	History          []event.FeatureVector `json:"history"`
	HourDist         map[int]float64      `json:"hour_dist"`
	EventTypeDist    map[string]float64   `json:"event_type_dist"`
	TopRepos         map[string]int       `json:"top_repos"`
}

func newBaseline(login string, now time.Time) *Baseline {
	return &Baseline{
		Login:         login,
		Mean:          make([]float64, event.BehavioralDim),
		Std:           make([]float64, event.BehavioralDim),
		FirstSeen:     now,
		LastUpdated:   now,
		HourDist:      make(map[int]float64),
		EventTypeDist: make(map[string]float64),
		TopRepos:      make(map[string]int),
	}
}

func (b *Baseline) reliable() bool { return b.TotalEvents >= reliableAt }

// ToDetectorBaseline projects the stored baseline into the minimal shape
// the BehavioralDetector scores against.
func (b *Baseline) ToDetectorBaseline() behavioral.Baseline {
	history := make([][]float64, len(b.History))
	for i, h := range b.History {
		history[i] = h
	}
	return behavioral.Baseline{Mean: b.Mean, Std: b.Std, History: history, Reliable: b.reliable()}
}

// ChangeReport is one feature's behavior-change finding from analyze_change.
type ChangeReport struct {
	Feature       int     `json:"feature"`
	ZScore        float64 `json:"z_score"`
	PercentChange float64 `json:"percent_change"`
	Direction     string  `json:"direction"` // "increase" | "decrease"
}

// AnalyzeResult is analyze_change's full output (spec §4.5).
type AnalyzeResult struct {
	Changes []ChangeReport `json:"changes"`
	Score   float64        `json:"score"` // mean(|z|)/5, clamped [0,1]
}

// Manager owns every user baseline, serialized through the KV store's
// compare-and-set guard so exactly one writer mutates a given login's key
// at a time (spec §5's shared-resource policy).
type Manager struct {
	store *kv.Store
}

func New(store *kv.Store) *Manager {
	return &Manager{store: store}
}

// GetOrCreate loads a user's baseline, creating an empty one on first
// sight.
func (m *Manager) GetOrCreate(ctx context.Context, login string) (*Baseline, error) {
	var b Baseline
	err := m.store.GetJSON(ctx, kv.UserProfileKey(login), &b)
	if err == nil {
		return &b, nil
	}
	if err != kv.ErrNotFound {
		return nil, err
	}
	return newBaseline(login, time.Now()), nil
}

// GetBaseline is GetOrCreate's read-only counterpart for detectors.
func (m *Manager) GetBaseline(ctx context.Context, login string) (behavioral.Baseline, error) {
	b, err := m.GetOrCreate(ctx, login)
	if err != nil {
		return behavioral.Baseline{}, err
	}
	return b.ToDetectorBaseline(), nil
}

// Update folds one batch's feature vector into the user's baseline,
// subject to the 3600s minimum update interval (spec §4.5). Returns
// (updated=false, nil) when rate-limited rather than an error — callers
// simply observe "no update performed".
func (m *Manager) Update(ctx context.Context, login string, features event.FeatureVector, hour int, eventType string, repo string, minInterval time.Duration) (updated bool, err error) {
	key := kv.UserProfileKey(login)

	casErr := m.store.CompareAndSetJSON(ctx, key, expireAfter, func(exists bool, cur []byte) (any, bool, error) {
		var b Baseline
		if exists {
			if uerr := json.Unmarshal(cur, &b); uerr != nil {
				return nil, false, uerr
			}
		} else {
			b = *newBaseline(login, time.Now())
		}

		now := time.Now()
		if exists && now.Sub(b.LastUpdated) < minInterval {
			updated = false
			return nil, true, nil // skip: rate-limited
		}

		applyUpdate(&b, features, hour, eventType, repo, now)
		updated = true
		return &b, false, nil
	})
	if casErr != nil {
		return false, casErr
	}

	if updated {
		// One-way mirror for a system still reading the legacy key during
		// a rolling migration; this engine never reads it back.
		if b, gerr := m.GetOrCreate(ctx, login); gerr == nil {
			_ = m.store.SetJSON(ctx, kv.UserLegacyKey(login), b, expireAfter)
		}
	}
	return updated, nil
}

func applyUpdate(b *Baseline, x event.FeatureVector, hour int, eventType, repo string, now time.Time) {
	if b.TotalEvents == 0 {
		copy(b.Mean, x)
		for i := range b.Std {
			b.Std[i] = initialStd
		}
	} else {
		alpha := alphaFast
		if b.TotalEvents > reliableAt {
			alpha = alphaSlow
		}
		for i, xi := range x {
			if i >= len(b.Mean) {
				break
			}
			newMean := alpha*xi + (1-alpha)*b.Mean[i]
			diff := xi - newMean
			newVar := alpha*diff*diff + (1-alpha)*b.Std[i]*b.Std[i]
			b.Mean[i] = newMean
			b.Std[i] = math.Sqrt(newVar)
		}
	}

	b.History = append(b.History, x.Clone())
	if len(b.History) > historyCap {
		b.History = b.History[len(b.History)-historyCap:]
	}

	updateProbDist(b.HourDist, formatHour(hour), alphaForDist(b.TotalEvents))
	updateProbDist(b.EventTypeDist, eventType, alphaForDist(b.TotalEvents))

	b.TopRepos[repo]++
	trimTopK(b.TopRepos, topKRepos)

	b.TotalEvents++
	b.LastUpdated = now
}

func alphaForDist(totalEvents int) float64 {
	if totalEvents < reliableAt {
		return alphaFast
	}
	return alphaSlow
}

func formatHour(hour int) string {
	return time.Date(2000, 1, 1, hour, 0, 0, 0, time.UTC).Format("15")
}

// updateProbDist folds one observation into an EWMA probability
// distribution over a string-keyed support, renormalizing and dropping
// entries below the spec's 0.01 floor.
func updateProbDist(dist map[string]float64, key string, alpha float64) {
	if len(dist) == 0 {
		dist[key] = 1.0
		return
	}
	for k := range dist {
		if k == key {
			dist[k] = alpha*1.0 + (1-alpha)*dist[k]
		} else {
			dist[k] = (1 - alpha) * dist[k]
		}
	}
	if _, ok := dist[key]; !ok {
		dist[key] = alpha
	}

	var sum float64
	for k, v := range dist {
		if v < probDropAt {
			delete(dist, k)
			continue
		}
		sum += v
	}
	if sum > 0 {
		for k, v := range dist {
			dist[k] = v / sum
		}
	}
}

func trimTopK(m map[string]int, k int) {
	if len(m) <= k {
		return
	}
	type kv2 struct {
		key   string
		count int
	}
	all := make([]kv2, 0, len(m))
	for key, c := range m {
		all = append(all, kv2{key, c})
	}
	// simple selection of the k smallest to drop; k is tiny (10) so O(n*k) is fine
	for len(m) > k {
		minIdx := 0
		for i := 1; i < len(all); i++ {
			if all[i].count < all[minIdx].count {
				minIdx = i
			}
		}
		delete(m, all[minIdx].key)
		all = append(all[:minIdx], all[minIdx+1:]...)
	}
}

// AnalyzeChange computes per-feature z-scores against the current
// baseline and an overall behavior-change score (spec §4.5).
func AnalyzeChange(b *Baseline, x event.FeatureVector) AnalyzeResult {
	var changes []ChangeReport
	var absSum float64
	n := 0
	for i, xi := range x {
		if i >= len(b.Mean) || b.Std[i] <= 0 {
			continue
		}
		z := (xi - b.Mean[i]) / b.Std[i]
		absSum += math.Abs(z)
		n++
		if math.Abs(z) > 2.0 {
			direction := "increase"
			if xi < b.Mean[i] {
				direction = "decrease"
			}
			pct := 0.0
			if b.Mean[i] != 0 {
				pct = (xi - b.Mean[i]) / math.Abs(b.Mean[i]) * 100
			}
			changes = append(changes, ChangeReport{Feature: i, ZScore: z, PercentChange: pct, Direction: direction})
		}
	}
	score := 0.0
	if n > 0 {
		score = math.Min(absSum/float64(n)/5, 1)
	}
	return AnalyzeResult{Changes: changes, Score: score}
}

// Stability is the inverse mean coefficient-of-variation of the last 10
// history rows (spec §4.5): higher is more stable.
func Stability(b *Baseline) float64 {
	n := len(b.History)
	if n < 2 {
		return 0
	}
	start := 0
	if n > 10 {
		start = n - 10
	}
	rows := b.History[start:]

	dims := len(b.Mean)
	var cvSum float64
	var cvCount int
	for d := 0; d < dims; d++ {
		var sum float64
		for _, r := range rows {
			if d < len(r) {
				sum += r[d]
			}
		}
		mean := sum / float64(len(rows))
		if mean == 0 {
			continue
		}
		var variance float64
		for _, r := range rows {
			if d < len(r) {
				diff := r[d] - mean
				variance += diff * diff
			}
		}
		variance /= float64(len(rows))
		std := math.Sqrt(variance)
		cvSum += std / math.Abs(mean)
		cvCount++
	}
	if cvCount == 0 {
		return 1
	}
	meanCV := cvSum / float64(cvCount)
	return 1 / (1 + meanCV)
}
