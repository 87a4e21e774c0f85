// Package repo implements the RepoProfileManager (spec §4.5): the
// EWMA-baselined, rate-limited per-repository profile store tracking
// activity, contributor diversity, and build/issue outcome rates.
package repo

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/sentryhq/ghanomaly/kv"
)

const (
	alphaActivity = 0.4
	alphaContrib  = 0.2
	historyCap    = 100
	reliableAt    = 10
	probDropAt    = 0.01
	topKContribs  = 10
	expireAfter   = 7 * 24 * time.Hour
)

// ActivitySample is one window's worth of observed repo activity, folded
// into the EWMA baseline by Update.
type ActivitySample struct {
	EventsToday        float64
	ContributorsToday  float64
	CommitsPerPush     float64
	ContributorEntropy float64 // Shannon entropy of the contributor distribution, normalized
	Hour               int
	Weekend            bool
	BuildSucceeded     *bool // nil when the sample carries no workflow-run outcome
	IssueResolved      *bool // nil when the sample carries no issue-closure outcome
	TopContributor     string
}

// Baseline is the persisted shape of a repository's rolling profile
// (spec §3's RepoBaseline).
type Baseline struct {
	FullName           string             `json:"full_name"`
	EventsPerDay       float64            `json:"events_per_day"`
	ContributorsPerDay float64            `json:"contributors_per_day"`
	CommitsPerPush     float64            `json:"commits_per_push"`
	ContributorDiversity float64          `json:"contributor_diversity"`
	ActivityRegularity float64            `json:"activity_regularity"`
	PeakHour           int                `json:"peak_hour"`
	WeekendRatio       float64            `json:"weekend_ratio"`
	BuildSuccessRate   float64            `json:"build_success_rate"`
	IssueResolutionRate float64           `json:"issue_resolution_rate"`
	TotalEvents        int                `json:"total_events"`
	FirstSeen          time.Time          `json:"first_seen"`
	LastUpdated        time.Time          `json:"last_updated"`
	History            []float64          `json:"history"` // activity-level sliding window
	HourDist           map[int]float64    `json:"hour_dist"`
	TopContributors    map[string]int     `json:"top_contributors"`
	BuildObservations  int                `json:"build_observations"`
	BuildSuccesses     int                `json:"build_successes"`
	IssueObservations  int                `json:"issue_observations"`
	IssueResolutions   int                `json:"issue_resolutions"`
}

func newBaseline(fullName string, now time.Time) *Baseline {
	return &Baseline{
		FullName:    fullName,
		FirstSeen:   now,
		LastUpdated: now,
		HourDist:    make(map[int]float64),
		TopContributors: make(map[string]int),
	}
}

func (b *Baseline) reliable() bool { return b.TotalEvents >= reliableAt }

// Manager owns every repository baseline.
type Manager struct {
	store *kv.Store
}

func New(store *kv.Store) *Manager {
	return &Manager{store: store}
}

func (m *Manager) GetOrCreate(ctx context.Context, fullName string) (*Baseline, error) {
	var b Baseline
	err := m.store.GetJSON(ctx, kv.RepoProfileKey(fullName), &b)
	if err == nil {
		return &b, nil
	}
	if err != kv.ErrNotFound {
		return nil, err
	}
	return newBaseline(fullName, time.Now()), nil
}

// Update folds one sample into the repo baseline, subject to the 1800s
// minimum update interval (spec §4.5). Returns updated=false on a
// rate-limited skip rather than an error.
func (m *Manager) Update(ctx context.Context, fullName string, sample ActivitySample, minInterval time.Duration) (updated bool, err error) {
	key := kv.RepoProfileKey(fullName)

	casErr := m.store.CompareAndSetJSON(ctx, key, expireAfter, func(exists bool, cur []byte) (any, bool, error) {
		var b Baseline
		if exists {
			if uerr := json.Unmarshal(cur, &b); uerr != nil {
				return nil, false, uerr
			}
			if b.HourDist == nil {
				b.HourDist = make(map[int]float64)
			}
			if b.TopContributors == nil {
				b.TopContributors = make(map[string]int)
			}
		} else {
			b = *newBaseline(fullName, time.Now())
		}

		now := time.Now()
		if exists && now.Sub(b.LastUpdated) < minInterval {
			updated = false
			return nil, true, nil
		}

		applyUpdate(&b, sample, now)
		updated = true
		return &b, false, nil
	})
	if casErr != nil {
		return false, casErr
	}
	return updated, nil
}

func applyUpdate(b *Baseline, s ActivitySample, now time.Time) {
	if b.TotalEvents == 0 {
		b.EventsPerDay = s.EventsToday
		b.ContributorsPerDay = s.ContributorsToday
		b.CommitsPerPush = s.CommitsPerPush
	} else {
		b.EventsPerDay = alphaActivity*s.EventsToday + (1-alphaActivity)*b.EventsPerDay
		b.ContributorsPerDay = alphaContrib*s.ContributorsToday + (1-alphaContrib)*b.ContributorsPerDay
		b.CommitsPerPush = alphaActivity*s.CommitsPerPush + (1-alphaActivity)*b.CommitsPerPush
	}
	b.ContributorDiversity = s.ContributorEntropy

	b.History = append(b.History, s.EventsToday)
	if len(b.History) > historyCap {
		b.History = b.History[len(b.History)-historyCap:]
	}
	b.ActivityRegularity = regularityOf(b.History)

	updateProbDist(b.HourDist, s.Hour, alphaContrib)
	b.PeakHour = peakHour(b.HourDist)

	weekendSignal := 0.0
	if s.Weekend {
		weekendSignal = 1.0
	}
	if b.TotalEvents == 0 {
		b.WeekendRatio = weekendSignal
	} else {
		b.WeekendRatio = alphaContrib*weekendSignal + (1-alphaContrib)*b.WeekendRatio
	}

	if s.BuildSucceeded != nil {
		b.BuildObservations++
		if *s.BuildSucceeded {
			b.BuildSuccesses++
		}
		b.BuildSuccessRate = float64(b.BuildSuccesses) / float64(b.BuildObservations)
	}
	if s.IssueResolved != nil {
		b.IssueObservations++
		if *s.IssueResolved {
			b.IssueResolutions++
		}
		b.IssueResolutionRate = float64(b.IssueResolutions) / float64(b.IssueObservations)
	}

	if s.TopContributor != "" {
		b.TopContributors[s.TopContributor]++
		trimTopK(b.TopContributors, topKContribs)
	}

	b.TotalEvents++
	b.LastUpdated = now
}

func regularityOf(history []float64) float64 {
	if len(history) < 2 {
		return 0
	}
	var sum float64
	for _, v := range history {
		sum += v
	}
	mean := sum / float64(len(history))
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range history {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(history))
	cv := math.Sqrt(variance) / mean
	return 1 / (1 + cv)
}

func updateProbDist(dist map[int]float64, key int, alpha float64) {
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

func peakHour(dist map[int]float64) int {
	best, bestP := 0, -1.0
	for h, p := range dist {
		if p > bestP {
			best, bestP = h, p
		}
	}
	return best
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

// ContributorEntropy computes the Shannon entropy of a contributor-count
// distribution, normalized by log2(unique_contributors), matching the
// BehavioralDetector's event-type entropy convention (spec §4.1).
func ContributorEntropy(counts map[string]int) float64 {
	total := 0
	for _, c := range counts {
		total += c
	}
	if total == 0 || len(counts) <= 1 {
		return 0
	}
	var entropy float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(total)
		entropy -= p * math.Log2(p)
	}
	return entropy / math.Log2(float64(len(counts)))
}
