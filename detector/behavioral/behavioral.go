// Package behavioral implements the BehavioralDetector (spec §4.1): a
// 10-D feature vector per user-event-batch, scored against a per-user
// baseline via z-scores and Mahalanobis distance, plus a dedicated
// force-push heuristic.
package behavioral

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

// Baseline is the subset of a user baseline the detector needs to score
// against. profile/user.Manager's snapshot type satisfies this.
type Baseline struct {
	Mean    []float64
	Std     []float64
	History [][]float64 // sliding window of past feature vectors, newest last
	Reliable bool        // total_events >= 20
}

// AnomalyType classifies a detected anomaly for weighting in the overall
// score (spec §4.1: statistical 0.6, multivariate 0.4, other 0.3).
type AnomalyType string

const (
	AnomalyStatistical  AnomalyType = "statistical"
	AnomalyMultivariate AnomalyType = "multivariate"
	AnomalyOther        AnomalyType = "other"
)

var anomalyTypeWeight = map[AnomalyType]float64{
	AnomalyStatistical:  0.6,
	AnomalyMultivariate: 0.4,
	AnomalyOther:        0.3,
}

// Anomaly is one detected deviation, tagged with the feature (if
// applicable) and a human-readable description.
type Anomaly struct {
	Type        AnomalyType
	Feature     int // -1 if not feature-specific
	ZScore      float64
	Distance    float64
	Severity    float64
	Description string
}

// Analysis is the BehavioralDetector's full output for one group.
type Analysis struct {
	Features   event.FeatureVector
	Anomalies  []Anomaly
	Score      float64
	ColdStart  bool
	Confidence float64
}

// chiSquare95df10 is the χ²(0.95, 10) critical value used by the
// Mahalanobis test (spec §4.1 step 2).
const chiSquare95df10 = 18.307038053275146

// zThreshold is the per-feature z-score flag threshold.
const zThreshold = 2.5

var forceMessageMarkers = []string{"force push", "--force", "rewrite", "amend"}

// ExtractFeatures builds the 10-D behavioral feature vector from one
// user's events in a batch (spec §4.1 table). Events should all share the
// same actor; the caller (StreamProcessor) guarantees this via grouping.
func ExtractFeatures(events []event.Event) event.FeatureVector {
	f := make(event.FeatureVector, event.BehavioralDim)
	n := len(events)
	if n == 0 {
		return f // zero vector for empty event lists
	}

	sorted := make([]event.Event, n)
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	minT, maxT := sorted[0].CreatedAt, sorted[0].CreatedAt
	repos := make(map[string]struct{})
	typeCounts := make(map[event.Type]int)
	var weekendCount, offHoursCount int
	var msgLenSum float64
	var msgCount int
	var filesSum float64
	var filesCount int

	for _, e := range sorted {
		if e.CreatedAt.Before(minT) {
			minT = e.CreatedAt
		}
		if e.CreatedAt.After(maxT) {
			maxT = e.CreatedAt
		}
		repos[e.RepoName] = struct{}{}
		typeCounts[e.Type]++

		wd := e.CreatedAt.UTC().Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			weekendCount++
		}
		h := e.CreatedAt.UTC().Hour()
		if (h >= 2 && h <= 10) || (h >= 14 && h <= 18) {
			offHoursCount++
		}

		if e.Payload.Push != nil {
			filesSum += float64(e.Payload.Push.Size)
			filesCount++
			for _, c := range e.Payload.Push.Commits {
				msgLenSum += float64(len(c.Message))
				msgCount++
			}
		}
	}

	timeSpanHours := maxT.Sub(minT).Hours()
	if n == 1 {
		timeSpanHours = 1 // single event defaults time_span to 1h
	}
	if timeSpanHours < 0 {
		timeSpanHours = 0
	}

	f[event.BehEventsPerHour] = float64(n) / math.Max(timeSpanHours, 1)
	f[event.BehRepoDiversity] = float64(len(repos)) / float64(n)

	if msgCount > 0 {
		f[event.BehAvgCommitMsgLen] = msgLenSum / float64(msgCount)
	}
	if filesCount > 0 {
		f[event.BehAvgFilesPerCommit] = filesSum / float64(filesCount)
	}

	intervals := make([]float64, 0, n-1)
	for i := 1; i < n; i++ {
		intervals = append(intervals, sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt).Minutes())
	}
	if len(intervals) > 0 {
		var sum float64
		for _, iv := range intervals {
			sum += iv
		}
		f[event.BehAvgIntervalMin] = sum / float64(len(intervals))
	}

	f[event.BehBurstScore] = burstScore(intervals)
	f[event.BehTimeSpanHours] = timeSpanHours
	f[event.BehEventTypeEntropy] = typeEntropy(typeCounts)
	f[event.BehWeekendRatio] = float64(weekendCount) / float64(n)
	f[event.BehOffHoursRatio] = float64(offHoursCount) / float64(n)

	return f.Clamp()
}

// burstScore counts runs (length >= 3) of consecutive sub-5-minute
// intervals, normalized by the maximum possible number of such runs, and
// clamped to [0,1] (spec §4.1 idx 5).
func burstScore(intervals []float64) float64 {
	if len(intervals) == 0 {
		return 0
	}
	var runs, runLen, maxPossibleRuns int
	for _, iv := range intervals {
		if iv < 5 {
			runLen++
		} else {
			if runLen >= 3 {
				runs++
			}
			runLen = 0
		}
	}
	if runLen >= 3 {
		runs++
	}
	maxPossibleRuns = len(intervals) / 3
	if maxPossibleRuns == 0 {
		return 0
	}
	score := float64(runs) / float64(maxPossibleRuns)
	if score > 1 {
		score = 1
	}
	return score
}

// typeEntropy computes the Shannon entropy of the event-type distribution,
// normalized by log2(unique_types) (spec §4.1 idx 7). A single unique type
// yields 0 (no information).
func typeEntropy(counts map[event.Type]int) float64 {
	unique := len(counts)
	if unique <= 1 {
		return 0
	}
	var total int
	for _, c := range counts {
		total += c
	}
	var h float64
	for _, c := range counts {
		p := float64(c) / float64(total)
		if p > 0 {
			h -= p * math.Log2(p)
		}
	}
	return h / math.Log2(float64(unique))
}

// DetectForcePush examines a group's events for force-push signals: an
// explicit forced flag, commit-message markers, or a single distinct
// commit in the push (spec §4.1 step 3).
func DetectForcePush(events []event.Event) *Anomaly {
	var best *Anomaly
	for _, e := range events {
		if e.Payload.Push == nil {
			continue
		}
		p := e.Payload.Push
		severity := 0.0
		reason := ""

		if p.Forced {
			severity = 0.9
			reason = "forced flag set"
		} else if p.DistinctN == 1 && len(p.Commits) >= 1 {
			severity = 0.6
			reason = "single distinct commit push"
		}

		for _, c := range p.Commits {
			lower := strings.ToLower(c.Message)
			for _, marker := range forceMessageMarkers {
				if strings.Contains(lower, marker) {
					if 0.8 > severity {
						severity = 0.8
						reason = "commit message marker: " + marker
					}
				}
			}
		}

		if severity > 0.9 {
			severity = 0.9
		}
		if severity > 0 && (best == nil || severity > best.Severity) {
			best = &Anomaly{Type: AnomalyOther, Feature: -1, Severity: severity, Description: "force_push: " + reason}
		}
	}
	return best
}

// Score runs the full BehavioralDetector pipeline for one group's events
// against its user baseline (nil baseline triggers the cold-start path).
func Score(events []event.Event, baseline *Baseline) Analysis {
	features := ExtractFeatures(events)

	if baseline == nil || !baseline.Reliable {
		return coldStart(features)
	}

	var anomalies []Anomaly

	for i, x := range features {
		mu := baseline.Mean[i]
		sigma := baseline.Std[i]
		z := math.Abs(x-mu) / (sigma + 1e-10)
		if z > zThreshold {
			sev := math.Min(z/5, 1)
			anomalies = append(anomalies, Anomaly{
				Type: AnomalyStatistical, Feature: i, ZScore: z, Severity: sev,
				Description: "z-score deviation",
			})
		}
	}

	if len(baseline.History) > 10 {
		if mahal, ok := mahalanobis(features, baseline.Mean, baseline.History); ok {
			if mahal > chiSquare95df10 {
				sev := math.Min(mahal/(2*chiSquare95df10), 1)
				anomalies = append(anomalies, Anomaly{
					Type: AnomalyMultivariate, Feature: -1, Distance: mahal, Severity: sev,
					Description: "multivariate outlier",
				})
			}
		}
	}

	if fp := DetectForcePush(events); fp != nil {
		anomalies = append(anomalies, *fp)
	}

	score := weightedAnomalyScore(anomalies)

	return Analysis{Features: features, Anomalies: anomalies, Score: score, ColdStart: false, Confidence: 1.0}
}

func weightedAnomalyScore(anomalies []Anomaly) float64 {
	if len(anomalies) == 0 {
		return 0
	}
	var sum, weight float64
	for _, a := range anomalies {
		w := anomalyTypeWeight[a.Type]
		if w == 0 {
			w = anomalyTypeWeight[AnomalyOther]
		}
		sum += w * a.Severity
		weight += w
	}
	if weight == 0 {
		return 0
	}
	return sum / weight
}

// coldStart applies multi-tier heuristic thresholds when no reliable
// baseline exists (spec §4.1 cold-start path). Confidence is fixed at 0.3.
func coldStart(features event.FeatureVector) Analysis {
	var anomalies []Anomaly

	tier := func(value float64, low, mid, high float64, invert bool, desc string) {
		v := value
		if invert {
			v = 1 - value
		}
		var sev float64
		switch {
		case v >= high:
			sev = 0.8
		case v >= mid:
			sev = 0.6
		case v >= low:
			sev = 0.4
		default:
			return
		}
		anomalies = append(anomalies, Anomaly{Type: AnomalyOther, Feature: -1, Severity: sev, Description: desc})
	}

	eventsPerHour := features[event.BehEventsPerHour]
	tier(eventsPerHour/20, 0.3, 0.5, 0.7, false, "cold_start: high events_per_hour")

	tier(features[event.BehBurstScore], 0.3, 0.5, 0.7, false, "cold_start: burst_score")

	// Low entropy (near-single event type) is suspicious.
	tier(features[event.BehEventTypeEntropy], 0.3, 0.5, 0.7, true, "cold_start: low event-type entropy")

	tier(features[event.BehOffHoursRatio], 0.3, 0.5, 0.7, false, "cold_start: off_hours_ratio")

	// Low repo diversity (extremely focused activity) is suspicious.
	tier(features[event.BehRepoDiversity], 0.3, 0.5, 0.7, true, "cold_start: extremely_focused_activity")

	score := weightedAnomalyScore(anomalies)
	return Analysis{Features: features, Anomalies: anomalies, Score: score, ColdStart: true, Confidence: 0.3}
}
