// Package temporal implements the TemporalDetector (spec §4.3): a 9-D
// feature vector over a time series of events, with burst, coordination,
// off-hours, and chi-square timing-anomaly pattern detection.
package temporal

import (
	"math"
	"sort"
	"time"

	"github.com/sentryhq/ghanomaly/event"
)

// PatternKind names a structured temporal finding.
type PatternKind string

const (
	PatternActivityBurst      PatternKind = "activity_burst"
	PatternCoordinatedActivity PatternKind = "coordinated_activity"
	PatternUnusualTiming      PatternKind = "unusual_timing_distribution"
	PatternSustainedActivity  PatternKind = "sustained_high_activity"
)

// Pattern is one structured temporal finding.
type Pattern struct {
	Kind        PatternKind
	Severity    float64
	Description string
}

// Analysis is the TemporalDetector's output for one window.
type Analysis struct {
	Features event.FeatureVector
	Patterns []Pattern
	Score    float64
}

// NoBaseline is the sentinel baseline rate meaning "no public-event
// samples were available" — per spec's open-question note, callers must
// treat this as "no baseline", never as a literal rate.
const NoBaseline = 0.0

const burstWindow = 5 * time.Minute
const burstThreshold = 5
const coordinationWindow = 15 * time.Minute
const coordinationMinActors = 3
const sustainedWindow = time.Hour
const sustainedThreshold = 30

func sigmoid(x float64) float64 { return 1 / (1 + math.Exp(-x)) }

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Score runs the full TemporalDetector pipeline over a window's events.
// baselineRate is the median public-event rate fetched by the caller
// (ghclient); pass NoBaseline when no samples were available.
func Score(events []event.Event, baselineRate float64) Analysis {
	f := make(event.FeatureVector, event.TemporalDim)
	if len(events) == 0 {
		return Analysis{Features: f}
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].CreatedAt.Before(sorted[j].CreatedAt) })

	n := len(sorted)
	minT, maxT := sorted[0].CreatedAt, sorted[n-1].CreatedAt
	windowMinutes := math.Max(maxT.Sub(minT).Minutes(), 1)

	rate := float64(n) / windowMinutes
	f[event.TemEventsPerMinuteCurrent] = rate

	if baselineRate > 0 {
		f[event.TemRateOverBaseline] = rate / baselineRate
	} else {
		f[event.TemRateOverBaseline] = 1.0 // no baseline: treat as neutral, not a literal ratio
	}

	maxBurstCount := maxSlidingCount(sorted, burstWindow)
	f[event.TemBurstIntensity] = clamp((float64(maxBurstCount)/5.0)/2.0, 0, 1)

	intervals := intervalsMinutes(sorted)
	mean, std := meanStd(intervals)
	regularity := 0.0
	if mean > 0 {
		regularity = std / mean
	}
	f[event.TemRegularity] = regularity

	maxActors, maxActorEvents := maxSlidingDistinctActors(sorted, coordinationWindow)
	coordination := 0.0
	if maxActors >= coordinationMinActors {
		coordination = math.Min((float64(maxActors)/10)*(float64(maxActorEvents)/20), 1)
	}
	f[event.TemCoordination] = coordination

	offHoursRatio := ratioOffHours(sorted)
	f[event.TemOffHoursIntensity] = math.Max(offHoursRatio/0.25-1, 0)

	weekendRatio := ratioWeekend(sorted)
	f[event.TemWeekendExcess] = math.Max((weekendRatio-2.0/7)/(2.0/7), 0)

	cv := 0.0
	if mean > 0 {
		cv = std / mean
	}
	f[event.TemTimeConcentration] = 1 / (1 + cv)

	f[event.TemVelocityAcceleration] = velocityAcceleration(sorted)
	f.Clamp()

	var patterns []Pattern
	if maxBurstCount >= burstThreshold {
		sev := clamp(float64(maxBurstCount)/(2*burstThreshold), 0, 1)
		patterns = append(patterns, Pattern{Kind: PatternActivityBurst, Severity: sev, Description: "activity burst detected"})
	}
	if maxActors >= coordinationMinActors {
		patterns = append(patterns, Pattern{Kind: PatternCoordinatedActivity, Severity: coordination, Description: "coordinated multi-actor activity"})
	}
	if p, ok := unusualTimingPattern(sorted); ok {
		patterns = append(patterns, p)
	}
	if maxSustained := maxSlidingCount(sorted, sustainedWindow); maxSustained >= sustainedThreshold {
		sev := clamp(float64(maxSustained)/(2*sustainedThreshold), 0, 1)
		patterns = append(patterns, Pattern{Kind: PatternSustainedActivity, Severity: sev, Description: "sustained high activity"})
	}

	score := riskScore(f, patterns)

	return Analysis{Features: f, Patterns: patterns, Score: score}
}

var featureWeights = [event.TemporalDim]float64{
	event.TemEventsPerMinuteCurrent: 0.10,
	event.TemRateOverBaseline:       0.10,
	event.TemBurstIntensity:         0.15,
	event.TemRegularity:             0.10,
	event.TemCoordination:           0.15,
	event.TemOffHoursIntensity:      0.10,
	event.TemWeekendExcess:          0.10,
	event.TemTimeConcentration:      0.10,
	event.TemVelocityAcceleration:   0.10,
}

func riskScore(f event.FeatureVector, patterns []Pattern) float64 {
	var dot float64
	for i, x := range f {
		dot += featureWeights[i] * sigmoid(0.5*x)
	}
	if len(patterns) > 0 {
		var sum float64
		for _, p := range patterns {
			sum += p.Severity
		}
		dot += 0.3 * (sum / float64(len(patterns)))
	}
	return clamp(dot, 0, 1)
}

func intervalsMinutes(sorted []event.Event) []float64 {
	if len(sorted) < 2 {
		return nil
	}
	out := make([]float64, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		out = append(out, sorted[i].CreatedAt.Sub(sorted[i-1].CreatedAt).Minutes())
	}
	return out
}

func meanStd(xs []float64) (mean, std float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean = sum / float64(len(xs))
	var variance float64
	for _, x := range xs {
		d := x - mean
		variance += d * d
	}
	variance /= float64(len(xs))
	std = math.Sqrt(variance)
	return
}

// maxSlidingCount returns the maximum number of events in any window of
// the given duration, scanning with a two-pointer sweep over the sorted
// timestamps.
func maxSlidingCount(sorted []event.Event, window time.Duration) int {
	maxCount := 0
	left := 0
	for right := 0; right < len(sorted); right++ {
		for sorted[right].CreatedAt.Sub(sorted[left].CreatedAt) > window {
			left++
		}
		count := right - left + 1
		if count > maxCount {
			maxCount = count
		}
	}
	return maxCount
}

// maxSlidingDistinctActors returns the maximum distinct-actor count seen
// in any window of the given duration, along with the event count in that
// same window.
func maxSlidingDistinctActors(sorted []event.Event, window time.Duration) (maxActors, eventsAtMax int) {
	left := 0
	for right := 0; right < len(sorted); right++ {
		for sorted[right].CreatedAt.Sub(sorted[left].CreatedAt) > window {
			left++
		}
		actors := make(map[string]struct{})
		for i := left; i <= right; i++ {
			actors[sorted[i].ActorLogin] = struct{}{}
		}
		if len(actors) > maxActors {
			maxActors = len(actors)
			eventsAtMax = right - left + 1
		}
	}
	return
}

func ratioOffHours(sorted []event.Event) float64 {
	var count int
	for _, e := range sorted {
		h := e.CreatedAt.UTC().Hour()
		if (h >= 2 && h <= 10) || (h >= 14 && h <= 18) {
			count++
		}
	}
	return float64(count) / float64(len(sorted))
}

func ratioWeekend(sorted []event.Event) float64 {
	var count int
	for _, e := range sorted {
		wd := e.CreatedAt.UTC().Weekday()
		if wd == time.Saturday || wd == time.Sunday {
			count++
		}
	}
	return float64(count) / float64(len(sorted))
}

// velocityAcceleration splits the window into four equal-count quantiles,
// computes each quantile's event rate, and fits a linear regression
// slope across the four rates, weighted by the correlation coefficient's
// magnitude, clamped to [-1,1] (spec §4.3 idx 8).
func velocityAcceleration(sorted []event.Event) float64 {
	n := len(sorted)
	if n < 4 {
		return 0
	}
	qSize := n / 4
	var rates []float64
	for q := 0; q < 4; q++ {
		start := q * qSize
		end := start + qSize
		if q == 3 {
			end = n
		}
		bucket := sorted[start:end]
		if len(bucket) < 2 {
			rates = append(rates, 0)
			continue
		}
		dur := math.Max(bucket[len(bucket)-1].CreatedAt.Sub(bucket[0].CreatedAt).Minutes(), 1)
		rates = append(rates, float64(len(bucket))/dur)
	}

	slope, r := linearRegression(rates)
	return clamp(slope*math.Abs(r), -1, 1)
}

// linearRegression fits y = a + b*x for x = 0..len(ys)-1, returning the
// slope b and Pearson correlation coefficient r.
func linearRegression(ys []float64) (slope, r float64) {
	n := float64(len(ys))
	if n < 2 {
		return 0, 0
	}
	var sumX, sumY, sumXY, sumX2, sumY2 float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
		sumY2 += y * y
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, 0
	}
	slope = (n*sumXY - sumX*sumY) / denom

	rDenom := math.Sqrt((n*sumX2 - sumX*sumX) * (n*sumY2 - sumY*sumY))
	if rDenom == 0 {
		return slope, 0
	}
	r = (n*sumXY - sumX*sumY) / rDenom
	return
}

// unusualTimingPattern runs a chi-square goodness-of-fit test of observed
// hour-of-day counts against a uniform distribution over 24 bins.
func unusualTimingPattern(sorted []event.Event) (Pattern, bool) {
	var bins [24]int
	for _, e := range sorted {
		bins[e.CreatedAt.UTC().Hour()]++
	}
	total := len(sorted)
	expected := float64(total) / 24
	if expected == 0 {
		return Pattern{}, false
	}
	var stat float64
	for _, o := range bins {
		d := float64(o) - expected
		stat += d * d / expected
	}
	p := chiSquarePValue(stat, 23)
	if p < 0.05 {
		sev := clamp(1-p, 0, 1)
		return Pattern{Kind: PatternUnusualTiming, Severity: sev, Description: "unusual hour-of-day timing distribution"}, true
	}
	return Pattern{}, false
}
