package stream

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sentryhq/ghanomaly/config"
	"github.com/sentryhq/ghanomaly/contextscore"
	"github.com/sentryhq/ghanomaly/detector/behavioral"
	"github.com/sentryhq/ghanomaly/detector/content"
	"github.com/sentryhq/ghanomaly/detector/temporal"
	"github.com/sentryhq/ghanomaly/event"
	"github.com/sentryhq/ghanomaly/metrics"
	"github.com/sentryhq/ghanomaly/profile/repo"
	"github.com/sentryhq/ghanomaly/profile/user"
	"github.com/sentryhq/ghanomaly/pubsub"
	"github.com/sentryhq/ghanomaly/queue"
	"github.com/sentryhq/ghanomaly/severity"
	"github.com/sentryhq/ghanomaly/summarizer"
)

// summaryTimeout bounds the best-effort summarizer call so one slow tier
// can never hold up the batch (spec §4.8 step 2.d).
const summaryTimeout = 3 * time.Second

// Processor is the StreamProcessor (spec §4.8): it groups a batch of
// events by (actor, repo), fans each group across the four detectors,
// folds the result through the SeverityEngine, and dispatches the
// outcome to the summarizer, the priority queue, and pub/sub.
type Processor struct {
	cfg *config.Config

	userMgr *user.Manager
	repoMgr *repo.Manager
	ctxScorer *contextscore.Scorer
	engine  *severity.Engine
	queue   *queue.Queue
	pub     *pubsub.Publisher
	summary summarizer.Hook

	logger zerolog.Logger
}

// New wires a Processor from its dependencies. summary may be nil, in
// which case a summarizer.Noop is used.
func New(cfg *config.Config, userMgr *user.Manager, repoMgr *repo.Manager, ctxScorer *contextscore.Scorer, engine *severity.Engine, q *queue.Queue, pub *pubsub.Publisher, summary summarizer.Hook, logger zerolog.Logger) *Processor {
	if summary == nil {
		summary = summarizer.Noop{}
	}
	return &Processor{
		cfg: cfg, userMgr: userMgr, repoMgr: repoMgr, ctxScorer: ctxScorer,
		engine: engine, queue: q, pub: pub, summary: summary, logger: logger,
	}
}

// groupResult holds the per-group detector fan-out output, shared across
// every event belonging to that group.
type groupResult struct {
	key        event.GroupKey
	events     []event.Event
	behavioral behavioral.Analysis
	content    content.Analysis
	temporal   temporal.Analysis
	context    contextscore.Result
}

// ProcessBatch runs the full pipeline over one batch of events and
// returns a ScoredEvent per input event, in no particular order
// (spec §4.8 step 5). Malformed events (missing actor or repo) are
// dropped and logged.
func (p *Processor) ProcessBatch(ctx context.Context, events []event.Event) []ScoredEvent {
	start := time.Now()
	defer func() {
		metrics.BatchProcessingDuration.Observe(time.Since(start).Seconds())
	}()

	groups := p.partition(events)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var scored []ScoredEvent

	for key, groupEvents := range groups {
		wg.Add(1)
		go func(key event.GroupKey, groupEvents []event.Event) {
			defer wg.Done()
			res := p.scoreGroup(ctx, key, groupEvents)
			p.updateProfilesAsync(key, groupEvents, res)

			events := p.scoreEvents(ctx, res)

			mu.Lock()
			scored = append(scored, events...)
			mu.Unlock()
		}(key, groupEvents)
	}
	wg.Wait()

	metrics.EventsProcessedTotal.Add(float64(len(scored)))
	return scored
}

// partition drops malformed events and groups the rest by (actor, repo)
// (spec §4.8 step 1).
func (p *Processor) partition(events []event.Event) map[event.GroupKey][]event.Event {
	groups := make(map[event.GroupKey][]event.Event)
	for _, e := range events {
		if e.ActorLogin == "" || e.RepoName == "" || e.CreatedAt.IsZero() {
			p.logger.Warn().Str("event_id", e.ID).Msg("dropping malformed event")
			continue
		}
		k := e.GroupKey()
		groups[k] = append(groups[k], e)
	}
	return groups
}

// withDeadline runs fn in its own goroutine and returns its result, or
// neutral if ctx is done first. A slow or cancelled detector never blocks
// the rest of the batch (spec §4.8 step 2: soft per-batch deadline).
func withDeadline[T any](ctx context.Context, detectorName string, fn func() T, neutral T) T {
	ch := make(chan T, 1)
	go func() { ch <- fn() }()
	select {
	case r := <-ch:
		return r
	case <-ctx.Done():
		metrics.DetectorErrorsTotal.WithLabelValues(detectorName).Inc()
		return neutral
	}
}

// scoreGroup fans one (actor, repo) group's events across the four
// detectors in parallel (spec §4.8 step 2).
func (p *Processor) scoreGroup(ctx context.Context, key event.GroupKey, events []event.Event) groupResult {
	deadline := p.cfg.BatchDeadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	gctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	res := groupResult{key: key, events: events}

	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		userBaseline, err := p.userMgr.GetBaseline(gctx, key.ActorLogin)
		if err != nil {
			p.logger.Debug().Err(err).Str("actor", key.ActorLogin).Msg("behavioral: baseline lookup failed, using cold start")
		}
		res.behavioral = withDeadline(gctx, "behavioral", func() behavioral.Analysis {
			if userBaseline.Reliable {
				return behavioral.Score(events, &userBaseline)
			}
			return behavioral.Score(events, nil)
		}, behavioral.Analysis{})
	}()

	go func() {
		defer wg.Done()
		res.content = withDeadline(gctx, "content", func() content.Analysis {
			return content.Score(events, nil)
		}, content.Analysis{})
	}()

	go func() {
		defer wg.Done()
		baselineRate := temporal.NoBaseline
		if rb, err := p.repoMgr.GetOrCreate(gctx, key.RepoName); err == nil && rb.TotalEvents > 0 {
			baselineRate = rb.EventsPerDay / (24 * 60)
		}
		res.temporal = withDeadline(gctx, "temporal", func() temporal.Analysis {
			return temporal.Score(events, baselineRate)
		}, temporal.Analysis{})
	}()

	go func() {
		defer wg.Done()
		res.context = withDeadline(gctx, "context", func() contextscore.Result {
			return p.ctxScorer.Score(gctx, key.RepoName)
		}, contextscore.Result{Criticality: 0.5, Multiplier: 1.1, AnalysisType: contextscore.AnalysisFallback})
	}()

	wg.Wait()
	return res
}

// updateProfilesAsync folds this group's observations into the user and
// repo baselines on a detached goroutine — profile updates never gate
// the scoring response path (spec §4.8 step 3).
func (p *Processor) updateProfilesAsync(key event.GroupKey, events []event.Event, res groupResult) {
	go func() {
		bgCtx := context.Background()

		last := latestEvent(events)
		updated, err := p.userMgr.Update(bgCtx, key.ActorLogin, res.behavioral.Features, last.CreatedAt.UTC().Hour(), string(last.Type), key.RepoName, p.cfg.UserUpdateInterval)
		if err != nil {
			p.logger.Warn().Err(err).Str("actor", key.ActorLogin).Msg("user profile update failed")
		} else if !updated {
			metrics.ProfileUpdatesSkippedTotal.WithLabelValues("user").Inc()
		}

		sample := activitySampleFor(events, last)
		updated, err = p.repoMgr.Update(bgCtx, key.RepoName, sample, p.cfg.RepoUpdateInterval)
		if err != nil {
			p.logger.Warn().Err(err).Str("repo", key.RepoName).Msg("repo profile update failed")
		} else if !updated {
			metrics.ProfileUpdatesSkippedTotal.WithLabelValues("repo").Inc()
		}
	}()
}

// activitySampleFor builds one repo.ActivitySample from a group's events,
// per profile/repo's expected per-window shape.
func activitySampleFor(events []event.Event, last event.Event) repo.ActivitySample {
	contributors := make(map[string]int)
	var commits, pushes int
	var buildSucceeded, issueResolved *bool

	for _, e := range events {
		contributors[e.ActorLogin]++
		if e.Payload.Push != nil {
			pushes++
			commits += len(e.Payload.Push.Commits)
		}
		if e.Payload.WorkflowRun != nil && e.Payload.WorkflowRun.Conclusion != "" {
			ok := e.Payload.WorkflowRun.Conclusion == "success"
			buildSucceeded = &ok
		}
		if e.Payload.Issues != nil && e.Payload.Issues.Action == "closed" {
			ok := true
			issueResolved = &ok
		}
	}

	commitsPerPush := 0.0
	if pushes > 0 {
		commitsPerPush = float64(commits) / float64(pushes)
	}

	top := ""
	topCount := -1
	for login, n := range contributors {
		if n > topCount {
			top, topCount = login, n
		}
	}

	return repo.ActivitySample{
		EventsToday:        float64(len(events)),
		ContributorsToday:  float64(len(contributors)),
		CommitsPerPush:     commitsPerPush,
		ContributorEntropy: repo.ContributorEntropy(contributors),
		Hour:               last.CreatedAt.UTC().Hour(),
		Weekend:            last.CreatedAt.UTC().Weekday() == time.Saturday || last.CreatedAt.UTC().Weekday() == time.Sunday,
		BuildSucceeded:     buildSucceeded,
		IssueResolved:      issueResolved,
		TopContributor:     top,
	}
}

func latestEvent(events []event.Event) event.Event {
	latest := events[0]
	for _, e := range events[1:] {
		if e.CreatedAt.After(latest.CreatedAt) {
			latest = e
		}
	}
	return latest
}

// scoreEvents builds a ScoredEvent per event in a group, dispatching the
// summarizer and pub/sub for each (spec §4.8 step 4). Events in the same
// group share detector output but get independent severity results since
// context factors (protected branch, off-hours) are per-event.
func (p *Processor) scoreEvents(ctx context.Context, res groupResult) []ScoredEvent {
	out := make([]ScoredEvent, 0, len(res.events))
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, e := range res.events {
		wg.Add(1)
		go func(e event.Event) {
			defer wg.Done()
			se := p.scoreOne(ctx, e, res)
			mu.Lock()
			out = append(out, se)
			mu.Unlock()
		}(e)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (p *Processor) scoreOne(ctx context.Context, e event.Event, res groupResult) ScoredEvent {
	inputs := severity.Inputs{
		Scores: severity.ComponentScores{
			Behavioral: res.behavioral.Score,
			Content:    res.content.RiskScore,
			Temporal:   res.temporal.Score,
			Repository: res.context.Criticality,
		},
		ContextFactors: contextFactorsFor(e, res),
		UrgencyFactors: urgencyFactorsFor(e, res),
		IncidentType:   string(e.Type),
		Confidence:     res.behavioral.Confidence,
	}

	result := p.engine.Score(inputs)
	result = severity.ApplyRepositoryMultiplier(result, res.context.Multiplier)

	se := ScoredEvent{
		EventID:           e.ID,
		ActorLogin:        e.ActorLogin,
		RepoName:          e.RepoName,
		Type:              e.Type,
		Timestamp:         e.CreatedAt,
		Scores:            inputs.Scores,
		ContextMultiplier: result.ContextMultiplier,
		UrgencyFactor:     result.UrgencyFactor,
		BaseScore:         result.BaseScore,
		FinalScore:        result.FinalScore,
		Band:              result.Band,
		AppliedContext:    result.AppliedContext,
		AppliedUrgency:    result.AppliedUrgency,
		Behavioral:        res.behavioral,
		Content:           res.content,
		Temporal:          res.temporal,
		Context:           res.context,
		ProcessedAt:       time.Now(),
	}

	if result.Band == severity.Critical || result.Band == severity.High {
		se.Summary = p.summarize(ctx, se)
	}

	metrics.AnomaliesDetectedTotal.WithLabelValues(string(result.Band)).Inc()

	if result.Band != severity.Info {
		if err := p.pub.Publish(ctx, result.Band, e.ActorLogin, se); err != nil {
			p.logger.Warn().Err(err).Str("event_id", e.ID).Msg("publish failed")
		}
	}

	payload, err := json.Marshal(se)
	if err != nil {
		p.logger.Error().Err(err).Str("event_id", e.ID).Msg("marshal scored event failed")
	} else {
		item := queue.Item{
			Payload:         payload,
			Band:            result.Band,
			FinalScore:      result.FinalScore,
			RepoCriticality: res.context.Criticality,
			EnqueuedAt:      time.Now(),
		}
		if err := p.queue.Enqueue(ctx, item); err != nil {
			p.logger.Warn().Err(err).Str("event_id", e.ID).Msg("enqueue failed")
		}
	}

	return se
}

// summarize calls the summarizer hook with a bounded best-effort
// timeout; any failure leaves the event unsummarized rather than
// blocking the response.
func (p *Processor) summarize(ctx context.Context, se ScoredEvent) *string {
	sctx, cancel := context.WithTimeout(ctx, summaryTimeout)
	defer cancel()

	req := summarizer.Request{
		EventID:      se.EventID,
		RepoName:     se.RepoName,
		ActorLogin:   se.ActorLogin,
		IncidentType: string(se.Type),
		FinalScore:   se.FinalScore,
		Band:         string(se.Band),
		Features: map[string][]float64{
			"behavioral": se.Behavioral.Features,
			"content":    se.Content.Features,
			"temporal":   se.Temporal.Features,
			"context":    se.Context.Features,
		},
	}
	text, err := p.summary.Summarize(sctx, req)
	if err != nil || text == "" {
		return nil
	}
	return &text
}

// contextFactorsFor derives the per-event context multiplier inputs
// (spec §4.6 step 2).
func contextFactorsFor(e event.Event, res groupResult) []severity.ContextFactor {
	var factors []severity.ContextFactor
	if severity.IsProtectedBranch(e.RefName()) {
		factors = append(factors, severity.FactorProtectedBranch)
	}
	if severity.IsProductionRepo(e.RepoName) {
		factors = append(factors, severity.FactorProductionRepo)
	}
	if severity.IsOffHoursLikely(e.CreatedAt) {
		factors = append(factors, severity.FactorOffHoursLikely)
	}
	if res.context.AnalysisType == contextscore.AnalysisLive {
		factors = append(factors, severity.FactorPublicRepo)
	}
	return factors
}

// urgencyFactorsFor derives the per-event urgency indicators
// (spec §4.6 step 3).
func urgencyFactorsFor(e event.Event, res groupResult) []severity.UrgencyIndicator {
	var indicators []severity.UrgencyIndicator

	for _, h := range res.content.SecretDetections {
		if h.Severity >= 0.8 {
			indicators = append(indicators, severity.IndicatorSecretsExposed)
			break
		}
	}

	if e.Type == event.TypeDelete && e.Payload.Delete != nil && e.Payload.Delete.RefType == "branch" {
		indicators = append(indicators, severity.IndicatorMassDeletion)
	}

	for _, pat := range res.temporal.Patterns {
		if pat.Kind == temporal.PatternCoordinatedActivity {
			indicators = append(indicators, severity.IndicatorCoordinatedAttack)
			break
		}
	}

	if e.Payload.Push != nil && e.Payload.Push.Forced && severity.IsProtectedBranch(e.RefName()) {
		indicators = append(indicators, severity.IndicatorForcePushMain)
	}

	if e.Payload.WorkflowRun != nil && e.Payload.WorkflowRun.Conclusion == "failure" {
		indicators = append(indicators, severity.IndicatorBuildFailureCascade)
	}

	return indicators
}
