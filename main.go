package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/sentryhq/ghanomaly/config"
	"github.com/sentryhq/ghanomaly/contextscore"
	"github.com/sentryhq/ghanomaly/ghclient"
	"github.com/sentryhq/ghanomaly/kv"
	"github.com/sentryhq/ghanomaly/localcache"
	"github.com/sentryhq/ghanomaly/logger"
	"github.com/sentryhq/ghanomaly/metrics"
	"github.com/sentryhq/ghanomaly/profile/repo"
	"github.com/sentryhq/ghanomaly/profile/user"
	"github.com/sentryhq/ghanomaly/pubsub"
	"github.com/sentryhq/ghanomaly/queue"
	"github.com/sentryhq/ghanomaly/redisclient"
	"github.com/sentryhq/ghanomaly/severity"
	"github.com/sentryhq/ghanomaly/stream"
	"github.com/sentryhq/ghanomaly/summarizer"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg)

	log.Info().Str("env", cfg.Env).Msg("anomaly engine starting")

	rc, err := redisclient.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("redis init failed")
	}
	if err := rc.Ping(); err != nil {
		log.Fatal().Err(err).Msg("redis ping failed")
	}
	log.Info().Msg("redis connected")

	store := kv.New(rc)

	cache, err := localcache.Open(cfg.LocalCachePath)
	if err != nil {
		log.Warn().Err(err).Msg("local warm cache init failed — continuing Redis-only")
	} else if cache != nil {
		log.Info().Str("path", cfg.LocalCachePath).Msg("local warm cache enabled")
		defer cache.Close()
	}

	gh := ghclient.New(cfg, store, log)
	ctxScorer := contextscore.New(store, gh)

	userMgr := user.New(store)
	repoMgr := repo.New(store)

	engine, err := severity.New(cfg.Weights)
	if err != nil {
		log.Fatal().Err(err).Msg("severity engine weights invalid")
	}

	q := queue.New(store, cfg.QueueCapacities)
	pub := pubsub.New(rc)

	proc := stream.New(cfg, userMgr, repoMgr, ctxScorer, engine, q, pub, summarizer.Noop{}, log)

	metricsSrv := &http.Server{Addr: ":9090", Handler: promhttp.Handler()}
	go func() {
		log.Info().Str("addr", metricsSrv.Addr).Msg("metrics endpoint listening")
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, cfg, rc, proc, q, log)

	log.Info().Msg("shutdown signal received, draining in-flight batch")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulTimeout)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server shutdown failed")
	}
	if err := rc.Close(); err != nil {
		log.Error().Err(err).Msg("redis close failed")
	}
	log.Info().Msg("anomaly engine stopped gracefully")
}

// runLoop repeatedly drains a batch of at most cfg.BatchSize events from
// the event_queue list and scores it, until ctx is cancelled. It never
// starts a new dequeue after cancellation, but lets an in-flight
// ProcessBatch call finish (spec §5's "dequeued in batches of up to 50").
func runLoop(ctx context.Context, cfg *config.Config, rc *redisclient.Client, proc *stream.Processor, q *queue.Queue, log zerolog.Logger) {
	const pollWait = 2 * time.Second

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		events, err := stream.FetchBatch(ctx, rc.Raw(), cfg.BatchSize, pollWait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Msg("event_queue fetch failed")
			time.Sleep(time.Second)
			continue
		}
		if len(events) == 0 {
			continue
		}

		scored := proc.ProcessBatch(ctx, events)
		log.Info().Int("batch_size", len(events)).Int("scored", len(scored)).Msg("batch processed")

		refreshQueueUtilization(ctx, q, log)
	}
}

func refreshQueueUtilization(ctx context.Context, q *queue.Queue, log zerolog.Logger) {
	stats, err := q.Stats(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("queue stats unavailable")
		return
	}
	for _, s := range stats {
		metrics.QueueUtilization.WithLabelValues(string(s.Band)).Set(s.Utilization)
	}
}
