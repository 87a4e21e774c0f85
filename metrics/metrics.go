// Package metrics exposes the StreamProcessor's running statistics as
// Prometheus gauges/counters/histograms (spec §4.8).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EventsProcessedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghanomaly_events_processed_total",
			Help: "Total number of events processed by the stream processor",
		},
	)

	AnomaliesDetectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghanomaly_anomalies_detected_total",
			Help: "Total number of scored events exceeding the anomaly trigger, by band",
		},
		[]string{"band"},
	)

	DetectorErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghanomaly_detector_errors_total",
			Help: "Total number of detector failures replaced by their neutral default, by detector",
		},
		[]string{"detector"},
	)

	BatchProcessingDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ghanomaly_batch_processing_duration_seconds",
			Help:    "Time taken to process one event batch in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	QueueUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ghanomaly_queue_utilization_ratio",
			Help: "Priority queue occupancy ratio by band",
		},
		[]string{"band"},
	)

	ProfileUpdatesSkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ghanomaly_profile_updates_skipped_total",
			Help: "Total number of profile updates skipped by the rate limit, by subject",
		},
		[]string{"subject"}, // "user" | "repo"
	)

	GitHubCircuitOpenTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "ghanomaly_github_circuit_open_total",
			Help: "Total number of times the GitHub circuit breaker tripped open",
		},
	)
)

func init() {
	prometheus.MustRegister(EventsProcessedTotal)
	prometheus.MustRegister(AnomaliesDetectedTotal)
	prometheus.MustRegister(DetectorErrorsTotal)
	prometheus.MustRegister(BatchProcessingDuration)
	prometheus.MustRegister(QueueUtilization)
	prometheus.MustRegister(ProfileUpdatesSkippedTotal)
	prometheus.MustRegister(GitHubCircuitOpenTotal)
}
