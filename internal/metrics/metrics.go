// Package metrics exposes the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	VideosIngested = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showreel_videos_ingested_total",
		Help: "Uploads accepted into the pipeline.",
	})

	IngestRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showreel_ingest_rejected_total",
		Help: "Uploads rejected at validation, by reason.",
	}, []string{"reason"})

	JobsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showreel_encode_jobs_completed_total",
		Help: "Encoding jobs finished successfully.",
	})

	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "showreel_encode_jobs_failed_total",
		Help: "Encoding jobs that exhausted their retries.",
	})

	EncodeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "showreel_encode_duration_seconds",
		Help:    "Wall-clock duration of local encode runs.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})

	QueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "showreel_queue_jobs",
		Help: "Jobs in the encoding queue, by status.",
	}, []string{"status"})

	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showreel_webhooks_received_total",
		Help: "Webhook events received, by source.",
	}, []string{"source"})

	WatchdogRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "showreel_watchdog_recoveries_total",
		Help: "Videos repaired by the watchdog, by outcome.",
	}, []string{"outcome"})
)

// SetQueueDepth publishes per-status queue gauges from one stats snapshot.
func SetQueueDepth(pending, processing, completed, failed int) {
	QueueDepth.WithLabelValues("pending").Set(float64(pending))
	QueueDepth.WithLabelValues("processing").Set(float64(processing))
	QueueDepth.WithLabelValues("completed").Set(float64(completed))
	QueueDepth.WithLabelValues("failed").Set(float64(failed))
}
