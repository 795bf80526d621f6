package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	// AnalysesTotal counts finished analyses by predicted label.
	AnalysesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixeltruth",
		Subsystem: "analysis",
		Name:      "completed_total",
		Help:      "Total number of image analyses, labeled by prediction.",
	}, []string{"prediction"})

	// StageDurationSeconds is time spent in each pipeline stage.
	StageDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "pixeltruth",
		Subsystem: "analysis",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each analysis pipeline stage.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	}, []string{"stage"})

	// ClassifierFallbackTotal counts predictions served by the fallback.
	ClassifierFallbackTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "pixeltruth",
		Subsystem: "classifier",
		Name:      "fallback_total",
		Help:      "Total number of predictions answered by the fallback, labeled by reason.",
	}, []string{"reason"})

	// ClassifierReady is 1 when the startup readiness probe succeeded.
	ClassifierReady = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "pixeltruth",
		Subsystem: "classifier",
		Name:      "ready",
		Help:      "Whether the classifier backend answered its readiness probe at startup.",
	})

	// UploadBytes is the size distribution of accepted uploads.
	UploadBytes = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "pixeltruth",
		Subsystem: "api",
		Name:      "upload_bytes",
		Help:      "Size of accepted image uploads in bytes.",
		Buckets:   prometheus.ExponentialBuckets(16*1024, 4, 8),
	})

	// EventPublishErrorTotal counts failed analysis.completed publishes.
	EventPublishErrorTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "pixeltruth",
		Subsystem: "events",
		Name:      "publish_error_total",
		Help:      "Total number of analysis event publish errors.",
	})
)

// Register registers service metrics with the default Prometheus registry.
// Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			AnalysesTotal,
			StageDurationSeconds,
			ClassifierFallbackTotal,
			ClassifierReady,
			UploadBytes,
			EventPublishErrorTotal,
		)
	})
}
