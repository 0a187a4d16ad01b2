package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FilesProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viofo_files_processed_total",
		Help: "Total number of source videos processed, by outcome",
	}, []string{"outcome"})

	StageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "viofo_stage_duration_seconds",
		Help:    "Duration of geotagging pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FixesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viofo_fixes_decoded_total",
		Help: "Total number of GPS fixes decoded from source videos",
	})

	FramesExtractedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "viofo_frames_extracted_total",
		Help: "Total number of frame images extracted and tagged",
	})

	FramesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viofo_frames_skipped_total",
		Help: "Total number of frames skipped, by reason",
	}, []string{"reason"})

	JobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viofo_jobs_processed_total",
		Help: "Total number of geotagging jobs processed, by final status",
	}, []string{"status"})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "viofo_active_workers",
		Help: "Number of currently active workers processing jobs",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "viofo_retry_total",
		Help: "Total number of job retries",
	}, []string{"attempt"})
)
