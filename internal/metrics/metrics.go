package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "endpoint", "status"})

	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint"})

	ReadingsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readings_ingested_total",
		Help: "Total number of readings accepted into the ingest queue",
	}, []string{"source"})

	ReadingsNormalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "readings_normalized_total",
		Help: "Readings seen by the normalizer, by outcome",
	}, []string{"outcome"}) // outcome: kept/dropped

	// AnomaliesLastRun is reset on every run. Polling the same buffer does
	// not inflate it.
	AnomaliesLastRun = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "anomalies_last_run",
		Help: "Anomalies reported after deduplication in the last detection run",
	}, []string{"method", "severity"})

	EntitiesSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "entities_skipped_total",
		Help: "Entities dropped from a run because processing failed",
	})

	DetectionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "detection_duration_seconds",
		Help:    "Duration of one detection run",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
	})

	EntitiesAnalyzed = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "entities_analyzed",
		Help: "Entities with statistics in the last detection run",
	})

	EntitiesHealthy = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "entities_healthy",
		Help: "Healthy entities in the last detection run",
	})
)
