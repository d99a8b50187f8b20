package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Bounded result labels
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
	ResultSkipped = "skipped"
	ResultInvalid = "invalid"
	ResultDropped = "dropped"
)

// Pipeline metrics
var (
	EventsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_events_collected_total",
		Help: "Raw events collected per collector",
	}, []string{"collector"})

	CollectRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_collect_runs_total",
		Help: "Collection runs per collector and result",
	}, []string{"collector", "result"})

	CollectDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "marketpulse_collect_duration_seconds",
		Help:    "Wall time of a single collection run",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"collector"})

	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_events_published_total",
		Help: "Events published to the bus per topic and result",
	}, []string{"topic", "result"})

	PushMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_push_messages_total",
		Help: "Push deliveries handled per result",
	}, []string{"result"})

	PushProcessing = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketpulse_push_processing_seconds",
		Help:    "End-to-end handling time of one pushed sentiment event",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	WorkQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "marketpulse_work_queue_depth",
		Help: "Pending messages in the processor work queue",
	})

	AnomaliesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_anomalies_detected_total",
		Help: "Anomalies detected per type and severity",
	}, []string{"type", "severity"})

	WarehouseInserts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "marketpulse_warehouse_inserts_total",
		Help: "Warehouse insert attempts per table and result",
	}, []string{"table", "result"})
)
