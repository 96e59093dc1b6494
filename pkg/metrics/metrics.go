package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Task metrics
	TasksEnqueued = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "palletscan_tasks_enqueued_total",
			Help: "Total number of tasks accepted by the upload endpoint",
		},
	)

	TasksProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletscan_tasks_processed_total",
			Help: "Total number of tasks reaching a terminal state by status",
		},
		[]string{"status"},
	)

	TasksInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "palletscan_tasks_in_flight",
			Help: "Number of tasks currently being processed by this worker",
		},
	)

	TaskDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palletscan_task_duration_seconds",
			Help:    "End-to-end task processing duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
	)

	// Pipeline metrics
	PipelineStageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palletscan_pipeline_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletscan_detections_total",
			Help: "Total detections produced by the pipeline by sink",
		},
		[]string{"sink"},
	)

	QRDecodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletscan_qr_decodes_total",
			Help: "QR decode outcomes by decode source",
		},
		[]string{"source"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletscan_api_requests_total",
			Help: "Total number of API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "palletscan_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	UploadBytes = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "palletscan_upload_bytes",
			Help:    "Size distribution of accepted uploads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		},
	)

	// Store metrics
	StoreWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "palletscan_store_writes_total",
			Help: "Result store write outcomes",
		},
		[]string{"outcome"},
	)

	// Reconciler metrics
	SweepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "palletscan_sweep_cycles_total",
			Help: "Total number of expiry sweep cycles completed",
		},
	)

	SweptResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "palletscan_swept_results_total",
			Help: "Total number of expired results removed by the sweeper",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(TasksEnqueued)
	prometheus.MustRegister(TasksProcessed)
	prometheus.MustRegister(TasksInFlight)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(PipelineStageDuration)
	prometheus.MustRegister(DetectionsTotal)
	prometheus.MustRegister(QRDecodesTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(UploadBytes)
	prometheus.MustRegister(StoreWritesTotal)
	prometheus.MustRegister(SweepCyclesTotal)
	prometheus.MustRegister(SweptResultsTotal)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
