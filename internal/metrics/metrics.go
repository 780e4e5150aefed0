package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	TaskEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelvol",
			Name:      "task_events_total",
			Help:      "Count of download task events processed by the ledger.",
		},
		[]string{"type"},
	)

	ScrubDeletions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelvol",
			Name:      "scrub_deletions_total",
			Help:      "Weight files deleted by the volume scrubber.",
		},
		[]string{"reason"},
	)

	FetchBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelvol",
			Name:      "fetch_bytes_total",
			Help:      "Bytes written to the volume by fetch backends.",
		},
		[]string{"backend"},
	)

	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelvol",
			Name:      "fetch_duration_seconds",
			Help:      "Wall time of individual fetches.",
			Buckets:   []float64{1, 5, 15, 60, 180, 600, 1800, 3600},
		},
		[]string{"backend"},
	)

	Aria2RPCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelvol",
			Name:      "aria2_rpc_errors_total",
			Help:      "Errors from aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	Aria2RPCLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelvol",
			Name:      "aria2_rpc_latency_seconds",
			Help:      "Latency of aria2 JSON-RPC calls.",
		},
		[]string{"method"},
	)

	ActiveFetches = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modelvol",
			Name:      "active_fetches",
			Help:      "Number of fetches currently in flight.",
		},
	)
)

// Register registers the modelvol metrics into the default registry.
func Register() {
	prometheus.MustRegister(TaskEvents, ScrubDeletions, FetchBytes, FetchLatency, Aria2RPCErrors, Aria2RPCLatency, ActiveFetches)
}
