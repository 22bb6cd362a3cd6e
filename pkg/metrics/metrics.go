package metrics

import "github.com/prometheus/client_golang/prometheus"

var NotificationsIngestedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notifications_ingested_total",
		Help: "Total number of notifications accepted by the ingest endpoint",
	},
	[]string{"hackathon", "type"},
)

var ConnectedClients = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "connected_clients",
		Help: "Live WebSocket connections per hackathon",
	},
	[]string{"hackathon"},
)

var AcksAppliedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "acks_applied_total",
		Help: "Total number of delivery acknowledgments applied to the ledger",
	},
)

var AcksMalformedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "acks_malformed_total",
		Help: "Total number of acknowledgment payloads dropped as malformed",
	},
)

var JobsConsumedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_jobs_consumed_total",
		Help: "Total number of fan-out jobs claimed from tenant queues",
	},
	[]string{"hackathon"},
)

var JobsCompletedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_jobs_completed_total",
		Help: "Total number of fan-out jobs completed successfully",
	},
	[]string{"hackathon"},
)

var JobRetriesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_job_retries_total",
		Help: "Total number of fan-out job attempts rescheduled for retry",
	},
	[]string{"hackathon"},
)

var JobsFailedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "fanout_jobs_failed_total",
		Help: "Total number of fan-out jobs failed permanently after exhausting retries",
	},
	[]string{"hackathon"},
)

var PushesSentTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "notification_pushes_sent_total",
		Help: "Total number of per-connection notification pushes resolved at fan-out",
	},
	[]string{"hackathon"},
)

var StreamPendingEntries = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "stream_pending_entries",
		Help: "Unacknowledged entries in the per-hackathon backpressure stream",
	},
	[]string{"hackathon"},
)

// InitAPIMetrics registers the collectors used by the API/gateway process.
func InitAPIMetrics() {
	prometheus.MustRegister(NotificationsIngestedTotal)
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(AcksAppliedTotal)
	prometheus.MustRegister(AcksMalformedTotal)
}

// InitWorkerMetrics registers the collectors used by the fan-out worker.
func InitWorkerMetrics() {
	prometheus.MustRegister(JobsConsumedTotal)
	prometheus.MustRegister(JobsCompletedTotal)
	prometheus.MustRegister(JobRetriesTotal)
	prometheus.MustRegister(JobsFailedTotal)
	prometheus.MustRegister(PushesSentTotal)
	prometheus.MustRegister(StreamPendingEntries)
}
