package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	EmailsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_sent_total",
			Help: "Total emails delivered successfully",
		},
	)

	EmailsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "emails_failed_total",
			Help: "Total jobs that exhausted their delivery attempts",
		},
	)

	RetriesScheduled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "email_retries_scheduled_total",
			Help: "Total failed attempts rescheduled with backoff",
		},
	)

	ClaimsLost = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "job_claims_lost_total",
			Help: "Total claims lost to a concurrent worker",
		},
	)

	AttachmentsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attachments_dropped_total",
			Help: "Total attachments dropped after fetch failure",
		},
	)

	DeliveriesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "deliveries_in_flight",
			Help: "Deliveries currently being processed",
		},
	)

	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "work_cycle_duration_seconds",
			Help:    "Duration of non-empty work cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	Heartbeat = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "worker_heartbeat_timestamp_seconds",
			Help: "Unix time of the last worker heartbeat",
		},
	)
)

func Init() {
	prometheus.MustRegister(
		EmailsSent,
		EmailsFailed,
		RetriesScheduled,
		ClaimsLost,
		AttachmentsDropped,
		DeliveriesInFlight,
		CycleDuration,
		Heartbeat,
	)
}
