package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Lifecycle metrics
	StoresByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "storeplane_stores",
			Help: "Number of stores by status",
		},
		[]string{"status"},
	)

	CreatesAdmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeplane_creates_admitted_total",
			Help: "Total number of create requests admitted by the gate",
		},
	)

	CreatesReplayed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeplane_creates_replayed_total",
			Help: "Total number of create requests answered by idempotent replay",
		},
	)

	CreatesDenied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeplane_creates_denied_total",
			Help: "Total number of create requests denied by the gate, by reason",
		},
		[]string{"reason"},
	)

	LifecycleTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeplane_lifecycle_transitions_total",
			Help: "Total number of store status transitions, by target status",
		},
		[]string{"to"},
	)

	ReadinessChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeplane_readiness_checks_total",
			Help: "Total number of readiness check attempts, by result",
		},
		[]string{"result"},
	)

	// Audit metrics
	AuditDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeplane_audit_dropped_total",
			Help: "Total number of audit entries dropped due to a full buffer",
		},
	)

	// Maintenance metrics
	JanitorDeleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeplane_janitor_deleted_total",
			Help: "Total number of rows removed by the janitor, by table",
		},
		[]string{"table"},
	)

	JanitorReaped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "storeplane_janitor_reaped_total",
			Help: "Total number of stranded Provisioning stores marked Failed",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "storeplane_api_requests_total",
			Help: "Total number of API requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "storeplane_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(
		StoresByStatus,
		CreatesAdmitted,
		CreatesReplayed,
		CreatesDenied,
		LifecycleTransitions,
		ReadinessChecks,
		AuditDropped,
		JanitorDeleted,
		JanitorReaped,
		APIRequestsTotal,
		APIRequestDuration,
	)
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
