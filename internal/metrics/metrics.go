package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CRM engine collectors
var (
	// Identity resolution

	ResolveTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_identity_resolve_total",
			Help: "Identity resolutions by matching stage (email, phone, alternate, none)",
		},
		[]string{"match"},
	)

	ResolveScanTruncatedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crm_identity_scan_truncated_total",
			Help: "Alternate-contact scans stopped at the configured scan limit",
		},
	)

	ResolveScannedCustomers = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "crm_identity_scan_customers",
			Help:    "Customers examined by one alternate-contact scan",
			Buckets: []float64{10, 50, 100, 250, 500, 1000, 5000},
		},
	)

	// Customer store

	CustomerOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_customer_operations_total",
			Help: "Customer store operations",
		},
		[]string{"operation", "status"},
	)

	// Secondary writes (company sync, sender propagation)

	SecondaryOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_secondary_outcomes_total",
			Help: "Outcomes of writes attempted after a committed primary write",
		},
		[]string{"operation", "status"},
	)

	// Merge

	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_customer_merges_total",
			Help: "Customer merge attempts",
		},
		[]string{"status"},
	)

	// Conversation migration

	MigrationGroupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_migration_groups_total",
			Help: "Conversation migration groups processed",
		},
		[]string{"status"},
	)

	MigrationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_migration_duration_seconds",
			Help:    "Conversation migration run duration",
			Buckets: []float64{.1, .5, 1, 5, 15, 60, 300},
		},
		[]string{"mode"},
	)

	// Events

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crm_events_published_total",
			Help: "Events delivered to out-of-band sinks",
		},
		[]string{"sink", "status"},
	)

	WebsocketClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crm_websocket_clients",
			Help: "Connected admin event-stream clients",
		},
	)

	// HTTP

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "crm_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// StatusOf maps an error to a status label.
func StatusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}
