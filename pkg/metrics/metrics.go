package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// key label used for admissions of keys nobody registered
// keeps arbitrary caller input from creating new series
const UnregisteredKey = "_unregistered"

var (
	// admission decisions made by the coordinator
	// labels: key (registered key or UnregisteredKey), status (granted/denied/unknown)
	// granted rate per key should never exceed 1/min_interval
	AdmissionTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "throttled_admission_total",
			Help: "total number of admission decisions",
		},
		[]string{"key", "status"},
	)

	// registrations received, including overwrites
	RegisterTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "throttled_register_total",
			Help: "total number of operation registrations",
		},
	)

	// keys known to the coordinator
	RegisteredKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "throttled_registered_keys",
			Help: "current number of registered operation keys",
		},
	)

	// time a caller spent polling before being admitted
	AdmissionWaitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "throttled_admission_wait_seconds",
			Help:    "time spent waiting for admission",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	// election lock attempts
	// labels: status (acquired/busy/lost)
	MutexAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "throttled_mutex_acquire_total",
			Help: "total number of election lock acquisition attempts",
		},
		[]string{"status"},
	)

	// join attempts made by this process, 1 on a clean start
	JoinAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "throttled_join_attempts_total",
			Help: "total number of join attempts",
		},
	)

	// 1 if this node is the coordinator, 0 otherwise
	// exactly one process per lock path should report 1
	IsCoordinator = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "throttled_is_coordinator",
			Help: "whether this node is the coordinator (1 = coordinator, 0 = participant)",
		},
	)

	// transport failures seen while talking to the coordinator
	// labels: op (ping/register/admit)
	TransportErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "throttled_transport_errors_total",
			Help: "total number of failed calls to the coordinator",
		},
		[]string{"op"},
	)
)
