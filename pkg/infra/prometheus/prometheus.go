package prometheus

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var registerer = prometheus.WrapRegistererWith(nil, registry)

var (
	// Latency buckets in milliseconds
	latencyBuckets = []float64{
		1, 5, 10, 25,
		50, 100, 250,
		500, 1000, 2500,
		5000,
	}

	RequestsTotal = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshield_requests_total",
			Help: "Requests that went through a shielded route",
		},
		[]string{"route", "status"},
	)

	PolicyDecisions = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshield_policy_decisions_total",
			Help: "Policy outcomes by policy and result (pass, reject, preflight)",
		},
		[]string{"route", "policy", "result"},
	)

	RateLimitStoreErrors = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshield_ratelimit_store_errors_total",
			Help: "Counter store failures, labelled by the fail mode applied and whether the breaker refused the call",
		},
		[]string{"fail_mode", "cause"},
	)

	AuditWrites = promauto.With(registerer).NewCounterVec(
		prometheus.CounterOpts{
			Name: "edgeshield_audit_writes_total",
			Help: "Audit sink write attempts by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	AuditWriteLatency = promauto.With(registerer).NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "edgeshield_audit_write_latency_ms",
			Help:    "Audit sink write latency in milliseconds",
			Buckets: latencyBuckets,
		},
		[]string{"sink"},
	)
)

var initOnce sync.Once

func Initialize() {
	initOnce.Do(func() {
		registry.MustRegister(
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			collectors.NewGoCollector(),
		)
	})
}

// Handler serves the private registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
}

func Registry() *prometheus.Registry {
	return registry
}
