package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "modelgate_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "endpoint"},
	)

	AdmissionDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_admission_decisions_total",
			Help: "Admission decisions by outcome and gate",
		},
		[]string{"allowed", "gate"},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_cache_lookups_total",
			Help: "Response cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_cache_evictions_total",
			Help: "Cache entries removed by expiry, capacity or invalidation",
		},
		[]string{"namespace", "reason"},
	)

	ProviderInvocations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_provider_invocations_total",
			Help: "Upstream provider invocations by provider, model and outcome",
		},
		[]string{"provider", "model", "outcome"},
	)

	InferenceLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "modelgate_inference_latency_seconds",
			Help:    "Upstream inference latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
		[]string{"provider"},
	)

	Fallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelgate_fallback_attempts_total",
			Help: "Total number of fallback attempts after a failed primary",
		},
	)

	UnhealthyProviders = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "modelgate_unhealthy_providers",
			Help: "Number of providers currently quarantined",
		},
	)

	AlertsRaised = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "modelgate_alerts_raised_total",
			Help: "Cost alerts raised by type and severity",
		},
		[]string{"type", "severity"},
	)

	UsageDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "modelgate_usage_records_dropped_total",
			Help: "Usage records dropped by the async writer (queue full or write failure)",
		},
	)
)
