package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	providerErrors  *prometheus.CounterVec
	rateExhausted   *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brokergate_requests_total",
				Help: "Total number of gateway requests",
			},
			[]string{"provider", "operation", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "brokergate_request_duration_seconds",
				Help:    "Gateway request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "operation"},
		),

		cacheHits: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "brokergate_cache_hits_total",
				Help: "Total number of call-cache hits",
			},
		),

		cacheMisses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "brokergate_cache_misses_total",
				Help: "Total number of call-cache misses",
			},
		),

		providerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brokergate_provider_errors_total",
				Help: "Total number of provider errors by error code",
			},
			[]string{"provider", "code"},
		),

		rateExhausted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "brokergate_rate_limit_exhausted_total",
				Help: "Responses reporting an exhausted provider rate quota",
			},
			[]string{"provider"},
		),
	}

	reg.MustRegister(r.requestsTotal)
	reg.MustRegister(r.requestDuration)
	reg.MustRegister(r.cacheHits)
	reg.MustRegister(r.cacheMisses)
	reg.MustRegister(r.providerErrors)
	reg.MustRegister(r.rateExhausted)

	return r
}

// ObserveRequest records one gateway request.
func (r *Registry) ObserveRequest(provider, operation, status string, seconds float64) {
	r.requestsTotal.WithLabelValues(provider, operation, status).Inc()
	r.requestDuration.WithLabelValues(provider, operation).Observe(seconds)
}

// ObserveCache records a cache outcome.
func (r *Registry) ObserveCache(hit bool) {
	if hit {
		r.cacheHits.Inc()
		return
	}
	r.cacheMisses.Inc()
}

// ObserveProviderError records a typed provider failure.
func (r *Registry) ObserveProviderError(provider, code string) {
	r.providerErrors.WithLabelValues(provider, code).Inc()
}

// ObserveRateExhausted records a response that reported zero remaining
// quota.
func (r *Registry) ObserveRateExhausted(provider string) {
	r.rateExhausted.WithLabelValues(provider).Inc()
}
