package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "routemaster"

// Cache lookup results
const (
	ResultHit    = "hit"
	ResultMiss   = "miss"
	ResultShared = "shared" // attached to an in-flight request
)

// HTTP outcomes
const (
	OutcomeOK          = "ok"
	OutcomeApplication = "application"
	OutcomeNetwork     = "network"
	OutcomeCanceled    = "canceled"
)

// Metrics counters shared by the transport client and the stores.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheLookups *prometheus.CounterVec
	httpRequests *prometheus.CounterVec
}

// New registers the counters on reg. Passing nil uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Store cache lookups by cache name and result (hit, miss, shared).",
		}, []string{"cache", "result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Backend requests by method and outcome.",
		}, []string{"method", "outcome"}),
	}
	reg.MustRegister(m.cacheLookups, m.httpRequests)
	return m
}

func (m *Metrics) CacheLookup(cache, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(cache, result).Inc()
}

func (m *Metrics) HTTPRequest(method, outcome string) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, outcome).Inc()
}

// CacheLookups exposes the counter vector for tests and dashboards.
func (m *Metrics) CacheLookups() *prometheus.CounterVec {
	return m.cacheLookups
}

func (m *Metrics) HTTPRequests() *prometheus.CounterVec {
	return m.httpRequests
}
