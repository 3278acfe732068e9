// Package metrics exposes the build/verify call counters and verify
// latency histogram as Prometheus metrics. Wiring is optional: nothing on
// the proof-correctness path reads from or depends on this package, and
// no other package in this module calls it. Handler returns a promhttp
// handler backed by a private registry rather than the global default;
// serving it is left to the caller.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry wraps a private prometheus.Registry so multiple spineverify
// instances in one process (e.g. in tests) never collide on the default
// global registry.
type Registry struct {
	reg *prometheus.Registry

	BuildsTotal   *prometheus.CounterVec
	VerifiesTotal *prometheus.CounterVec
	VerifyLatency *prometheus.HistogramVec
}

// New creates a Registry with every metric registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	m := &Registry{
		reg: reg,
		BuildsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spine",
			Name:      "bundle_builds_total",
			Help:      "Bundles built, labeled by kind and outcome.",
		}, []string{"kind", "outcome"}),
		VerifiesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "spine",
			Name:      "bundle_verifies_total",
			Help:      "Bundles verified, labeled by kind, mode, and outcome.",
		}, []string{"kind", "mode", "outcome"}),
		VerifyLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "spine",
			Name:      "verify_duration_seconds",
			Help:      "Wall-clock time spent in Verify, labeled by kind and mode.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind", "mode"}),
	}
	reg.MustRegister(m.BuildsTotal, m.VerifiesTotal, m.VerifyLatency)
	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

// ObserveBuild records the outcome of one bundle build call.
func (m *Registry) ObserveBuild(kind string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.BuildsTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveVerify records the outcome and latency of one Verify call.
func (m *Registry) ObserveVerify(kind, mode string, ok bool, seconds float64) {
	outcome := "fail"
	if ok {
		outcome = "ok"
	}
	m.VerifiesTotal.WithLabelValues(kind, mode, outcome).Inc()
	m.VerifyLatency.WithLabelValues(kind, mode).Observe(seconds)
}
