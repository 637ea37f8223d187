// SPDX-License-Identifier: AGPL-3.0-or-later
// Package metrics exposes the process-wide Prometheus counters and
// histograms the dispatcher, sandbox and usage-counter writers update on
// every action invocation.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles the collectors registered against a dedicated
// prometheus.Registry rather than the global DefaultRegisterer, so tests can
// spin up an isolated instance without colliding on repeated registration.
type Registry struct {
	reg *prometheus.Registry

	DispatchTotal    *prometheus.CounterVec
	AttemptTotal     *prometheus.CounterVec
	SandboxDuration  prometheus.Histogram
	UsageUpsertDelay prometheus.Histogram
}

func New() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		reg: reg,
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actioncore",
			Name:      "dispatch_total",
			Help:      "Number of action dispatches, by action kind and result kind.",
		}, []string{"kind", "result"}),
		AttemptTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actioncore",
			Name:      "webhook_attempt_total",
			Help:      "Number of outbound webhook attempts, by status label.",
		}, []string{"status"}),
		SandboxDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "actioncore",
			Name:      "sandbox_duration_seconds",
			Help:      "Wall-clock time spent running a code action inside the sandbox.",
			Buckets:   prometheus.DefBuckets,
		}),
		UsageUpsertDelay: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "actioncore",
			Name:      "usage_counter_upsert_seconds",
			Help:      "Latency of the usage_counters jsonb-merge upsert.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(r.DispatchTotal, r.AttemptTotal, r.SandboxDuration, r.UsageUpsertDelay)
	return r
}

// Handler serves the registry in the Prometheus text exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// ObserveDispatch records one completed dispatch by action kind and the
// ActionResult kind it produced (success, user_error, timeout, internal).
func (r *Registry) ObserveDispatch(kind, result string) {
	r.DispatchTotal.WithLabelValues(kind, result).Inc()
}

// ObserveAttempt records one outbound webhook attempt's status label.
func (r *Registry) ObserveAttempt(status string) {
	r.AttemptTotal.WithLabelValues(status).Inc()
}

// ObserveSandboxDuration records one code action's sandbox wall-clock time.
func (r *Registry) ObserveSandboxDuration(seconds float64) {
	r.SandboxDuration.Observe(seconds)
}

// ObserveUsageUpsertLatency records one usage_counters upsert's latency.
func (r *Registry) ObserveUsageUpsertLatency(seconds float64) {
	r.UsageUpsertDelay.Observe(seconds)
}
