// Package metrics exposes linkwatch engine metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arloliu/go-linkwatch/linkwatch"
)

// Namespace prefixes every metric name.
const Namespace = "linkwatch"

// NewRegistry creates a registry with the Go runtime and process collectors registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return reg
}

// Handler returns the HTTP handler serving the metrics of reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func counterFunc(name, help string, v *atomic.Uint64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

func gaugeFunc(name, help string, v *atomic.Int64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      name,
		Help:      help,
	}, func() float64 { return float64(v.Load()) })
}

// RegisterEngine registers collectors reading the engine metrics m.
func RegisterEngine(reg prometheus.Registerer, m *linkwatch.EngineMetrics) error {
	cs := []prometheus.Collector{
		counterFunc("status_changes_total", "Total published status changes.", &m.StatusChangeCount),
		counterFunc("poll_sends_total", "Total keep-alive commands sent.", &m.PollSendCount),
		counterFunc("send_errors_total", "Total failed sends.", &m.SendErrCount),
		counterFunc("silent_failures_total", "Total silent failures detected by unanswered sends.", &m.SilentFailureCount),
		counterFunc("reconnect_attempts_total", "Total connect attempts made by the engine.", &m.ReconnectAttemptCount),
		counterFunc("reconnect_deferred_total", "Total connect attempts deferred by the rate limit.", &m.ReconnectDeferredCount),
		counterFunc("listen_attempts_total", "Total listen attempts made by the engine.", &m.ListenAttemptCount),
		counterFunc("evictions_total", "Total idle sessions evicted.", &m.EvictionCount),
		counterFunc("timer_start_retries_total", "Total timer starts retried after scheduler exhaustion.", &m.TimerStartRetryCount),
		counterFunc("connlog_errors_total", "Total failed connection log writes.", &m.ConnLogErrCount),
		gaugeFunc("endpoints", "Current number of registered endpoints.", &m.EndpointGauge),
		gaugeFunc("endpoints_connected", "Current number of endpoints published as connected.", &m.ConnectedGauge),
		gaugeFunc("sessions", "Current number of live listener sessions.", &m.SessionGauge),
	}

	var errs []error
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// StatusMetrics counts published status changes by endpoint kind and status.
type StatusMetrics struct {
	Transitions *prometheus.CounterVec // labels: kind, status
}

// NewStatusMetrics registers and returns the status metrics.
func NewStatusMetrics(reg prometheus.Registerer) *StatusMetrics {
	m := &StatusMetrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "status_transitions_total",
			Help:      "Published status changes by endpoint kind and status.",
		}, []string{"kind", "status"}),
	}
	reg.MustRegister(m.Transitions)

	return m
}

// Observe counts one status change.
func (m *StatusMetrics) Observe(kind linkwatch.Kind, status linkwatch.State) {
	m.Transitions.WithLabelValues(kind.String(), status.String()).Inc()
}
