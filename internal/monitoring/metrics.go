// Package monitoring exposes Prometheus metrics for the call bridge: live
// handles, in-flight pending calls, and per-convention call volume. The
// pending-calls gauge is the visibility hook for asynchronous calls whose
// native callback never fires; it does not alter call semantics.
package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/suredesigns/alier-bridge/internal/handle"
)

// Metrics holds all Prometheus metrics for the bridge.
type Metrics struct {
	// Handle registry metrics
	HandlesActive prometheus.Gauge
	HandlesTotal  prometheus.Counter

	// Call dispatcher metrics
	CallsTotal   *prometheus.CounterVec
	CallErrors   *prometheus.CounterVec
	CallDuration *prometheus.HistogramVec
	CallsPending prometheus.Gauge

	// Handshake metrics
	SignalsTotal *prometheus.CounterVec

	startTime time.Time
}

// NewMetrics creates a metrics collector registered with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		startTime: time.Now(),

		HandlesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_handles_active",
			Help: "Number of live entries in the handle registry",
		}),
		HandlesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_handles_registered_total",
			Help: "Total number of handle registrations",
		}),

		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_calls_total",
				Help: "Total number of native calls by convention",
			},
			[]string{"convention"},
		),
		CallErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_call_errors_total",
				Help: "Total number of native calls that reported an error",
			},
			[]string{"convention"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bridge_call_duration_seconds",
				Help:    "Native call duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"convention"},
		),
		CallsPending: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_pending_calls",
			Help: "Asynchronous calls awaiting their native callback",
		}),

		SignalsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bridge_signals_total",
				Help: "Handshake signals by topic",
			},
			[]string{"topic"},
		),
	}
}

// NewDefault registers with the global Prometheus registry.
func NewDefault() *Metrics {
	return NewMetrics(prometheus.DefaultRegisterer)
}

// OnHandleEvent implements handle.Observer.
func (m *Metrics) OnHandleEvent(e handle.Event) {
	m.HandlesActive.Set(float64(e.Active))
	if e.Kind == handle.EventRegistered {
		m.HandlesTotal.Inc()
	}
}

// RecordCall implements dispatch.Recorder.
func (m *Metrics) RecordCall(convention, name string, d time.Duration, err error) {
	m.CallsTotal.WithLabelValues(convention).Inc()
	m.CallDuration.WithLabelValues(convention).Observe(d.Seconds())
	if err != nil {
		m.CallErrors.WithLabelValues(convention).Inc()
	}
}

// PendingCalls implements dispatch.Recorder.
func (m *Metrics) PendingCalls(delta int) {
	m.CallsPending.Add(float64(delta))
}

// RecordSignal counts a handshake signal.
func (m *Metrics) RecordSignal(topic string) {
	m.SignalsTotal.WithLabelValues(topic).Inc()
}

// Uptime reports time since collector creation.
func (m *Metrics) Uptime() time.Duration {
	return time.Since(m.startTime)
}
