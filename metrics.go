package modkit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/GoCodeAlone/modkit/lifecycle"
)

// Metric result labels.
const (
	resultSuccess = "success"
	resultFailure = "failure"
)

// Metrics provides Prometheus metrics for the application lifecycle.
//
// All metrics use the modkit_ prefix. Methods are nil-safe, so a nil
// *Metrics disables collection.
type Metrics struct {
	// ServiceStarts counts service start attempts by module, service and result
	ServiceStarts *prometheus.CounterVec

	// ServiceStops counts service stop attempts by module, service and result
	ServiceStops *prometheus.CounterVec

	// ServiceStartDuration tracks how long each service took to start
	ServiceStartDuration *prometheus.HistogramVec

	// ModuleHooks counts module boot and shutdown hooks by module, hook and result
	ModuleHooks *prometheus.CounterVec

	// Aborts counts fatal aborts
	Aborts prometheus.Counter

	// State is 1 for the current application state and 0 for every other
	State *prometheus.GaugeVec
}

// NewMetrics creates the lifecycle metrics and registers them with reg.
// Pass nil to create metrics without registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ServiceStarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modkit_service_starts_total",
				Help: "Total service start attempts by module, service and result",
			},
			[]string{"module", "service", "result"},
		),

		ServiceStops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modkit_service_stops_total",
				Help: "Total service stop attempts by module, service and result",
			},
			[]string{"module", "service", "result"},
		),

		ServiceStartDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "modkit_service_start_duration_seconds",
				Help:    "Service start duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"module", "service"},
		),

		ModuleHooks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "modkit_module_hooks_total",
				Help: "Total module lifecycle hook runs by module, hook and result",
			},
			[]string{"module", "hook", "result"},
		),

		Aborts: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "modkit_aborts_total",
				Help: "Total fatal application aborts",
			},
		),

		State: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "modkit_application_state",
				Help: "Current application lifecycle state (1 for the active state)",
			},
			[]string{"state"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.ServiceStarts,
			m.ServiceStops,
			m.ServiceStartDuration,
			m.ModuleHooks,
			m.Aborts,
			m.State,
		)
	}

	return m
}

func result(err error) string {
	if err != nil {
		return resultFailure
	}
	return resultSuccess
}

// ObserveServiceStart records a service start attempt.
func (m *Metrics) ObserveServiceStart(module, service string, duration time.Duration, err error) {
	if m == nil {
		return
	}
	m.ServiceStarts.WithLabelValues(module, service, result(err)).Inc()
	if err == nil {
		m.ServiceStartDuration.WithLabelValues(module, service).Observe(duration.Seconds())
	}
}

// ObserveServiceStop records a service stop attempt.
func (m *Metrics) ObserveServiceStop(module, service string, err error) {
	if m == nil {
		return
	}
	m.ServiceStops.WithLabelValues(module, service, result(err)).Inc()
}

// ObserveModuleHook records a module hook run.
func (m *Metrics) ObserveModuleHook(module, hook string, err error) {
	if m == nil {
		return
	}
	m.ModuleHooks.WithLabelValues(module, hook, result(err)).Inc()
}

// RecordAbort increments the abort counter.
func (m *Metrics) RecordAbort() {
	if m == nil {
		return
	}
	m.Aborts.Inc()
}

// SetState marks state as the current application state.
func (m *Metrics) SetState(state lifecycle.State) {
	if m == nil {
		return
	}
	for _, s := range lifecycle.States() {
		v := 0.0
		if s == state {
			v = 1
		}
		m.State.WithLabelValues(s.String()).Set(v)
	}
}
