// Package metrics exposes Prometheus collectors for the bot. A nil *Metrics
// is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds the bot's collectors and the registry they live in.
type Metrics struct {
	Registry *prometheus.Registry

	updates     *prometheus.CounterVec
	commands    *prometheus.CounterVec
	storeErrors *prometheus.CounterVec
	entries     *prometheus.CounterVec
	pending     prometheus.Gauge
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		updates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labcodes_updates_total",
			Help: "Inbound chat events by kind.",
		}, []string{"kind"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labcodes_commands_total",
			Help: "Handled commands by name.",
		}, []string{"command"}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labcodes_store_errors_total",
			Help: "Record store failures by operation.",
		}, []string{"op"}),
		entries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "labcodes_entries_total",
			Help: "Finished entry workflows by result.",
		}, []string{"result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "labcodes_pending_entries",
			Help: "Entry workflows currently open.",
		}),
	}

	reg.MustRegister(
		m.updates, m.commands, m.storeErrors, m.entries, m.pending,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Update counts an inbound event.
func (m *Metrics) Update(kind string) {
	if m == nil {
		return
	}
	m.updates.WithLabelValues(kind).Inc()
}

// Command counts a handled command.
func (m *Metrics) Command(name string) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(name).Inc()
}

// StoreError counts a failed store operation.
func (m *Metrics) StoreError(op string) {
	if m == nil {
		return
	}
	m.storeErrors.WithLabelValues(op).Inc()
}

// Entry counts a finished workflow: "committed", "failed", "cancelled" or
// "expired".
func (m *Metrics) Entry(result string) {
	if m == nil {
		return
	}
	m.entries.WithLabelValues(result).Inc()
}

// SetPending records the number of open workflows.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
