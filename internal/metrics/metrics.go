// Package metrics provides Prometheus counters for sync runs. A run is a
// short-lived process, so the registry is exported to a node_exporter
// textfile instead of being served over HTTP.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics of a sync run.
type Metrics struct {
	RecordsTotal  *prometheus.CounterVec
	WorkLogsTotal *prometheus.CounterVec
	DaysTotal     *prometheus.CounterVec
	LastRun       prometheus.Gauge

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		RecordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjs_records_total",
				Help: "Toggl time entries seen, by result (resolved or skip reason).",
			},
			[]string{"result"},
		),
		WorkLogsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjs_worklogs_total",
				Help: "Merged work logs handled by the writer, by outcome.",
			},
			[]string{"outcome"},
		),
		DaysTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tjs_days_total",
				Help: "Calendar days processed, by result.",
			},
			[]string{"result"},
		),
		LastRun: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tjs_last_run_timestamp_seconds",
				Help: "Unix time the last sync run finished.",
			},
		),
		registry: reg,
	}

	reg.MustRegister(m.RecordsTotal)
	reg.MustRegister(m.WorkLogsTotal)
	reg.MustRegister(m.DaysTotal)
	reg.MustRegister(m.LastRun)

	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRecord increments the time entry counter.
func (m *Metrics) RecordRecord(result string) {
	m.RecordsTotal.WithLabelValues(result).Inc()
}

// RecordWorkLog increments the work log counter.
func (m *Metrics) RecordWorkLog(outcome string) {
	m.WorkLogsTotal.WithLabelValues(outcome).Inc()
}

// RecordDay increments the day counter.
func (m *Metrics) RecordDay(result string) {
	m.DaysTotal.WithLabelValues(result).Inc()
}

// MarkFinished sets the last-run gauge.
func (m *Metrics) MarkFinished(t time.Time) {
	m.LastRun.Set(float64(t.Unix()))
}

// WriteTextfile writes all metrics in the Prometheus text format to path,
// atomically, for node_exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
