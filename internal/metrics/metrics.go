// Package metrics exposes the scheduler's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's collectors. A nil *Metrics is valid
// and records nothing, so tests can pass nil.
type Metrics struct {
	SubmissionsTotal *prometheus.CounterVec
	DispatchedTotal  *prometheus.CounterVec
	FinalizedTotal   *prometheus.CounterVec
	CancelledTotal   prometheus.Counter

	QueueDepth *prometheus.GaugeVec
	QueueBytes *prometheus.GaugeVec
}

// New creates the collectors and registers them with the registry.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SubmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_submissions_total",
			Help: "Job submissions by outcome status.",
		}, []string{"status"}),
		DispatchedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_dispatched_total",
			Help: "Jobs handed to the physical lab, by backend.",
		}, []string{"backend"}),
		FinalizedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scheduler_finalized_total",
			Help: "Finalized jobs by terminal status.",
		}, []string{"status"}),
		CancelledTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_cancelled_total",
			Help: "Jobs cancelled before dispatch.",
		}),
		QueueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_queue_depth",
			Help: "Entries currently queued, by backend.",
		}, []string{"backend"}),
		QueueBytes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "scheduler_queue_bytes",
			Help: "Bytes charged against queue capacity, by backend.",
		}, []string{"backend"}),
	}
	reg.MustRegister(
		m.SubmissionsTotal,
		m.DispatchedTotal,
		m.FinalizedTotal,
		m.CancelledTotal,
		m.QueueDepth,
		m.QueueBytes,
	)
	return m
}

// RecordSubmission counts one submission outcome.
func (m *Metrics) RecordSubmission(status string) {
	if m == nil {
		return
	}
	m.SubmissionsTotal.WithLabelValues(status).Inc()
}

// RecordDispatch counts one dispatched job.
func (m *Metrics) RecordDispatch(backend string) {
	if m == nil {
		return
	}
	m.DispatchedTotal.WithLabelValues(backend).Inc()
}

// RecordFinalize counts one finalized job.
func (m *Metrics) RecordFinalize(status string) {
	if m == nil {
		return
	}
	m.FinalizedTotal.WithLabelValues(status).Inc()
}

// RecordCancel counts one cancelled job.
func (m *Metrics) RecordCancel() {
	if m == nil {
		return
	}
	m.CancelledTotal.Inc()
}

// SetQueueGauges records a queue's current depth and bytes.
func (m *Metrics) SetQueueGauges(backend string, depth, bytes int) {
	if m == nil {
		return
	}
	m.QueueDepth.WithLabelValues(backend).Set(float64(depth))
	m.QueueBytes.WithLabelValues(backend).Set(float64(bytes))
}
