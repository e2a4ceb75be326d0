package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"certflow/internal/certification/models"
)

// Metrics provides observability for the certification engine.
type Metrics struct {
	ProcessesRequested  prometheus.Counter
	Assignments         *prometheus.CounterVec
	Evaluations         *prometheus.CounterVec
	Notifications       *prometheus.CounterVec
	CertificatesIssued  prometheus.Counter
	CertificatesExpired prometheus.Counter
	Quarantined         prometheus.Counter
	SweepDuration       prometheus.Histogram
	JobRecords          *prometheus.CounterVec
	AssignDuration      prometheus.Histogram
	SweepsRejectedInUse prometheus.Counter
}

// New registers all certification metrics on reg. Pass a fresh
// prometheus.NewRegistry() in tests. Methods are safe on a nil *Metrics.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ProcessesRequested: f.NewCounter(prometheus.CounterOpts{
			Name: "certflow_processes_requested_total",
			Help: "Total number of certification processes requested",
		}),
		Assignments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_assignments_total",
			Help: "Evaluator assignment attempts by result",
		}, []string{"result"}),
		Evaluations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_evaluations_total",
			Help: "Submitted evaluations by outcome",
		}, []string{"outcome"}),
		Notifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_notifications_total",
			Help: "Notification delivery attempts by kind and outcome",
		}, []string{"kind", "outcome"}),
		CertificatesIssued: f.NewCounter(prometheus.CounterOpts{
			Name: "certflow_certificates_issued_total",
			Help: "Total number of certificates issued",
		}),
		CertificatesExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "certflow_certificates_expired_total",
			Help: "Total number of certificates transitioned to expired",
		}),
		Quarantined: f.NewCounter(prometheus.CounterOpts{
			Name: "certflow_processes_quarantined_total",
			Help: "Processes quarantined after an invariant violation",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certflow_sweep_duration_seconds",
			Help:    "Duration of full scheduler sweeps",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		}),
		JobRecords: f.NewCounterVec(prometheus.CounterOpts{
			Name: "certflow_sweep_job_records_total",
			Help: "Records handled per sweep job by result",
		}, []string{"job", "result"}),
		AssignDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "certflow_assign_duration_seconds",
			Help:    "Duration of Assign operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SweepsRejectedInUse: f.NewCounter(prometheus.CounterOpts{
			Name: "certflow_sweeps_rejected_total",
			Help: "Sweeps rejected because another sweep was running",
		}),
	}
}

func (m *Metrics) ObserveNotification(kind models.NotificationKind, outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(string(kind), outcome).Inc()
}

func (m *Metrics) ObserveAssignment(result string, start time.Time) {
	if m == nil {
		return
	}
	m.Assignments.WithLabelValues(result).Inc()
	m.AssignDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveEvaluation(outcome models.Outcome) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(string(outcome)).Inc()
}

func (m *Metrics) ObserveJob(job, result string, n int) {
	if m == nil {
		return
	}
	if n > 0 {
		m.JobRecords.WithLabelValues(job, result).Add(float64(n))
	}
}

// ObserveSweep records the duration of a sweep.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSweep(start time.Time) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementProcessRequested() {
	if m == nil {
		return
	}
	m.ProcessesRequested.Inc()
}

func (m *Metrics) IncrementCertificateIssued() {
	if m == nil {
		return
	}
	m.CertificatesIssued.Inc()
}

func (m *Metrics) IncrementCertificateExpired() {
	if m == nil {
		return
	}
	m.CertificatesExpired.Inc()
}

func (m *Metrics) IncrementQuarantined() {
	if m == nil {
		return
	}
	m.Quarantined.Inc()
}

func (m *Metrics) IncrementSweepRejected() {
	if m == nil {
		return
	}
	m.SweepsRejectedInUse.Inc()
}
