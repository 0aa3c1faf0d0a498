// Package metrics exposes Prometheus collectors for the ledger, count approvals
// and background jobs.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stockledger/internal/core/entity"
	"stockledger/internal/domain/documents/count"
	"stockledger/internal/domain/registers/stock"
	"stockledger/internal/infrastructure/jobs"
)

// Metrics holds every collector. One instance per registry.
type Metrics struct {
	movements   *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	retries     prometheus.Counter
	approvals   *prometheus.CounterVec
	adjustments *prometheus.CounterVec
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

var (
	_ stock.Observer = (*Metrics)(nil)
	_ count.Observer = (*Metrics)(nil)
	_ jobs.Tracker   = (*Metrics)(nil)
)

// New registers the collectors against reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		movements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_movements_total",
			Help: "Stock movements committed to the ledger.",
		}, []string{"type"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_movement_rejections_total",
			Help: "Movements refused by the ledger, by error code.",
		}, []string{"reason"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stockledger_concurrency_retries_total",
			Help: "Ledger writes retried after a concurrency conflict.",
		}),
		approvals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_count_approvals_total",
			Help: "Inventory count approval attempts by result.",
		}, []string{"result"}),
		adjustments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_adjustments_total",
			Help: "Adjustment movements posted by count approvals.",
		}, []string{"type"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stockledger_jobs_total",
			Help: "Background job runs by outcome.",
		}, []string{"job", "status"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stockledger_job_duration_seconds",
			Help:    "Background job duration.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{
		m.movements, m.rejections, m.retries, m.approvals, m.adjustments, m.jobRuns, m.jobDuration,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) MovementRecorded(t entity.MovementType) {
	m.movements.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) MovementRejected(reason string) {
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ConflictRetried() {
	m.retries.Inc()
}

func (m *Metrics) ApprovalFinished(result string) {
	m.approvals.WithLabelValues(result).Inc()
}

func (m *Metrics) AdjustmentPosted(t entity.MovementType) {
	m.adjustments.WithLabelValues(string(t)).Inc()
}

func (m *Metrics) JobFinished(job, status string, elapsed time.Duration) {
	m.jobRuns.WithLabelValues(job, status).Inc()
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
}
