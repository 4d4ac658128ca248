package store

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Queue names used as the "queue" label.
const (
	queueInstances = "instances"
	queueLabels    = "labels"
)

// Metrics counts fetch queue activity.
type Metrics struct {
	batches   *prometheus.CounterVec
	resolved  *prometheus.CounterVec
	batchSize *prometheus.HistogramVec
	stale     *prometheus.CounterVec
}

// NewMetrics registers the store collectors with reg. A nil reg leaves them
// unregistered, which is what tests and the CLI commands want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		batches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kgeditor_fetch_batches_total",
			Help: "Fetch batches dispatched by queue and outcome",
		}, []string{"queue", "outcome"}),
		resolved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kgeditor_fetch_ids_total",
			Help: "Instance ids resolved by queue and result",
		}, []string{"queue", "result"}),
		batchSize: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kgeditor_fetch_batch_size",
			Help:    "Number of ids per dispatched batch",
			Buckets: []float64{1, 5, 10, 50, 100, 500, 1000},
		}, []string{"queue"}),
		stale: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "kgeditor_fetch_stale_writes_total",
			Help: "Batch results discarded because a newer write stamped the record",
		}, []string{"queue"}),
	}
}

func (m *Metrics) observeBatch(queue string, size int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.batches.WithLabelValues(queue, outcome).Inc()
	m.batchSize.WithLabelValues(queue).Observe(float64(size))
}

func (m *Metrics) observeResult(queue, result string) {
	m.resolved.WithLabelValues(queue, result).Inc()
}

func (m *Metrics) observeStale(queue string) {
	m.stale.WithLabelValues(queue).Inc()
}
