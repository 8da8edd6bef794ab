// Package metrics exposes Prometheus instrumentation for hydrated queries.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydrate"

// Query outcomes used as the status label.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Recorder counts queries, rows and hydrated records. A nil *Recorder records nothing, so callers can keep it
// optional without branching.
type Recorder struct {
	queries  *prometheus.CounterVec
	rows     prometheus.Counter
	records  prometheus.Counter
	duration *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them with reg. A nil reg uses the default registerer.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	r := &Recorder{
		queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Hydrated queries by outcome.",
		}, []string{"status"}),
		rows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows read from the database and hydrated.",
		}),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Distinct records built from hydrated rows.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "query_duration_seconds",
			Help:      "Time from executing a query to its hydrated result.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
	}

	for _, c := range []prometheus.Collector{r.queries, r.rows, r.records, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// ObserveQuery records one finished query.
func (r *Recorder) ObserveQuery(status string, rows, records int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.queries.WithLabelValues(status).Inc()
	r.duration.WithLabelValues(status).Observe(elapsed.Seconds())
	r.rows.Add(float64(rows))
	r.records.Add(float64(records))
}
