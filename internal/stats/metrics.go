package stats

import (
	"reflect"
	"time"

	"github.com/dgallion1/treerows/internal/rowserver"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports get-rows counters and latency histograms to Prometheus.
type Metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	rows     prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "treerows",
			Name:      "get_rows_total",
			Help:      "Total number of get-rows calls by outcome.",
		}, []string{"result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "treerows",
			Name:      "get_rows_duration_seconds",
			Help:      "Latency distribution for get-rows calls, including the simulated delay.",
			Buckets: []float64{
				0.001, 0.005, 0.01, 0.05,
				0.1, 0.2, 0.25, 0.5,
				1, 2, 5,
			},
		}, []string{"result"}),
		rows: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "treerows",
			Name:      "rows_returned",
			Help:      "Number of rows returned per successful get-rows call.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
	}
	reg.MustRegister(m.requests, m.duration, m.rows)
	return m
}

func (m *Metrics) ObserveGetRows(outcome string, rows int, elapsed time.Duration) {
	m.requests.WithLabelValues(outcome).Inc()
	m.duration.WithLabelValues(outcome).Observe(elapsed.Seconds())
	if outcome == rowserver.OutcomeOK {
		m.rows.Observe(float64(rows))
	}
}

// Observers fans a single get-rows outcome out to every non-nil observer.
// Nil interfaces and nil pointers wrapped in an interface are both skipped.
func Observers(obs ...rowserver.Observer) rowserver.Observer {
	list := make(multi, 0, len(obs))
	for _, o := range obs {
		if isNil(o) {
			continue
		}
		list = append(list, o)
	}
	return list
}

func isNil(o rowserver.Observer) bool {
	if o == nil {
		return true
	}
	v := reflect.ValueOf(o)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

type multi []rowserver.Observer

func (m multi) ObserveGetRows(outcome string, rows int, elapsed time.Duration) {
	for _, o := range m {
		o.ObserveGetRows(outcome, rows, elapsed)
	}
}
