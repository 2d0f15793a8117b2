package dispatcher

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dshills/docforge/internal/operation"
)

// Metrics collects engine statistics as Prometheus collectors.
// A nil *Metrics records nothing.
type Metrics struct {
	operations  *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	rejections  *prometheus.CounterVec
	conflicts   prometheus.Counter
	panics      *prometheus.CounterVec
	historyMove *prometheus.CounterVec
	inFlight    prometheus.Gauge
}

// NewMetrics creates the engine collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "operations_total",
			Help:      "Executed operations by kind and final status",
		}, []string{"kind", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "operation_duration_seconds",
			Help:      "Time from request to applied or failed operation",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"kind"}),
		rejections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "rejections_total",
			Help:      "Requests rejected before execution, by request field",
		}, []string{"field"}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "conflicts_total",
			Help:      "Requests rejected because a file was busy",
		}),
		panics: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "processor_panics_total",
			Help:      "Recovered processor panics by kind",
		}, []string{"kind"}),
		historyMove: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "docforge",
			Subsystem: "history",
			Name:      "moves_total",
			Help:      "Undo and redo calls by direction and result",
		}, []string{"direction", "result"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "docforge",
			Subsystem: "dispatcher",
			Name:      "files_in_flight",
			Help:      "Files currently held by a running operation",
		}),
	}
}

// RecordExecute records a finished operation.
func (m *Metrics) RecordExecute(kind operation.Kind, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(string(kind), status).Inc()
	m.duration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

// RecordRejection records a request rejected on field.
func (m *Metrics) RecordRejection(field string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(field).Inc()
}

// RecordConflict records a busy-file rejection.
func (m *Metrics) RecordConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// RecordPanic records a recovered processor panic.
func (m *Metrics) RecordPanic(kind operation.Kind) {
	if m == nil {
		return
	}
	m.panics.WithLabelValues(string(kind)).Inc()
}

// RecordHistory records an undo or redo attempt.
func (m *Metrics) RecordHistory(direction string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.historyMove.WithLabelValues(direction, result).Inc()
}

func (m *Metrics) addInFlight(n int) {
	if m == nil {
		return
	}
	m.inFlight.Add(float64(n))
}
