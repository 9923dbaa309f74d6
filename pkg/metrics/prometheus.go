package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	signals       *prometheus.CounterVec
	skips         *prometheus.CounterVec
	orders        *prometheus.CounterVec
	halts         *prometheus.CounterVec
	errorsTotal   *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	openPositions prometheus.Gauge
}

// New registers the recorder on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the recorder on reg.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		signals: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microtrader_signals_total",
				Help: "Signals emitted by the generator",
			},
			[]string{"type"},
		),
		skips: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microtrader_execution_skips_total",
				Help: "Execution attempts skipped, by reason code",
			},
			[]string{"action", "reason"},
		),
		orders: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microtrader_orders_total",
				Help: "Orders sent to the broker",
			},
			[]string{"action", "status"},
		),
		halts: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microtrader_halts_total",
				Help: "Execution halts tripped",
			},
			[]string{"reason"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "microtrader_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "microtrader_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		openPositions: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "microtrader_open_positions",
				Help: "Open positions after the last cycle",
			},
		),
	}
}

func (r *Recorder) RecordSignal(kind string) {
	r.signals.WithLabelValues(kind).Inc()
}

func (r *Recorder) RecordSkip(action, reason string) {
	r.skips.WithLabelValues(action, reason).Inc()
}

func (r *Recorder) RecordOrder(action, status string) {
	r.orders.WithLabelValues(action, status).Inc()
}

func (r *Recorder) RecordHalt(reason string) {
	r.halts.WithLabelValues(reason).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLatency records operation latency in seconds.
func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) SetOpenPositions(n int) {
	r.openPositions.Set(float64(n))
}
