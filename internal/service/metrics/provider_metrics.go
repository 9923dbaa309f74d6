package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	ProviderLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "microtrader",
			Subsystem: "provider",
			Name:      "latency_seconds",
			Help:      "Latency of external provider calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"provider", "endpoint"},
	)

	ProviderErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microtrader",
			Subsystem: "provider",
			Name:      "errors_total",
			Help:      "Errors by provider endpoint",
		},
		[]string{"provider", "endpoint"},
	)

	QuoteUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "microtrader",
			Subsystem: "quotes",
			Name:      "updates_total",
			Help:      "Streamed last-trade updates by provider",
		},
		[]string{"provider"},
	)
)

func Register() {
	once.Do(func() {
		prometheus.MustRegister(ProviderLatency, ProviderErrors, QuoteUpdates)
	})
}
