package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a run.
// Each run builds its own registry, so repeated construction in tests never
// trips duplicate registration.
type Metrics struct {
	ReadingsFetched *prometheus.CounterVec // labels: channel
	RowsDropped     prometheus.Counter
	FetchFailures   *prometheus.CounterVec // labels: source
	PeaksDetected   *prometheus.CounterVec // labels: channel
	DecayFits       *prometheus.CounterVec // labels: channel, outcome={accepted,rejected}
	RunDuration     prometheus.Histogram
	RunSucceeded    prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates and registers all run metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		ReadingsFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmodel",
			Name:      "readings_fetched_total",
			Help:      "Readings merged into the archive, by channel.",
		}, []string{"channel"}),
		RowsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "flowmodel",
			Name:      "rows_dropped_total",
			Help:      "Malformed or sentinel rows dropped during merge.",
		}),
		FetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmodel",
			Name:      "fetch_failures_total",
			Help:      "Failed fetches that contributed no readings, by source.",
		}, []string{"source"}),
		PeaksDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmodel",
			Name:      "peaks_detected_total",
			Help:      "Accepted peaks per channel in the latest run.",
		}, []string{"channel"}),
		DecayFits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flowmodel",
			Name:      "decay_fits_total",
			Help:      "Recession fit outcomes per channel.",
		}, []string{"channel", "outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "flowmodel",
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete update run.",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		}),
		RunSucceeded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flowmodel",
			Name:      "run_succeeded",
			Help:      "1 when the latest run produced all artifacts, 0 otherwise.",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.ReadingsFetched,
		m.RowsDropped,
		m.FetchFailures,
		m.PeaksDetected,
		m.DecayFits,
		m.RunDuration,
		m.RunSucceeded,
	)

	return m
}

// Push sends the run's metrics to a Pushgateway. A run without a configured
// gateway skips the call entirely; failures are the caller's to log, never
// to fail the run on.
func (m *Metrics) Push(gatewayURL, job string) error {
	return push.New(gatewayURL, job).Gatherer(m.registry).Push()
}
