package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/chrissnell/designflood/internal/constants"
)

const namespace = constants.Name

// Metrics holds the Prometheus collectors for flood computations.
type Metrics struct {
	// labels: kind={design_flood,frequency}, outcome={ok,input,lookup,convergence,degenerate,error}
	Runs *prometheus.CounterVec
	// labels: stage={storm,peak_flow,hydrograph,fit}
	StageDuration *prometheus.HistogramVec
	// labels: method={fit1,fit2,fit3}
	FitFallbacks     *prometheus.CounterVec
	SolverIterations prometheus.Histogram
	DatasetRegions   prometheus.Gauge
	// labels: outcome={ok,error}
	DatasetReloads *prometheus.CounterVec
	// labels: result={hit,miss,error}
	CacheLookups *prometheus.CounterVec
}

func newCollectors(help bool) *Metrics {
	h := func(s string) string {
		if help {
			return s
		}
		return ""
	}
	return &Metrics{
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      h("Computations by kind and outcome."),
		}, []string{"kind", "outcome"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      h("Duration of each computation stage."),
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"stage"}),
		FitFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fit_fallbacks_total",
			Help:      h("Curve fits that fell back to the moment estimate."),
		}, []string{"method"}),
		SolverIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "peak_flow_iterations",
			Help:      h("Iterations the peak flow solver needed to converge."),
			Buckets:   []float64{10, 25, 50, 75, 100, 250, 500, 1000, 10000},
		}),
		DatasetRegions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_regions",
			Help:      h("Number of hydrologic regions in the loaded dataset."),
		}),
		DatasetReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_reloads_total",
			Help:      h("Scheduled dataset reloads by outcome."),
		}, []string{"outcome"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      h("Design flood result cache lookups by result."),
		}, []string{"result"}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newCollectors(true)
	prometheus.MustRegister(
		m.Runs,
		m.StageDuration,
		m.FitFallbacks,
		m.SolverIterations,
		m.DatasetRegions,
		m.DatasetReloads,
		m.CacheLookups,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newCollectors(false)
}
