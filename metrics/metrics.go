package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ringo-is-a-color/lastcall/shutdown"
)

const (
	namespace = "lastcall"
	subsystem = "shutdown"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Metrics exposes the cleanup actions of a coordinator. It observes the drain and reads the
// number of pending actions on each scrape.
type Metrics struct {
	registry *prometheus.Registry

	Actions      *prometheus.CounterVec
	DrainSeconds prometheus.Histogram
	Registered   prometheus.GaugeFunc
}

var _ shutdown.Observer = new(Metrics)

func New(coordinator *shutdown.Coordinator) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "actions_total",
			Help:      "Cleanup actions run by the drain, by outcome.",
		}, []string{"outcome"}),
		DrainSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "drain_seconds",
			Help:      "Time taken to run every cleanup action.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 5, 10, 30, 60},
		}),
		Registered: prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "registered_actions",
			Help:      "Cleanup actions waiting for the drain.",
		}, func() float64 {
			return float64(coordinator.Len())
		}),
	}
	m.registry.MustRegister(
		m.Actions,
		m.DrainSeconds,
		m.Registered,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	// export both outcomes from the start
	m.Actions.WithLabelValues(OutcomeSucceeded)
	m.Actions.WithLabelValues(OutcomeFailed)
	return m
}

func (m *Metrics) ActionFinished(result shutdown.ActionResult) {
	if result.Failed() {
		m.Actions.WithLabelValues(OutcomeFailed).Inc()
	} else {
		m.Actions.WithLabelValues(OutcomeSucceeded).Inc()
	}
}

func (m *Metrics) DrainFinished(report *shutdown.Report) {
	m.DrainSeconds.Observe(report.Duration.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
