// Package metrics exports evaluation metrics to Prometheus.
package metrics

import (
	"io"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

// Namespace prefixes every metric name.
const Namespace = "sandcalc"

// OutcomeOK labels evaluations that produced a result.
const OutcomeOK = "ok"

// Collector implements engine.Observer on a private registry, so several
// engines in one process never collide on registration.
type Collector struct {
	registry    *prometheus.Registry
	evaluations *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	queueDepth  prometheus.Gauge
}

// New creates a Collector with its own registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "evaluations_total",
				Help:      "Evaluations settled by the engine, by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		),
		latency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Name:      "evaluation_duration_seconds",
				Help:      "Time from dispatch to response at the sandbox boundary.",
				Buckets:   []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"stage"},
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Name:      "queue_depth",
				Help:      "Jobs waiting for dispatch.",
			},
		),
	}
}

// ObserveEvaluation records one settled job. code is "" for success.
func (c *Collector) ObserveEvaluation(stage string, code string, latency time.Duration) {
	c.evaluations.WithLabelValues(stage, Outcome(code)).Inc()
	c.latency.WithLabelValues(stage).Observe(latency.Seconds())
}

// ObserveQueueDepth records the current queue length.
func (c *Collector) ObserveQueueDepth(depth int) {
	c.queueDepth.Set(float64(depth))
}

// Registry returns the registry the collector's metrics live in.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// WriteText writes every metric in the Prometheus text exposition format.
func (c *Collector) WriteText(w io.Writer) error {
	families, err := c.registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// Outcome maps an engine error code to a metric label value.
func Outcome(code string) string {
	if code == "" {
		return OutcomeOK
	}
	return strings.ToLower(code)
}
