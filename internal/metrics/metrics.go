package metrics

import (
	"codeberg.org/mutker/boostctl/internal/mode"
	"codeberg.org/mutker/boostctl/internal/telemetry"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "boostctl"

// Exporter publishes simulator state as Prometheus series.
type Exporter struct {
	MetricValue *prometheus.GaugeVec
	Ticks       *prometheus.CounterVec
	ActiveMode  *prometheus.GaugeVec
	ModeChanges prometheus.Counter
	Score       prometheus.Gauge
}

// NewExporter registers the exporter's collectors with reg.
func NewExporter(reg prometheus.Registerer) *Exporter {
	factory := promauto.With(reg)

	return &Exporter{
		MetricValue: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "metric_value",
			Help:      "Current simulated value per source and metric",
		}, []string{"source", "metric"}),

		Ticks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "simulator",
			Name:      "ticks_total",
			Help:      "Total simulator ticks",
		}, []string{"source"}),

		ActiveMode: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mode",
			Name:      "active",
			Help:      "1 for the active performance mode, 0 otherwise",
		}, []string{"mode"}),

		ModeChanges: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mode",
			Name:      "changes_total",
			Help:      "Total performance mode changes",
		}),

		Score: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mode",
			Name:      "optimization_score",
			Help:      "Optimization score of the active mode",
		}),
	}
}

// Observe implements telemetry.Observer.
func (e *Exporter) Observe(s telemetry.Snapshot) {
	e.Ticks.WithLabelValues(s.Source).Inc()
	for m, v := range s.Values {
		e.MetricValue.WithLabelValues(s.Source, string(m)).Set(v)
	}
}

// SetMode publishes current as the active mode.
func (e *Exporter) SetMode(current mode.Mode) {
	for _, m := range mode.All {
		v := 0.0
		if m == current {
			v = 1
		}
		e.ActiveMode.WithLabelValues(m.String()).Set(v)
	}
	e.Score.Set(float64(current.OptimizationScore()))
}

// ModeChanged is a mode.Listener. Re-selecting the active mode is not
// counted as a change.
func (e *Exporter) ModeChanged(prev, next mode.Mode) {
	if prev != next {
		e.ModeChanges.Inc()
	}
	e.SetMode(next)
}
