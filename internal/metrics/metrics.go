// Package metrics exposes pipeline counters and histograms to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ppiankov/aegis/internal/engine"
	"github.com/ppiankov/aegis/internal/model"
)

const namespace = "aegis"

// Collector is an engine sink that records decisions and safe-mode state
// on its own registry.
type Collector struct {
	registry *prometheus.Registry

	decisions     *prometheus.CounterVec
	verifyFails   *prometheus.CounterVec
	anomalies     *prometheus.CounterVec
	trust         prometheus.Histogram
	latency       prometheus.Histogram
	safeMode      prometheus.Gauge
	safeModeTrans *prometheus.CounterVec
}

// New builds a Collector with all series registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "decisions_total", Help: "Decisions by verdict and code."},
			[]string{"verdict", "code"},
		),
		verifyFails: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "verify", Name: "failures_total", Help: "Cryptographic verification failures by reason."},
			[]string{"reason"},
		),
		anomalies: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Subsystem: "features", Name: "anomalies_total", Help: "Anomalous features observed, by name and severity."},
			[]string{"feature", "hard"},
		),
		trust: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "trust", Name: "score",
			Help:    "Trust scores of scored envelopes.",
			Buckets: prometheus.LinearBuckets(-1, 0.25, 9),
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "validation_seconds",
			Help:    "Time from intake to decision.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		safeMode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "safe_mode",
			Help: "Current safe mode (0 nominal, 1 hold, 2 rtl).",
		}),
		safeModeTrans: prometheus.NewCounterVec(
			prometheus.CounterOpts{Namespace: namespace, Name: "safe_mode_transitions_total", Help: "Safe-mode transitions by target state."},
			[]string{"to"},
		),
	}
	c.registry.MustRegister(c.decisions, c.verifyFails, c.anomalies, c.trust, c.latency, c.safeMode, c.safeModeTrans)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// OnDecision implements engine.Sink.
func (c *Collector) OnDecision(o engine.Outcome) {
	d := o.Decision
	c.decisions.WithLabelValues(string(d.Verdict), string(d.Code)).Inc()
	if !d.Verification.Valid {
		c.verifyFails.WithLabelValues(string(d.Verification.Failure)).Inc()
	}
	for _, f := range o.Features.Features {
		if !f.Anomalous {
			continue
		}
		hard := "false"
		if f.Hard {
			hard = "true"
		}
		c.anomalies.WithLabelValues(f.Name, hard).Inc()
	}
	if d.Scored {
		c.trust.Observe(d.Trust.Value)
	}
	c.latency.Observe(o.Latency.Seconds())
}

// OnSafeMode implements engine.Sink.
func (c *Collector) OnSafeMode(tr model.SafeModeTransition) {
	c.safeMode.Set(float64(tr.To))
	c.safeModeTrans.WithLabelValues(tr.To.String()).Inc()
}
