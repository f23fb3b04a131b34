package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector exports integration counters to Prometheus. It satisfies both
// the derivative recorder of the ode package and the step recorder of the
// sim package.
type Collector struct {
	derivatives prometheus.Counter
	accepted    prometheus.Counter
	rejected    prometheus.Counter
	clamps      prometheus.Counter
	runs        *prometheus.CounterVec
	duration    prometheus.Histogram
}

// NewCollector creates the collectors and registers them on reg.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	c := &Collector{
		derivatives: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "celltx_derivative_evaluations_total",
			Help: "Total number of derivative function evaluations",
		}),
		accepted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "celltx_steps_accepted_total",
			Help: "Total number of accepted integration steps",
		}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "celltx_steps_rejected_total",
			Help: "Total number of steps rejected by error control",
		}),
		clamps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "celltx_negative_clamps_total",
			Help: "Total number of negative magnitudes clamped to zero",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "celltx_runs_total",
			Help: "Completed runs by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "celltx_run_duration_seconds",
			Help:    "Wall-clock duration of integration runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
	}
	for _, col := range []prometheus.Collector{c.derivatives, c.accepted, c.rejected, c.clamps, c.runs, c.duration} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Collector) ObserveDerivative() { c.derivatives.Inc() }

func (c *Collector) StepAccepted() { c.accepted.Inc() }

func (c *Collector) StepRejected() { c.rejected.Inc() }

func (c *Collector) Clamped(n int) { c.clamps.Add(float64(n)) }

// RunFinished records the duration and outcome of one run.
func (c *Collector) RunFinished(d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.runs.WithLabelValues(outcome).Inc()
	c.duration.Observe(d.Seconds())
}
