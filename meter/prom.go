package meter

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Prometheus struct {
	Registry *prometheus.Registry
	counter  *prometheus.CounterVec
	timer    *prometheus.HistogramVec
}

// CreatePrometheus registers the crank counters on a fresh registry.  The
// service label lets several agents share one scrape target.
func CreatePrometheus(service string) (*Prometheus, error) {
	registry := prometheus.NewRegistry()
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "crank",
		Name:        "events_total",
		Help:        "Pipeline events by stage.",
		ConstLabels: prometheus.Labels{"service": service},
	}, []string{"stage"})
	timer := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "crank",
		Name:        "stage_seconds",
		Help:        "Time spent per pipeline stage.",
		ConstLabels: prometheus.Labels{"service": service},
		Buckets:     prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"stage"})
	for _, c := range []prometheus.Collector{counter, timer} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	// pre-create the series so dashboards see zeros
	for _, s := range AllStages {
		counter.WithLabelValues(string(s))
	}
	return &Prometheus{Registry: registry, counter: counter, timer: timer}, nil
}

func (p *Prometheus) Incr(stage Stage) {
	p.counter.WithLabelValues(string(stage)).Inc()
}

func (p *Prometheus) Observe(stage Stage, d time.Duration) {
	p.timer.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// Counter exposes a single series, mostly for tests.
func (p *Prometheus) Counter(stage Stage) prometheus.Counter {
	return p.counter.WithLabelValues(string(stage))
}
