package scan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks the scan lifecycle. A nil *Metrics records nothing.
type Metrics struct {
	Triggered prometheus.Counter
	Applied   prometheus.Counter
	Stale     prometheus.Counter
	Failed    prometheus.Counter
	Duration  prometheus.Histogram
}

// NewMetrics registers the scan collectors on reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Triggered: f.NewCounter(prometheus.CounterOpts{
			Namespace: "termaudit",
			Subsystem: "scan",
			Name:      "triggered_total",
			Help:      "Scan requests issued.",
		}),
		Applied: f.NewCounter(prometheus.CounterOpts{
			Namespace: "termaudit",
			Subsystem: "scan",
			Name:      "applied_total",
			Help:      "Scan results applied as the current finding list.",
		}),
		Stale: f.NewCounter(prometheus.CounterOpts{
			Namespace: "termaudit",
			Subsystem: "scan",
			Name:      "stale_total",
			Help:      "Scan results discarded because a newer request already completed.",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "termaudit",
			Subsystem: "scan",
			Name:      "failed_total",
			Help:      "Scan requests that ended in an error.",
		}),
		Duration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "termaudit",
			Subsystem: "scan",
			Name:      "duration_seconds",
			Help:      "Wall time of scans that produced a result.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
}

func (m *Metrics) triggered() {
	if m != nil {
		m.Triggered.Inc()
	}
}

func (m *Metrics) stale() {
	if m != nil {
		m.Stale.Inc()
	}
}

func (m *Metrics) observe(err error, d time.Duration) {
	if m == nil {
		return
	}
	if err != nil {
		m.Failed.Inc()
		return
	}
	m.Applied.Inc()
	m.Duration.Observe(d.Seconds())
}
