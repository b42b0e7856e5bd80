package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Checks      *prometheus.CounterVec
	Rejections  *prometheus.CounterVec
	StoreErrors prometheus.Counter
	Degraded    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Checks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teller_ratelimit_checks_total",
			Help: "Rate limit checks by endpoint class",
		}, []string{"class"}),
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "teller_ratelimit_rejections_total",
			Help: "Requests rejected with 429 by endpoint class",
		}, []string{"class"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "teller_ratelimit_store_errors_total",
			Help: "Failed calls to the primary rate limit store",
		}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "teller_ratelimit_degraded",
			Help: "1 while checks are served from the in-memory fallback",
		}),
	}
}

func (m *Metrics) ObserveCheck(class string, allowed bool) {
	if m == nil {
		return
	}
	m.Checks.WithLabelValues(class).Inc()
	if !allowed {
		m.Rejections.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncrementStoreErrors() {
	if m == nil {
		return
	}
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if m == nil {
		return
	}
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
