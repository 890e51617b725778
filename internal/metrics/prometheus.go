package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusObserver exports live run metrics in Prometheus format.
type PrometheusObserver struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	checks   *prometheus.CounterVec
	latency  prometheus.Histogram
	vus      prometheus.Gauge
}

// NewPrometheusObserver registers vuload series on a fresh registry.
func NewPrometheusObserver() *PrometheusObserver {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &PrometheusObserver{
		registry: reg,
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuload",
			Name:      "requests_total",
			Help:      "Requests completed, by status code or transport failure kind.",
		}, []string{"status", "error_kind"}),
		checks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "vuload",
			Name:      "checks_total",
			Help:      "Check evaluations, by check name and result.",
		}, []string{"check", "result"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: "vuload",
			Name:      "request_duration_seconds",
			Help:      "Send-to-receipt latency, or time to failure.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
		}),
		vus: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "vuload",
			Name:      "active_vus",
			Help:      "Virtual users currently running.",
		}),
	}
}

func (p *PrometheusObserver) Observe(o Outcome) {
	if o.Failed() {
		p.requests.WithLabelValues("", string(o.Kind)).Inc()
	} else {
		p.requests.WithLabelValues(strconv.Itoa(o.StatusCode), "").Inc()
	}
	p.latency.Observe(o.Latency.Seconds())
	for _, res := range o.Checks {
		result := "fail"
		if res.Passed {
			result = "pass"
		}
		p.checks.WithLabelValues(res.Name, result).Inc()
	}
}

func (p *PrometheusObserver) ActiveVUs(n int) {
	p.vus.Set(float64(n))
}

// Registry exposes the underlying registry for tests and custom handlers.
func (p *PrometheusObserver) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus text format.
func (p *PrometheusObserver) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
