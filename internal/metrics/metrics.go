package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can build as many as they need.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry        *prometheus.Registry
	chatRequests    *prometheus.CounterVec
	chatDuration    prometheus.Histogram
	upstreamLatency *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		chatRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "gemini_chat_requests_total",
			Help: "Proxied chat requests by outcome",
		}, []string{"outcome"}),
		chatDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "gemini_chat_request_duration_seconds",
			Help:    "End to end time of proxied chat requests",
			Buckets: prometheus.DefBuckets,
		}),
		upstreamLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Latency of outbound calls to storage and the AI provider",
			Buckets: prometheus.DefBuckets,
		}, []string{"upstream", "outcome"}),
	}
}

// ObserveChat records one proxied chat request.
func (m *Metrics) ObserveChat(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.chatRequests.WithLabelValues(outcome).Inc()
	m.chatDuration.Observe(d.Seconds())
}

// ObserveUpstream records one outbound call.
func (m *Metrics) ObserveUpstream(upstream, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamLatency.WithLabelValues(upstream, outcome).Observe(d.Seconds())
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
