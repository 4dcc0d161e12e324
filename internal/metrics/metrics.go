// Package metrics exposes Prometheus counters for bridged requests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	requestsTotal *prometheus.CounterVec
	latencyMs     *prometheus.HistogramVec
	tokensTotal   *prometheus.CounterVec
	activeStreams prometheus.Gauge
}

func New() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_bridge_requests_total",
			Help: "Total number of requests processed by the bridge.",
		}, []string{"ingress", "egress", "status"}),
		latencyMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_bridge_request_latency_ms",
			Help:    "Request latency in milliseconds, through the end of the stream for streamed replies.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2000, 5000, 10000, 30000},
		}, []string{"ingress", "egress", "status"}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_bridge_tokens_total",
			Help: "Tokens reported by backends, by direction.",
		}, []string{"model", "direction"}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "llm_bridge_active_streams",
			Help: "Streams currently being transcoded.",
		}),
	}
	r.MustRegister(m.requestsTotal, m.latencyMs, m.tokensTotal, m.activeStreams)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(ingress, egress string, status int, dur time.Duration) {
	s := strconv.Itoa(status)
	m.requestsTotal.WithLabelValues(ingress, egress, s).Inc()
	m.latencyMs.WithLabelValues(ingress, egress, s).Observe(float64(dur.Milliseconds()))
}

func (m *Metrics) ObserveTokens(model string, input, output int) {
	if input > 0 {
		m.tokensTotal.WithLabelValues(model, "input").Add(float64(input))
	}
	if output > 0 {
		m.tokensTotal.WithLabelValues(model, "output").Add(float64(output))
	}
}

// StreamStarted marks a stream as active; the returned func marks it done.
func (m *Metrics) StreamStarted() func() {
	m.activeStreams.Inc()
	return m.activeStreams.Dec
}
