package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	metricsNamespace = "cmsconsole"

	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// Collector owns the console's Prometheus registry and metric vectors.
// A nil Collector is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	gatewayCalls        *prometheus.CounterVec
	gatewayCallDuration *prometheus.HistogramVec
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	liveViews           prometheus.Gauge
	realtimeEvents      *prometheus.CounterVec
}

// NewCollector creates a Collector with its own registry.
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	collector := &Collector{
		registry: registry,
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "calls_total",
			Help:      "Backend calls issued by the console.",
		}, []string{"operation", "outcome"}),
		gatewayCallDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "gateway",
			Name:      "call_duration_seconds",
			Help:      "Duration of backend calls in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Console HTTP requests served.",
		}, []string{"method", "route", "status_code"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of console HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		liveViews: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "live_views",
			Help:      "Live table views currently registered.",
		}),
		realtimeEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "realtime",
			Name:      "events_total",
			Help:      "Push channel events received.",
		}, []string{"event"}),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collector.gatewayCalls,
		collector.gatewayCallDuration,
		collector.httpRequests,
		collector.httpRequestDuration,
		collector.liveViews,
		collector.realtimeEvents,
	)
	return collector
}

// ObserveGatewayCall records one backend call.
func (collector *Collector) ObserveGatewayCall(operation string, duration time.Duration, callErr error) {
	if collector == nil {
		return
	}
	outcome := OutcomeSucceeded
	if callErr != nil {
		outcome = OutcomeFailed
	}
	collector.gatewayCalls.WithLabelValues(operation, outcome).Inc()
	collector.gatewayCallDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveHTTPRequest records one served console request.
func (collector *Collector) ObserveHTTPRequest(method string, route string, statusCode int, duration time.Duration) {
	if collector == nil {
		return
	}
	collector.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	collector.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// SetLiveViews publishes the number of registered live views.
func (collector *Collector) SetLiveViews(count int) {
	if collector == nil {
		return
	}
	collector.liveViews.Set(float64(count))
}

// ObserveRealtimeEvent counts one received push event.
func (collector *Collector) ObserveRealtimeEvent(event string) {
	if collector == nil {
		return
	}
	collector.realtimeEvents.WithLabelValues(event).Inc()
}

// Registry exposes the underlying registry for tests and custom exporters.
func (collector *Collector) Registry() *prometheus.Registry {
	return collector.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (collector *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(collector.registry, promhttp.HandlerOpts{})
}
