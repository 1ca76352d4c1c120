package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by the API and the delivery
// engine. All methods are safe on a nil receiver so wiring stays optional.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	sendsTotal           *prometheus.CounterVec
	sendDuration         prometheus.Histogram
	sendsInflight        prometheus.Gauge
	batchesTotal         prometheus.Counter
	tickDuration         prometheus.Histogram
	leaseContentionTotal prometheus.Counter
	commitFailuresTotal  prometheus.Counter
	subscribersPruned    prometheus.Counter
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "broadcast_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		sendsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "sends_total",
				Help:      "Total number of per-subscriber sends by classified result.",
			},
			[]string{"result"},
		),
		sendDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "broadcast_engine",
				Name:      "send_duration_seconds",
				Help:      "Push service send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
		),
		sendsInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "broadcast_engine",
				Name:      "sends_inflight",
				Help:      "Current number of in-flight push sends.",
			},
		),
		batchesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "batches_total",
				Help:      "Total number of committed delivery batches.",
			},
		),
		tickDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "broadcast_engine",
				Name:      "tick_duration_seconds",
				Help:      "Wall-clock duration of one scheduler tick.",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		leaseContentionTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "lease_contention_total",
				Help:      "Total number of ticks skipped because another tick held the lease.",
			},
		),
		commitFailuresTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "commit_failures_total",
				Help:      "Total number of batch commits that failed at the store.",
			},
		),
		subscribersPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "broadcast_engine",
				Name:      "subscribers_pruned_total",
				Help:      "Total number of subscribers removed after a permanent failure.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.sendsTotal,
		m.sendDuration,
		m.sendsInflight,
		m.batchesTotal,
		m.tickDuration,
		m.leaseContentionTotal,
		m.commitFailuresTotal,
		m.subscribersPruned,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncSend(result string) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(strings.ToLower(result))
	if label == "" {
		label = "unknown"
	}
	m.sendsTotal.WithLabelValues(label).Inc()
}

func (m *Metrics) ObserveSendDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.Observe(seconds)
}

func (m *Metrics) IncSendsInflight() {
	if m == nil {
		return
	}
	m.sendsInflight.Inc()
}

func (m *Metrics) DecSendsInflight() {
	if m == nil {
		return
	}
	m.sendsInflight.Dec()
}

func (m *Metrics) IncBatchCommitted() {
	if m == nil {
		return
	}
	m.batchesTotal.Inc()
}

func (m *Metrics) ObserveTickDuration(duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.tickDuration.Observe(seconds)
}

func (m *Metrics) IncLeaseContention() {
	if m == nil {
		return
	}
	m.leaseContentionTotal.Inc()
}

func (m *Metrics) IncCommitFailure() {
	if m == nil {
		return
	}
	m.commitFailuresTotal.Inc()
}

func (m *Metrics) IncSubscriberPruned() {
	if m == nil {
		return
	}
	m.subscribersPruned.Inc()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}
