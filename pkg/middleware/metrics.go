package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dragondrop-dev/dragondrop/pkg/notify"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "dragondrop").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for request duration.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "dragondrop",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics holds the Prometheus metrics of an upload server.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestBytes    *prometheus.HistogramVec
	notifications   *prometheus.CounterVec
	busyWidgets     prometheus.Gauge
	relayClients    prometheus.Gauge
	wsErrors        *prometheus.CounterVec

	mu   sync.Mutex
	busy map[string]bool
}

// NewMetrics registers the metrics on the configured registry.
//
// Metrics collected:
//   - dragondrop_requests_total: Counter of upload requests by route and status
//   - dragondrop_request_duration_seconds: Histogram of request duration by route
//   - dragondrop_request_bytes: Histogram of request body size by route
//   - dragondrop_notifications_total: Counter of bus notifications by kind
//   - dragondrop_busy_widgets: Gauge of widgets with an upload in flight
//   - dragondrop_relay_clients: Gauge of connected relay clients
//   - dragondrop_websocket_errors_total: Counter of relay WebSocket errors
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "requests_total",
			Help:        "Total number of upload requests",
			ConstLabels: config.ConstLabels,
		}, []string{"route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_duration_seconds",
			Help:        "Upload request duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"route"}),

		requestBytes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "request_bytes",
			Help:        "Upload request body size in bytes",
			ConstLabels: config.ConstLabels,
			Buckets:     []float64{1024, 10240, 102400, 1048576, 10485760, 104857600}, // 1KB to 100MB
		}, []string{"route"}),

		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "notifications_total",
			Help:        "Total widget notifications by kind",
			ConstLabels: config.ConstLabels,
		}, []string{"kind"}),

		busyWidgets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "busy_widgets",
			Help:        "Number of widgets with an upload in flight",
			ConstLabels: config.ConstLabels,
		}),

		relayClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "relay_clients",
			Help:        "Number of connected relay clients",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total relay WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),

		busy: make(map[string]bool),
	}
}

// Handler returns middleware that records request count, duration and body
// size. Routes are labelled with the chi route pattern when there is one,
// so path parameters do not explode cardinality.
//
//	m := middleware.NewMetrics()
//	r.Use(m.Handler)
//	r.Handle("/metrics", promhttp.Handler())
func (m *Metrics) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := newStatusWriter(w)

		next.ServeHTTP(sw, r)

		route := routePattern(r)
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		if r.ContentLength > 0 {
			m.requestBytes.WithLabelValues(route).Observe(float64(r.ContentLength))
		}
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(sw.status)).Inc()
	})
}

// routePattern returns the matched chi pattern, or the raw path outside chi.
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if p := rctx.RoutePattern(); p != "" {
			return p
		}
	}
	if r.URL.Path == "" {
		return "/"
	}
	return r.URL.Path
}

// ObserveBus counts every notification on bus and tracks busy widgets.
// The returned func stops observing.
func (m *Metrics) ObserveBus(bus *notify.Bus) func() {
	return bus.Tap(func(ev notify.Event) {
		m.notifications.WithLabelValues(string(ev.Key.Kind)).Inc()
		if ev.Key.Kind != notify.KindBusy {
			return
		}
		on, _ := ev.Payload.(bool)

		m.mu.Lock()
		defer m.mu.Unlock()
		if m.busy[ev.Key.ID] == on {
			return
		}
		if on {
			m.busy[ev.Key.ID] = true
			m.busyWidgets.Inc()
		} else {
			delete(m.busy, ev.Key.ID)
			m.busyWidgets.Dec()
		}
	})
}

// RecordRelayConnect records a relay client connecting.
func (m *Metrics) RecordRelayConnect() {
	m.relayClients.Inc()
}

// RecordRelayDisconnect records a relay client disconnecting.
func (m *Metrics) RecordRelayDisconnect() {
	m.relayClients.Dec()
}

// RecordWebSocketError records a relay WebSocket error by category.
func (m *Metrics) RecordWebSocketError(err error) {
	if err == nil {
		return
	}
	m.wsErrors.WithLabelValues(categorizeError(err)).Inc()
}

// categorizeError categorizes an error for metrics labeling.
func categorizeError(err error) string {
	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout"):
		return "timeout"
	case strings.Contains(errStr, "close"):
		return "closed"
	case strings.Contains(errStr, "broken pipe"), strings.Contains(errStr, "connection reset"):
		return "connection"
	case strings.Contains(errStr, "invalid"), strings.Contains(errStr, "unexpected"):
		return "protocol"
	default:
		return "internal"
	}
}

// statusWriter captures the response status.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
