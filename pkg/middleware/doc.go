// Package middleware provides observability middleware for the dragondrop
// upload server.
//
// This package includes:
//   - OpenTelemetry tracing for upload requests
//   - Prometheus metrics for requests, widget notifications and the relay
//
// # OpenTelemetry Middleware
//
// The OpenTelemetry middleware starts a server span per request and continues
// the caller's trace when the request carries a traceparent header:
//
//	r := chi.NewRouter()
//	r.Use(middleware.OpenTelemetry(
//	    middleware.WithTracerName("uploads"),
//	    middleware.WithRequestFilter(func(r *http.Request) bool {
//	        return r.URL.Path != "/healthz"
//	    }),
//	))
//
// # Prometheus Metrics
//
// NewMetrics registers its collectors on the given registry:
//   - dragondrop_requests_total: Upload requests by route and status
//   - dragondrop_request_duration_seconds: Request duration histogram
//   - dragondrop_notifications_total: Bus notifications by kind
//   - dragondrop_busy_widgets: Widgets with an upload in flight
//   - dragondrop_relay_clients: Connected relay clients
//
//	m := middleware.NewMetrics()
//	r.Use(m.Handler)
//	stop := m.ObserveBus(bus)
//	defer stop()
//	r.Handle("/metrics", promhttp.Handler())
//
// # Context Propagation
//
// The span lives in the request context, so stores and outbound clients that
// take r.Context() join the trace:
//
//	func handle(w http.ResponseWriter, r *http.Request) {
//	    id, err := store.Save(r.Context(), name, typ, size, body)
//	    ...
//	}
package middleware
