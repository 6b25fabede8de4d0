package main

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dragondrop-dev/dragondrop/internal/config"
	"github.com/dragondrop-dev/dragondrop/internal/errors"
	"github.com/dragondrop-dev/dragondrop/pkg/middleware"
	"github.com/dragondrop-dev/dragondrop/pkg/notify"
	"github.com/dragondrop-dev/dragondrop/pkg/relay"
	"github.com/dragondrop-dev/dragondrop/pkg/upload"
)

// server wires the upload receivers, the relay and the metrics endpoint.
type server struct {
	cfg      *config.Config
	bus      *notify.Bus
	store    upload.Store
	relay    *relay.Server
	metrics  *middleware.Metrics
	registry *prometheus.Registry
	router   chi.Router

	stopObserve func()
}

func newServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server, error) {
	store, err := openStore(ctx, cfg)
	if err != nil {
		return nil, errors.New("D030").
			WithDetail("Storage driver " + cfg.Storage.Driver + " could not be opened").
			Wrap(err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics(middleware.WithRegistry(reg))

	bus := notify.New()
	s := &server{
		cfg:      cfg,
		bus:      bus,
		store:    store,
		metrics:  metrics,
		registry: reg,
		relay: relay.New(bus,
			relay.WithLogger(logger),
			relay.WithObserver(metrics),
			relay.WithCheckOrigin(checkOrigin(cfg.Server.AllowedOrigins)),
		),
		stopObserve: metrics.ObserveBus(bus),
	}

	ucfg := &upload.Config{
		MaxFileSize:  cfg.Upload.MaxFileSize,
		AllowedTypes: cfg.Upload.AllowedTypes,
		TempExpiry:   cfg.TempExpiry(),
		Logger:       logger,
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.OpenTelemetry())
		r.Use(metrics.Handler)
		// The widget's method is configurable; the handler rejects the rest.
		r.Handle(cfg.Server.UploadPath, upload.DataURLHandler(store, ucfg))
		r.Post(cfg.Server.ManualPath, upload.FormHandler(store, ucfg).ServeHTTP)
	})

	r.Handle(cfg.Server.RelayPath, s.relay)

	if cfg.Server.MetricsPath != "" {
		r.Handle(cfg.Server.MetricsPath, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	}

	s.router = r
	return s, nil
}

// Handler returns the root handler.
func (s *server) Handler() http.Handler {
	return s.router
}

// Close stops the relay and the bus observer.
func (s *server) Close() {
	s.stopObserve()
	s.relay.Close()
}

// openStore opens the configured upload store.
func openStore(ctx context.Context, cfg *config.Config) (upload.Store, error) {
	switch cfg.Storage.Driver {
	case "s3":
		return upload.NewS3StoreFromConfig(ctx, upload.S3Options{
			Bucket:       cfg.Storage.Bucket,
			Prefix:       cfg.Storage.Prefix,
			Region:       cfg.Storage.Region,
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
			MaxSize:      cfg.Upload.MaxFileSize,
			URLExpiry:    cfg.URLExpiry(),
		})
	default:
		return upload.NewDiskStore(cfg.StoragePath(), cfg.Upload.MaxFileSize)
	}
}

// checkOrigin allows requests without an Origin header and those whose
// origin host is listed. "*" allows every origin. An empty list keeps
// gorilla's same-origin check.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || set["*"] || set[origin] {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return set[u.Host]
	}
}
