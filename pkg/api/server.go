// Package api bitctf REST API
//
// Schemas are YAML documents stored in the registry and addressed by id or
// name. All routes under /api/v1 require the X-API-Key header.
//
//	GET    /api/v1/health
//	GET    /api/v1/schemas
//	POST   /api/v1/schemas
//	GET    /api/v1/schemas/{id}
//	PUT    /api/v1/schemas/{id}
//	DELETE /api/v1/schemas/{id}
//	GET    /api/v1/schemas/{id}/classify
//	POST   /api/v1/schemas/{id}/decode
//	POST   /api/v1/schemas/{id}/encode
//	GET    /metrics
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Routes builds the HTTP handler with all routes configured
func (s *Server) Routes() http.Handler {
	m := s.metrics
	r := chi.NewRouter()

	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Prometheus metrics endpoint (unprotected for scraping)
	r.Handle("/metrics", promhttp.HandlerFor(m.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(m.InstrumentAuthMiddleware(apiKeyMiddleware(s.config.APIKey)))

		r.Get("/health", m.InstrumentHandler("GET", "/api/v1/health", s.handleHealth))

		r.Get("/schemas", m.InstrumentHandler("GET", "/api/v1/schemas", s.handleListSchemas))
		r.Post("/schemas", m.InstrumentHandler("POST", "/api/v1/schemas", s.handleCreateSchema))
		r.Get("/schemas/{id}", m.InstrumentHandler("GET", "/api/v1/schemas/{id}", s.handleGetSchema))
		r.Put("/schemas/{id}", m.InstrumentHandler("PUT", "/api/v1/schemas/{id}", s.handleUpdateSchema))
		r.Delete("/schemas/{id}", m.InstrumentHandler("DELETE", "/api/v1/schemas/{id}", s.handleDeleteSchema))

		r.Get("/schemas/{id}/classify", m.InstrumentHandler("GET", "/api/v1/schemas/{id}/classify", s.handleClassify))
		r.Post("/schemas/{id}/decode", m.InstrumentHandler("POST", "/api/v1/schemas/{id}/decode", s.handleDecode))
		r.Post("/schemas/{id}/encode", m.InstrumentHandler("POST", "/api/v1/schemas/{id}/encode", s.handleEncode))
	})

	return r
}

// Serve serves the API on l until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, l net.Listener) error {
	srv := &http.Server{
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "server failed")
	case <-ctx.Done():
	}

	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return errors.Wrap(err, "failed to shut down server")
	}
	return nil
}

// StartServer listens on the configured address and serves until ctx is done
func StartServer(ctx context.Context, store ISchemaStore, config ServerConfig, logger logrus.FieldLogger) error {
	server := NewServer(store, config, NewMetrics(), logger)

	bind := config.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}
	addr := net.JoinHostPort(bind, fmt.Sprint(config.Port))
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on %s", addr)
	}

	server.logger.WithField("addr", l.Addr().String()).Info("starting bitctf REST API server")
	server.logger.Infof("metrics available at http://%s/metrics", l.Addr())
	return server.Serve(ctx, l)
}
