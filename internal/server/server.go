// Package server hosts the reconciliation operations over HTTP. Handlers
// accept the multipart form the consultancy frontend submits and respond
// with the standard success/error envelope.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"gst-reconciliation-service/internal/reconciler"
	"gst-reconciliation-service/pkg/logger"
)

// Server is the HTTP front of the reconciliation service.
type Server struct {
	router   chi.Router
	handlers *Handlers
	log      logger.Logger
}

// NewServer wires routes and middleware around a reconciliation service.
func NewServer(svc *reconciler.Service) *Server {
	s := &Server{
		router:   chi.NewRouter(),
		handlers: NewHandlers(svc),
		log:      logger.WithComponent("server"),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogger)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Session-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handlers.HealthCheck)
	s.router.Get("/api/v1/periods", s.handlers.ListPeriods)

	s.router.Route("/api/v1/reconcile", func(r chi.Router) {
		r.Post("/2b-books", s.handlers.Reconcile2BManual)
		r.Post("/1-books", s.handlers.Reconcile1VsBooks)
		r.Post("/3b-books", s.handlers.Reconcile3BVsBooks)
		r.Post("/comprehensive", s.handlers.ReconcileComprehensive)
	})
}

// requestLogger logs one line per request through the structured logger.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.WithFields(logger.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      ww.Status(),
			"duration_ms": time.Since(start).Milliseconds(),
			"request_id":  middleware.GetReqID(r.Context()),
		}).Info("request handled")
	})
}

// ServeHTTP makes the server usable as a plain http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Start runs the server until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
