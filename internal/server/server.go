// Package server exposes group feeds over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"linkfeed/internal/domain"
	"linkfeed/internal/gateway"
	"linkfeed/internal/storage"
	"linkfeed/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// Resolver authenticates feed tokens.
type Resolver interface {
	Resolve(ctx context.Context, token string) (domain.Group, error)
}

// Renderer produces the feed document of a group.
type Renderer interface {
	Render(ctx context.Context, group domain.Group) (string, error)
}

// StatsSource reports store-wide counters.
type StatsSource interface {
	Stats(ctx context.Context) (storage.Stats, error)
}

// Server serves the feed, health and metrics endpoints.
type Server struct {
	tokens Resolver
	feeds  Renderer
	stats  StatsSource
	log    logrus.FieldLogger
	router chi.Router
}

func New(tokens Resolver, feeds Renderer, stats StatsSource, logger logrus.FieldLogger) *Server {
	telemetry.Init()
	s := &Server{
		tokens: tokens,
		feeds:  feeds,
		stats:  stats,
		log:    logger.WithField("component", "http"),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
	}))

	r.Get("/", s.handleRoot)
	r.Get("/rss", s.handleRSS)
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	return r
}

// ServeHTTP makes the server usable with httptest.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run listens on port until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", srv.Addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Telegram RSS Feed Server",
		"usage":   "Access RSS feed at /rss?token=YOUR_TOKEN",
	})
}

func (s *Server) handleRSS(w http.ResponseWriter, r *http.Request) {
	group, err := s.tokens.Resolve(r.Context(), r.URL.Query().Get("token"))
	if errors.Is(err, gateway.ErrUnauthorized) {
		telemetry.FeedRequests.WithLabelValues("401").Inc()
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Unauthorized: Invalid token"})
		return
	}
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	doc, err := s.feeds.Render(r.Context(), group)
	if err != nil {
		s.internalError(w, r, err)
		return
	}

	telemetry.FeedRequests.WithLabelValues("200").Inc()
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(doc)); err != nil {
		s.log.WithError(err).Debug("Client went away while writing feed")
	}
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.FeedRequests.WithLabelValues("500").Inc()
	s.log.WithError(err).WithField("request_id", middleware.GetReqID(r.Context())).Error("Failed to serve feed")
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "Internal server error"})
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	*storage.Stats
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.stats.Stats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Health check failed")
		s.writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "error", Message: "store unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Stats: &stats})
}

// writeJSON sends v with the given status. The status is already on the wire
// when encoding fails, so the error is only logged.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.WithError(err).WithField("status", status).Error("Failed to encode JSON response")
	}
}
