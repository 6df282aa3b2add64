// Package api serves the reminder state to a local presentation layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/venkytv/meeting-reminder/internal/models"
	"github.com/venkytv/meeting-reminder/pkg/calendar"
	"github.com/venkytv/meeting-reminder/pkg/scheduler"
)

const shutdownTimeout = 5 * time.Second

// Reminders is the command side of the reminder loop; implemented by
// scheduler.Runner.
type Reminders interface {
	Active(ctx context.Context) (*models.MeetingEvent, error)
	Dismiss(ctx context.Context) (scheduler.Change, bool, error)
	Snooze(ctx context.Context, minutes int) (scheduler.Change, bool, error)
	Join(ctx context.Context) (scheduler.Change, bool, error)
	Stats(ctx context.Context) (scheduler.Stats, error)
}

// EventSource exposes the cached calendar projections; implemented by
// calendar.Source.
type EventSource interface {
	Events() []*models.MeetingEvent
	Calendars() []*calendar.Calendar
	AccessGranted() bool
	LastRefresh() time.Time
}

// HealthChecker reports per-provider health; implemented by calendar.Manager.
type HealthChecker interface {
	HealthCheck(ctx context.Context) map[string]error
}

// Server is the HTTP API.
type Server struct {
	reminders Reminders
	events    EventSource
	health    HealthChecker
	gatherer  prometheus.Gatherer
	clock     clock.Clock
	logger    *slog.Logger
	router    chi.Router
}

// NewServer builds the router. health and gatherer may be nil.
func NewServer(reminders Reminders, events EventSource, health HealthChecker, gatherer prometheus.Gatherer, clk clock.Clock, logger *slog.Logger) *Server {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		reminders: reminders,
		events:    events,
		health:    health,
		gatherer:  gatherer,
		clock:     clk,
		logger:    logger,
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(s.logRequests)

	router.Get("/healthz", s.handleHealth)

	router.Route("/v1", func(r chi.Router) {
		r.Get("/reminder", s.handleActive)
		r.Post("/reminder/dismiss", s.handleDismiss)
		r.Post("/reminder/snooze", s.handleSnooze)
		r.Post("/reminder/join", s.handleJoin)
		r.Get("/events", s.handleEvents)
		r.Get("/calendars", s.handleCalendars)
	})

	if s.gatherer != nil {
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return router
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("HTTP API failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP API shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("Failed to write response", "error", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

// writeCommandError maps runner failures to a status code.
func (s *Server) writeCommandError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduler.ErrNotRunning):
		s.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.writeError(w, http.StatusGatewayTimeout, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}
