// Package server exposes the daemon control API plus health and metrics
// endpoints.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"pereryv/internal/events"
	"pereryv/internal/reminder"
	"pereryv/internal/settings"
)

// ReminderControl is the part of the trigger loop the control API drives.
type ReminderControl interface {
	Status() reminder.Status
	Settings() settings.Settings
	ShowNow(ctx context.Context, trigger string)
	ClosePopup(ctx context.Context, confirmed bool) error
	UpdateSettings(ctx context.Context, next settings.Settings) error
}

// HistoryReader lists recorded reminder events.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]events.Event, error)
}

// Exporter writes a workbook and returns its path.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Pinger reports backend liveness for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HTTPServer serves the control API.
type HTTPServer struct {
	server   *http.Server
	control  ReminderControl
	history  HistoryReader
	exporter Exporter
	token    string
	logger   zerolog.Logger
}

// NewHTTPServer builds the control API server. History and exporter may be
// nil; their endpoints then report 503. An empty token disables auth.
func NewHTTPServer(addr, token string, control ReminderControl, history HistoryReader, exporter Exporter, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		control:  control,
		history:  history,
		exporter: exporter,
		token:    token,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/status", s.auth(s.handleStatus))
	mux.HandleFunc("/api/v1/remind", s.auth(s.handleRemind))
	mux.HandleFunc("/api/v1/popup/close", s.auth(s.handlePopupClose))
	mux.HandleFunc("/api/v1/settings", s.auth(s.handleSettings))
	mux.HandleFunc("/api/v1/history", s.auth(s.handleHistory))
	mux.HandleFunc("/api/v1/export", s.auth(s.handleExport))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start serves until ctx is cancelled.
func (s *HTTPServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()
	s.logger.Info().Str("addr", s.server.Addr).Msg("control API listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("control API server error")
	}
}

// Handler exposes the route table, mainly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && r.Header.Get("X-Api-Key") != s.token {
			writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// StartHealthServer serves /healthz and /readyz on its own port. Pingers may
// be nil; nil entries are skipped.
func StartHealthServer(ctx context.Context, port int, logger zerolog.Logger, pingers ...Pinger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctxPing, cancel := context.WithTimeout(r.Context(), time.Second)
		defer cancel()
		for _, p := range pingers {
			if p == nil {
				continue
			}
			if err := p.Ping(ctxPing); err != nil {
				http.Error(w, "backend not ready", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("health server error")
	}
}

// StartMetricsServer serves the Prometheus endpoint on its own port.
func StartMetricsServer(ctx context.Context, port int, logger zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
