// Package api implements the HTTP surface: the agent chat endpoints
// (plain, SSE, WebSocket) and the direct weather lookups.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nimbusai/nimbus/internal/agent"
	"github.com/nimbusai/nimbus/internal/archive"
	"github.com/nimbusai/nimbus/internal/buildinfo"
	"github.com/nimbusai/nimbus/internal/tools"
	"github.com/nimbusai/nimbus/internal/weatherquery"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Server is the HTTP API server.
type Server struct {
	listen  string
	loop    *agent.Loop
	query   *weatherquery.Service
	arch    *archive.Store
	logger  *slog.Logger
	server  *http.Server
	started time.Time
}

// NewServer creates the API server. listen is a host:port address.
func NewServer(listen string, loop *agent.Loop, query *weatherquery.Service, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		listen: listen,
		loop:   loop,
		query:  query,
		logger: logger.With("component", "api"),
	}
}

// SetArchive enables durable turn history and the session listing
// endpoints.
func (s *Server) SetArchive(a *archive.Store) {
	s.arch = a
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Agent chat endpoints
	mux.HandleFunc("POST /nimbus/agent/chat", s.handleChat)
	mux.HandleFunc("POST /nimbus/agent/chat/stream", s.handleChatStream)
	mux.HandleFunc("GET /nimbus/agent/chat/ws", s.handleChatWS)
	mux.HandleFunc("GET /nimbus/agent/sessions", s.handleSessions)

	// Direct weather endpoints
	mux.HandleFunc("GET /weather/cities", s.handleCities)
	mux.HandleFunc("GET /weather/{city}", s.handleWeatherToday)
	mux.HandleFunc("GET /weather/{city}/forecast", s.handleWeatherForecast)

	// Health endpoints
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /version", s.handleVersion)
	mux.HandleFunc("GET /stats", s.handleStats)

	return s.withLogging(mux)
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.listen,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // long for streaming responses
	}

	s.started = time.Now()
	s.logger.Info("starting API server", "listen", s.listen)
	return s.server.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"code":    code,
		},
	}, s.logger)
}

// queryError maps lookup failures to HTTP status codes.
func (s *Server) queryError(w http.ResponseWriter, err error) {
	var notFound *tools.ErrCityNotFound
	var noData *tools.ErrNoData
	var provider *tools.ErrProviderFailure
	switch {
	case errors.As(err, &notFound), errors.As(err, &noData):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.As(err, &provider):
		s.errorResponse(w, http.StatusBadGateway, err.Error())
	default:
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "healthy"}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.Info(), s.logger)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]any{
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"version": buildinfo.Version,
	}
	if s.arch != nil {
		if st, err := s.arch.Stats(r.Context()); err == nil {
			stats["archive"] = st
		} else {
			s.logger.Warn("archive stats failed", "error", err)
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, stats, s.logger)
}

func (s *Server) handleCities(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"cities": s.query.HotCities()}, s.logger)
}

func (s *Server) handleWeatherToday(w http.ResponseWriter, r *http.Request) {
	report, err := s.query.Today(r.Context(), r.PathValue("city"))
	if err != nil {
		s.queryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, report, s.logger)
}

func (s *Server) handleWeatherForecast(w http.ResponseWriter, r *http.Request) {
	days := 0
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid days value %q", v))
			return
		}
		days = n
	}

	report, err := s.query.Forecast(r.Context(), r.PathValue("city"), days)
	if err != nil {
		s.queryError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, report, s.logger)
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if s.arch == nil {
		s.errorResponse(w, http.StatusServiceUnavailable, "session archive is not enabled")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}

	sessions, err := s.arch.RecentSessions(r.Context(), r.URL.Query().Get("userId"), limit)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"sessions": sessions}, s.logger)
}
