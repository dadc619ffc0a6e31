// Package web serves the HTTP intake API: documents are posted for matching,
// operators trigger rebuilds, and Prometheus scrapes /metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fyeo/eventmatcher/internal/adapters/socket"
	"github.com/fyeo/eventmatcher/internal/domain/match"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// maxBody bounds a posted document.
const maxBody = 32 << 20

// Server is the HTTP API.
type Server struct {
	queries  socket.AppQueries
	metrics  http.Handler
	logger   *zap.Logger
	listener net.Listener
	httpSrv  *http.Server
	stopOnce sync.Once
}

// NewServer creates the HTTP API. metrics may be nil, in which case /metrics
// is not mounted.
func NewServer(queries socket.AppQueries, metrics http.Handler, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		queries: queries,
		metrics: metrics,
		logger:  logger.Named("http"),
	}
}

// Router returns the route table. Exposed for tests.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Post("/api/v1/match", s.handleMatch)
	r.Post("/api/v1/reindex", s.handleReindex)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// Start listens on host:port and serves in the background.
func (s *Server) Start(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.httpSrv = &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", ln.Addr().String()))

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts down the server. Idempotent.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		if s.httpSrv == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Warn("http shutdown", zap.Error(err))
		}
	})
}

func (s *Server) handleMatch(w http.ResponseWriter, r *http.Request) {
	var params socket.MatchParams
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(&params); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if params.Document.Text == "" {
		s.respondError(w, http.StatusBadRequest, "document text is required")
		return
	}

	s.logger.Debug("match request",
		zap.String("url", params.Document.URL),
		zap.Int("text_len", len(params.Document.Text)))

	result, err := s.queries.Match(r.Context(), params)
	switch {
	case errors.Is(err, match.ErrNoIndex):
		s.respondError(w, http.StatusServiceUnavailable, err.Error())
	case err != nil:
		s.logger.Error("match failed", zap.String("url", params.Document.URL), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	default:
		s.respondJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	result, err := s.queries.Reindex(r.Context())
	if err != nil {
		s.logger.Error("reindex failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := s.queries.Health()
	status := http.StatusOK
	if !health.Ready {
		status = http.StatusServiceUnavailable
	}
	s.respondJSON(w, status, health)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"error": msg})
}
