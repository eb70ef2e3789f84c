package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lazypower/sigil/internal/engine"
	"github.com/lazypower/sigil/internal/metrics"
)

// Server is the sigil HTTP API. It is a thin boundary: every handler calls
// only into the engine façade.
type Server struct {
	engine       *engine.Engine
	met          *metrics.Metrics
	router       chi.Router
	version      string
	metricsToken string
	started      time.Time
}

// New creates a Server over the given engine.
func New(eng *engine.Engine, met *metrics.Metrics, version, metricsToken string) *Server {
	s := &Server{
		engine:       eng,
		met:          met,
		version:      version,
		metricsToken: metricsToken,
		started:      time.Now(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Post("/sigils", s.handleEncode)
	r.Get("/sigils", s.handleList)
	r.Get("/sigils/{id}", s.handleDecode)
	r.Post("/sigils/{id}/verify", s.handleVerify)
	r.Get("/coordinates/{coordinate}", s.handleLocate)
	r.Delete("/sigils/{id}", s.handleRevoke)

	r.Post("/admin/compact", s.handleCompact)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)
	r.Method("GET", "/metrics", s.metricsHandler())

	s.router = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
		"uptime":  time.Since(s.started).Seconds(),
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "storage unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) metricsHandler() http.Handler {
	h := promhttp.HandlerFor(s.met.Registry, promhttp.HandlerOpts{})
	if s.metricsToken == "" {
		return h
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.metricsToken {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		h.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError maps the engine error taxonomy onto HTTP statuses. Validation
// and not-found are expected 4xx; corruption and storage failures are 500s;
// an open breaker maps to 503.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInvalidPayload):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, engine.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, engine.ErrCorrupt):
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "record corrupt"})
	case errors.Is(err, engine.ErrDependencyUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "dependency unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}
