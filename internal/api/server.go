package api

import (
	"log/slog"
	"net/http"

	"github.com/NYTimes/gziphandler"
	"github.com/dgallion1/treerows/internal/config"
	"github.com/dgallion1/treerows/internal/rowserver"
	"github.com/dgallion1/treerows/internal/stats"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// Server is the HTTP API in front of the row server.
type Server struct {
	handler  http.Handler
	rows     *rowserver.Server
	latency  *stats.Latency
	gatherer prometheus.Gatherer
	log      *slog.Logger
	cfg      config.Config
}

// NewServer creates and configures the HTTP server. latency and gatherer may
// be nil, in which case their endpoints are not mounted.
func NewServer(rows *rowserver.Server, latency *stats.Latency, gatherer prometheus.Gatherer, log *slog.Logger, cfg config.Config) *Server {
	s := &Server{
		rows:     rows,
		latency:  latency,
		gatherer: gatherer,
		log:      log,
		cfg:      cfg,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(s.log))
	r.Use(cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	}).Handler)

	// Public endpoints.
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.cfg.MetricsEnabled && s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	// Authenticated endpoints.
	r.Group(func(r chi.Router) {
		if s.cfg.APIKey != "" {
			r.Use(AuthMiddleware(s.cfg.APIKey, s.log))
		}

		r.Post("/api/rows", s.handlePostRows)
		r.Get("/api/rows", s.handleGetRows)
		r.Get("/api/tree/stats", s.handleTreeStats)
		if s.latency != nil {
			r.Get("/api/stats/latency", s.handleLatencyStats)
		}
	})

	s.handler = gziphandler.GzipHandler(r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"ready":  s.rows.Ready(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.rows.Ready() {
		jsonError(w, rowserver.ErrNotReady.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ready": true})
}
