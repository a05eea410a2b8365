package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-relay/internal/config"
	"github.com/lexiqai/speech-relay/internal/observability"
	"github.com/lexiqai/speech-relay/internal/pipeline"
)

// Server exposes the submission API, the artifact file server and probes
type Server struct {
	cfg    *config.Config
	orch   *pipeline.Orchestrator
	checks []observability.Check
	logger zerolog.Logger
	server *http.Server
}

// New creates the HTTP server; checks feed /ready
func New(cfg *config.Config, orch *pipeline.Orchestrator, checks ...observability.Check) *Server {
	s := &Server{
		cfg:    cfg,
		orch:   orch,
		checks: checks,
		logger: observability.WithComponent("api"),
	}

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.WriteTimeout(), // runs are synchronous; /api/tts/ws sets its own deadlines
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/tts", s.handleSubmit)
	mux.HandleFunc("GET /api/tts/ws", s.handleStream)
	mux.HandleFunc("POST /api/tts/parse", s.handleParse)
	mux.HandleFunc("GET /api/voices", s.handleVoices)

	mux.HandleFunc("GET /health", observability.HealthCheckHandler())
	mux.HandleFunc("GET /ready", observability.ReadinessHandler(s.checks...))

	if s.cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	if s.cfg.DeliveryMode == config.DeliveryPersist {
		prefix := s.cfg.OutputURLPrefix
		if !strings.HasSuffix(prefix, "/") {
			prefix += "/"
		}
		mux.Handle("GET "+prefix, http.StripPrefix(prefix, http.FileServer(http.Dir(s.cfg.OutputDir))))
	}

	return s.withRequestLogging(mux)
}

// Start begins listening for HTTP requests
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("Starting HTTP server")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}
