// Package api exposes the two HTTP surfaces: the plain /chat surface and
// the OpenAI-compatible /chat/completions surface with emulated streaming.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/odvcencio/chatproxy/pkg/logging"
	"github.com/odvcencio/chatproxy/pkg/proxy"
)

// serviceName identifies the proxy in metadata responses.
const serviceName = "chatproxy"

// Options configures the HTTP server.
type Options struct {
	Bind string
	// ForceStream answers every /chat/completions call as SSE regardless
	// of the request's stream flag.
	ForceStream bool
}

// Server serves both surfaces over one listener.
type Server struct {
	orch       *proxy.Orchestrator
	opts       Options
	logger     *logging.Logger
	httpServer *http.Server
}

// NewServer wires a Server over the orchestrator.
func NewServer(orch *proxy.Orchestrator, opts Options, logger *logging.Logger) *Server {
	s := &Server{orch: orch, opts: opts, logger: logger}
	s.httpServer = &http.Server{
		Addr:              opts.Bind,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Router builds the chi router for both surfaces.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(s.loggingMiddleware)

	// Simple surface.
	r.Get("/", s.handleRoot)
	r.Post("/chat", s.handleChat)
	r.Get("/health", s.handleHealth)
	r.Post("/restart", s.handleRestart)
	r.Get("/models", s.handleSupportedModels)

	// OpenAI-compatible surface at both the bare path and /v1.
	r.Post("/chat/completions", s.handleChatCompletions)
	r.Route("/v1", func(r chi.Router) {
		r.Get("/", s.handleV1Root)
		r.Get("/health", s.handleV1Health)
		r.Get("/models", s.handleModels)
		r.Post("/chat/completions", s.handleChatCompletions)
	})

	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	return r
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info(logging.CategoryHTTP, "server_started", "", map[string]any{
		"bind": s.opts.Bind,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
