// Package gateway is the HTTP surface of the orchestration engine: the
// streaming chat endpoint, conversation management, health and metrics.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/finsight/internal/agent"
	"github.com/haasonsaas/finsight/internal/config"
	"github.com/haasonsaas/finsight/internal/conversations"
	"github.com/haasonsaas/finsight/internal/knowledge"
	"github.com/haasonsaas/finsight/internal/observability"
)

// Deps are the collaborators the gateway serves.
type Deps struct {
	Provider  agent.LLMProvider
	Registry  *agent.ToolRegistry
	Store     conversations.Store
	Knowledge knowledge.ContextProvider
	Logger    *slog.Logger
	Metrics   *observability.Metrics
	Tracer    *observability.Tracer
}

// Server hosts the HTTP API.
type Server struct {
	config    *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	store     conversations.Store
	knowledge knowledge.ContextProvider
	window    *agent.Window
	loop      *agent.Loop
	system    string

	httpServer    *http.Server
	metricsServer *http.Server
}

// NewServer wires a gateway over its collaborators.
func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("llm provider is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("conversation store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	windowCfg := agent.DefaultWindowConfig()
	if cfg.Agent.ContextMaxChars > 0 {
		windowCfg.MaxChars = cfg.Agent.ContextMaxChars
	}

	loop := agent.NewLoop(deps.Provider, deps.Registry, &agent.LoopConfig{
		MaxIterations: cfg.Agent.MaxIterations,
		MaxTokens:     cfg.Agent.MaxTokens,
	}, agent.Options{
		Logger:  logger,
		Metrics: deps.Metrics,
		Tracer:  deps.Tracer,
	})

	system := cfg.Agent.System
	if system == "" {
		system = defaultSystemPrompt
	}

	return &Server{
		config:    cfg,
		logger:    logger.With("component", "gateway"),
		metrics:   deps.Metrics,
		store:     deps.Store,
		knowledge: deps.Knowledge,
		window:    agent.NewWindow(windowCfg),
		loop:      loop,
		system:    system,
	}, nil
}

// Handler builds the API routing table. Exposed for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/v1/chat", s.instrument("/v1/chat", s.handleChat))
	mux.HandleFunc("/v1/conversations", s.instrument("/v1/conversations", s.handleConversations))
	mux.HandleFunc("/v1/conversations/", s.instrument("/v1/conversations/{id}", s.handleConversationByID))
	if s.config.Server.MetricsPort == 0 {
		mux.Handle("/metrics", promhttp.Handler())
	}
	return mux
}

// Start begins serving. Non-blocking; serve errors after startup are logged.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.HTTPPort)

	server := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("http listen: %w", err)
	}
	s.httpServer = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()
	s.logger.Info("starting http server", "addr", addr)

	if s.config.Server.MetricsPort > 0 {
		return s.startMetricsServer()
	}
	return nil
}

func (s *Server) startMetricsServer() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.MetricsPort)
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("metrics listen: %w", err)
	}
	s.metricsServer = server

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("metrics server error", "error", err)
		}
	}()
	s.logger.Info("starting metrics server", "addr", addr)
	return nil
}

// Shutdown drains both servers.
func (s *Server) Shutdown(ctx context.Context) {
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("http server shutdown error", "error", err)
		}
		s.httpServer = nil
	}
	if s.metricsServer != nil {
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			s.logger.Warn("metrics server shutdown error", "error", err)
		}
		s.metricsServer = nil
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
