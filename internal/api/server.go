package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"arbbot/internal/config"
)

// Server runs the HTTP/WebSocket dashboard API.
type Server struct {
	cfg      config.DashboardConfig
	provider SnapshotProvider
	fullCfg  config.Config
	hub      *Hub
	handlers *Handlers
	server   *http.Server
	logger   *slog.Logger
}

// NewServer creates a new dashboard API server.
func NewServer(cfg config.DashboardConfig, provider SnapshotProvider, fullCfg config.Config, logger *slog.Logger) *Server {
	hub := NewHub(logger)
	handlers := NewHandlers(provider, fullCfg, hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", handlers.HandleHealth)
	mux.HandleFunc("/api/snapshot", handlers.HandleSnapshot)
	mux.HandleFunc("/ws", handlers.HandleWebSocket)
	mux.Handle("/", http.FileServer(http.Dir("web")))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		cfg:      cfg,
		provider: provider,
		fullCfg:  fullCfg,
		hub:      hub,
		handlers: handlers,
		server:   server,
		logger:   logger.With("component", "api-server"),
	}
}

// Start runs the hub, the event consumer, and the HTTP server. Blocks
// until the server is stopped.
func (s *Server) Start() error {
	go s.hub.Run()
	go s.consumeEvents()

	s.logger.Info("dashboard server starting", "addr", s.server.Addr)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() error {
	s.logger.Info("stopping dashboard server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// consumeEvents forwards provider-emitted events to every connected
// client, if the provider implements EventSource.
func (s *Server) consumeEvents() {
	source, ok := s.provider.(EventSource)
	if !ok {
		return
	}
	eventsCh := source.DashboardEvents()
	if eventsCh == nil {
		return
	}
	for evt := range eventsCh {
		s.hub.BroadcastEvent(evt)
	}
}
