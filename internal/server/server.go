// internal/server/server.go
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"finqa-retrieval/internal/common/logger"
)

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	httpServer *http.Server
	logger     logger.Logger
}

// New builds the server with routes wired from deps.
func New(deps *Dependencies) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", deps.Config.Port),
			Handler:      SetupRoutes(deps),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: deps.Config.RequestTimeout + 5*time.Second,
			IdleTimeout:  60 * time.Second,
		},
		logger: deps.Logger,
	}
}

// Start blocks serving HTTP until the listener closes.
func (s *Server) Start() error {
	s.logger.Info("http server listening", map[string]interface{}{
		"addr": s.httpServer.Addr,
	})
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests before closing the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down", nil)
	return s.httpServer.Shutdown(ctx)
}
