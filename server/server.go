// Package server hosts the HTTP API on gin: router setup, bearer token
// authentication, request logging, error responses and graceful shutdown.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ghiac/vaultcoach/config"
	"github.com/ghiac/vaultcoach/log"
)

// RouteRegistrar adds application routes to the router
type RouteRegistrar interface {
	RegisterRoutes(router *gin.Engine)
}

// Server represents the HTTP server
type Server struct {
	config *config.Config
	router *gin.Engine
	http   *http.Server
}

// NewServer creates the router, installs the middleware and lets app
// register its routes
func NewServer(cfg *config.Config, app RouteRegistrar) *Server {
	if gin.Mode() == gin.DebugMode && log.ParseLevel(cfg.Log.Level) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger())
	app.RegisterRoutes(router)

	return &Server{
		config: cfg,
		router: router,
	}
}

// Handler returns the router, for tests and embedding
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled, then shuts down gracefully within
// the configured timeout
func (s *Server) Start(ctx context.Context) error {
	address := s.config.GetAddress()
	s.http = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Log.Infof("[Server] 🚀 Listening on %s", address)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.HTTP.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	log.Log.Infof("[Server] 🛑 Shutting down (timeout %s)", timeout)
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Log.Infof("[Server] ✅ Stopped")
	return nil
}
