package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jonesrussell/goharvest/internal/api/middleware"
	"github.com/jonesrussell/goharvest/internal/config"
	"github.com/jonesrussell/goharvest/internal/logger"
)

// readHeaderTimeout bounds reading request headers.
const readHeaderTimeout = 10 * time.Second

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 10 * time.Second

// Server wraps the HTTP server and its security middleware.
type Server struct {
	srv      *http.Server
	security middleware.SecurityMiddlewareInterface
	log      logger.Interface
}

// NewServer builds the HTTP server for the configured address.
func NewServer(cfg *config.ServerConfig, deps Deps) *Server {
	router, security := SetupRouter(cfg, deps)

	return &Server{
		srv: &http.Server{
			Addr:              cfg.Address,
			Handler:           router,
			ReadTimeout:       cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			ReadHeaderTimeout: readHeaderTimeout,
		},
		security: security,
		log:      deps.Logger.WithComponent("api"),
	}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.security.Cleanup(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", "address", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.security.WaitCleanup()
	s.log.Info("http server stopped")
	return <-errCh
}
