package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/radixinsight/analytics/internal/logger"
)

// Server is an HTTP server with lifecycle management.
type Server struct {
	router *gin.Engine
	server *http.Server
	log    logger.Logger
	opts   Options
}

// New creates an HTTP server with the standard middleware chain applied.
// setupRoutes configures service-specific routes after the middleware and
// health endpoints are in place. checks may be nil.
func New(opts Options, log logger.Logger, checks map[string]Checker, setupRoutes func(*gin.Engine)) *Server {
	opts.setDefaults()

	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Recovery first so panics anywhere below are caught; request id before
	// logging so every entry carries the correlation id.
	router.Use(RecoveryMiddleware(log))
	router.Use(RequestIDMiddleware())
	router.Use(LoggerMiddleware(log))
	router.Use(CORSMiddleware(opts.CORS))

	registerHealthRoutes(router, opts.ServiceName, opts.ServiceVersion, checks)

	if setupRoutes != nil {
		setupRoutes(router)
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", opts.Port),
		Handler:      router,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		IdleTimeout:  opts.IdleTimeout,
	}

	return &Server{
		router: router,
		server: httpServer,
		log:    log,
		opts:   opts,
	}
}

// Router returns the underlying Gin engine.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Start runs the server, blocking until shutdown or failure.
func (s *Server) Start() error {
	s.log.Info("Starting HTTP server",
		logger.String("address", s.server.Addr),
		logger.String("service", s.opts.ServiceName),
		logger.String("version", s.opts.ServiceVersion),
	)

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync runs the server in a goroutine and returns a channel that
// receives any server error.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()

	return errCh
}

// Shutdown drains connections within the configured shutdown timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server",
		logger.Duration("timeout", s.opts.ShutdownTimeout),
	)

	shutdownCtx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	s.log.Info("HTTP server stopped gracefully")
	return nil
}

// ShutdownWithTimeout drains connections within a custom timeout.
func (s *Server) ShutdownWithTimeout(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.Shutdown(ctx)
}

// RunWithGracefulShutdown starts the server and shuts it down on SIGINT,
// SIGTERM, or context cancellation.
func (s *Server) RunWithGracefulShutdown(ctx context.Context) error {
	errCh := s.StartAsync()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		s.log.Info("Shutdown signal received", logger.String("signal", sig.String()))
	case <-ctx.Done():
		s.log.Info("Context cancelled, shutting down")
	}

	// Fresh context: the original may already be cancelled.
	return s.Shutdown(context.Background())
}

// Run starts the server with graceful shutdown handling.
func (s *Server) Run() error {
	return s.RunWithGracefulShutdown(context.Background())
}
