// Package server runs the distribution API listeners: HTTP (optionally TLS
// with a tuned HTTP/2 server) and the standard gRPC health service.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/net/http2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/belgiumluv/docker-cont/internal/config"
	"github.com/belgiumluv/docker-cont/pkg/logger"
)

// Checker reports whether the service can answer requests
type Checker func() error

// Server owns the API listeners
type Server struct {
	config  config.APIConfig
	handler http.Handler
	checker Checker
	logger  *logger.Logger

	mu         sync.Mutex
	httpServer *http.Server
	grpcServer *grpc.Server
	health     *health.Server
}

// New creates a Server. checker drives the gRPC health status.
func New(cfg config.APIConfig, handler http.Handler, checker Checker, log *logger.Logger) *Server {
	if log == nil {
		log = logger.NewNop()
	}
	if checker == nil {
		checker = func() error { return nil }
	}
	return &Server{
		config:  cfg,
		handler: handler,
		checker: checker,
		logger:  log.APILogger(),
	}
}

// Run listens on the configured addresses and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.Listen, err)
	}

	var grpcLn net.Listener
	if s.config.GRPCHealth.Listen != "" {
		grpcLn, err = net.Listen("tcp", s.config.GRPCHealth.Listen)
		if err != nil {
			ln.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.config.GRPCHealth.Listen, err)
		}
	}

	return s.Serve(ctx, ln, grpcLn)
}

// Serve serves on the given listeners until ctx is done, then shuts down
// within the configured shutdown timeout. grpcLn may be nil.
func (s *Server) Serve(ctx context.Context, ln, grpcLn net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	tlsCfg := s.config.TLS
	if tlsCfg.Enabled() {
		httpServer.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		if tlsCfg.HTTP2 {
			if err := http2.ConfigureServer(httpServer, &http2.Server{
				MaxConcurrentStreams: 250,
				MaxReadFrameSize:     1 << 20,
				IdleTimeout:          300 * time.Second,
			}); err != nil {
				ln.Close()
				return fmt.Errorf("failed to configure HTTP/2: %w", err)
			}
		}
	}

	s.mu.Lock()
	s.httpServer = httpServer
	s.mu.Unlock()

	errCh := make(chan error, 2)

	go func() {
		s.logger.WithFields(map[string]interface{}{
			"addr":        ln.Addr().String(),
			"tls_enabled": tlsCfg.Enabled(),
			"http2":       tlsCfg.Enabled() && tlsCfg.HTTP2,
		}).Info("Starting distribution API")

		var err error
		if tlsCfg.Enabled() {
			err = httpServer.ServeTLS(ln, tlsCfg.CertFile, tlsCfg.KeyFile)
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
		}
	}()

	if grpcLn != nil {
		s.startHealth(ctx, grpcLn, errCh)
	}

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutdown signal received")
	case serveErr = <-errCh:
		s.logger.WithError(serveErr).Error("Listener failed")
	}

	if err := s.shutdown(); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

func (s *Server) startHealth(ctx context.Context, ln net.Listener, errCh chan<- error) {
	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)

	s.mu.Lock()
	s.grpcServer = grpcServer
	s.health = hs
	s.mu.Unlock()

	s.updateHealth()

	go func() {
		ticker := time.NewTicker(s.config.GRPCHealth.Interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.updateHealth()
			}
		}
	}()

	go func() {
		s.logger.WithField("addr", ln.Addr().String()).Info("Starting gRPC health service")
		if err := grpcServer.Serve(ln); err != nil {
			errCh <- fmt.Errorf("grpc health server failed: %w", err)
		}
	}()
}

// updateHealth maps the checker result onto the overall gRPC health status
func (s *Server) updateHealth() {
	s.mu.Lock()
	hs := s.health
	s.mu.Unlock()
	if hs == nil {
		return
	}

	status := healthpb.HealthCheckResponse_SERVING
	if err := s.checker(); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.WithError(err).Warn("Health check failed")
	}
	hs.SetServingStatus("", status)
}

func (s *Server) shutdown() error {
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.mu.Lock()
	httpServer, grpcServer, hs := s.httpServer, s.grpcServer, s.health
	s.mu.Unlock()

	var err error
	if httpServer != nil {
		if shutdownErr := httpServer.Shutdown(ctx); shutdownErr != nil {
			s.logger.WithError(shutdownErr).Error("Failed to shut down HTTP server")
			err = shutdownErr
		}
	}

	if grpcServer != nil {
		hs.Shutdown()
		done := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			grpcServer.Stop()
		}
	}

	s.logger.Info("Distribution API stopped")
	return err
}
