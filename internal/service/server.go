package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server wraps http.Server. Start binds synchronously so a bad address fails
// at startup instead of inside the serving goroutine.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

func NewServer(addr string, handler http.Handler, logger *zap.Logger) *Server {
	s := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return &Server{httpServer: s, logger: logger}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.httpServer.Addr, err)
	}
	s.listener = ln

	s.logger.Info("Starting sensorstream HTTP server", zap.String("addr", ln.Addr().String()))
	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops accepting connections. Upgraded WebSocket connections are not
// tracked by http.Server and must be closed separately.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping sensorstream HTTP server")
	return s.httpServer.Shutdown(ctx)
}
