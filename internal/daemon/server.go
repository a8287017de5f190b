package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/dmsync/internal/api"
)

// Server manages the HTTP listener serving the REST API and the websocket hub.
type Server struct {
	httpServer *http.Server
	listener   net.Listener
	logger     *zap.Logger
}

// NewServer binds the listen address and prepares the HTTP server.
func NewServer(p Params, logger *zap.Logger, deps api.Deps) (*Server, error) {
	listener, err := net.Listen("tcp", p.Config.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", p.Config.ListenAddr, err)
	}

	return &Server{
		httpServer: &http.Server{
			Handler:           api.NewRouter(deps),
			ReadHeaderTimeout: 10 * time.Second,
		},
		listener: listener,
		logger:   logger,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Start begins serving HTTP requests. Blocks until stopped.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.Addr()))
	err := s.httpServer.Serve(s.listener)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop performs a graceful shutdown. Hijacked websocket connections are
// closed by the hub.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("http server stopping")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("http shutdown", zap.Error(err))
	}
}
