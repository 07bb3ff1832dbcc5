package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Server runs the HTTP API
type Server struct {
	listenAddr string
	handler    http.Handler
	logger     *zap.Logger
	srv        *http.Server
	listener   net.Listener
}

// NewServer creates a new API server
func NewServer(listenAddr string, handler http.Handler, logger *zap.Logger) *Server {
	return &Server{
		listenAddr: listenAddr,
		handler:    handler,
		logger:     logger,
	}
}

// Start starts serving in the background
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listenAddr, err)
	}
	s.listener = l
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	s.logger.Info("API server starting", zap.String("address", l.Addr().String()))

	go func() {
		if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the address the server is listening on
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.listenAddr
	}
	return s.listener.Addr().String()
}

// Stop gracefully shuts the server down
func (s *Server) Stop() error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
