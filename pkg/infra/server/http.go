package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	httpopts "github.com/kart-io/docqa/pkg/options/http"
)

// HTTPServer serves a gin engine.
type HTTPServer struct {
	opts   *httpopts.Options
	engine *gin.Engine
	srv    *http.Server
	addr   net.Addr
}

var _ Runnable = (*HTTPServer)(nil)

// NewHTTPServer creates an HTTP server with a bare gin engine in the configured mode.
func NewHTTPServer(opts *httpopts.Options) *HTTPServer {
	gin.SetMode(opts.Mode)
	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	return &HTTPServer{
		opts:   opts,
		engine: engine,
		srv: &http.Server{
			Addr:         opts.Addr,
			Handler:      engine,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

// Engine returns the gin engine for route registration.
func (s *HTTPServer) Engine() *gin.Engine { return s.engine }

// Name returns the server name.
func (s *HTTPServer) Name() string { return "http" }

// Addr returns the bound listen address, available after Start.
func (s *HTTPServer) Addr() net.Addr { return s.addr }

// Start binds the listener and serves in the background.
func (s *HTTPServer) Start(_ context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}
	s.addr = ln.Addr()

	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorw("HTTP server stopped unexpectedly", "error", err.Error())
		}
	}()
	logger.Infow("HTTP server listening", "addr", s.addr.String())
	return nil
}

// Stop shuts the server down gracefully.
func (s *HTTPServer) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
