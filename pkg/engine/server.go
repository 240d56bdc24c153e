// Package engine glues the router, strategy processor, request log
// and subscription hub into the HTTP server.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/mockgate/mockgate/internal/storage"
	"github.com/mockgate/mockgate/pkg/config"
	"github.com/mockgate/mockgate/pkg/hub"
	"github.com/mockgate/mockgate/pkg/logging"
	"github.com/mockgate/mockgate/pkg/processor"
	"github.com/mockgate/mockgate/pkg/requestlog"
	"github.com/mockgate/mockgate/pkg/router"
)

// Version is reported by the server-info endpoint.
const Version = "1.0.0"

// Server is the mock gateway: every request that misses the
// management surface is dispatched as a mock request.
type Server struct {
	cfg   config.Config
	log   *slog.Logger
	store storage.Store

	router    *router.Router
	processor *processor.Processor
	writer    *requestlog.Writer
	reader    *requestlog.Reader
	hub       *hub.Hub

	httpServer *http.Server
	mu         sync.Mutex
	running    bool
	startTime  time.Time
}

// Option customizes a Server.
type Option func(*Server)

// WithLogger sets the operational logger.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStore sets a pre-populated service repository.
func WithStore(store storage.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithProcessor replaces the strategy processor (tests).
func WithProcessor(p *processor.Processor) Option {
	return func(s *Server) {
		s.processor = p
	}
}

// NewServer wires the collaborators together. The log writer is
// constructed here, once, and handed to everything that needs it; the
// hub is a leaf the writer emits into.
func NewServer(cfg config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg: cfg,
		log: logging.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = storage.NewInMemoryStore()
	}

	s.hub = hub.New(s.log)

	logCfg := requestlog.Config{
		Dir:          cfg.LogDir,
		MaxBytes:     cfg.LogMaxBytes,
		BackupCount:  cfg.LogBackupCount,
		RotationTime: cfg.LogRotationTime,
	}
	writer, err := requestlog.NewWriter(logCfg, s.log, requestlog.WithEmitter(s.hub))
	if err != nil {
		return nil, fmt.Errorf("request log: %w", err)
	}
	s.writer = writer
	s.reader = requestlog.NewReader(logCfg)

	s.router = router.New(s.store, s.log)
	if s.processor == nil {
		s.processor = processor.New(s.log)
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.buildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Store exposes the service repository (management surface, CLI).
func (s *Server) Store() storage.Store {
	return s.store
}

// Handler returns the root handler (tests).
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the subscription hub.
func (s *Server) Hub() *hub.Hub {
	return s.hub
}

// buildMux routes the management surface first; everything else falls
// through to the mock handler.
func (s *Server) buildMux() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/mock-services/{$}", s.handleCreateService)
	mux.HandleFunc("GET /api/mock-services/{$}", s.handleListServices)
	mux.HandleFunc("GET /api/mock-services/{id}", s.handleGetService)
	mux.HandleFunc("PUT /api/mock-services/{id}", s.handleUpdateService)
	mux.HandleFunc("DELETE /api/mock-services/{id}", s.handleDeleteService)

	mux.HandleFunc("GET /api/logs", s.handleGetLogs)
	mux.HandleFunc("GET /api/logs/files", s.handleLogFiles)
	mux.HandleFunc("GET /api/server/info", s.handleServerInfo)
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /ws/logs", s.handleSubscribeAll)
	mux.HandleFunc("GET /ws/logs/{serviceID}", s.handleSubscribeService)

	mux.HandleFunc("/", s.handleMockRequest)
	return mux
}

// Start begins serving and blocks until the listener closes.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.httpServer.Addr, err)
	}
	s.log.Info("mock gateway listening", "addr", listener.Addr().String())

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully and closes the request log.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	err := s.httpServer.Shutdown(ctx)
	if closeErr := s.writer.Close(); err == nil {
		err = closeErr
	}
	s.log.Info("mock gateway stopped")
	return err
}
