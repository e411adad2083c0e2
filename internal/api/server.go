package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/syncgate/internal/backend"
	"github.com/nerrad567/syncgate/internal/history"
	"github.com/nerrad567/syncgate/internal/infrastructure/config"
	"github.com/nerrad567/syncgate/internal/infrastructure/logging"
	"github.com/nerrad567/syncgate/internal/notify"
	"github.com/nerrad567/syncgate/internal/registry"
	"github.com/nerrad567/syncgate/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Feed     config.FeedConfig
	Logger   *logging.Logger
	Backend  backend.Service
	Registry *registry.Registry
	Sessions *session.Manager
	Notifier *notify.Notifier  // optional: MQTT change notifications
	History  *history.Recorder // optional: apply-history recording
	ShellDir string            // optional: serve the app shell from disk instead of the embedded copy
	Version  string
}

// Server is the gateway's HTTP server.
//
// It manages the HTTP listener, routes, middleware, and the change-feed
// WebSocket hub. The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	feedCfg  config.FeedConfig
	logger   *logging.Logger
	backend  backend.Service
	registry *registry.Registry
	sessions *session.Manager
	notifier *notify.Notifier
	history  *history.Recorder
	shellDir string
	version  string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc
}

// New creates an API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend service is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("tenant registry is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session manager is required")
	}
	// Notifier and history are optional; the gateway runs without them.

	return &Server{
		cfg:      deps.Config,
		feedCfg:  deps.Feed,
		logger:   deps.Logger,
		backend:  deps.Backend,
		registry: deps.Registry,
		sessions: deps.Sessions,
		notifier: deps.Notifier,
		history:  deps.History,
		shellDir: deps.ShellDir,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the change-feed hub and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.feedCfg, s.logger)
	go s.hub.Run(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("gateway listening", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("gateway server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the server, waiting up to ten seconds for
// in-flight requests before closing remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}
	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("gateway shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down gateway: %w", err)
	}
	return nil
}
