package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/net/netutil"

	"github.com/glebobos/LambdaTerminal/internal/api/middleware"
	"github.com/glebobos/LambdaTerminal/internal/config"
	"github.com/glebobos/LambdaTerminal/internal/handler"
	"github.com/glebobos/LambdaTerminal/internal/logging"
	"github.com/glebobos/LambdaTerminal/internal/monitoring"
	"github.com/glebobos/LambdaTerminal/internal/render"
	"github.com/glebobos/LambdaTerminal/internal/session"
	"github.com/glebobos/LambdaTerminal/internal/shell"
	"github.com/glebobos/LambdaTerminal/internal/term"
	"github.com/glebobos/LambdaTerminal/internal/ws"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	http        *http.Server
	store       session.Store
	storeCloser io.Closer
	handler     *handler.Handler
	terms       *term.Manager
	wsHandler   *ws.Handler
	janitor     *session.Janitor
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
	metricsHTTP http.Handler
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}

	logger.Info("Initializing terminal server",
		zap.String("port", cfg.Server.Port),
		zap.String("backend", cfg.Session.Backend),
		zap.String("shell", cfg.Exec.Shell),
	)

	registry := prometheus.NewRegistry()
	metrics := monitoring.New(registry)

	store, storeCloser, err := newStore(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	logger.Info("Session store ready", zap.String("backend", cfg.Session.Backend))

	janitor := session.NewJanitor(store, session.JanitorConfig{
		TTL:           cfg.Session.TTL,
		MaxTranscript: cfg.Session.MaxTranscriptBytes,
		ArchiveDir:    cfg.Session.ArchiveDir,
		Interval:      cfg.Session.SweepInterval,
	}, logger, metrics)
	janitor.Start()

	executor := shell.NewExecutor(store, cfg.Exec.Shell, logger, metrics)
	renderer := render.NewRenderer(store, cfg.Render, logger)
	h := handler.NewHandler(executor, renderer, cfg.Exec.BinDir, logger)

	terms := term.NewManager(store, cfg.TermShell(), cfg.Term.IdleTimeout, logger, metrics)
	terms.Start()
	wsHandler := ws.NewHandler(terms, store, logger, metrics)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(logger))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))

	s := &Server{
		router:      router,
		store:       store,
		storeCloser: storeCloser,
		handler:     h,
		terms:       terms,
		wsHandler:   wsHandler,
		janitor:     janitor,
		logger:      logger,
		config:      cfg,
		metrics:     metrics,
		metricsHTTP: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	// Terminal endpoint
	router.GET("/", s.handleTerminal)
	router.POST("/invoke", s.handleInvoke)

	// Operational endpoints
	router.GET("/health", s.handleHealth)
	router.GET("/metrics", s.handleMetrics)

	// Session administration
	router.GET("/sessions", s.handleListSessions)
	router.GET("/sessions/:identity/transcript", s.handleTranscript)
	router.DELETE("/sessions/:identity", s.handleRemoveSession)

	// WebSocket
	router.GET("/sessions/:identity/attach", wsHandler.HandleAttach)

	s.http = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// newStore opens the configured session backend. The second return
// value is non-nil when the backend holds resources to release on
// shutdown.
func newStore(cfg *config.Config) (session.Store, io.Closer, error) {
	switch cfg.Session.Backend {
	case "memory":
		return session.NewMemoryStore(), nil, nil
	case "sqlite":
		st, err := session.NewSQLiteStore(cfg.Session.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return st, st, nil
	default:
		st, err := session.NewFSStore(cfg.Session.Dir)
		if err != nil {
			return nil, nil, err
		}
		return st, nil, nil
	}
}

// Run starts the HTTP server. The listener caps concurrent
// connections so a flood of slow callers cannot exhaust file
// descriptors needed by the PTY sessions.
func (s *Server) Run() error {
	addr := net.JoinHostPort(s.config.Server.Host, s.config.Server.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	if s.config.Server.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.config.Server.MaxConns)
	}

	s.logger.Info("Starting HTTP server",
		zap.String("addr", addr),
		zap.Int("max_conns", s.config.Server.MaxConns))

	if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := s.http.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}

	s.terms.Shutdown()
	s.janitor.Stop()

	if s.storeCloser != nil {
		if err := s.storeCloser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
