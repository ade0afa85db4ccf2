// Package server wires the store, capability registry, pipeline
// scheduler, and HTTP API together into the folio service.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/folio-health/folio/internal/api"
	"github.com/folio-health/folio/internal/config"
	"github.com/folio-health/folio/internal/events"
	"github.com/folio-health/folio/internal/home"
	"github.com/folio-health/folio/internal/ingest"
	"github.com/folio-health/folio/internal/metrics"
	"github.com/folio-health/folio/internal/pipeline"
	"github.com/folio-health/folio/internal/server/endpoints"
	"github.com/folio-health/folio/internal/store"
	"github.com/folio-health/folio/internal/svcctx"
	"github.com/folio-health/folio/internal/taxonomy"
)

// Server is the main Folio HTTP server. It owns the sqlite store and
// the pipeline scheduler, starting both on Start and shutting them
// down cleanly when the context is cancelled.
type Server struct {
	httpServer *http.Server
	configMgr  *config.Manager
	home       *home.Dir
	logger     *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Home is the folio home directory
	Home *home.Dir
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConfigManager == nil {
		return nil, errors.New("config manager is required")
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	s := &Server{
		configMgr: cfg.ConfigManager,
		home:      cfg.Home,
		logger:    cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All() {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	c := cfg.ConfigManager.Get()
	host := c.Server.Host
	if host == "" {
		host = "127.0.0.1"
	}
	port := c.Server.Port
	if port == 0 {
		port = 8580
	}

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(host, strconv.Itoa(port)),
		Handler:      s.withServices(mux),
		ReadTimeout:  5 * time.Minute, // Uploads can be large
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start initializes the store and scheduler, then serves HTTP until
// the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	if err := s.home.EnsureExists(); err != nil {
		s.setNotRunning()
		return err
	}

	cfg := s.configMgr.Get()

	// Open the record store
	st, err := store.Open(s.home.DatabasePath())
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()
	s.logger.Info("store ready", "path", s.home.DatabasePath())

	// Load the field taxonomy
	tax, err := taxonomy.LoadOrDefault(s.home.TaxonomyPath())
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}

	// Build the capability registry from config
	registry, err := cfg.BuildRegistry()
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to build capability registry: %w", err)
	}

	// Event bus for completion notifications
	bus, err := events.NewBus(events.Config{
		WebhookTargets: cfg.Events.WebhookTargets,
		SendTimeout:    cfg.Events.SendTimeout,
		Logger:         s.logger,
	})
	if err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to create event bus: %w", err)
	}
	defer bus.Close()

	recorder := metrics.NewRecorder(st.DB(), s.logger)

	gate := ingest.New(ingest.Config{
		MaxUploadBytes: cfg.Ingest.MaxUploadBytes(),
		MaxPages:       cfg.Ingest.MaxPages,
		RasterDPI:      cfg.Ingest.RasterDPI,
		PdftoppmPath:   cfg.Ingest.PdftoppmPath,
		Logger:         s.logger,
	}, s.home)

	scheduler := pipeline.NewScheduler(pipeline.Config{
		Workers:           cfg.Pipeline.Workers,
		QueueSize:         cfg.Pipeline.QueueSize,
		DetectorName:      cfg.Pipeline.Detector,
		RecognizerName:    cfg.Pipeline.Recognizer,
		PageConcurrency:   cfg.Pipeline.PageConcurrency,
		RegionConcurrency: cfg.Pipeline.RegionConcurrency,
		RetryAttempts:     cfg.Pipeline.RetryAttempts,
		RetryDelayBase:    cfg.Pipeline.RetryDelay,
		LowConfidence:     cfg.Pipeline.LowConfidence,
		Logger:            s.logger,
	}, st, registry, tax, bus, recorder, s.home)
	scheduler.Start()
	defer scheduler.Stop()

	// Periodic job retention sweep
	pruneCtx, prunerCancel := context.WithCancel(ctx)
	defer prunerCancel()
	go s.pruneLoop(pruneCtx, st, cfg.Pipeline.Retention())

	s.services = &svcctx.Services{
		Store:     st,
		Gate:      gate,
		Registry:  registry,
		Scheduler: scheduler,
		Taxonomy:  tax,
		Events:    bus,
		Metrics:   recorder,
		ConfigMgr: s.configMgr,
		Logger:    s.logger,
		Home:      s.home,
	}

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			s.setNotRunning()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// pruneLoop periodically removes terminal jobs past retention.
func (s *Server) pruneLoop(ctx context.Context, st *store.Store, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := st.PruneJobs(ctx, retention)
			if err != nil {
				s.logger.Warn("job prune failed", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Info("pruned terminal jobs", "count", n)
			}
		}
	}
}

// shutdown performs graceful shutdown of the HTTP server.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully
// initialized. Returns 503 Service Unavailable until the store and
// scheduler are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
