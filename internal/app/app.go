package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"cskeys/internal/config"
	"cskeys/internal/infrastructure"
	"cskeys/internal/keyservice"
	"cskeys/internal/localstore"
	customMiddleware "cskeys/internal/middleware"
	"cskeys/internal/quota"
	"cskeys/internal/sheetstore"
	handlers "cskeys/internal/transport/http"
)

const (
	VERSION = "1.0.0"
	AppName = "ClickSprite Key Service"
)

// cleanupInterval is how often expired legacy keys are swept.
const cleanupInterval = time.Hour

// Application represents the main application container
type Application struct {
	Config        *config.Config
	Router        *chi.Mux
	Server        *http.Server
	Store         *localstore.Store
	RemoteClient  *sheetstore.Client
	KeyService    *keyservice.Service
	Logger        *slog.Logger
	OTelProviders *infrastructure.OTelProviders

	cleanupStop chan struct{}
}

// NewApplication creates a new application instance with dependency injection
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Application starting",
		slog.String("name", AppName),
		slog.String("version", VERSION))

	otelProviders, err := infrastructure.InitializeOTel(infrastructure.DefaultOTelConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		OTelProviders: otelProviders,
		cleanupStop:   make(chan struct{}),
	}

	if err := app.initializeServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.setupRouter()
	app.createServer()

	return app, nil
}

// initializeServices builds the store, remote client, quota policies,
// and the key lifecycle service
func (a *Application) initializeServices() error {
	store, err := localstore.Open(a.Config.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	a.Store = store

	a.RemoteClient = sheetstore.NewClient(a.Config.Remote.EndpointURL,
		sheetstore.WithTimeout(a.Config.Remote.Timeout),
		sheetstore.WithRateLimit(a.Config.Remote.RateRPS, a.Config.Remote.RateBurst),
		sheetstore.WithLogger(a.Logger),
	)

	remotePolicy := quota.NewRemotePolicy(a.RemoteClient, a.Config.Keys.DailyCap, a.Logger)
	legacyPolicy := quota.NewLocalPolicy(store, a.Config.Keys.DailyCap)

	serviceCfg := keyservice.Config{
		Secret:       a.Config.Keys.Secret,
		LegacySecret: a.Config.Keys.LegacySecret,
		ValidityDays: a.Config.Keys.ValidityDays,
		LegacyMaxAge: a.Config.Keys.LegacyMaxAge,
		FreeBonus:    a.Config.Keys.FreeBonus,
		PaidBonus:    a.Config.Keys.PaidBonus,
		LegacyBonus:  a.Config.Keys.LegacyBonus,
	}

	opts := []keyservice.Option{
		keyservice.WithLogger(a.Logger),
		keyservice.WithLegacyPolicy(legacyPolicy),
	}

	if a.OTelProviders.Meter != nil {
		metrics, err := keyservice.NewMetrics(a.OTelProviders.Meter)
		if err != nil {
			return fmt.Errorf("failed to create key service metrics: %w", err)
		}
		opts = append(opts, keyservice.WithMetrics(metrics))
	}

	a.KeyService = keyservice.New(a.RemoteClient, remotePolicy, store, serviceCfg, opts...)
	return nil
}

// setupRouter configures the HTTP router with all routes
func (a *Application) setupRouter() {
	r := chi.NewRouter()

	// Middleware ordering: RequestID, RealIP, Logger, Recoverer,
	// Compress, SecurityHeaders, CORS, rate limit
	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.Compress(5))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.CORS(customMiddleware.CORSConfig{
		AllowedOrigins: []string{"*"},
		Logger:         a.Logger,
	}))
	r.Use(customMiddleware.NewRateLimiter(
		a.Config.Server.RateRPS,
		a.Config.Server.RateBurst,
		a.Logger,
	).Handler)

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		keyHandler := handlers.NewKeyHandler(a.KeyService, a.Logger)
		r.Mount("/keys", keyHandler.Routes())

		healthHandler := handlers.NewHealthHandler(a.KeyService, a.Logger)
		r.Mount("/health", healthHandler.Routes())
	})

	// Prometheus scrape endpoint stays outside the API middleware group
	r.Handle("/metrics", handlers.NewMetricsHandler(a.OTelProviders.PrometheusHTTP))

	a.Router = r
}

// createServer builds the HTTP server from configuration
func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start starts the HTTP server and background sweeps
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "Starting application",
		slog.String("name", AppName),
		slog.String("version", VERSION),
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	go a.runCleanupLoop(ctx)

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "Server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "Application started successfully",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))

	return nil
}

// runCleanupLoop periodically removes expired legacy keys from the
// local store.
func (a *Application) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := a.KeyService.CleanupExpired(ctx); err != nil {
				a.Logger.WarnContext(ctx, "legacy key cleanup failed",
					slog.String("error", err.Error()))
			}
		case <-a.cleanupStop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Stop gracefully stops the application
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "Shutting down application")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	close(a.cleanupStop)

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "Error shutting down OpenTelemetry", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "Error closing log file", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "Application shutdown complete")
	return nil
}

// Run runs the application until interrupted
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "Received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}
