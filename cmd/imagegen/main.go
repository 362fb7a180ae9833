package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"imagegen/internal/api"
	"imagegen/internal/artifact"
	"imagegen/internal/clock"
	"imagegen/internal/config"
	"imagegen/internal/generate"
	"imagegen/internal/logger"
	"imagegen/internal/models"
	"imagegen/internal/observability"
	"imagegen/internal/provider"
	"imagegen/internal/ratelimit"
	"imagegen/internal/storage"
	"imagegen/internal/version"
)

var (
	configFile    = flag.String("config", "", "Path to configuration file")
	envFile       = flag.String("env-file", config.DefaultEnvFile, "Path to a dotenv file with TOGETHER_API_KEY")
	exampleConfig = flag.String("write-example-config", "", "Write an example configuration to this path and exit")
	showVersion   = flag.Bool("version", false, "Print version information and exit")
)

func main() {
	flag.Parse()

	ver := version.GetInfo()
	if *showVersion {
		fmt.Println(ver.String())
		return
	}

	if *exampleConfig != "" {
		if err := config.SaveExample(*exampleConfig); err != nil {
			slog.Error("Failed to write example configuration", "error", err)
			os.Exit(1)
		}
		fmt.Printf("Example configuration written to %s\n", *exampleConfig)
		return
	}

	// Load configuration
	cfg, err := config.LoadWithEnvFile(*configFile, *envFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Initialize structured logging
	log, closer, err := logger.Setup(cfg.Logging, ver)
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	// Initialize observability (OpenTelemetry)
	otelProvider, err := observability.Setup(cfg.Metrics, cfg.Observability, ver)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}()

	// Generation history
	history, err := initializeStorage(cfg)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer history.Close()

	// Upstream provider
	var imageProvider provider.Provider = provider.NewTogetherClient(cfg.Provider,
		provider.WithUserAgent(ver.UserAgent()),
	)
	if !imageProvider.Configured() {
		slog.Warn("No provider API key configured; generation requests will fail until one is set",
			"env", config.APIKeyEnv)
	}

	// Wrap storage and provider with instrumentation if metrics are enabled
	if cfg.Metrics.Enabled {
		instrumentedStorage, err := observability.NewInstrumentedStorage(history)
		if err != nil {
			slog.Error("Failed to create instrumented storage", "error", err)
			os.Exit(1)
		}
		history = instrumentedStorage

		instrumentedProvider, err := observability.NewInstrumentedProvider(imageProvider)
		if err != nil {
			slog.Error("Failed to create instrumented provider", "error", err)
			os.Exit(1)
		}
		imageProvider = instrumentedProvider
	}

	clk := clock.System{}

	artifacts, err := artifact.NewStore(cfg.Artifacts.Directory, cfg.Artifacts.Retention, clk)
	if err != nil {
		slog.Error("Failed to initialize artifact store", "error", err)
		os.Exit(1)
	}

	window := ratelimit.NewWindow(cfg.RateLimit.RequestsPerWindow, cfg.RateLimit.Window, clk)
	if cfg.Metrics.Enabled {
		reg, err := observability.ObserveWindow(window)
		if err != nil {
			slog.Error("Failed to observe rate limit window", "error", err)
			os.Exit(1)
		}
		defer reg.Unregister()
	}

	service := generate.NewService(window, imageProvider, artifacts, history,
		generate.WithClock(clk),
		generate.WithDefaults(cfg.Provider.Defaults),
		generate.WithHistoryRetention(cfg.Storage.Retention),
		generate.WithSweepOnList(cfg.Artifacts.SweepOnList),
	)

	// Clear out anything that expired while the service was down
	if res, err := service.Sweep(context.Background()); err != nil {
		slog.Warn("Initial sweep failed", "error", err)
	} else if res.ArtifactsRemoved > 0 || res.GenerationsRemoved > 0 {
		slog.Info("Initial sweep removed expired data",
			"artifacts", res.ArtifactsRemoved,
			"generations", res.GenerationsRemoved)
	}

	janitor := generate.NewJanitor(service, cfg.Artifacts.SweepInterval)
	janitor.Start()
	defer janitor.Close()

	handlers := api.NewHandlers(service, api.WithVersion(ver.Version))

	// Setup routes with middleware
	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if in := cfg.RateLimit.Inbound; in.Enabled {
		clientLimiter := ratelimit.NewMemoryLimiter(in.RequestsPerMinute, in.BurstSize, in.CleanupInterval, clk)
		defer clientLimiter.Close()
		var limitOpts []ratelimit.MiddlewareOption
		if in.TrustProxyHeaders {
			limitOpts = append(limitOpts, ratelimit.WithTrustedProxyHeaders())
		}
		routeOpts = append(routeOpts, api.WithGenerateLimiter(ratelimit.Middleware(clientLimiter, limitOpts...)))
	}

	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	// Start metrics server if enabled
	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, otelProvider)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	server := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting server",
			"addr", server.Addr,
			"artifact_dir", artifacts.Dir(),
			"rate_limit", window.Capacity(),
			"window", window.Period(),
			"history", cfg.Storage.Type)

		var err error
		if cfg.Server.TLSEnabled {
			slog.Info("Starting HTTPS server with TLS")
			err = server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			slog.Info("Starting HTTP server")
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	exitCode := 0
	select {
	case <-quit:
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		exitCode = 1
	}

	slog.Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			slog.Error("Metrics server forced to shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	slog.Info("Server shutdown complete")
	if exitCode != 0 {
		// Deferred cleanup does not run after os.Exit
		janitor.Close()
		history.Close()
		os.Exit(exitCode)
	}
}

// initializeStorage creates the history store selected by configuration
func initializeStorage(cfg *models.Config) (storage.Storage, error) {
	factory := storage.NewFactory()
	if err := factory.ValidateConfig(cfg.Storage); err != nil {
		return nil, err
	}
	return factory.Create(cfg.Storage)
}
