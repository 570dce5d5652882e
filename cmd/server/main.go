package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	grpcserver "github.com/codebyem/IndiaLimaYankee/internal/api/grpc"
	"github.com/codebyem/IndiaLimaYankee/internal/api/middleware"
	"github.com/codebyem/IndiaLimaYankee/internal/api/rest"
	"github.com/codebyem/IndiaLimaYankee/internal/api/websocket"
	"github.com/codebyem/IndiaLimaYankee/internal/config"
	"github.com/codebyem/IndiaLimaYankee/internal/fetcher"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/logger"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/metrics"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/tracing"
	"github.com/codebyem/IndiaLimaYankee/internal/pkg/ttlcache"
	"github.com/codebyem/IndiaLimaYankee/internal/repository"
	"github.com/codebyem/IndiaLimaYankee/internal/service"
	"github.com/codebyem/IndiaLimaYankee/internal/upstream"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "aviation-dashboard: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return err
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", config.Join(errs))
	}

	log, closeLog, err := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   true,
	})
	if err != nil {
		return err
	}
	defer func() { _ = closeLog() }()

	log.Info("Aviation dashboard starting",
		zap.Int("port", cfg.Port),
		zap.String("config_file", loader.File()),
		zap.String("database_driver", cfg.DatabaseDriver))

	if cfg.TracingEnabled {
		shutdownTracing, err := tracing.Init("aviation-dashboard", cfg.TracingEndpoint, cfg.TracingSamplingRate)
		if err != nil {
			log.Warn("Tracing disabled", zap.Error(err))
		} else {
			defer func() {
				sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer scancel()
				_ = shutdownTracing(sctx)
			}()
		}
	}

	// Settings store
	repo, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("failed to open settings store: %w", err)
	}
	defer repo.Close()

	rows, err := repo.ListSettings(ctx)
	if err != nil {
		return fmt.Errorf("failed to read persisted settings: %w", err)
	}
	initial, err := service.ApplySettings(cfg.Dashboard(), rows)
	if err != nil {
		log.Warn("Ignoring persisted settings", zap.Error(err))
		initial = cfg.Dashboard()
	}
	state := service.NewConfigState(initial)
	metrics.ConfigVersion.Set(float64(state.Current().Version))

	// Cache and adapters
	cache := ttlcache.New[interface{}](
		ttlcache.WithMaxEntries(cfg.CacheMaxEntries),
		ttlcache.WithCleanupInterval(cfg.CacheCleanupInterval()),
		ttlcache.WithStaleGrace(cfg.StaleGrace()),
		ttlcache.WithObserver(ttlcache.Observers{metrics.CacheObserver{}, logger.NewCacheObserver(log)}),
	)
	defer cache.Stop()

	client := upstream.NewClient(
		upstream.WithTimeout(cfg.UpstreamTimeout()),
		upstream.WithRateLimit(cfg.UpstreamRatePerSec, cfg.UpstreamBurst),
	)
	deps := fetcher.Deps{
		Cache:        cache,
		Client:       client,
		ProbeTimeout: cfg.ProbeTimeout(),
		Logger:       log,
	}
	avwx := fetcher.AVWXConfig{BaseURL: cfg.AVWXBaseURL, Token: cfg.AVWXToken}
	nasa := fetcher.NASAConfig{
		BaseURL:        cfg.NASABaseURL,
		APIKey:         cfg.NASAAPIKey,
		EPICArchiveURL: cfg.EPICArchiveURL,
		ValidateImages: cfg.ValidateImages,
	}
	metar := fetcher.NewMETAR(deps, avwx)
	fetchers := fetcher.NewSet(
		metar,
		fetcher.NewTAF(deps, avwx),
		fetcher.NewAPOD(deps, nasa),
		fetcher.NewEPIC(deps, nasa),
		fetcher.NewSun(deps, fetcher.SunConfig{BaseURL: cfg.SunBaseURL}),
		fetcher.NewStrava(deps, fetcher.StravaConfig{
			APIURL:       cfg.StravaAPIURL,
			TokenURL:     cfg.StravaTokenURL,
			ClientID:     cfg.StravaClientID,
			ClientSecret: cfg.StravaClientSecret,
			RefreshToken: cfg.StravaRefreshToken,
		}),
	)
	for _, f := range fetchers.All() {
		if !f.Configured() {
			log.Warn("Data source not configured", zap.String("domain", f.Name()))
		}
	}

	// Push channels
	wsHub := websocket.NewHub(ctx, log)
	go wsHub.Run()

	var grpcSrv *grpcserver.Server
	if cfg.GRPCPort > 0 {
		grpcSrv = grpcserver.NewServer(cfg.GRPCPort, log)
		if err := grpcSrv.Start(ctx); err != nil {
			return err
		}
	}

	// Services
	orchestrator := service.NewOrchestrator(fetchers, state, cfg.ViewTimeout(), log)
	health := service.NewHealthMonitor(fetchers, state, log)
	health.AddListener(metrics.RecordHealth)
	health.AddListener(wsHub.BroadcastHealth)
	if grpcSrv != nil {
		health.AddListener(grpcSrv.UpdateHealth)
	}
	go health.Run(ctx, cfg.HealthCheckInterval())

	invalidation := service.NewInvalidationController(state, cache, fetchers, repo, log)
	invalidation.SetFullClear(cfg.FullClearOnConfigChange)
	invalidation.SetBroadcaster(wsHub)

	if loader.Watch(log, func(next *config.Config) {
		invalidation.SetFullClear(next.FullClearOnConfigChange)
		if _, err := invalidation.Reload(ctx, next.Dashboard()); err != nil {
			log.Warn("Config reload not applied", zap.Error(err))
		}
	}) {
		log.Info("Watching config file", zap.String("file", loader.File()))
	}

	dinos, err := service.LoadDinos(cfg.DinoDataFile)
	if err != nil {
		log.Warn("Dino data unavailable", zap.String("file", cfg.DinoDataFile), zap.Error(err))
	}

	// Setup HTTP router
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Tracing)
	router.Use(middleware.StructuredLog(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.SecureHeaders)
	router.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	healthz := rest.NewHealthzHandler(repo)
	router.HandleFunc("/healthz/live", healthz.Live).Methods(http.MethodGet)
	router.HandleFunc("/healthz/ready", healthz.Ready).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.HandleFunc("/ws/events", websocket.NewHandler(wsHub).ServeWS).Methods(http.MethodGet)

	rest.SetupRoutes(router, rest.NewHandler(rest.Deps{
		Orchestrator: orchestrator,
		Health:       health,
		Invalidation: invalidation,
		State:        state,
		Stations:     metar,
		Dinos:        dinos,
		Cache:        cache,
		Features:     rest.Features{StravaEnabled: cfg.StravaEnabled()},
		Logger:       log,
	}))

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposedHeaders:   []string{middleware.ResponseRequestIDHeader, rest.CacheHeader, rest.FallbackHeader},
		AllowCredentials: false,
	})

	requestTimeout := time.Duration(cfg.RequestTimeoutSec) * time.Second
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      c.Handler(router),
		ReadTimeout:  requestTimeout,
		WriteTimeout: requestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			zap.Int("port", cfg.Port),
			zap.String("api", fmt.Sprintf("http://localhost:%d/api", cfg.Port)),
			zap.String("websocket", fmt.Sprintf("ws://localhost:%d/ws/events", cfg.Port)))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("Shutting down server", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("Server failed", zap.Error(err))
		cancel()
		return err
	}

	cancel()
	wsHub.Stop()
	if grpcSrv != nil {
		grpcSrv.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(cfg.ShutdownTimeoutSec)*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited gracefully")
	return nil
}
