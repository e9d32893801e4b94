package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	returnsapp "github.com/erp/claimsync/internal/application/returns"
	"github.com/erp/claimsync/internal/infrastructure/auth"
	"github.com/erp/claimsync/internal/infrastructure/cache"
	"github.com/erp/claimsync/internal/infrastructure/config"
	"github.com/erp/claimsync/internal/infrastructure/credential"
	"github.com/erp/claimsync/internal/infrastructure/ecommerce"
	"github.com/erp/claimsync/internal/infrastructure/logger"
	"github.com/erp/claimsync/internal/infrastructure/persistence"
	"github.com/erp/claimsync/internal/infrastructure/scheduler"
	"github.com/erp/claimsync/internal/infrastructure/telemetry"
	"github.com/erp/claimsync/internal/interfaces/http/handler"
	"github.com/erp/claimsync/internal/interfaces/http/middleware"
	"github.com/erp/claimsync/internal/interfaces/http/router"
)

// version is overridden at build time with -ldflags "-X main.version=..."
var version = "dev"

//	@title			Claimsync API
//	@version		1.0
//	@description	Marketplace returns and claims sync, enrichment and query API
//	@BasePath		/api/v1

//	@securityDefinitions.apikey	BearerAuth
//	@in							header
//	@name						Authorization
//	@description				Service token. Format: "Bearer {token}"

func main() {
	// A missing .env is fine; the process environment and config.toml still apply.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	baseLog, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
		Env:        cfg.App.Env,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers are no-ops when disabled.
	telCfg := telemetry.FromConfig(cfg.Telemetry, version)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, telCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telCfg, baseLog)
	if err != nil {
		baseLog.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	log := telemetry.Bridge(baseLog, cfg.Telemetry.ServiceName, loggerProvider, zapcore.InfoLevel)
	defer func() {
		_ = logger.Sync(log)
	}()

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingServer,
		ApplicationName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	if profiler.IsEnabled() && cfg.Telemetry.SpanProfiles {
		tracerProvider.EnableSpanProfiles()
	}

	log.Info("Starting claimsync",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("version", version),
	)

	db, err := persistence.Open(ctx, &cfg.Database,
		persistence.WithLogger(log, logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh),
	)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.LogFullSQL = cfg.Telemetry.DBLogFullSQL
	if cfg.Telemetry.DBSlowQueryThresh > 0 {
		dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	}
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).Register(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	runLock, closeLock, err := cache.NewRunLockFactory(cfg.Redis, cache.WithLogger(log)).CreateLock()
	if err != nil {
		log.Fatal("Failed to create run lock", zap.Error(err))
	}
	defer func() {
		if err := closeLock(); err != nil {
			log.Error("Error closing run lock", zap.Error(err))
		}
	}()

	pipelineMetrics, err := telemetry.NewPipelineMetrics(meterProvider.Meter(telemetry.TracerName))
	if err != nil {
		log.Fatal("Failed to create pipeline metrics", zap.Error(err))
	}

	marketplace, err := newMarketplaceClient(cfg.Marketplace, pipelineMetrics)
	if err != nil {
		log.Fatal("Failed to create marketplace client", zap.Error(err))
	}

	key, err := cfg.Credentials.Key()
	if err != nil {
		log.Fatal("Invalid credential key", zap.Error(err))
	}
	cipher, err := credential.NewCipher(key)
	if err != nil {
		log.Fatal("Invalid credential key", zap.Error(err))
	}

	recordRepo := persistence.NewGormReturnClaimRepository(db.DB)
	runRepo := persistence.NewGormSyncRunRepository(db.DB)
	shipmentRepo := persistence.NewGormShipmentRepository(db.DB)
	credentialRepo := persistence.NewGormCredentialRepository(db.DB)
	credentials := credential.NewProvider(credentialRepo, cipher, marketplace, log)

	paging := pageOptions(cfg.Marketplace)
	syncService := returnsapp.NewSyncService(recordRepo, runRepo, credentials, marketplace, runLock, log,
		returnsapp.WithSyncConfig(returnsapp.SyncConfig{
			Paging:        paging,
			DefaultWindow: cfg.Marketplace.DefaultWindow,
			LockTTL:       cfg.Scheduler.SyncLockTTL,
		}),
		returnsapp.WithSyncMetrics(pipelineMetrics),
	)
	enrichmentService := returnsapp.NewEnrichmentService(recordRepo, credentials, marketplace, runLock, log,
		returnsapp.WithEnrichmentConfig(returnsapp.EnrichmentConfig{
			DefaultLimit: cfg.Enrichment.DefaultLimit,
			RecordDelay:  cfg.Enrichment.RecordDelay,
			LockTTL:      cfg.Enrichment.LockTTL,
		}),
		returnsapp.WithEnrichmentMetrics(pipelineMetrics),
	)
	queryService := returnsapp.NewQueryService(recordRepo, log)
	shipmentService := returnsapp.NewShipmentService(shipmentRepo, credentials, marketplace, log,
		returnsapp.WithShipmentConfig(shipmentConfig(cfg.Shipments, paging)),
	)

	var tokens middleware.TokenValidator
	if cfg.Auth.Enabled {
		tokens = auth.NewServiceTokenService(cfg.Auth)
	}

	var rateLimiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		rateLimiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		go rateLimiter.Run(ctx)
	}

	checks := map[string]handler.Pinger{"database": db}
	if p, ok := runLock.(handler.Pinger); ok {
		checks["redis"] = p
	}

	returnsRoutes := router.NewGroup("/returns",
		handler.NewReturnsHandler(syncService, enrichmentService, queryService, shipmentService),
	)

	engine := router.NewEngine(router.EngineOptions{
		Logger:           log,
		HTTP:             cfg.HTTP,
		RequestTimeout:   cfg.HTTP.WriteTimeout,
		ServiceName:      cfg.Telemetry.ServiceName,
		TracingEnabled:   tracerProvider.IsEnabled(),
		Meter:            meterProvider.Meter(telemetry.TracerName),
		ProfilingEnabled: profiler.IsEnabled(),
		RateLimiter:      rateLimiter,
		Tokens:           tokens,
		System:           handler.NewSystemHandler(version, checks),
		Registrars:       []router.RouteRegistrar{returnsRoutes},
	})

	var (
		syncScheduler *scheduler.SyncScheduler
		cronTrigger   *scheduler.CronTrigger
	)
	if cfg.Scheduler.Enabled {
		syncScheduler, cronTrigger, err = startScheduler(ctx, cfg.Scheduler, syncService, enrichmentService, log)
		if err != nil {
			log.Fatal("Failed to start scheduler", zap.Error(err))
		}
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if cronTrigger != nil {
		if err := cronTrigger.Stop(shutdownCtx); err != nil {
			log.Error("Cron trigger did not stop", zap.Error(err))
		}
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if syncScheduler != nil {
		if err := syncScheduler.Stop(shutdownCtx); err != nil {
			log.Error("Scheduler did not drain", zap.Error(err))
		}
	}

	if err := profiler.Stop(); err != nil {
		log.Error("Error stopping profiler", zap.Error(err))
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down meter provider", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Error("Error shutting down tracer provider", zap.Error(err))
	}
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		baseLog.Error("Error shutting down logger provider", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func newMarketplaceClient(cfg config.MarketplaceConfig, recorder ecommerce.RequestRecorder) (*ecommerce.MarketplaceClient, error) {
	mc := ecommerce.NewMarketplaceConfig(cfg.ClientID, cfg.ClientSecret)
	if cfg.BaseURL != "" {
		mc.APIBaseURL = cfg.BaseURL
	}
	mc.TokenURL = cfg.TokenURL
	if cfg.Timeout > 0 {
		mc.TimeoutSeconds = int(cfg.Timeout.Seconds())
	}
	if cfg.RequestsPerSecond > 0 {
		mc.RequestsPerSecond = cfg.RequestsPerSecond
	}
	if cfg.Burst > 0 {
		mc.Burst = cfg.Burst
	}
	return ecommerce.NewMarketplaceClient(mc, ecommerce.WithRequestRecorder(recorder))
}

func pageOptions(cfg config.MarketplaceConfig) returnsapp.PageOptions {
	opts := returnsapp.DefaultPageOptions()
	if cfg.PageSize > 0 {
		opts.PageSize = cfg.PageSize
	}
	if cfg.MaxPages > 0 {
		opts.MaxPages = cfg.MaxPages
	}
	if cfg.PageDelay > 0 {
		opts.Delay = cfg.PageDelay
	}
	if cfg.RetryAttempts > 0 {
		opts.Retry.MaxAttempts = cfg.RetryAttempts
	}
	if cfg.RetryBaseDelay > 0 {
		opts.Retry.BaseDelay = cfg.RetryBaseDelay
	}
	return opts
}

func shipmentConfig(cfg config.ShipmentsConfig, paging returnsapp.PageOptions) returnsapp.ShipmentConfig {
	sc := returnsapp.DefaultShipmentConfig()
	sc.Paging.Delay = paging.Delay
	sc.Paging.Retry = paging.Retry
	if cfg.TTL > 0 {
		sc.TTL = cfg.TTL
	}
	if cfg.PageSize > 0 {
		sc.Paging.PageSize = cfg.PageSize
	}
	if cfg.MaxPages > 0 {
		sc.Paging.MaxPages = cfg.MaxPages
	}
	if cfg.DetailConcurrency > 0 {
		sc.DetailConcurrency = cfg.DetailConcurrency
	}
	return sc
}

// startScheduler runs the periodic sync of the configured accounts. Each tick
// submits a sync job chained to an enrichment job per account.
func startScheduler(
	ctx context.Context,
	cfg config.SchedulerConfig,
	syncService *returnsapp.SyncService,
	enrichmentService *returnsapp.EnrichmentService,
	log *zap.Logger,
) (*scheduler.SyncScheduler, *scheduler.CronTrigger, error) {
	schedCfg := scheduler.DefaultSyncSchedulerConfig()
	if cfg.Workers > 0 {
		schedCfg.Workers = cfg.Workers
	}
	if cfg.JobTimeout > 0 {
		schedCfg.JobTimeout = cfg.JobTimeout
	}
	if cfg.RetryAttempts > 0 {
		schedCfg.RetryAttempts = cfg.RetryAttempts
	}
	if cfg.RetryDelay > 0 {
		schedCfg.RetryDelay = cfg.RetryDelay
	}

	runner := scheduler.NewJobRunner(syncService, enrichmentService, cfg.EnrichLimit)
	syncScheduler, err := scheduler.NewSyncScheduler(schedCfg, runner, log)
	if err != nil {
		return nil, nil, err
	}
	// Workers outlive the signal context so Stop can drain queued jobs.
	if err := syncScheduler.Start(context.Background()); err != nil {
		return nil, nil, err
	}

	trigger := scheduler.NewCronTrigger(scheduler.CronTriggerConfig{
		Interval: cfg.Interval,
		Accounts: returnsapp.ParseAccountIDs(cfg.Accounts...),
		Window:   cfg.Window,
	}, syncScheduler, log)
	if err := trigger.Start(ctx); err != nil {
		return nil, nil, err
	}

	log.Info("Scheduler started",
		zap.Int("workers", schedCfg.Workers),
		zap.Duration("interval", cfg.Interval),
		zap.Int("accounts", len(cfg.Accounts)),
	)
	return syncScheduler, trigger, nil
}
