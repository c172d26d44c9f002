package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	catalogapp "github.com/feeledger/backend/internal/application/catalog"
	financeapp "github.com/feeledger/backend/internal/application/finance"
	"github.com/feeledger/backend/internal/domain/finance"
	"github.com/feeledger/backend/internal/domain/shared"
	"github.com/feeledger/backend/internal/domain/shared/valueobject"
	"github.com/feeledger/backend/internal/infrastructure/cache"
	"github.com/feeledger/backend/internal/infrastructure/config"
	"github.com/feeledger/backend/internal/infrastructure/event"
	"github.com/feeledger/backend/internal/infrastructure/lock"
	"github.com/feeledger/backend/internal/infrastructure/logger"
	"github.com/feeledger/backend/internal/infrastructure/migration"
	"github.com/feeledger/backend/internal/infrastructure/persistence"
	"github.com/feeledger/backend/internal/infrastructure/scheduler"
	"github.com/feeledger/backend/internal/infrastructure/storage"
	"github.com/feeledger/backend/internal/infrastructure/telemetry"
	"github.com/feeledger/backend/internal/interfaces/http/handler"
	"github.com/feeledger/backend/internal/interfaces/http/middleware"
	"github.com/feeledger/backend/internal/interfaces/http/router"
	"github.com/feeledger/backend/migrations"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	_ "github.com/feeledger/backend/docs"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

//	@title			Fee Ledger API
//	@version		1.0
//	@description	Fee invoicing, payment allocation and period reconciliation for a school fee ledger.

//	@host		localhost:8080
//	@BasePath	/api/v1

//	@externalDocs.description	OpenAPI
//	@externalDocs.url			https://swagger.io/resources/open-api/

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.FromAppConfig(cfg.Log))
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting fee ledger",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("currency", cfg.Billing.Currency),
	)

	ctx := context.Background()

	// Telemetry (no-op providers when disabled)
	traceCfg, metricsCfg := telemetry.FromAppConfig(cfg.Telemetry)
	tracerProvider, err := telemetry.NewTracerProvider(ctx, traceCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	defer func() {
		if err := tracerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down tracer provider", zap.Error(err))
		}
	}()
	meterProvider, err := telemetry.NewMeterProvider(ctx, metricsCfg, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	defer func() {
		if err := meterProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down meter provider", zap.Error(err))
		}
	}()
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfigFromApp(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to initialize logger provider", zap.Error(err))
	}
	defer func() {
		if err := loggerProvider.Shutdown(context.Background()); err != nil {
			log.Error("Error shutting down logger provider", zap.Error(err))
		}
	}()
	log = loggerProvider.Bridge(log)

	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfigFromApp(cfg.Telemetry), log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}
	defer func() {
		if err := profiler.Stop(); err != nil {
			log.Error("Error stopping profiler", zap.Error(err))
		}
	}()
	if profiler.IsEnabled() {
		tracerProvider.EnableSpanProfiles()
	}

	feeMetrics, err := telemetry.NewFeeMetrics(meterProvider.Meter("feeledger"))
	if err != nil {
		log.Fatal("Failed to create ledger metrics", zap.Error(err))
	}

	// Database
	gormOpts := []logger.GormLoggerOption{logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh)}
	if !cfg.Telemetry.DBLogFullSQL {
		gormOpts = append(gormOpts, logger.WithParameterizedQueries())
	}
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level), gormOpts...)
	db, err := persistence.NewDatabase(&cfg.Database, persistence.WithLogger(gormLog))
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	log.Info("Database connected", zap.String("driver", cfg.Database.Driver))

	if cfg.Telemetry.DBTraceEnabled {
		plugin := telemetry.NewDBTracingPlugin(telemetry.DBTracingConfig{
			Enabled:         true,
			LogFullSQL:      cfg.Telemetry.DBLogFullSQL,
			SlowQueryThresh: cfg.Telemetry.DBSlowQueryThresh,
			DBSystem:        dbSystem(cfg.Database.Driver),
		}, log)
		if err := plugin.RegisterOtelGorm(db.DB); err != nil {
			log.Fatal("Failed to register database tracing", zap.Error(err))
		}
	}

	if err := prepareSchema(cfg, db, log); err != nil {
		log.Fatal("Failed to prepare database schema", zap.Error(err))
	}

	// Redis is only dialed when a component is configured to use it
	var redisClient redis.UniversalClient
	if cfg.Lock.Driver == "redis" {
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			log.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		}
		defer func() {
			if err := client.Close(); err != nil {
				log.Error("Error closing redis client", zap.Error(err))
			}
		}()
		redisClient = client
	}

	leases, err := lock.New(cfg.Lock, redisClient, log)
	if err != nil {
		log.Fatal("Failed to create student lease manager", zap.Error(err))
	}

	idemStore, err := cache.NewIdempotencyStoreFactory(cfg.Idempotency, cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.App.Env != "production"),
	).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create idempotency store", zap.Error(err))
	}
	defer func() {
		if err := idemStore.Close(); err != nil {
			log.Error("Error closing idempotency store", zap.Error(err))
		}
	}()
	idemConfig := shared.DefaultIdempotencyConfig()
	if cfg.Idempotency.TTL > 0 {
		idemConfig.TTL = cfg.Idempotency.TTL
	}

	// Ledger events are written to the outbox in the same transaction as the
	// ledger change and delivered to the bus by the outbox processor
	serializer := event.NewLedgerSerializer()
	policy := billingPolicy(cfg.Billing)
	store := persistence.NewGormLedgerStore(db.DB, policy.Currency,
		persistence.WithOutbox(event.NewOutboxPublisher(serializer)))

	feeCatalog := catalogapp.NewFeeCatalogService(catalogapp.Repositories{
		FeeItems:  persistence.NewGormFeeItemRepository(db.DB),
		Discounts: persistence.NewGormDiscountRuleRepository(db.DB, policy.Currency),
		Fines:     persistence.NewGormFineRuleRepository(db.DB, policy.Currency),
		Profiles:  persistence.NewGormStudentProfileRepository(db.DB),
	}, policy.Calendar, policy.Currency, log)

	archive := reportArchive(ctx, cfg, log)

	invoices := financeapp.NewInvoiceService(store, feeCatalog, leases, policy,
		financeapp.WithInvoiceLogger(log),
		financeapp.WithInvoiceMetrics(feeMetrics),
	)
	collections := financeapp.NewCollectionService(store, feeCatalog, leases, policy,
		financeapp.WithCollectionLogger(log),
		financeapp.WithCollectionMetrics(feeMetrics),
		financeapp.WithIdempotencyStore(idemStore, idemConfig),
	)
	ledger := financeapp.NewLedgerQueryService(store, feeCatalog)
	reconciliation := financeapp.NewReconciliationService(store, feeCatalog, leases, policy,
		financeapp.WithReconciliationLogger(log),
		financeapp.WithReconciliationMetrics(feeMetrics),
		financeapp.WithReportArchive(archive),
	)

	// Event bus and outbox delivery
	eventBus := event.NewInMemoryEventBus(log)
	metricsHandler := event.NewIdempotentHandler(feeMetrics, idemStore, log, event.WithIdempotencyConfig(idemConfig))
	eventBus.Subscribe(metricsHandler, metricsHandler.EventTypes()...)
	if err := eventBus.Start(ctx); err != nil {
		log.Fatal("Failed to start event bus", zap.Error(err))
	}
	defer func() {
		if err := eventBus.Stop(context.Background()); err != nil {
			log.Error("Error stopping event bus", zap.Error(err))
		}
	}()

	outboxConfig := event.DefaultOutboxProcessorConfig()
	outboxProcessor := event.NewOutboxProcessor(event.NewGormOutboxRepository(db.DB), eventBus, serializer, outboxConfig, log)
	if err := outboxProcessor.Start(ctx); err != nil {
		log.Fatal("Failed to start outbox processor", zap.Error(err))
	}
	defer func() {
		if err := outboxProcessor.Stop(context.Background()); err != nil {
			log.Error("Error stopping outbox processor", zap.Error(err))
		}
	}()
	log.Info("Outbox processor started",
		zap.Int("batch_size", outboxConfig.BatchSize),
		zap.Duration("poll_interval", outboxConfig.PollInterval),
	)

	// Automatic period close (if enabled)
	if cfg.Scheduler.Enabled {
		closeScheduler, err := scheduler.NewScheduler(scheduler.ConfigFromApp(cfg.Scheduler),
			scheduler.NewCloseExecutor(reconciliation, log), log)
		if err != nil {
			log.Fatal("Invalid scheduler configuration", zap.Error(err))
		}
		if err := closeScheduler.Start(ctx); err != nil {
			log.Fatal("Failed to start close scheduler", zap.Error(err))
		}
		defer func() {
			if err := closeScheduler.Stop(context.Background()); err != nil {
				log.Error("Error stopping close scheduler", zap.Error(err))
			}
		}()

		trigger := scheduler.NewCloseTrigger(scheduler.CloseTriggerConfig{
			CloseAfterDays: cfg.Scheduler.CloseAfterDays,
			CheckInterval:  cfg.Scheduler.CheckInterval,
		}, closeScheduler, log)
		if err := trigger.Start(ctx); err != nil {
			log.Fatal("Failed to start close trigger", zap.Error(err))
		}
		defer func() {
			if err := trigger.Stop(context.Background()); err != nil {
				log.Error("Error stopping close trigger", zap.Error(err))
			}
		}()
		log.Info("Period close scheduler started",
			zap.Int("close_after_days", cfg.Scheduler.CloseAfterDays),
			zap.Duration("check_interval", cfg.Scheduler.CheckInterval),
		)
	}

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if err := middleware.SetupValidator(); err != nil {
		log.Fatal("Failed to register validators", zap.Error(err))
	}

	engine := gin.New()
	if len(cfg.HTTP.TrustedProxies) > 0 {
		if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
			log.Warn("Failed to set trusted proxies", zap.Error(err))
		}
	}

	// Middleware order matters: the request ID and actor are set before the
	// span and the request logger read them
	engine.Use(logger.Recovery(log))
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Actor())
	engine.Use(middleware.Tracing(middleware.TracingConfig{
		ServiceName: traceCfg.ServiceName,
		Enabled:     traceCfg.Enabled,
	}))
	engine.Use(middleware.SpanAttributes())
	engine.Use(logger.GinMiddleware(log))
	engine.Use(middleware.HTTPMetrics(meterProvider))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSAllowOrigins
	corsConfig.AllowMethods = cfg.HTTP.CORSAllowMethods
	corsConfig.AllowHeaders = cfg.HTTP.CORSAllowHeaders
	engine.Use(middleware.CORS(corsConfig))
	engine.Use(middleware.Secure(middleware.DefaultSecurityConfig()))
	engine.Use(middleware.BodyLimit(cfg.HTTP.MaxBodySize))

	if cfg.HTTP.RateLimitEnabled {
		rateLimiter := middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		defer rateLimiter.Stop()
		engine.Use(middleware.RateLimit(rateLimiter))
		log.Info("Rate limiting enabled",
			zap.Int("requests", cfg.HTTP.RateLimitRequests),
			zap.Duration("window", cfg.HTTP.RateLimitWindow),
		)
	}

	// Health check endpoint (outside API versioning)
	checks := []handler.HealthCheck{{
		Name:  "database",
		Check: func(context.Context) error { return db.Ping() },
	}}
	if redisClient != nil {
		checks = append(checks, handler.HealthCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() },
		})
	}
	engine.GET("/health", handler.NewHealthHandler(checks...).Health)

	// Swagger documentation endpoint
	engine.GET("/swagger/*any",
		middleware.SwaggerProtection(middleware.SwaggerConfig{
			Enabled:    cfg.Swagger.Enabled,
			AllowedIPs: cfg.Swagger.AllowedIPs,
		}),
		ginSwagger.WrapHandler(swaggerFiles.Handler),
	)

	r := router.NewRouter(engine)
	routes := router.RegisterAPI(r, router.Handlers{
		Invoices: handler.NewInvoiceHandler(invoices),
		Payments: handler.NewPaymentHandler(collections, policy.Currency),
		Students: handler.NewStudentHandler(ledger, feeCatalog, policy.Calendar),
		Periods:  handler.NewPeriodHandler(reconciliation),
		Catalog:  handler.NewCatalogHandler(feeCatalog, policy.Currency),
	}, cfg.HTTP.WebhookSecret)
	r.Setup()
	log.Info("Routes registered", zap.Int("count", len(routes)))
	if cfg.HTTP.WebhookSecret == "" {
		log.Warn("Online payment webhook accepts unauthenticated deliveries; set http.webhook_secret")
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

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownTimeout := cfg.HTTP.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server exited gracefully")
}

// billingPolicy maps the billing configuration onto the ledger policy.
// config.Load has already range-checked the months.
func billingPolicy(cfg config.BillingConfig) financeapp.Policy {
	policy := financeapp.DefaultPolicy()
	policy.Currency = valueobject.Currency(cfg.Currency)
	policy.Allocation = finance.AllocationPolicy{
		CarryForwardFirst: cfg.CarryForwardFirst,
		AllowCreditCarry:  cfg.AllowCreditCarry,
	}
	if cfg.DueDays > 0 {
		policy.DueDays = cfg.DueDays
	}
	if cfg.LeaseTimeout > 0 {
		policy.LeaseTimeout = cfg.LeaseTimeout
	}
	if cfg.CloseWorkers > 0 {
		policy.CloseWorkers = cfg.CloseWorkers
	}
	if cfg.YearStartMonth > 0 {
		policy.Calendar.YearStartMonth = time.Month(cfg.YearStartMonth)
	}
	if len(cfg.TermStartMonths) > 0 {
		months := make([]time.Month, len(cfg.TermStartMonths))
		for i, m := range cfg.TermStartMonths {
			months[i] = time.Month(m)
		}
		policy.Calendar.TermStartMonths = months
	}
	return policy
}

// prepareSchema applies the embedded versioned migrations on postgres and
// falls back to model auto-migration for sqlite or when asked to
func prepareSchema(cfg *config.Config, db *persistence.Database, log *zap.Logger) error {
	if cfg.Database.Driver == "sqlite" || cfg.Database.AutoMigrate {
		return db.AutoMigrate()
	}
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	// the migrator is not closed: that would close the shared connection pool
	m, err := migration.NewEmbedded(sqlDB, migrations.FS, log)
	if err != nil {
		return err
	}
	return m.Up()
}

func reportArchive(ctx context.Context, cfg *config.Config, log *zap.Logger) financeapp.ReportArchive {
	if !cfg.Storage.Enabled {
		log.Info("Report storage disabled, keeping reconciliation reports in memory")
		return storage.NewMemoryReportArchive()
	}
	archive, err := storage.NewS3ReportArchive(&cfg.Storage,
		storage.WithLogger(log),
		storage.WithPresignExpiration(cfg.Storage.PresignExpiration),
	)
	if err != nil {
		log.Fatal("Failed to create report archive", zap.Error(err))
	}
	if err := archive.EnsureBucket(ctx); err != nil {
		// closes still succeed without an archive; the report is kept on the close record
		log.Warn("Report bucket unavailable", zap.String("bucket", cfg.Storage.Bucket), zap.Error(err))
	}
	log.Info("Archiving reconciliation reports to object storage",
		zap.String("bucket", cfg.Storage.Bucket),
		zap.String("endpoint", cfg.Storage.Endpoint),
	)
	return archive
}

func dbSystem(driver string) string {
	if driver == "sqlite" {
		return "sqlite"
	}
	return "postgresql"
}
