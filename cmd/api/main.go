package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/swagger"
	_ "github.com/joho/godotenv/autoload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"docregistry/docs"
	"docregistry/internal/audit"
	"docregistry/internal/config"
	"docregistry/internal/database"
	"docregistry/internal/database/migration"
	"docregistry/internal/height"
	handlers "docregistry/internal/http/handler"
	"docregistry/internal/http/middleware"
	"docregistry/internal/identity"
	"docregistry/internal/logger"
	"docregistry/internal/model"
	"docregistry/internal/otel"
	"docregistry/internal/repository"
	"docregistry/internal/repository/memory"
	"docregistry/internal/repository/postgres"
	"docregistry/internal/service"
	"docregistry/internal/storage"
)

// @title Document Registry API
// @version 1.0
// @BasePath /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	// Load configuration from environment variables (.env auto-loaded if present)
	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server_exited", zap.Error(err))
	}
}

func run(cfg *config.AppConfig, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Init(ctx, log)
	if err != nil {
		return fmt.Errorf("init tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	grantMode, err := service.ParseGrantMode(cfg.Registry.GrantMode)
	if err != nil {
		return err
	}

	verifier, err := identity.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	if err != nil {
		return fmt.Errorf("init token verifier: %w", err)
	}

	store, db, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
	}

	heights, err := openHeights(ctx, cfg, log)
	if err != nil {
		return err
	}

	journal, err := openJournal(cfg, log)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	opMetrics, err := service.NewOperationMetrics(reg)
	if err != nil {
		return fmt.Errorf("register operation metrics: %w", err)
	}
	httpMetrics, err := middleware.NewPrometheusMiddleware(reg)
	if err != nil {
		return fmt.Errorf("register http metrics: %w", err)
	}

	svc := service.NewRegistryService(store, heights, service.Options{
		Administrator: model.Principal(cfg.Registry.Administrator),
		GrantMode:     grantMode,
		Journal:       journal,
		Logger:        log.Named("registry"),
		Metrics:       opMetrics,
	})

	app := fiber.New(fiber.Config{
		ErrorHandler:          handlers.ErrorHandler(),
		DisableStartupMessage: true,
	})

	// RequestID middleware adds/propagates X-Request-ID and stores it in context
	app.Use(middleware.RequestID())
	app.Use(otelfiber.Middleware())
	app.Use(middleware.Logger(log.Named("http")))
	app.Use(httpMetrics.Handler())

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// A nil *sql.DB must not reach HealthCheck as a non-nil interface.
	var pinger handlers.Pinger
	if db != nil {
		pinger = db
	}
	handlers.RegisterRoutes(app, pinger, svc, verifier)

	// Swagger UI with dynamic host and scheme
	app.Get("/swagger/*", func(c *fiber.Ctx) error {
		scheme := c.Protocol()
		if proto := c.Get("X-Forwarded-Proto"); proto != "" {
			scheme = strings.Split(proto, ",")[0]
		}

		docs.SwaggerInfo.Host = c.Get("Host")
		docs.SwaggerInfo.Schemes = []string{scheme}

		return swagger.HandlerDefault(c)
	})

	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		log.Info("server_starting",
			zap.String("addr", addr),
			zap.String("store", cfg.Registry.Store),
			zap.String("grant_mode", string(grantMode)),
			zap.Bool("audit_enabled", journal != nil),
		)
		errCh <- app.Listen(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		log.Info("server_stopping")
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return app.ShutdownWithContext(sctx)
	}
}

func openStore(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (repository.Store, *sql.DB, error) {
	switch cfg.Registry.Store {
	case config.StoreMemory:
		log.Warn("using in-memory store; state is lost on restart")
		return memory.NewStore(), nil, nil
	case config.StorePostgres:
		// Initialize PostgreSQL connection (with pooling via database/sql)
		db, err := database.NewPostgres(ctx, cfg.Database, log)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		if err := migration.EnsureMigrated(ctx, db, log.With(zap.String("db_host", cfg.Database.Host))); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate database: %w", err)
		}
		return postgres.NewRegistryPostgres(db), db, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Registry.Store)
	}
}

func openHeights(ctx context.Context, cfg *config.AppConfig, log *zap.Logger) (height.Provider, error) {
	if cfg.Redis.Host == "" {
		log.Warn("REDIS_HOST not set; using in-process height counter")
		return height.NewCounter(0), nil
	}
	client := height.NewRedisClient(cfg.Redis)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return height.NewRedisProvider(client, cfg.Redis.HeightKey), nil
}

// openJournal returns nil when no object storage endpoint is configured.
func openJournal(cfg *config.AppConfig, log *zap.Logger) (audit.Journal, error) {
	if cfg.MinIO.Endpoint == "" {
		log.Info("MINIO_ENDPOINT not set; audit journal disabled")
		return nil, nil
	}
	// Initialize reusable S3-compatible object storage client (MinIO-supported)
	objStore, err := storage.NewMinIO(cfg.MinIO)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	retention := time.Duration(cfg.MinIO.AuditRetentionDays) * 24 * time.Hour
	return audit.NewObjectJournal(objStore, "").WithRetention(retention), nil
}
