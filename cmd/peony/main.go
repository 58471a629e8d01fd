package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Gobusters/ectoinject"
	"github.com/Gobusters/ectologger"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/sellerdesk/peony/config"
	"github.com/sellerdesk/peony/internal/repositories/masterproduct"
	"github.com/sellerdesk/peony/internal/repositories/matchinghistory"
	"github.com/sellerdesk/peony/internal/repositories/qualitymetric"
	"github.com/sellerdesk/peony/internal/repositories/skumapping"
	"github.com/sellerdesk/peony/pkg/database"
	"github.com/sellerdesk/peony/pkg/kafka"
	"github.com/sellerdesk/peony/pkg/logger"
	"github.com/sellerdesk/peony/pkg/matching"
	"github.com/sellerdesk/peony/pkg/middleware"
	"github.com/sellerdesk/peony/pkg/processor"
	"github.com/sellerdesk/peony/pkg/quality"
	"github.com/sellerdesk/peony/pkg/redis"
	"github.com/sellerdesk/peony/pkg/routes/health"
	historyroutes "github.com/sellerdesk/peony/pkg/routes/history"
	masterroutes "github.com/sellerdesk/peony/pkg/routes/masterproduct"
	qualityroutes "github.com/sellerdesk/peony/pkg/routes/quality"
	"github.com/sellerdesk/peony/pkg/routes/resolve"
	"github.com/sellerdesk/peony/pkg/routes/reviewqueue"
	"github.com/sellerdesk/peony/pkg/workflow"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	log := logger.New(cfg)
	log.Infof("Starting %s (%s)", cfg.AppName, version)

	db, err := database.Connect(cfg, log)
	if err != nil {
		log.WithError(err).Error("Failed to connect to database")
		os.Exit(1)
	}
	defer db.Close()

	if err := runMigrations(cfg, log, db); err != nil {
		log.WithError(err).Error("Failed to run database migrations")
		os.Exit(1)
	}

	var redisClient *redis.Client
	var locker *redis.Locker
	if cfg.BatchLockEnabled {
		redisClient, err = connectRedis(cfg, log)
		if err != nil {
			log.WithError(err).Error("Failed to connect to Redis")
			os.Exit(1)
		}
		defer redisClient.Close()
		locker = redis.NewLocker(redisClient, "peony:")
	}

	masters := masterproduct.NewRepository(db, log)
	mappings := skumapping.NewRepository(db, log)
	historyRepo := matchinghistory.NewRepository(db, log)
	metricsRepo := qualitymetric.NewRepository(db, log)

	engine := matching.NewEngine(log, db, masters, mappings, historyRepo, matching.EngineConfig{
		AutoMatchThreshold: cfg.AutoMatchThreshold,
		ReviewThreshold:    cfg.ReviewThreshold,
		MaxCandidates:      cfg.MaxCandidates,
		MinSimilarity:      cfg.TrigramSearchMinimum,
	})
	review := workflow.NewService(log, db, mappings, masters, historyRepo)
	batch := processor.NewBatchProcessor(log, engine, historyRepo, locker, processor.Config{
		WorkerCount:    cfg.MatchWorkerCount,
		LockTTL:        cfg.BatchLockTTL,
		LockWait:       2 * time.Second,
		ResolveTimeout: cfg.ResolutionTimeLimit,
	})
	calculator := quality.NewCalculator(log, metricsRepo)

	if cfg.QualityCronEnabled {
		runner := quality.NewRunner(log, calculator)
		if err := runner.Start(cfg.QualityCronSchedule); err != nil {
			log.WithError(err).Error("Failed to schedule quality recalculation")
			os.Exit(1)
		}
		defer runner.Stop()
	}

	producer := kafka.NewProducer(cfg, log)
	defer producer.Close()

	if cfg.KafkaConsumerEnabled {
		consumer := kafka.NewConsumer(cfg, log, feedHandler(log, engine, producer))
		if err := consumer.Start(context.Background()); err != nil {
			log.WithError(err).Error("Failed to start Kafka consumer")
			os.Exit(1)
		}
		defer consumer.Stop()
	}

	if err := registerDependencies(log, masters, mappings, historyRepo, metricsRepo, engine, review, batch, calculator); err != nil {
		log.WithError(err).Error("Failed to build dependency container")
		os.Exit(1)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.Error(log)
	e.Use(echomw.Recover())
	e.Use(otelecho.Middleware(cfg.AppName))
	e.Use(middleware.Context())
	e.Use(middleware.Logger(log))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.AllowOrigins,
		AllowMethods: cfg.AllowMethods,
	}))

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	var redisCheck interface {
		Ping(ctx context.Context) error
	}
	if redisClient != nil {
		redisCheck = redisClient
	}
	checker := health.NewChecker(db.Unsafe(), redisCheck, version)
	checker.RegisterRoutes(e)

	api := e.Group("/api/v1")
	resolve.Register(api.Group("/resolve"))
	reviewqueue.Register(api.Group("/review-queue"))
	masterroutes.Register(api.Group("/master-products"))
	historyroutes.Register(api.Group("/history"))
	qualityroutes.Register(api.Group("/quality"))

	checker.SetReady(true)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		ReadTimeout:       time.Duration(cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		if err := e.StartServer(server); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("HTTP server stopped")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down")
	checker.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.WithError(err).Error("Failed to shut down HTTP server cleanly")
	}
}

// connectRedis retries while the Redis container is still coming up, same as
// the database connector.
func connectRedis(cfg *config.Config, log ectologger.Logger) (*redis.Client, error) {
	attempts := cfg.StartupMaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var client *redis.Client
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		client, err = redis.NewClient(cfg, log)
		if err == nil {
			return client, nil
		}
		log.WithError(err).Warnf("Redis connection attempt %d/%d failed", attempt, attempts)
		time.Sleep(time.Duration(attempt) * time.Second)
	}
	return nil, err
}

func runMigrations(cfg *config.Config, log ectologger.Logger, db database.DB) error {
	driver, err := migratepg.WithInstance(db.Unsafe().DB, &migratepg.Config{DatabaseName: cfg.DatabaseName})
	if err != nil {
		return err
	}

	migrations := database.NewMigrationService(log, &database.MigrationConfig{
		MigrationFolderPath: cfg.DatabaseMigrationFolderPath,
		Version:             uint(cfg.DatabaseMigrationVersion),
		Force:               cfg.DatabaseMigrationForce,
		AutoRollback:        cfg.DatabaseMigrationAutoRollback,
	})
	return migrations.Migrate(cfg.DatabaseName, driver)
}

// feedHandler resolves every record of a feed message and publishes the
// resulting match events.
func feedHandler(log ectologger.Logger, engine *matching.Engine, producer *kafka.Producer) kafka.MessageHandler {
	return func(ctx context.Context, msg *kafka.IncomingMessage) error {
		events := make([]*kafka.MatchEvent, 0, len(msg.Records))
		for _, record := range msg.Records {
			resolution, err := engine.Resolve(ctx, record)
			if err != nil {
				return err
			}
			if resolution.AlreadyResolved {
				continue
			}
			events = append(events, kafka.NewMatchEvent(record, resolution))
		}
		return producer.PublishMatchEvents(ctx, events)
	}
}

func registerDependencies(
	log ectologger.Logger,
	masters *masterproduct.Repository,
	mappings *skumapping.Repository,
	historyRepo *matchinghistory.Repository,
	metricsRepo *qualitymetric.Repository,
	engine *matching.Engine,
	review *workflow.Service,
	batch *processor.BatchProcessor,
	calculator *quality.Calculator,
) error {
	container, err := ectoinject.NewDIDefaultContainer()
	if err != nil {
		return err
	}

	if err := ectoinject.RegisterInstance[ectologger.Logger](container, log); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*masterproduct.Repository](container, masters); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*skumapping.Repository](container, mappings); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matchinghistory.Repository](container, historyRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*qualitymetric.Repository](container, metricsRepo); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*matching.Engine](container, engine); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*workflow.Service](container, review); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*processor.BatchProcessor](container, batch); err != nil {
		return err
	}
	if err := ectoinject.RegisterInstance[*quality.Calculator](container, calculator); err != nil {
		return err
	}

	return nil
}
