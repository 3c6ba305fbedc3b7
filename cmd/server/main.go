package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/lumenlearn/growthloop/config"
	appmodel "github.com/lumenlearn/growthloop/internal/app/model"
	apprepository "github.com/lumenlearn/growthloop/internal/app/repository"
	appserver "github.com/lumenlearn/growthloop/internal/app/server"
	appservice "github.com/lumenlearn/growthloop/internal/app/service"
	"github.com/lumenlearn/growthloop/internal/infra/logger"
	infraNATS "github.com/lumenlearn/growthloop/internal/infra/nats"
	infraPostgres "github.com/lumenlearn/growthloop/internal/infra/postgres"
	infraPrometheus "github.com/lumenlearn/growthloop/internal/infra/prometheus"
	infraRedis "github.com/lumenlearn/growthloop/internal/infra/redis"
	"go.uber.org/zap"
)

const sweeperGrace = 24 * time.Hour

func main() {
	ctx := context.Background()

	isDev := os.Getenv("APP_ENV") != "production"
	log := logger.MustInit(logger.Config{
		Development: isDev,
		Level:       os.Getenv("LOG_LEVEL"),
	})
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load config", zap.Error(err))
	}

	log.Info("Configuration loaded successfully",
		zap.String("postgres_user", cfg.Postgres.User),
		zap.String("postgres_host", cfg.Postgres.Host),
		zap.Int("postgres_port", cfg.Postgres.Port),
		zap.String("postgres_db", cfg.Postgres.Database),
		zap.String("redis_host", cfg.Redis.Host),
		zap.Int("redis_port", cfg.Redis.Port),
		zap.String("nats_host", cfg.NATS.Host),
		zap.Int("nats_port", cfg.NATS.Port),
		zap.String("base_url", cfg.Growth.BaseURL),
		zap.Int("daily_link_limit", cfg.Growth.DailyLinkLimit),
		zap.Duration("link_ttl", cfg.Growth.LinkTTL),
	)

	gormDB, err := infraPostgres.NewGorm(cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to open GORM connection", zap.Error(err))
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		log.Fatal("Failed to access underlying SQL DB", zap.Error(err))
	}
	defer sqlDB.Close()

	if err := infraPostgres.AutoMigrate(ctx, gormDB, &appmodel.SmartLink{}, &appmodel.TrackingEvent{}); err != nil {
		log.Fatal("Failed to run database migrations", zap.Error(err))
	}

	pool, err := infraPostgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal("Failed to connect to Postgres", zap.Error(err))
	}
	defer pool.Close()

	log.Info("Connected to Postgres successfully")

	redisClient, err := infraRedis.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	log.Info("Connected to Redis successfully")

	natsConn, js, err := infraNATS.Connect(cfg.NATS)
	if err != nil {
		log.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer natsConn.Drain()
	log.Info("Connected to NATS successfully", zap.Bool("jetstream_ready", js != nil))

	if !isDev {
		promServer := infraPrometheus.NewServer(cfg.Prometheus)
		go func() {
			log.Info("Starting Prometheus metrics server",
				zap.Int("port", cfg.Prometheus.Port))
			if err := promServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Prometheus metrics server stopped unexpectedly", zap.Error(err))
			}
		}()
		defer func() {
			if err := promServer.Close(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Warn("Failed to close Prometheus server", zap.Error(err))
			}
		}()
	} else {
		log.Info("Skipping Prometheus metrics server in development mode")
	}

	linkRepo := apprepository.NewLinkRepository(gormDB)
	eventRepo := apprepository.NewTrackingEventRepository(gormDB)

	signer := appservice.NewSigner([]byte(cfg.Growth.SigningSecret))
	limiter := appservice.NewRateLimiter(appservice.NewRedisQuotaCounters(redisClient), cfg.Growth.DailyLinkLimit)
	registry := appservice.NewLinkRegistry(log, linkRepo, signer, limiter, appservice.RegistryConfig{
		BaseURL:    cfg.Growth.BaseURL,
		LinkTTL:    cfg.Growth.LinkTTL,
		CodeLength: cfg.Growth.CodeLength,
	})

	publisher := appservice.NewEventPublisher(js)
	attribution := appservice.NewAttributionCarrier(log, publisher)

	consumer := appservice.NewEventConsumer(js, log, eventRepo)
	if err := consumer.Start(); err != nil {
		log.Fatal("Failed to start tracking event consumer", zap.Error(err))
	}

	sweeper := appservice.NewLinkSweeper(log, pool, sweeperGrace)
	sweeper.Start()
	defer sweeper.Stop()

	server := appserver.New(appserver.Dependencies{
		Logger:      log,
		Postgres:    pool,
		Redis:       redisClient,
		NATS:        natsConn,
		JetStream:   js,
		Registry:    registry,
		Attribution: attribution,
		Publisher:   publisher,
		AppURL:      cfg.Growth.AppURL,
	})

	if err := server.Listen(":8080"); err != nil {
		log.Fatal("Fiber server exited", zap.Error(err))
	}
}
