package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"thirdcoast.systems/showreel/internal/application"
	"thirdcoast.systems/showreel/internal/config"
	"thirdcoast.systems/showreel/internal/encoding"
	"thirdcoast.systems/showreel/internal/ingest"
	"thirdcoast.systems/showreel/internal/moderation"
	"thirdcoast.systems/showreel/internal/objectstore"
	"thirdcoast.systems/showreel/internal/queue"
	"thirdcoast.systems/showreel/internal/store"
	"thirdcoast.systems/showreel/internal/watchdog"
	"thirdcoast.systems/showreel/internal/web"
	"thirdcoast.systems/showreel/internal/webhook"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Local development convenience; a missing .env is not an error.
	_ = godotenv.Load()

	logger := slog.Default()
	logger.Info("starting showreel")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.DatabaseRetries <= 0 {
		conf.DatabaseRetries = 10
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	videos := store.NewPostgresStore(pool)
	if err := videos.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	objects, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Endpoint:  conf.StorageEndpoint,
		Region:    conf.StorageRegion,
		Bucket:    conf.StorageBucket,
		AccessKey: conf.StorageAccessKey,
		SecretKey: conf.StorageSecretKey,
	})
	if err != nil {
		logger.Error("failed to initialize object storage", "error", err)
		os.Exit(1)
	}

	layout := encoding.NewOutputLayout(conf.StoragePublicBaseURL)
	jobs := queue.New(conf.EncodeConcurrency)

	local := encoding.NewLocalEncoder(objects, layout, conf.WorkDir,
		time.Duration(conf.EncodeTimeoutMin)*time.Minute, logger)
	remote := encoding.NewRemoteEncoder(conf.RemoteEncoderEndpoint, conf.RemoteEncoderAPIKey,
		conf.WebhookBaseURL, conf.WebhookSecret, objects, layout)

	worker := encoding.NewWorker(jobs, videos, local, objects, layout, logger, encoding.WorkerOptions{
		Workers:       conf.EncodeConcurrency,
		Retention:     time.Duration(conf.JobRetentionHours) * time.Hour,
		PurgeInterval: time.Duration(conf.JobPurgeIntervalMin) * time.Minute,
	})
	worker.Start(ctx)

	moderator := moderation.Select(conf.ModerationURL, conf.IsProduction(), videos)

	dog := watchdog.New(videos, objects, jobs, layout, logger, watchdog.Options{
		Interval:         time.Duration(conf.WatchdogIntervalMin) * time.Minute,
		StuckThreshold:   time.Duration(conf.StuckThresholdMin) * time.Minute,
		TimeoutThreshold: time.Duration(conf.EncodingTimeoutMin) * time.Minute,
	})
	go dog.Start(ctx)

	ingestSvc := ingest.NewService(videos, objects, jobs, remote, layout,
		conf.WorkDir, ingest.DefaultLimits(), logger)
	hooks := webhook.NewHandler(conf.WebhookSecret,
		webhook.NewEncoderReducer(videos, remote, moderator, layout, logger),
		webhook.NewPipelineReducer(videos, moderator, layout, logger),
		logger)

	e := web.NewWebserver(videos, jobs, ingestSvc, hooks, "2G", logger)

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	logger.Info("listening", "addr", addr)
	if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) && ctx.Err() == nil {
		logger.Error("webserver exited", "error", err)
		os.Exit(1)
	}

	// Drain in-flight encodes, bounded; past the deadline we exit anyway.
	drainCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	worker.Stop(drainCtx)
	logger.Info("shutdown complete")
}
