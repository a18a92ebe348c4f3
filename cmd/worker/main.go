package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/hibiken/asynq"

	"github.com/storagelabels/backend/internal/config"
	"github.com/storagelabels/backend/internal/database"
	"github.com/storagelabels/backend/internal/imagecrypt"
	"github.com/storagelabels/backend/internal/imagestore"
	"github.com/storagelabels/backend/internal/queue"
	"github.com/storagelabels/backend/internal/queue/workers"
	"github.com/storagelabels/backend/internal/repository"
	"github.com/storagelabels/backend/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	db, err := database.NewPool(ctx, cfg.Database)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	keyRepo := repository.NewKeyRepository(db)
	imageRepo := repository.NewImageRepository(db)
	blobs := imagestore.New(cfg.Images.RootDir)
	cipher := imagecrypt.New(cfg.Images.MasterKey)
	queueClient := queue.NewClient(cfg.Redis)
	defer queueClient.Close()

	keySvc := service.NewKeyService(keyRepo, imageRepo, blobs, cipher, queueClient,
		cfg.Images.RotationBatchSize, logger)

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				"critical": 6,
				"default":  3,
				"low":      1,
			},
		},
	)

	registry := queue.NewHandlersRegistry()
	rotationWorker := workers.NewRotationWorker(keySvc)
	registry.RegisterFunc(queue.TypeKeyRotation, rotationWorker.ProcessTask)

	slog.Info("starting worker", "concurrency", 10)
	if err := srv.Run(registry.Mux()); err != nil {
		slog.Error("worker error", "error", err)
		os.Exit(1)
	}
}
