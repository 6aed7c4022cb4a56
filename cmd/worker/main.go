package main

import (
	"context"
	"os/signal"
	"syscall"

	"staffattend/internal/attendance"
	"staffattend/internal/config"
	"staffattend/internal/face"
	"staffattend/internal/faceclient"
	"staffattend/internal/logger"
	"staffattend/internal/queue"
	"staffattend/internal/store"
	"staffattend/internal/worker"
)

// Worker consumes capture jobs, calls the face service and records attendance.
func main() {
	cfg := config.Load()
	logger.Configure(logger.Config{Level: cfg.LogLevel, JSON: cfg.LogJSON})

	if err := run(cfg); err != nil {
		logger.Fatal().Err(err).Msg("worker failed")
	}
}

func run(cfg config.App) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.NewDB(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if db == nil {
		return err
	}
	defer db.Close()
	if err != nil {
		return err
	}

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		logger.Warn().Msg("memory queue only sees jobs published in this process")
		q = queue.NewInMemory(64)
	} else {
		redisClient := store.NewRedis(cfg.RedisAddr)
		defer redisClient.Close()
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	policy, err := attendance.NewPolicy(cfg.Location(), cfg.WorkdayStart, cfg.WorkdayEnd, cfg.LateGrace)
	if err != nil {
		return err
	}
	repo := attendance.NewRepository(db.Client)
	att := attendance.NewService(repo, face.NewMatcher(cfg.MatchThreshold, cfg.EmbeddingDim), policy)

	fc := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip, cfg.EmbeddingDim)
	if !cfg.FaceSkip {
		if err := fc.Health(ctx); err != nil {
			logger.Warn().Err(err).Msg("face service not available, captures will fail until it is")
		} else {
			logger.Info().Str("url", cfg.FaceServiceURL).Msg("face service connected")
		}
	}

	logger.Info().Str("queue", cfg.QueueBackend).Msg("worker started")
	err = worker.NewProcessor(repo, att, fc, cfg.LivenessCheck).Run(ctx, q)
	logger.Info().Msg("worker stopped")
	return err
}
