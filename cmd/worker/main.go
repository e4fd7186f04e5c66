// Package main runs the background maintenance worker: presence reconciliation,
// orphaned recording cleanup, pending command pruning, and queued command relay.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fieldwatch/backend/config"
	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/commands"
	"github.com/fieldwatch/backend/internal/egress"
	"github.com/fieldwatch/backend/internal/recordings"
	"github.com/fieldwatch/backend/internal/worker"
	"github.com/fieldwatch/backend/pkg/database"
	"github.com/fieldwatch/backend/pkg/queue"
	"github.com/fieldwatch/backend/pkg/redis"
	"github.com/fieldwatch/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	s3Cfg := storage.S3Config{
		Region:               cfg.AWS.Region,
		AccessKeyID:          cfg.AWS.AccessKeyID,
		SecretAccessKey:      cfg.AWS.SecretAccessKey,
		RecordingsBucket:     cfg.AWS.RecordingsBucket,
		PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
	}
	s3Client, err := storage.NewS3(ctx, s3Cfg, logger)
	if err != nil {
		logger.Fatal("s3", zap.Error(err))
	}

	redisPubSub := broadcast.NewRedisPubSub(rdb.Client, logger)

	jobQueue := queue.NewQueue(rdb.Client, logger)
	commandRepo := commands.NewRepository(pool)

	egressClient := egress.NewClient(cfg.Egress.BaseURL, cfg.Egress.APIKey, cfg.Egress.APISecret, cfg.Egress.Timeout(), logger)
	recordingRepo := recordings.NewRepository(pool)
	errorLog := recordings.NewAuditLogger(pool, logger)
	orchestrator := recordings.NewOrchestrator(egressClient, recordingRepo, s3Client, errorLog, redisNotifier{redisPubSub}, logger)

	// Presence reconciliation needs live hub membership, so it runs in the
	// server process, not here. Passing a nil reconciler skips that pass.
	maintenance := worker.NewMaintenance(
		nil, orchestrator, recordingRepo, commandRepo,
		cfg.Presence.ReconcileInterval, cfg.Recording.MaxSessionAge, cfg.Commands.PendingTTL,
		logger,
	)
	relay := worker.NewCommandRelay(jobQueue, redisPubSub, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go maintenance.Run(workerCtx)
	go relay.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

// redisNotifier publishes recording lifecycle events straight to the Redis
// group channel; server instances holding the subject's connection fan them out.
type redisNotifier struct {
	ps *broadcast.RedisPubSub
}

func (n redisNotifier) BroadcastToGroup(_ context.Context, group, event string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return n.ps.PublishGroupEvent(group, event, body)
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
