// Package main runs the field operations dashboard HTTP server with WebSocket
// presence, command dispatch and recording control, and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/fieldwatch/backend/config"
	"github.com/fieldwatch/backend/internal/auth"
	"github.com/fieldwatch/backend/internal/broadcast"
	"github.com/fieldwatch/backend/internal/commands"
	"github.com/fieldwatch/backend/internal/egress"
	"github.com/fieldwatch/backend/internal/identity"
	"github.com/fieldwatch/backend/internal/middleware"
	"github.com/fieldwatch/backend/internal/presence"
	"github.com/fieldwatch/backend/internal/recordings"
	"github.com/fieldwatch/backend/internal/worker"
	"github.com/fieldwatch/backend/pkg/database"
	"github.com/fieldwatch/backend/pkg/queue"
	"github.com/fieldwatch/backend/pkg/redis"
	"github.com/fieldwatch/backend/pkg/response"
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

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

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

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := broadcast.NewRedisPubSub(rdb.Client, logger)
	hub := broadcast.NewHub(logger, redisPubSub, redisPubSub)

	// Users and auth
	userRepo := identity.NewRepository(pool)
	authHandler := auth.NewHandler(userRepo, jwtService, logger)

	// Presence
	presenceRepo := presence.NewRepository(pool)
	tracker := presence.NewTracker(presenceRepo, hub, logger)
	hub.SetPresenceHooks(tracker.HandleConnect, tracker.HandleDisconnect)
	reconciler := presence.NewReconciler(hub, presenceRepo, presenceRepo, logger)
	presenceHandler := presence.NewHandler(presenceRepo, userRepo, reconciler, cfg.Presence.StaleAfter, logger)

	// Commands
	jobQueue := queue.NewQueue(rdb.Client, logger)
	dispatcher := commands.NewDispatcher(hub, jobQueue, cfg.Commands.DispatchTimeout, logger)
	commandRepo := commands.NewRepository(pool)
	pendingManager := commands.NewManager(commandRepo, userRepo, cfg.Commands.PendingTTL, logger)
	commandService := commands.NewService(dispatcher, pendingManager, userRepo, logger)
	commandHandler := commands.NewHandler(commandService, pendingManager, logger)

	// Recordings
	egressClient := egress.NewClient(cfg.Egress.BaseURL, cfg.Egress.APIKey, cfg.Egress.APISecret, cfg.Egress.Timeout(), logger)
	recordingRepo := recordings.NewRepository(pool)
	errorLog := recordings.NewAuditLogger(pool, logger)
	orchestrator := recordings.NewOrchestrator(egressClient, recordingRepo, s3Client, errorLog, dispatcher, logger)
	recordingHandler := recordings.NewHandler(orchestrator, recordingRepo, userRepo, s3Client, logger)

	// Token validation for the WebSocket upgrade. The full name is not carried
	// in the claims, so resolve it from the user record.
	wsValidate := func(token string) (uuid.UUID, string, string, string, error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return uuid.Nil, "", "", "", err
		}
		lookupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		fullName := ""
		if u, err := userRepo.GetByID(lookupCtx, claims.UserID); err == nil && u != nil {
			fullName = u.FullName
		}
		return claims.UserID, claims.Email, fullName, claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Commands
		api.POST("/subjects/:email/commands", middleware.RequireRole("admin", "supervisor"), commandHandler.Issue)
		api.GET("/commands/pending", middleware.RequireRole("subject"), commandHandler.FetchPending)
		api.POST("/commands/acknowledge", middleware.RequireRole("subject"), commandHandler.Acknowledge)

		// Presence
		api.GET("/presence", middleware.RequireRole("admin", "supervisor"), presenceHandler.List)
		api.POST("/presence/reconcile", middleware.RequireRole("admin"), presenceHandler.Reconcile)

		// Recordings
		api.POST("/recordings/start", middleware.RequireRole("admin", "supervisor"), recordingHandler.Start)
		api.POST("/subjects/:email/recordings/stop", middleware.RequireRole("admin", "supervisor"), recordingHandler.StopForSubject)
		api.GET("/recordings", middleware.RequireRole("admin", "supervisor"), recordingHandler.List)
		api.GET("/recordings/:id/playback-url", middleware.RequireRole("admin", "supervisor"), recordingHandler.PlaybackURL)
		api.DELETE("/recordings/:id", middleware.RequireRole("admin"), recordingHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", broadcast.ServeWs(hub, logger, wsValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// In-process maintenance loop. A dedicated worker binary exists for
	// deployments that want these passes out of the request path.
	maintenance := worker.NewMaintenance(
		reconciler, orchestrator, recordingRepo, commandRepo,
		cfg.Presence.ReconcileInterval, cfg.Recording.MaxSessionAge, cfg.Commands.PendingTTL,
		logger,
	)
	relay := worker.NewCommandRelay(jobQueue, redisPubSub, logger)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go maintenance.Run(workerCtx)
	go relay.Run(workerCtx)

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
