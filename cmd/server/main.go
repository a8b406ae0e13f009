// Package main runs the Re:Thread party API server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/otgil/rethread/config"
	"github.com/otgil/rethread/internal/auth"
	"github.com/otgil/rethread/internal/credits"
	"github.com/otgil/rethread/internal/middleware"
	"github.com/otgil/rethread/internal/parties"
	"github.com/otgil/rethread/internal/worker"
	"github.com/otgil/rethread/pkg/database"
	"github.com/otgil/rethread/pkg/queue"
	"github.com/otgil/rethread/pkg/redis"
	"github.com/otgil/rethread/pkg/response"
	"github.com/otgil/rethread/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var images parties.ImageStore
	if cfg.AWS.PartyImagesBucket != "" {
		s3Client, err := storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			PartyImagesBucket:    cfg.AWS.PartyImagesBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			images = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Auth
	authHandler := auth.NewHandler(auth.NewRepository(pool), jwtService, logger)

	// Parties
	partyRepo := parties.NewRepository(pool)
	joinLimiter := parties.NewRedisJoinLimiter(rdb.Client, cfg.Party.JoinMaxFailures, cfg.Party.JoinFailureWindow)
	partyHandler := parties.NewHandler(
		parties.NewController(partyRepo, jobQueue, cfg.Party.CodeMaxAttempts, logger),
		parties.NewParticipationManager(partyRepo, joinLimiter, logger),
		images,
		logger,
	)

	// Credits
	creditRepo := credits.NewRepository(pool)
	creditHandler := credits.NewHandler(creditRepo, logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	authn := middleware.JWT(jwtService)
	authHandler.Routes(router, authn)
	partyHandler.Routes(router, authn, middleware.OptionalJWT(jwtService))
	creditHandler.Routes(router, authn)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (party events: completion payout)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.InProcessWorker {
		processor := worker.NewPartyEventProcessor(partyRepo, creditRepo, jobQueue, worker.Payout{
			PerAttendance: cfg.Credits.PerAttendance,
			HostBonus:     cfg.Credits.HostBonus,
		}, logger)
		go processor.Run(workerCtx)
		logger.Info("party event worker started")
	}

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
