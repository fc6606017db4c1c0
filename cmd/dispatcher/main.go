package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch/config/logger"
	postgresConfig "github.com/fieldops/dispatch/config/storage/postgresql"
	redisConfig "github.com/fieldops/dispatch/config/storage/redis"
	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/adapter/api"
	"github.com/fieldops/dispatch/internal/adapter/queue/rabbitmq"
	"github.com/fieldops/dispatch/internal/adapter/storage/postgres"
	redisAdapter "github.com/fieldops/dispatch/internal/adapter/storage/redis"
	"github.com/fieldops/dispatch/internal/core/domain"
	"github.com/fieldops/dispatch/internal/core/service"
)

// _shutdownPeriod is time to wait for in-flight requests before closing
const _shutdownPeriod = 10 * time.Second

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	zap.L().Info("Starting the dispatcher",
		zap.String("app", appConfig.App.Name),
		zap.String("env", appConfig.App.Env))

	// Postgres
	dbService, err := postgresConfig.New(rootCtx, appConfig.DB, log.Named("DB"))
	if err != nil {
		zap.L().Error("Error initializing database connection", zap.Error(err))
		os.Exit(1)
	}
	defer dbService.Close()

	if err := dbService.Migrate(); err != nil {
		zap.L().Error("Error migrating database", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Successfully migrated the database")

	taskRepo := postgres.NewTaskRepository(dbService, log.Named("TaskRepo"))
	workerDir := postgres.NewWorkerDirectory(dbService, log.Named("WorkerDir"))
	auditLog := postgres.NewAuditLog(dbService, log.Named("Audit"))

	// Redis
	cache, err := redisConfig.New(rootCtx, appConfig.Redis)
	if err != nil {
		zap.L().Error("Error initializing presence store connection", zap.Error(err))
		os.Exit(1)
	}
	defer cache.Close()
	presence := redisAdapter.NewPresenceStore(cache.Client, log.Named("Presence"))

	// RabbitMQ
	queue, err := rabbitmq.Connect(appConfig.RabbitMQ, log.Named("Queue"))
	if err != nil {
		zap.L().Error("Error connecting to the message broker", zap.Error(err))
		os.Exit(1)
	}
	defer queue.Close()

	// Core services
	classifier := service.NewKeywordClassifier()
	lifecycle := service.NewLifecycle(taskRepo, workerDir, presence, queue, auditLog,
		classifier, log.Named("Lifecycle"))
	scorer := service.NewScorer(taskRepo, presence, log.Named("Scorer"))
	assignment := service.NewAssignment(taskRepo, workerDir, scorer, lifecycle, queue,
		log.Named("Assignment"))
	escalator := service.NewEscalator(taskRepo, workerDir, queue, auditLog, lifecycle,
		scorer, appConfig.Escalation, log.Named("Escalator"))

	// Inbound chat messages
	if err := queue.ConsumeMessages(rootCtx, func(msg *domain.InboundMessage) error {
		return lifecycle.HandleMessage(rootCtx, msg)
	}); err != nil {
		zap.L().Error("Error starting the inbound consumer", zap.Error(err))
		os.Exit(1)
	}

	// HTTP API
	taskHandler := api.NewTaskHandler(taskRepo, assignment, lifecycle, log.Named("API"))
	escHandler := api.NewEscalationHandler(escalator, lifecycle, log.Named("API"))
	router := api.NewRouter(taskHandler, escHandler, func() error {
		return dbService.DBHealth(rootCtx)
	}, log.Named("HTTP"))

	server := &http.Server{
		Addr:    appConfig.API.Addr,
		Handler: router,
	}
	go func() {
		zap.L().Info("HTTP API listening", zap.String("addr", appConfig.API.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server failed", zap.Error(err))
			rootCtxCancel()
		}
	}()

	<-rootCtx.Done()
	zap.L().Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), _shutdownPeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("HTTP shutdown did not finish cleanly", zap.Error(err))
	}
	zap.L().Info("Graceful shutdown complete.")
}
