package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"go.uber.org/zap"

	"github.com/fieldops/dispatch/config/logger"
	postgresConfig "github.com/fieldops/dispatch/config/storage/postgresql"
	redisConfig "github.com/fieldops/dispatch/config/storage/redis"
	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/adapter/queue/rabbitmq"
	"github.com/fieldops/dispatch/internal/adapter/storage/postgres"
	redisAdapter "github.com/fieldops/dispatch/internal/adapter/storage/redis"
	"github.com/fieldops/dispatch/internal/core/service"
)

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	zap.L().Info("Starting the escalation scheduler",
		zap.String("app", appConfig.App.Name),
		zap.Duration("sweep_interval", appConfig.Scheduler.SweepInterval()))

	dbService, err := postgresConfig.New(rootCtx, appConfig.DB, log.Named("DB"))
	if err != nil {
		zap.L().Error("Error initializing database connection", zap.Error(err))
		os.Exit(1)
	}
	defer dbService.Close()

	taskRepo := postgres.NewTaskRepository(dbService, log.Named("TaskRepo"))
	workerDir := postgres.NewWorkerDirectory(dbService, log.Named("WorkerDir"))
	auditLog := postgres.NewAuditLog(dbService, log.Named("Audit"))

	cache, err := redisConfig.New(rootCtx, appConfig.Redis)
	if err != nil {
		zap.L().Error("Error initializing presence store connection", zap.Error(err))
		os.Exit(1)
	}
	defer cache.Close()
	presence := redisAdapter.NewPresenceStore(cache.Client, log.Named("Presence"))

	queue, err := rabbitmq.Connect(appConfig.RabbitMQ, log.Named("Queue"))
	if err != nil {
		zap.L().Error("Error connecting to the message broker", zap.Error(err))
		os.Exit(1)
	}
	defer queue.Close()

	classifier := service.NewKeywordClassifier()
	lifecycle := service.NewLifecycle(taskRepo, workerDir, presence, queue, auditLog,
		classifier, log.Named("Lifecycle"))
	scorer := service.NewScorer(taskRepo, presence, log.Named("Scorer"))
	escalator := service.NewEscalator(taskRepo, workerDir, queue, auditLog, lifecycle,
		scorer, appConfig.Escalation, log.Named("Escalator"))
	metrics := service.NewMetrics(taskRepo, workerDir, appConfig.Scheduler, log.Named("Metrics"))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		escalator.StartScheduler(rootCtx, appConfig.Scheduler.SweepInterval())
	}()
	go func() {
		defer wg.Done()
		metrics.StartDaily(rootCtx)
	}()

	<-rootCtx.Done()
	zap.L().Info("Shutting down...")
	wg.Wait()
	zap.L().Info("Graceful shutdown complete.")
}
