package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fieldops/dispatch/config/logger"
	pgdb "github.com/fieldops/dispatch/config/storage/postgresql"
	redisdb "github.com/fieldops/dispatch/config/storage/redis"
	config "github.com/fieldops/dispatch/config/utils"
	"github.com/fieldops/dispatch/internal/adapter/queue/rabbitmq"
	"github.com/fieldops/dispatch/internal/adapter/storage/postgres"
	redisadapter "github.com/fieldops/dispatch/internal/adapter/storage/redis"
	"github.com/fieldops/dispatch/internal/core/domain"
)

// Connectivity smoke test for the three backing services. Run after
// 'make up' to confirm the stack is wired before starting the daemons.
func main() {
	appConfig := config.New()
	log := logger.Build(appConfig.Logger)
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := false

	// 1. Postgres: round-trip a task through the repository.
	db, err := pgdb.New(ctx, appConfig.DB, log)
	if err != nil {
		fmt.Println("X Postgres connection failed:", err)
		failed = true
	} else {
		defer db.Close()
		if err := verifyPostgres(ctx, db, log); err != nil {
			fmt.Println("X Postgres round-trip failed:", err)
			failed = true
		} else {
			fmt.Println("✓ Postgres: task created and read back")
		}
	}

	// 2. Redis: record and read back a presence ping.
	cache, err := redisdb.New(ctx, appConfig.Redis)
	if err != nil {
		fmt.Println("X Redis connection failed:", err)
		failed = true
	} else {
		defer cache.Close()
		if err := verifyRedis(ctx, cache, log); err != nil {
			fmt.Println("X Redis round-trip failed:", err)
			failed = true
		} else {
			fmt.Println("✓ Redis: presence recorded and read back")
		}
	}

	// 3. RabbitMQ: publish a test notification.
	queue, err := rabbitmq.Connect(appConfig.RabbitMQ, log)
	if err != nil {
		fmt.Println("X RabbitMQ connection failed:", err)
		failed = true
	} else {
		defer queue.Close()
		if err := verifyRabbitMQ(ctx, queue); err != nil {
			fmt.Println("X RabbitMQ publish failed:", err)
			failed = true
		} else {
			fmt.Println("✓ RabbitMQ: test notification published")
		}
	}

	if failed {
		fmt.Println("\nVerification FAILED")
		os.Exit(1)
	}
	fmt.Println("\nVerification PASSED")
}

func verifyPostgres(ctx context.Context, db *pgdb.DB, log *zap.Logger) error {
	repo := postgres.NewTaskRepository(db, log)

	id := uuid.NewString()
	now := time.Now().UTC()
	task := &domain.Task{
		ID:        id,
		ShortCode: domain.ShortCodeFromID(id),
		Title:     "verification probe",
		Type:      "probe",
		Priority:  domain.TaskPriorityLow,
		Status:    domain.TaskStatusDraft,
		CreatorID: "verification",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repo.Create(ctx, task); err != nil {
		return err
	}

	got, err := repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if got.ShortCode != task.ShortCode {
		return fmt.Errorf("short code mismatch: got %s want %s", got.ShortCode, task.ShortCode)
	}
	return nil
}

func verifyRedis(ctx context.Context, cache *redisdb.Redis, log *zap.Logger) error {
	presence := redisadapter.NewPresenceStore(cache.Client, log)

	workerID := "verification-worker"
	loc := domain.GeoPoint{Lat: 26.2285, Lng: 50.5860}
	if err := presence.RecordPresence(ctx, workerID, loc, time.Now()); err != nil {
		return err
	}

	got, _, err := presence.LastKnown(ctx, workerID)
	if err != nil {
		return err
	}
	if got == nil {
		return fmt.Errorf("presence not found after write")
	}
	if got.Lat != loc.Lat || got.Lng != loc.Lng {
		return fmt.Errorf("presence coordinates lost")
	}
	return nil
}

func verifyRabbitMQ(ctx context.Context, queue *rabbitmq.QueueService) error {
	result, err := queue.Dispatch(ctx, &domain.Notification{
		ID:          uuid.NewString(),
		RecipientID: "verification",
		Type:        "verification",
		Priority:    domain.NotifyPriorityLow,
		Title:       "Verification probe",
		Message:     "connectivity check",
		Channels:    []domain.Channel{domain.ChannelDashboard},
	})
	if err != nil {
		return err
	}
	if !result.Success[domain.ChannelDashboard] {
		return fmt.Errorf("dashboard channel publish did not succeed")
	}
	return nil
}
