package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appamqp "livein/internal/amqp"
	"livein/internal/config"
	applog "livein/internal/log"
	"livein/internal/push"
	"livein/internal/storage"
	"livein/internal/worker"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.Setup(cfg.LogFormat).WithComponent(applog.ComponentWorker)

	logger.Info("Starting livein-notifier")

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	var sender push.Sender
	if cfg.FCMProjectID != "" {
		sender, err = push.NewFCMSenderFromEnv(context.Background(), cfg.FCMProjectID)
		if err != nil {
			logger.Error("Failed to initialize FCM sender", "error", err)
			os.Exit(1)
		}
		logger.Info("FCM sender initialized", "project_id", cfg.FCMProjectID)
	} else {
		logger.Warn("FCM disabled - no FCM_PROJECT_ID provided, logging deliveries only")
		sender = push.LogSender{}
	}

	amqpClient, err := appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	notifyWorker := worker.NewNotifyWorker(repo, sender, cfg.NotifyBatchSize)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Drain anything that queued up while the worker was down.
	logger.Info("Performing startup sweep...")
	if err := notifyWorker.StartupSweep(ctx); err != nil {
		logger.Error("Startup sweep failed", "error", err)
		// Keep going; the periodic sweep retries.
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := amqpClient.ConsumeNotifications(ctx, func(msg *appamqp.NotificationMessage) error {
			return notifyWorker.HandleNotificationMessage(ctx, msg)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.NotifySweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return nil
			case <-ticker.C:
				if err := notifyWorker.ProcessPending(ctx); err != nil {
					logger.Error("Periodic sweep failed", "error", err)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
