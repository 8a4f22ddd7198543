package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	appamqp "livein/internal/amqp"
	"livein/internal/config"
	"livein/internal/core"
	apphttp "livein/internal/http"
	applog "livein/internal/log"
	"livein/internal/services"
	"livein/internal/storage"
	"livein/internal/stream"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.Setup(cfg.LogFormat).WithComponent(applog.ComponentApp)

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

	members, err := repo.ListMembers(context.Background())
	if err != nil {
		logger.Error("Failed to load household members", "error", err)
		os.Exit(1)
	}
	if len(members) != 2 {
		logger.Error("Expected exactly two household members", "count", len(members))
		os.Exit(1)
	}
	household := core.Household{Members: members}

	// AMQP is optional: without it notifications wait for the worker's
	// periodic sweep instead of being pushed immediately.
	var amqpClient *appamqp.Client
	amqpClient, err = appamqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("AMQP unavailable, notifications deferred to sweep", "error", err)
		amqpClient = nil
	} else {
		defer amqpClient.Close()
	}

	broadcaster := stream.NewBroadcaster()
	txService := services.NewTransactionService(repo, amqpClient, broadcaster, household)
	chatService := services.NewChatService(repo, amqpClient, household)

	srv := apphttp.NewServer(":"+cfg.Port, txService, repo, broadcaster, chatService, household)
	srv.ReadTimeout = 10 * time.Second
	// Write timeout would sever the SSE stream; rely on client heartbeat
	// handling instead.
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Starting livein server", "port", cfg.Port, "household", household.ID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
