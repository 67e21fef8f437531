package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/connector"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/erp"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/notification"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/queue"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init("notification-worker", cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting notification worker")

	// Initialize database
	database, err := db.NewConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	repo := db.NewRepository(database)

	// Initialize Redis client
	redisClient, err := queue.NewRedisClient(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer redisClient.Close()

	producer := queue.NewProducer(redisClient, cfg)

	poster, err := notification.ResolvePoster(cfg, erp.NewClient(cfg), connector.NewClient(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid posting backend")
	}

	orchestrator := notification.NewOrchestrator(cfg, repo, poster, producer, nil)

	notificationWorker := worker.NewNotificationWorker(cfg, orchestrator, redisClient)

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start worker
	go func() {
		if err := notificationWorker.Start(ctx); err != nil && err != context.Canceled {
			log.Fatal().Err(err).Msg("Notification worker failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down notification worker...")

	cancel()
	notificationWorker.Stop()

	log.Info().Msg("Notification worker exited")
}
