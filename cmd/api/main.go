package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/api"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/config"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/connector"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/db"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/erp"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/gateway"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/logger"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/notification"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/queue"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/report"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/storage"
	"github.com/Huarachi2002/servicio-colegio-americano-sub000/internal/syncjob"

	"github.com/gin-gonic/gin"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	logger.Init("api", cfg.Logging.Level, cfg.Logging.Format)
	log := logger.Get()

	log.Info().Str("version", cfg.App.Version).Msg("Starting API server")

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

	// ERP client serves both posting (direct backend) and the account reads
	// feeding the bulk sync.
	erpClient := erp.NewClient(cfg)

	poster, err := notification.ResolvePoster(cfg, erpClient, connector.NewClient(cfg))
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid posting backend")
	}

	// Raw payload archive is optional; acceptance works without it.
	var archive storage.Archive
	if cfg.Storage.S3.Bucket != "" {
		archive, err = storage.NewS3Archive(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Payload archive unavailable, continuing without it")
			archive = nil
		}
	}

	orchestrator := notification.NewOrchestrator(cfg, repo, poster, producer, archive)

	registry := syncjob.NewMemoryRegistry(cfg.Sync.JobRetention)
	engine := syncjob.NewEngine(cfg, repo, erpClient, registry)

	reports := report.NewBuilder(repo)

	qrClient := gateway.NewClient(cfg)

	handler := api.NewHandler(orchestrator, engine, reports, qrClient, archive, cfg)

	// Setup Gin router
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(api.CORSMiddleware())
	router.Use(api.LoggingMiddleware())
	router.Use(api.RecoveryMiddleware())

	api.SetupRoutes(router, handler, api.APIClientAuthMiddleware(repo))

	// Periodic sweep of terminal sync jobs; the registry itself has no timer.
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go runJobCleanup(cleanupCtx, registry, cfg.Sync.CleanupEvery)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

func runJobCleanup(ctx context.Context, registry syncjob.Registry, every time.Duration) {
	log := logger.Get()
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := registry.CleanupOldJobs(); removed > 0 {
				log.Debug().Int("removed", removed).Msg("Swept old sync jobs")
			}
		}
	}
}
