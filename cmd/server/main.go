package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/movira/transreg-backend/config"
	"github.com/movira/transreg-backend/internal/app/controller"
	"github.com/movira/transreg-backend/internal/app/repository"
	"github.com/movira/transreg-backend/internal/app/service"
	"github.com/movira/transreg-backend/internal/db"
	"github.com/movira/transreg-backend/internal/middleware"
	"github.com/movira/transreg-backend/internal/router"
	"github.com/movira/transreg-backend/internal/scheduler"
	"github.com/movira/transreg-backend/internal/storage"
	"github.com/movira/transreg-backend/internal/websocket"
	"github.com/movira/transreg-backend/pkg/logger"
	"github.com/movira/transreg-backend/pkg/queue"
	"github.com/movira/transreg-backend/pkg/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.Server.Environment == "development" {
		logLevel = "debug"
	}
	logger.Initialize(logger.Config{
		Level:       logLevel,
		Format:      "console", // Use "json" for production
		EnableColor: true,
	})

	logger.Info("Starting TRANSREG Backend Server", map[string]interface{}{
		"environment": cfg.Server.Environment,
		"port":        cfg.Server.Port,
		"log_level":   logLevel,
	})

	// Initialize database
	if err := db.Initialize(&cfg.Database); err != nil {
		logger.Fatal("Failed to initialize database", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Error("Failed to close database connection", err)
		}
	}()

	// Run migrations
	if err := db.Migrate(); err != nil {
		logger.Fatal("Failed to run migrations", err)
	}

	// Redis is optional; listing and statistics caching degrade gracefully
	if cfg.Redis.Enabled {
		if err := redis.Init(&cfg.Redis); err != nil {
			logger.Warn("Redis unavailable, continuing without cache", map[string]interface{}{
				"error": err.Error(),
			})
		} else {
			defer redis.Close()
		}
	}
	cache := redis.NewCache()

	// Blob store backend
	var blobs storage.BlobStore
	switch cfg.Storage.Driver {
	case "s3":
		blobs = storage.NewS3Storage(
			cfg.Storage.Region,
			cfg.Storage.Bucket,
			cfg.Storage.KeyPrefix,
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
		)
	default:
		local, err := storage.NewLocalStorage(cfg.Storage.LocalRoot)
		if err != nil {
			logger.Fatal("Failed to initialize local blob store", err)
		}
		blobs = local
	}

	// Processing queue publisher; documents cannot be ingested without it
	publisher, err := queue.NewRabbitPublisher(queue.Config{
		URL:                cfg.RabbitMQ.URL,
		ProcessingExchange: cfg.RabbitMQ.ProcessingExchange,
		ProcessingQueue:    cfg.RabbitMQ.ProcessingQueue,
		EventExchange:      cfg.RabbitMQ.EventExchange,
		JobTTL:             cfg.RabbitMQ.JobTTL,
	})
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", err)
	}
	defer publisher.Close()

	// Verification event feed
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize repositories
	documentRepo := repository.NewDocumentRepository(db.GetDB(), cache)
	entityRepo := repository.NewEntityRepository(db.GetDB())

	// Initialize services
	documentService := service.NewDocumentService(
		documentRepo,
		entityRepo,
		blobs,
		publisher,
		hub,
		cfg.Upload,
	)
	queryService := service.NewDocumentQueryService(documentRepo, cache)

	// Initialize controllers
	documentController := controller.NewDocumentController(documentService, queryService)
	exportController := controller.NewExportController(queryService)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)

	// Orphaned blob cleanup
	sweeper := scheduler.NewOrphanSweeper(documentRepo, blobs)
	if err := sweeper.Start(); err != nil {
		logger.Warn("Orphan sweeper not started", map[string]interface{}{
			"error": err.Error(),
		})
	}
	defer sweeper.Stop()

	// Setup router
	r := router.NewRouter(
		documentController,
		exportController,
		authMiddleware,
		hub,
		cfg,
	)
	engine := r.Setup()

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Server.Port)
		logger.Info("Server started successfully", map[string]interface{}{
			"address": addr,
			"pid":     os.Getpid(),
		})
		if err := engine.Run(addr); err != nil {
			logger.Fatal("Failed to start server", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server gracefully...")
	logger.Info("Server stopped successfully")
}
