package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/tunevault/api/internal/audio"
	"github.com/tunevault/api/internal/client"
	"github.com/tunevault/api/internal/config"
	"github.com/tunevault/api/internal/handler"
	"github.com/tunevault/api/internal/middleware"
	"github.com/tunevault/api/internal/model"
	"github.com/tunevault/api/internal/service"
	"github.com/tunevault/api/internal/worker"
	ws "github.com/tunevault/api/internal/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("Warning: Redis not available: %v", err)
	}

	// Initialize Asynq client
	asynqClient := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer asynqClient.Close()

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	catalogs := client.NewCatalogClients(&cfg.Catalog)
	downloadClient := client.NewDownloadClient()
	ffmpegClient := client.NewFFmpegClient(&cfg.FFmpeg)

	// Initialize S3 client (optional - continues if not configured)
	var storageClient client.StorageClient
	if cfg.S3.AccessKeyID != "" && cfg.S3.SecretAccessKey != "" {
		s3Client, err := client.NewS3Client(&cfg.S3)
		if err != nil {
			log.Printf("Warning: S3 client not initialized: %v", err)
		} else {
			storageClient = s3Client
		}
	} else {
		log.Println("Info: object storage not configured, downloads cannot be published")
	}

	// Initialize services
	jobService := service.NewJobService(redisClient, asynqClient, storageClient, cfg)
	quotaService := service.NewQuotaService(redisClient, cfg)
	lyricsService := service.NewLyricsService(lyricsProviders(&cfg.Lyrics), cfg.Lyrics.CacheSize)

	// Initialize handlers
	downloadHandler := handler.NewDownloadHandler(jobService, validate)

	// Initialize middleware
	authMiddleware := middleware.NewAuthMiddleware(cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		log.Println("Debug logging enabled")
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	// Base URL - timestamp
	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"timestamp": time.Now().Unix(),
		})
	})

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"services": fiber.Map{
				"catalog": len(catalogs) > 0,
				"storage": storageClient != nil,
				"ffmpeg":  ffmpegClient.IsConfigured(),
			},
		})
	})

	// API routes; downloads are open to guests, identity is picked up when present
	api := app.Group("/api", authMiddleware.OptionalAuthenticate())

	download := api.Group("/download")
	download.Post("/start", rateLimiter.DownloadLimit(cfg.Download.PerHour), downloadHandler.Start)
	download.Get("/status/:jobId", downloadHandler.Status)
	download.Get("/result/:jobId", downloadHandler.Result)
	download.Post("/cancel/:jobId", downloadHandler.Cancel)
	download.Delete("/:jobId", downloadHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/jobs/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Start Asynq worker server
	go startWorkerServer(cfg, jobService, quotaService, lyricsService, catalogs, downloadClient, ffmpegClient, storageClient, hub)

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Println("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Printf("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// lyricsProviders builds the lookup chain: the dedicated lyrics database
// first, then the aggregator constrained to its best source, then the
// aggregator with no source filter
func lyricsProviders(cfg *config.LyricsConfig) []client.LyricsProvider {
	timeout := time.Duration(cfg.Timeout) * time.Second
	return []client.LyricsProvider{
		client.NewLrclibClient(cfg.LrclibURL),
		client.NewAggregatorClient(cfg.Mirrors, "musixmatch", "aggregator-strict", timeout),
		client.NewAggregatorClient(cfg.Mirrors, "", "aggregator", timeout),
	}
}

func startWorkerServer(
	cfg *config.Config,
	jobService *service.JobService,
	quotaService *service.QuotaService,
	lyricsService *service.LyricsService,
	catalogs map[model.CatalogSource]client.CatalogClient,
	downloadClient *client.DownloadClient,
	ffmpegClient *client.FFmpegClient,
	storageClient client.StorageClient,
	hub *ws.Hub,
) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Server.LogLevel, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: 4,
			Queues: map[string]int{
				"download": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	embedder := audio.NewEmbedder(ffmpegClient)
	downloadWorker := worker.NewDownloadWorker(
		jobService,
		quotaService,
		catalogs,
		downloadClient,
		embedder,
		lyricsService,
		storageClient,
		hub,
		&cfg.Download,
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeDownload, downloadWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		log.Printf("Asynq worker error: %v", err)
	}
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    "SERVICE_ERROR",
			"message": message,
		},
	})
}
