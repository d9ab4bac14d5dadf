package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stratforge/api/internal/client"
	"github.com/stratforge/api/internal/config"
	"github.com/stratforge/api/internal/executor"
	"github.com/stratforge/api/internal/handler"
	"github.com/stratforge/api/internal/logging"
	"github.com/stratforge/api/internal/middleware"
	"github.com/stratforge/api/internal/registry"
	"github.com/stratforge/api/internal/service"
	ws "github.com/stratforge/api/internal/websocket"
	"github.com/stratforge/api/internal/worker"
)

// @title          StratForge API
// @version        1.0
// @description    Batch backtesting API — evaluates trading strategy configurations concurrently.
// @host           localhost:8000
// @BasePath       /
// @schemes        http https
// @securityDefinitions.apikey BearerAuth
// @in             header
// @name           Authorization
// @description    Enter your bearer token in the format **Bearer &lt;token&gt;**
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	logging.Setup(cfg.Logging)

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Initialize validator
	validate := validator.New()

	// Initialize WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Initialize external clients
	evaluatorClient := client.NewEvaluatorClient(&cfg.Evaluator)
	telegramClient := client.NewTelegramClient(&cfg.Telegram)

	// Initialize job registry and executor
	jobRegistry := registry.New()
	exec := executor.New(jobRegistry, evaluatorClient, hub, telegramClient)

	// Test Redis connection; without it, batches run on plain
	// goroutines instead of the durable queue.
	ctx := context.Background()
	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisUp = false
		logrus.Warnf("Redis not available, falling back to in-process dispatch: %v", err)
	}

	var dispatcher service.Dispatcher
	if redisUp {
		asynqClient := asynq.NewClient(asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer asynqClient.Close()
		dispatcher = service.NewAsynqDispatcher(asynqClient)
		go startWorkerServer(cfg, exec)
	} else {
		dispatcher = service.NewGoDispatcher(exec)
	}

	// Initialize services
	backtestService := service.NewBacktestService(
		jobRegistry,
		evaluatorClient,
		dispatcher,
		cfg.Backtest.MaxConcurrent,
		cfg.Backtest.MaxBatchSize,
	)

	// Initialize handlers
	backtestHandler := handler.NewBacktestHandler(backtestService, validate)

	// Initialize middleware
	var apiAuthMiddleware fiber.Handler
	if cfg.Gateway.Enabled {
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		logrus.Info("Gateway mode enabled — using header-based auth")
		apiAuthMiddleware = middleware.GatewayAuthMiddleware()
	} else {
		apiAuthMiddleware = middleware.NewAuthMiddleware(cfg.JWT.Secret).Authenticate()
	}
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: customErrorHandler,
		BodyLimit:    50 * 1024 * 1024, // 50MB: batches can carry many configs
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body}\n"
		logrus.Debug("Debug logging enabled")
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
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
				"evaluator": evaluatorClient.IsConfigured(),
				"telegram":  telegramClient.IsConfigured(),
				"redis":     redisUp,
				"auth":      cfg.JWT.Secret != "",
			},
		})
	})

	// API routes
	api := app.Group("/api", apiAuthMiddleware)

	backtesting := api.Group("/backtesting")
	backtesting.Post("/run", rateLimiter.RunLimit(cfg.RateLimit.RunPerMin), backtestHandler.Run)
	backtesting.Post("/batch", rateLimiter.BatchLimit(cfg.RateLimit.BatchPerHour), backtestHandler.SubmitBatch)
	backtesting.Get("/batch", rateLimiter.QueryLimit(cfg.RateLimit.QueryPerMin), backtestHandler.List)
	backtesting.Get("/batch/:jobId/status", rateLimiter.QueryLimit(cfg.RateLimit.QueryPerMin), backtestHandler.Status)
	backtesting.Get("/batch/:jobId/results", rateLimiter.QueryLimit(cfg.RateLimit.QueryPerMin), backtestHandler.Results)
	backtesting.Delete("/batch/:jobId", backtestHandler.Delete)

	// WebSocket routes
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/batch/:jobId", websocket.New(func(c *websocket.Conn) {
		jobID := c.Params("jobId")
		hub.HandleConnection(c, jobID)
	}))

	// Periodically drop old terminal jobs
	go func() {
		maxAge := time.Duration(cfg.Backtest.CleanupAgeHours) * time.Hour
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if n := jobRegistry.CleanupCompleted(maxAge); n > 0 {
				logrus.Infof("Cleaned up %d finished batch jobs", n)
			}
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logrus.Info("Shutting down server...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.Errorf("Server shutdown error: %v", err)
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	logrus.Infof("Server starting on %s", addr)
	if err := app.Listen(addr); err != nil {
		logrus.Fatalf("Server error: %v", err)
	}
}

func startWorkerServer(cfg *config.Config, exec *executor.Executor) {
	asynqLogLevel := asynq.InfoLevel
	if strings.EqualFold(cfg.Logging.Level, "debug") {
		asynqLogLevel = asynq.DebugLevel
	} else if strings.EqualFold(cfg.Logging.Level, "warn") {
		asynqLogLevel = asynq.WarnLevel
	} else if strings.EqualFold(cfg.Logging.Level, "error") {
		asynqLogLevel = asynq.ErrorLevel
	}

	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			// One slot per batch; per-item parallelism is enforced
			// inside the executor.
			Concurrency: 4,
			Queues: map[string]int{
				"backtest": 10,
			},
			LogLevel: asynqLogLevel,
		},
	)

	batchWorker := worker.NewBatchWorker(exec)

	mux := asynq.NewServeMux()
	mux.HandleFunc(service.TaskTypeBatch, batchWorker.ProcessTask)

	if err := srv.Run(mux); err != nil {
		logrus.Errorf("Asynq worker error: %v", err)
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
