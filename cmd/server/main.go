package main

import (
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"github.com/noteduco342/OMInbox-backend/internal/cache"
	"github.com/noteduco342/OMInbox-backend/internal/config"
	"github.com/noteduco342/OMInbox-backend/internal/handlers"
	"github.com/noteduco342/OMInbox-backend/internal/handlers/ws"
	"github.com/noteduco342/OMInbox-backend/internal/httpx"
	"github.com/noteduco342/OMInbox-backend/internal/jobs"
	"github.com/noteduco342/OMInbox-backend/internal/middleware"
	"github.com/noteduco342/OMInbox-backend/internal/models"
	"github.com/noteduco342/OMInbox-backend/internal/repository"
	"github.com/noteduco342/OMInbox-backend/internal/service"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	app := fiber.New(fiber.Config{
		AppName: "OM Inbox Backend",
	})

	// Middleware
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + middleware.CSRFHeader,
		AllowMethods:     "GET, POST, PUT, DELETE, OPTIONS",
		AllowCredentials: cfg.AllowedOrigins != "" && cfg.AllowedOrigins != "*",
	}))

	// Initialize database connection; fails when the schema is incomplete
	db, err := repository.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database: ", err)
	}

	// Initialize Redis cache
	redisCache := cache.NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisCache.Ping(); err != nil {
		log.Printf("WARNING: Redis connection failed: %v. Running without cache.", err)
		redisCache = nil
	} else {
		log.Println("Redis cache connected successfully")
	}

	// Initialize repositories
	threadRepo := repository.NewThreadRepository(db)
	readStateRepo := repository.NewReadStateRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	userRepo := repository.NewUserRepository(db)

	hub := ws.NewHub()

	inbox := service.NewInboxService(threadRepo, readStateRepo, groupRepo, userRepo).
		WithNotifier(hub).
		WithLimits(service.Limits{
			MaxMessageLength: cfg.MaxMessageLength,
			MaxSubjectLength: cfg.MaxSubjectLength,
		})
	if redisCache != nil {
		inbox.WithCache(cache.NewInboxCache(redisCache, cfg.UnreadCacheTTL))
	}

	repairJob := jobs.NewActivityRepairJob(threadRepo)
	scheduler, err := jobs.Schedule(cfg.ActivityRepairSchedule, repairJob)
	if err != nil {
		log.Fatal("Failed to schedule activity repair: ", err)
	}
	if scheduler != nil {
		scheduler.Start()
		log.Printf("Activity repair scheduled (%s)", cfg.ActivityRepairSchedule)
	}

	// Initialize handlers
	inboxHandler := handlers.NewInboxHandler(inbox)
	adminHandler := handlers.NewAdminHandler(repairJob)
	wsHandler := handlers.NewWebSocketHandler(inbox, hub)

	limiterConfig := limiter.Config{
		Max:        cfg.RateLimitMax,
		Expiration: cfg.RateLimitWindow,
		KeyGenerator: func(c *fiber.Ctx) string {
			if uid, err := httpx.LocalUint(c, "userID"); err == nil {
				return "user:" + strconv.FormatUint(uint64(uid), 10)
			}
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return httpx.Error(c, fiber.StatusTooManyRequests, "rate_limited", "Too many requests")
		},
	}
	// Shared counters when Redis is up; in-memory per instance otherwise
	if redisCache != nil {
		limiterConfig.Storage = cache.NewLimiterStorage(redisCache)
	}

	// Protected routes
	api := app.Group("/api",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(cfg.JWTSecret),
		middleware.CSRFRequired(cfg.CSRFMode, cfg.AllowedOrigins),
		limiter.New(limiterConfig),
	)
	inboxHandler.RegisterRoutes(api)
	api.Post("/admin/inbox/repair", middleware.RequireRole(models.RolePlatformAdmin), adminHandler.RepairActivity)

	// WebSocket route (websocket upgrade needs special handling)
	app.Use(
		"/ws",
		middleware.OriginAllowed(cfg.AllowedOrigins),
		middleware.AuthRequired(cfg.JWTSecret),
		func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		},
	)
	app.Get("/ws", websocket.New(wsHandler.HandleWebSocket))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"message": "OM Inbox is running",
		})
	})

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down...")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("Shutdown error: %v", err)
		}
	}()

	log.Printf("Server starting on port %s...", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server: ", err)
	}

	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	hub.Close()
	inbox.WaitForFanOut()
	if redisCache != nil {
		if err := redisCache.Close(); err != nil {
			log.Printf("Failed to close Redis: %v", err)
		}
	}
	log.Println("Server stopped")
}
