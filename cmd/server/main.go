package main

import (
	"context" // context package is needed for Redis operations
	"log"     // log package is needed for logging
	"time"    // Durations for timeouts and TTLs

	"transaction_system/internal/api"        // Custom package for API handlers
	"transaction_system/internal/banesco"    // Banesco provider client
	"transaction_system/internal/config"     // Custom package for configuration
	"transaction_system/internal/domain"     // Importing domain models
	"transaction_system/internal/middleware" // Custom package for middleware
	"transaction_system/internal/repository" // Data repositories
	"transaction_system/internal/service"    // Business services

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Connect to the database; TranslateError maps duplicate-key errors onto
	// gorm.ErrDuplicatedKey so repositories can classify conflicts
	db, err := gorm.Open(mysql.Open(cfg.DSN()), &gorm.Config{TranslateError: true})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Repositories
	transactionRepo := repository.NewTransactionRepository(db)
	rateLimitRepo := repository.NewRateLimitRepository(db)
	userRepo := repository.NewUserRepository(db)

	// Banesco client: cached OAuth token source plus bounded retry
	timeout := time.Duration(cfg.BanescoTimeout) * time.Second
	tokenSource := banesco.NewTokenSource(
		cfg.BanescoAuthURL,
		cfg.BanescoClientID,
		cfg.BanescoClientSecret,
		time.Duration(cfg.TokenSafetyMargin)*time.Second,
		timeout,
	)
	retryPolicy := banesco.DefaultRetryPolicy()
	retryPolicy.MaxAttempts = cfg.RetryAttempts
	bankClient := banesco.NewClient(cfg.BanescoAPIURL, tokenSource, timeout, retryPolicy)

	// Services
	cacheTTL := time.Duration(cfg.CacheTTL) * time.Second
	limiter := service.NewRateLimitService(rateLimitRepo, cfg.BanescoRateLimit)
	engine := service.NewReconcileService(transactionRepo, limiter, bankClient, redisClient, cacheTTL)
	auth := service.NewAuthService(userRepo, cfg.JWTSecret, 30*time.Minute)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Health routes
	r.GET("/health", api.HealthHandler())
	r.GET("/health/ready", api.ReadyHandler(db, redisClient))

	// Auth routes
	r.POST("/api/v1/auth/register", api.RegisterHandler(auth)) // Registration endpoint
	r.POST("/api/v1/auth/login", api.LoginHandler(auth))       // Login endpoint

	// Transaction routes (protected by JWT, gated per-permission)
	txGroup := r.Group("/api/v1/transactions")
	txGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
	txGroup.POST("", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionCreate),
		api.UpsertTransactionHandler(engine, redisClient)) // Idempotent upsert endpoint
	txGroup.GET("", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionRead),
		api.ListTransactionsHandler(engine)) // Filtered listing endpoint
	txGroup.GET("/:id", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionRead),
		api.GetTransactionHandler(engine)) // Lookup by internal id
	txGroup.GET("/:id/events", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionRead),
		api.ListEventsHandler(engine)) // Audit trail endpoint
	txGroup.GET("/external/:transactionID", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionRead),
		api.GetTransactionByExternalHandler(engine, redisClient, cacheTTL)) // Lookup by external id
	txGroup.GET("/reference/:reference", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionRead),
		api.GetTransactionByReferenceHandler(engine)) // Lookup by reference
	txGroup.PATCH("/:id/status", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionUpdate),
		api.UpdateStatusHandler(engine)) // Status transition endpoint
	txGroup.POST("/:id/status/override", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionAdminAccess),
		api.OverrideStatusHandler(engine)) // Administrative override
	txGroup.DELETE("/:id", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionDelete),
		api.DeleteTransactionHandler(engine, redisClient)) // Soft-delete endpoint
	txGroup.POST("/external/:transactionID/refresh", middleware.RequirePermission(userRepo, redisClient, cacheTTL, domain.PermissionTransactionUpdate),
		api.RefreshTransactionHandler(engine)) // Banesco cross-check endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
