package handler

import (
	"content-fulfillment-service/internal/adapter/http/middleware"
	redisStore "content-fulfillment-service/internal/adapter/storage/redis"
	"content-fulfillment-service/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	IngestSvc      ports.IngestService
	AuthSvc        ports.AuthService
	ReportingSvc   ports.ReportingService
	FulfillmentSvc ports.FulfillmentService
	RetrySvc       ports.RetryService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	v1.POST("/auth/login", rl("auth_login"), authHandler.Login)

	// Webhook ingestion authenticates by signature, not by JWT.
	webhookHandler := NewWebhookHandler(deps.IngestSvc)
	v1.POST("/webhooks/payment", rl("webhook"), webhookHandler.HandlePaymentEvent)

	// --- JWT-authenticated routes (operator dashboard) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	orderHandler := NewOrderHandler(deps.ReportingSvc, deps.FulfillmentSvc, deps.RetrySvc)

	orders := v1.Group("/orders", jwtAuth)
	{
		orders.GET("", rl("operator"), orderHandler.ListOrders)
		orders.GET("/:id", rl("operator"), orderHandler.GetOrder)
	}

	jobs := v1.Group("/jobs", jwtAuth)
	{
		jobs.POST("/:id/approve", rl("operator"), orderHandler.ApproveJob)
		jobs.POST("/:id/retry", rl("operator"), orderHandler.RetryJob)
	}

	v1.GET("/stats", jwtAuth, rl("operator"), orderHandler.GetStats)

	return r
}
