package api

import (
	"context"
	"net/http"
	"time"

	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/service"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const serviceName = "blog-moderation-api"

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// NewRouter creates and configures the Gin router. db may be nil.
func NewRouter(services *service.Services, cfg *config.Config, db HealthChecker, log zerolog.Logger) *gin.Engine {
	router := gin.New()

	// Middleware
	router.Use(recoveryMiddleware(log))
	router.Use(loggingMiddleware(log))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORS.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "Accept"},
		ExposeHeaders:    []string{"Content-Length", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	router.Use(viewerMiddleware(&cfg.Auth, services.User, log))

	// Handlers
	postHandler := NewPostHandler(services, log)
	commentHandler := NewCommentHandler(services, log)
	userHandler := NewUserHandler(services, log)
	jobHandler := NewJobHandler(services, log)

	// Health check
	router.GET("/health", healthCheck(db))
	router.GET("/metrics", metricsHandler(services, log))

	// API v1
	v1 := router.Group("/v1")
	{
		posts := v1.Group("/posts")
		{
			posts.GET("", postHandler.ListPosts)
			posts.GET("/:slug", postHandler.GetPost)
			posts.POST("", requireAuth(), postHandler.CreatePost)
			posts.PUT("/:id", requireAuth(), postHandler.UpdatePost)
			posts.DELETE("/:id", requireAuth(), postHandler.DeletePost)
			posts.POST("/:id/comments", requireAuth(), commentHandler.CreateComment)
		}

		comments := v1.Group("/comments", requireAuth())
		{
			comments.PATCH("/:id/approve", commentHandler.ApproveComment)
			comments.DELETE("/:id", commentHandler.DeleteComment)
		}

		v1.DELETE("/users/me", requireAuth(), userHandler.DeleteMe)

		jobs := v1.Group("/jobs", requireAuth(), requireOperator(cfg.Auth.OperatorIDs))
		{
			jobs.GET("/failed", jobHandler.ListFailed)
			jobs.GET("/:id", jobHandler.GetJob)
		}
	}

	return router
}

// healthCheck returns the health status
func healthCheck(db HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.HealthCheck(ctx); err != nil {
				status, code = "unhealthy", http.StatusServiceUnavailable
			}
		}

		c.JSON(code, gin.H{
			"status":    status,
			"timestamp": time.Now().Format(time.RFC3339),
			"service":   serviceName,
		})
	}
}

// metricsHandler returns record counts
func metricsHandler(services *service.Services, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := services.Stats.GetStats(c.Request.Context())
		if err != nil {
			respondError(c, log, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"database":  stats,
			"timestamp": time.Now().Format(time.RFC3339),
		})
	}
}

// recoveryMiddleware handles panics
func recoveryMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().Interface("error", err).Str("path", c.Request.URL.Path).Msg("Panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error": "Internal server error",
				})
			}
		}()
		c.Next()
	}
}

// loggingMiddleware logs requests
func loggingMiddleware(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		duration := time.Since(start)
		statusCode := c.Writer.Status()

		event := log.Info()
		if statusCode >= 400 {
			event = log.Warn()
		}
		if statusCode >= 500 {
			event = log.Error()
		}

		if viewer := viewerFrom(c); viewer != nil {
			event = event.Str("user_id", viewer.ID)
		}

		event.
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", statusCode).
			Dur("duration", duration).
			Str("client_ip", c.ClientIP()).
			Msg("Request completed")
	}
}
