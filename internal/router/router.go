package router

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-attempt/internal/config"
	"github.com/stemsi/exstem-attempt/internal/handler"
	"github.com/stemsi/exstem-attempt/internal/middleware"
	"github.com/stemsi/exstem-attempt/internal/response"
)

// Auth is what the router needs to authenticate requests.
type Auth interface {
	middleware.TokenValidator
	middleware.SessionValidator
}

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Auth  *handler.AuthHandler
	Exam  *handler.ExamHandler
	Admin *handler.AdminHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// authLimiter may be nil to disable rate limiting.
func SetupRouter(
	auth Auth,
	authLimiter *middleware.RateLimiter,
	handlers *Handlers,
	cfg *config.Config,
	log zerolog.Logger,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", response.HeaderRequestID}
	corsConfig.ExposeHeaders = []string{response.HeaderRequestID}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	// Apply request ID middleware globally so every response includes metadata.
	router.Use(response.RequestIDMiddleware(log))
	router.Use(requestLogger())

	router.Use(middleware.Brotli())

	// Health check.
	router.GET("/health", func(c *gin.Context) {
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	})

	requireJWT := middleware.RequireJWT(auth)
	singleDevice := middleware.CheckSingleDeviceSession(auth)

	// ─── 1. Auth Group (Public, Rate Limited) ──────────────────────────
	authAPI := router.Group("/api/v1/auth")
	if authLimiter != nil {
		authAPI.Use(authLimiter.Middleware())
	}
	{
		authAPI.POST("/register", handlers.Auth.Register)
		authAPI.POST("/login", handlers.Auth.Login)
		authAPI.GET("/me", requireJWT, singleDevice, handlers.Auth.Me)
	}

	// ─── 2. Exam Group (JWT + Single Device) ───────────────────────────
	examAPI := router.Group("/api/v1/exam")
	examAPI.Use(requireJWT, singleDevice, middleware.NoStore())
	{
		examAPI.POST("/start", handlers.Exam.Start)
		examAPI.GET("/state", handlers.Exam.GetState)
		examAPI.PUT("/answer/:question_id", handlers.Exam.SaveAnswer)
		examAPI.PUT("/draft/:task_id", handlers.Exam.SaveDraft)
		examAPI.POST("/submit", handlers.Exam.Submit)
		examAPI.GET("/result", handlers.Exam.GetResult)
	}

	// ─── 3. Admin Group (JWT + Admin flag) ─────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(requireJWT, middleware.RequireAdmin())
	{
		adminAPI.GET("/questions", handlers.Admin.ListQuestions)
		adminAPI.POST("/questions", handlers.Admin.CreateQuestion)
		adminAPI.GET("/prog_tasks", handlers.Admin.ListTasks)
		adminAPI.POST("/prog_tasks", handlers.Admin.CreateTask)
		adminAPI.POST("/publish/:entity/:id", handlers.Admin.TogglePublished)
		adminAPI.PUT("/attempts/:attempt_id/prog/:task_id/verdict", handlers.Admin.RecordVerdict)
		adminAPI.GET("/stats", handlers.Admin.Stats)
	}

	return router
}

// requestLogger logs one line per request with the request-scoped logger.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		ev := zerolog.Ctx(c.Request.Context()).Info()
		if status >= http.StatusInternalServerError {
			ev = zerolog.Ctx(c.Request.Context()).Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Msg("Request handled")
	}
}
