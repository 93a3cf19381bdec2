package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// NewServer builds the HTTP router with all routes configured. The /api
// group is only mounted when an access key is set.
func NewServer(handler *Handler, apiAccessKey string) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, apiAccessKey)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, apiAccessKey string) {
	r.GET("/", handler.GetDashboard)
	r.GET("/health", handler.GetHealth)
	r.GET("/stats", handler.GetStats)

	// Favicon handler (return 204 to avoid 404s)
	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})

	if apiAccessKey == "" {
		slog.Warn("API endpoints disabled (API_ACCESS_KEY not set)")
		return
	}

	api := r.Group("/api")
	api.Use(authMiddleware(apiAccessKey))
	{
		api.GET("/feeds", handler.APIListFeeds)
		api.POST("/feeds", handler.APIAddFeed)
		api.POST("/feeds/refresh", handler.APIRefreshFeeds)
		api.GET("/feeds/:id/entries", handler.APIListEntries)

		api.POST("/entries/:id/read", handler.APIMarkEntryRead)
		api.POST("/entries/:id/analyze", handler.APITriggerAnalysis)
		api.GET("/entries/:id/analysis", handler.APIGetAnalysis)
		api.GET("/entries/:id/analysis/security", handler.APIGetSecurityAnalysis)

		api.GET("/models", handler.APIListModels)
	}
	slog.Info("API endpoints enabled with authentication")
}

// authMiddleware checks the X-API-Key header, or an Authorization header
// with a Bearer prefix, against the configured access key.
func authMiddleware(apiAccessKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		providedKey := c.GetHeader("X-API-Key")

		if providedKey == "" {
			authHeader := c.GetHeader("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				providedKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if providedKey == "" {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "API key required",
				"message": "Provide API key in X-API-Key header or Authorization: Bearer <key>",
			})
			c.Abort()
			return
		}

		if providedKey != apiAccessKey {
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid API key",
				"message": "The provided API key is not valid",
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
