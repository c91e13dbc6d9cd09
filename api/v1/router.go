package v1

import (
	"time"

	"agencyhub/api/v1/auth"
	"agencyhub/api/v1/domains"
	"agencyhub/api/v1/middleware"
	redisclient "agencyhub/internal/cache"
	"agencyhub/internal/config"
	"agencyhub/internal/dnsverify"
	"agencyhub/internal/domainstore"
	"agencyhub/internal/httpx"
	"agencyhub/internal/lifecycle"
	"agencyhub/internal/vercel"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// SetupRouter sets up the API v1 routes
func SetupRouter(r *gin.Engine, db *gorm.DB, cfg *config.Config) {
	logger := logrus.WithField("service", "agencyhub")

	store := domainstore.New(db)
	dnsClient := dnsverify.NewClient(nil)
	provider := vercel.NewClient(cfg.Vercel.Token, cfg.Vercel.ProjectID, cfg.Vercel.TeamID)
	statusCache := redisclient.NewStatusCache(redisclient.Client,
		time.Duration(cfg.StatusCacheTTLSec)*time.Second, logger)
	svc := lifecycle.NewService(store, dnsClient, provider, statusCache, logger)

	v1 := r.Group("/api/v1")
	{
		// Public routes (no authentication required)
		v1.GET("/ping", pingHandler)

		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/login", auth.LoginHandler(db, cfg))
		}

		// Protected routes (authentication required)
		protected := v1.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.GET("/me", meHandler)

			// Domain lifecycle routes
			domainsHandler := domains.NewHandler(svc, logger)
			domainsGroup := protected.Group("/domains")
			{
				domainsGroup.GET("", domainsHandler.List)
				domainsGroup.POST("", domainsHandler.Create)
				domainsGroup.POST("/verify", domainsHandler.Verify)
				domainsGroup.POST("/provision", domainsHandler.Provision)
				domainsGroup.GET("/status", domainsHandler.Status)
				domainsGroup.POST("/status", domainsHandler.Status)
				domainsGroup.POST("/delete", domainsHandler.Delete)
			}
		}
	}
}

// pingHandler handles the ping request using unified response
func pingHandler(c *gin.Context) {
	httpx.OK(c, gin.H{
		"pong": true,
	})
}

// meHandler returns current user information
func meHandler(c *gin.Context) {
	uid, _ := c.Get("uid")
	tenantID, _ := c.Get("tenant_id")
	username, _ := c.Get("username")
	role, _ := c.Get("role")

	httpx.OK(c, gin.H{
		"uid":       uid,
		"tenant_id": tenantID,
		"username":  username,
		"role":      role,
	})
}
