package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tgo/captain/knowdesk/internal/config"
	"github.com/tgo/captain/knowdesk/internal/middleware"
	"github.com/tgo/captain/knowdesk/internal/pkg/response"
	"github.com/tgo/captain/knowdesk/internal/service"
)

// ReadinessCheck reports whether the backing stores can serve requests.
type ReadinessCheck func(ctx context.Context) error

// Services are the application services exposed over HTTP.
type Services struct {
	Tenants *service.TenantService
	Crawl   *service.CrawlService
	Jobs    *service.CrawlJobManager
	Query   *service.QueryService
	Ready   ReadinessCheck
}

type Handlers struct {
	Query  *QueryHandler
	Tenant *TenantHandler
	Crawl  *CrawlHandler
}

func SetupRouter(cfg *config.Config, svcs *Services, logger *slog.Logger) *gin.Engine {
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS())

	// Health check endpoints
	r.GET("/health", healthCheck)
	r.GET("/ready", readinessCheck(svcs.Ready))
	r.GET("/live", livenessCheck)

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":      "knowdesk",
			"version":      "1.0.0",
			"status":       "running",
			"health_check": "/health",
		})
	})

	handlers := &Handlers{
		Query:  NewQueryHandler(svcs.Query),
		Tenant: NewTenantHandler(svcs.Tenants),
		Crawl:  NewCrawlHandler(svcs.Crawl, svcs.Jobs),
	}

	v1 := r.Group("/v1")
	{
		v1.POST("/query", handlers.Query.Ask)

		tenants := v1.Group("/tenants")
		{
			tenants.GET("", handlers.Tenant.List)
			tenants.POST("", handlers.Tenant.Create)
			tenants.GET("/:id", handlers.Tenant.Get)
			tenants.DELETE("/:id", handlers.Tenant.Delete)
			tenants.PUT("/:id/domains", handlers.Tenant.UpdateDomains)
			tenants.GET("/:id/documents", handlers.Tenant.ListDocuments)
			tenants.POST("/:id/crawl", handlers.Crawl.Crawl)
			tenants.POST("/:id/crawl-jobs", handlers.Crawl.StartJob)
			tenants.GET("/:id/crawl-jobs", handlers.Crawl.ListJobs)
		}

		jobs := v1.Group("/crawl-jobs")
		{
			jobs.GET("/:id", handlers.Crawl.GetJob)
			jobs.DELETE("/:id", handlers.Crawl.CancelJob)
		}
	}

	return r
}

func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "knowdesk",
	})
}

func readinessCheck(check ReadinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				response.Unavailable(c, "not ready: "+err.Error())
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "ready",
		})
	}
}

func livenessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "alive",
	})
}
