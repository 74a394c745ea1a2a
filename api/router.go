package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/use-agent/shopscrape/api/handler"
	"github.com/use-agent/shopscrape/api/middleware"
	"github.com/use-agent/shopscrape/cache"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/queue"
	"github.com/use-agent/shopscrape/scraper"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Info, health and metrics stay outside auth so monitoring probes always work.
func NewRouter(q *queue.Queue, cfg *config.Config, cc *cache.Cache, metrics *scraper.Metrics, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	r.GET("/", handler.Info())
	if metrics != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")

	// Health — no auth required.
	v1.GET("/health", handler.Health(q, cfg.Browser.KeepBrowserOpen, startTime))

	// Protected group — auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// Scrape
	protected.GET("/scrape", handler.Scrape(q, cc, cfg))

	// Batch
	protected.POST("/batch", handler.PostBatch(q, cfg))
	protected.GET("/batch/:id", handler.GetBatch(q))

	return r
}
