package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/queue"
)

// Version is reported by the info and health endpoints.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Reports queue utilisation and degrades status when more than 80% of the
// queue is in use.
func Health(q *queue.Queue, keepSession bool, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		depth, limit := q.Depth(), q.Capacity()

		status := "healthy"
		if limit > 0 && depth > int(float64(limit)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:      status,
			Uptime:      time.Since(startTime).Round(time.Second).String(),
			QueueDepth:  depth,
			QueueLimit:  limit,
			KeepSession: keepSession,
			Version:     Version,
		})
	}
}

// Info returns a handler for GET / describing the service.
func Info() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":    "shopscrape",
			"version": Version,
			"endpoints": gin.H{
				"scrape":       "GET /api/v1/scrape?query=<search>",
				"batch":        "POST /api/v1/batch",
				"batch_status": "GET /api/v1/batch/:id",
				"health":       "GET /api/v1/health",
				"metrics":      "GET /metrics",
			},
		})
	}
}
