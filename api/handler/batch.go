package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/queue"
	"github.com/use-agent/shopscrape/scraper"
)

// PostBatch returns a handler for POST /api/v1/batch.
// It validates the request and hands the whole batch to the queue, which
// scrapes the queries one after another.
func PostBatch(q *queue.Queue, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			invalidInput(c, err.Error())
			return
		}
		for i, query := range req.Queries {
			req.Queries[i] = strings.TrimSpace(query)
			if req.Queries[i] == "" {
				invalidInput(c, "queries must not be blank")
				return
			}
		}

		defaults := scraper.RunOptions{
			MaxRetries:  cfg.Scraper.MaxRetries,
			Proxy:       cfg.Browser.DefaultProxy,
			ShowBrowser: !cfg.Browser.Headless,
		}
		resp, err := q.SubmitBatch(req, defaults)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, resp)
	}
}

// GetBatch returns a handler for GET /api/v1/batch/:id.
func GetBatch(q *queue.Queue) gin.HandlerFunc {
	return func(c *gin.Context) {
		status, ok := q.Batch(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeNotFound,
					Message: "batch job not found",
				},
			})
			return
		}
		c.JSON(http.StatusOK, status)
	}
}
