package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/shopscrape/cache"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/queue"
	"github.com/use-agent/shopscrape/scraper"
)

// Scrape returns a handler for GET /api/v1/scrape.
//
// Orchestration flow:
//  1. Bind & validate query parameters, apply defaults.
//  2. Cache lookup when max_age is set.
//  3. Queue.Do → engine run on the single worker (plus image saving).
//  4. Cache store, return 200.
func Scrape(q *queue.Queue, cc *cache.Cache, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScrapeRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			invalidInput(c, err.Error())
			return
		}
		req.Query = strings.TrimSpace(req.Query)
		if req.Query == "" {
			invalidInput(c, "query must not be blank")
			return
		}
		if req.Headless == nil {
			req.Headless = &cfg.Browser.Headless
		}
		req.Defaults(cfg.Scraper.MaxRetries)
		if req.Proxy == "" {
			req.Proxy = cfg.Browser.DefaultProxy
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		var cacheKey string
		if cc != nil && req.MaxAge > 0 {
			cacheKey = cache.Key(req.Query, req.Proxy, *req.Headless, req.SaveImages)
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				cached.CacheStatus = "hit"
				c.JSON(http.StatusOK, cached)
				return
			}
		}

		// ── 3. Scrape ───────────────────────────────────────────────
		resp, err := q.Do(c.Request.Context(), queue.Job{
			Query: req.Query,
			Run: scraper.RunOptions{
				MaxRetries:  req.MaxRetries,
				Proxy:       req.Proxy,
				ShowBrowser: !*req.Headless,
			},
			SaveImages: req.SaveImages,
		})
		if err != nil {
			respondError(c, err)
			return
		}

		// ── 4. Cache store ──────────────────────────────────────────
		if cacheKey != "" {
			cc.Set(cacheKey, resp)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}
