package models

// ShoppingResponse is the result envelope shared by the API and the CLI.
type ShoppingResponse struct {
	Query      string `json:"query"`
	ScrapedAt  string `json:"scraped_at"`
	TotalItems int    `json:"total_items"`
	Items      []Item `json:"items"`

	// CacheStatus indicates whether the response was served from cache.
	// Values: "hit", "miss", or empty (caching not requested).
	CacheStatus string `json:"cache_status,omitempty"`
}

// NewShoppingResponse builds the envelope for a finished query.
func NewShoppingResponse(query, scrapedAt string, items []Item) *ShoppingResponse {
	if items == nil {
		items = []Item{}
	}
	return &ShoppingResponse{
		Query:      query,
		ScrapedAt:  scrapedAt,
		TotalItems: len(items),
		Items:      items,
	}
}

// ErrorResponse is the body returned for a failed request.
type ErrorResponse struct {
	Success bool         `json:"success"`
	Error   *ErrorDetail `json:"error"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status      string `json:"status"` // "healthy" or "degraded"
	Uptime      string `json:"uptime"`
	QueueDepth  int    `json:"queue_depth"`
	QueueLimit  int    `json:"queue_limit"`
	KeepSession bool   `json:"keep_session"`
	Version     string `json:"version"`
}
