package models

// ScrapeRequest holds the query parameters for GET /api/v1/scrape.
type ScrapeRequest struct {
	// Query is the shopping search string. Required.
	Query string `form:"query" binding:"required"`

	// Headless runs the browser without a window. Default: true.
	Headless *bool `form:"headless"`

	// MaxRetries bounds the number of scrape attempts. Default: server config.
	MaxRetries int `form:"max_retries" binding:"omitempty,min=1,max=10"`

	// Proxy overrides the default proxy for this request.
	// Format: "http://host:port" or "socks5://host:port".
	Proxy string `form:"proxy"`

	// SaveImages persists each item's image and fills saved_image_path.
	SaveImages bool `form:"save_images"`

	// MaxAge enables the response cache: a cached response younger than
	// MaxAge milliseconds is returned without scraping. 0 disables caching.
	MaxAge int `form:"max_age" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *ScrapeRequest) Defaults(maxRetries int) {
	if r.Headless == nil {
		t := true
		r.Headless = &t
	}
	if r.MaxRetries == 0 {
		r.MaxRetries = maxRetries
	}
}
