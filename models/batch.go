package models

// BatchRequest is the payload for POST /api/v1/batch.
type BatchRequest struct {
	// Queries is the list of search strings to scrape in order. Required.
	Queries []string `json:"queries" binding:"required,min=1,max=50,dive,required"`

	// Headless runs the browser without a window. Default: true.
	Headless *bool `json:"headless,omitempty"`

	// MaxRetries bounds the number of attempts per query.
	MaxRetries int `json:"max_retries,omitempty" binding:"omitempty,min=1,max=10"`

	// Proxy overrides the default proxy for every query in the batch.
	Proxy string `json:"proxy,omitempty"`

	// WebhookURL receives a batch.completed event when the batch finishes.
	WebhookURL string `json:"webhook_url,omitempty" binding:"omitempty,url"`

	// WebhookSecret signs the webhook body with HMAC-SHA256.
	WebhookSecret string `json:"webhook_secret,omitempty"`
}

// BatchResponse is the immediate response for POST /api/v1/batch.
type BatchResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Total  int    `json:"total"`
}

// BatchResult is the outcome of one query inside a batch.
type BatchResult struct {
	Query    string            `json:"query"`
	Response *ShoppingResponse `json:"response,omitempty"`
	Error    *ErrorDetail      `json:"error,omitempty"`
}

// BatchStatusResponse is the response for GET /api/v1/batch/:id.
type BatchStatusResponse struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Results   []*BatchResult `json:"results,omitempty"`
}
