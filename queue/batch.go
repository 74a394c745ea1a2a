package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/use-agent/shopscrape/models"
)

// Batch statuses.
const (
	statusProcessing = "processing"
	statusCompleted  = "completed"
	statusPartial    = "partial"
	statusFailed     = "failed"
)

// maxBatches bounds the number of batches remembered at once.
const maxBatches = 1024

type batch struct {
	id            string
	queries       []string
	webhookURL    string
	webhookSecret string

	mu        sync.Mutex
	state     string
	completed int
	failed    int
	results   []*models.BatchResult
}

func newBatch(req models.BatchRequest) *batch {
	return &batch{
		id:            "batch-" + uuid.NewString(),
		queries:       append([]string(nil), req.Queries...),
		webhookURL:    req.WebhookURL,
		webhookSecret: req.WebhookSecret,
		state:         statusProcessing,
		results:       make([]*models.BatchResult, len(req.Queries)),
	}
}

func (b *batch) record(i int, resp *models.ShoppingResponse, err error) {
	r := &models.BatchResult{Query: b.queries[i], Response: resp}
	if err != nil {
		r.Error = errorDetail(err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.results[i] = r
	b.completed++
	if err != nil {
		b.failed++
	}
}

func (b *batch) finish() *models.BatchStatusResponse {
	b.mu.Lock()
	switch {
	case b.failed == len(b.queries) || b.completed < len(b.queries):
		b.state = statusFailed
	case b.failed > 0:
		b.state = statusPartial
	default:
		b.state = statusCompleted
	}
	b.mu.Unlock()
	return b.status()
}

func (b *batch) status() *models.BatchStatusResponse {
	b.mu.Lock()
	defer b.mu.Unlock()
	results := make([]*models.BatchResult, 0, b.completed)
	for _, r := range b.results {
		if r != nil {
			results = append(results, r)
		}
	}
	return &models.BatchStatusResponse{
		ID:        b.id,
		Status:    b.state,
		Completed: b.completed,
		Total:     len(b.queries),
		Results:   results,
	}
}

// errorDetail converts any error into the API error shape.
func errorDetail(err error) *models.ErrorDetail {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se.ToDetail()
	}
	return &models.ErrorDetail{Code: models.ErrCodeInternal, Message: err.Error()}
}

// batchStore keeps batches for a fixed time after they were last stored.
type batchStore struct {
	lru *expirable.LRU[string, *batch]
}

func newBatchStore(ttl time.Duration) *batchStore {
	return &batchStore{lru: expirable.NewLRU[string, *batch](maxBatches, nil, ttl)}
}

func (s *batchStore) put(b *batch) { s.lru.Add(b.id, b) }

func (s *batchStore) get(id string) (*batch, bool) { return s.lru.Get(id) }

func (s *batchStore) remove(id string) { s.lru.Remove(id) }
