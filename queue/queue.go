// Package queue serializes scrape work in front of a single engine. One
// worker goroutine owns the scraper; callers either wait for a job or
// submit a batch and poll its status.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/scraper"
	"github.com/use-agent/shopscrape/webhook"
)

// ErrQueueFull is returned when the pending job limit is reached.
var ErrQueueFull = errors.New("queue: too many pending jobs")

// ErrClosed is returned when submitting to a closed queue.
var ErrClosed = errors.New("queue: closed")

// Scraper is the engine the worker drives.
type Scraper interface {
	Run(ctx context.Context, query string, opts scraper.RunOptions) ([]models.Item, error)
}

// ImageSaver persists item images. Optional.
type ImageSaver interface {
	SaveAll(ctx context.Context, query string, items []models.Item) []models.Item
}

// Notifier delivers webhook events. Defaults to webhook.DeliverAsync.
type Notifier func(url, secret string, event *webhook.Event)

// Job is one query to scrape.
type Job struct {
	Query      string
	Run        scraper.RunOptions
	SaveImages bool
}

// Options configure a Queue.
type Options struct {
	Capacity int           // default: 32
	BatchTTL time.Duration // default: 1h
	Images   ImageSaver
	Notify   Notifier
	Logger   *slog.Logger
	Now      func() time.Time
}

type task struct {
	ctx context.Context
	run func(ctx context.Context)
}

// Queue runs jobs one at a time on a single worker goroutine.
type Queue struct {
	sc       Scraper
	images   ImageSaver
	notify   Notifier
	logger   *slog.Logger
	now      func() time.Time
	capacity int

	tasks   chan *task
	depth   atomic.Int32
	batches *batchStore

	baseCtx context.Context
	cancel  context.CancelFunc

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// New creates a queue and starts its worker.
func New(sc Scraper, opts Options) *Queue {
	if opts.Capacity <= 0 {
		opts.Capacity = 32
	}
	if opts.BatchTTL <= 0 {
		opts.BatchTTL = time.Hour
	}
	if opts.Notify == nil {
		opts.Notify = webhook.DeliverAsync
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		sc:       sc,
		images:   opts.Images,
		notify:   opts.Notify,
		logger:   opts.Logger,
		now:      opts.Now,
		capacity: opts.Capacity,
		tasks:    make(chan *task, opts.Capacity),
		batches:  newBatchStore(opts.BatchTTL),
		baseCtx:  ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go q.work()
	return q
}

// Depth returns the number of queued and running jobs.
func (q *Queue) Depth() int {
	return int(q.depth.Load())
}

// Capacity returns the pending job limit.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Do enqueues job and waits for its result. If ctx ends while the job is
// still waiting, the job is skipped and ctx.Err() returned.
func (q *Queue) Do(ctx context.Context, job Job) (*models.ShoppingResponse, error) {
	type result struct {
		resp *models.ShoppingResponse
		err  error
	}
	ch := make(chan result, 1)

	err := q.enqueue(&task{ctx: ctx, run: func(ctx context.Context) {
		resp, err := q.scrape(ctx, job)
		ch <- result{resp, err}
	}})
	if err != nil {
		return nil, err
	}

	select {
	case r := <-ch:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SubmitBatch enqueues every query of req as one batch and returns its
// initial status. The batch runs its queries in order on the worker.
func (q *Queue) SubmitBatch(req models.BatchRequest, defaults scraper.RunOptions) (*models.BatchResponse, error) {
	b := newBatch(req)
	run := defaults
	if req.MaxRetries > 0 {
		run.MaxRetries = req.MaxRetries
	}
	if req.Headless != nil {
		run.ShowBrowser = !*req.Headless
	}
	if req.Proxy != "" {
		run.Proxy = req.Proxy
	}

	q.batches.put(b)
	err := q.enqueue(&task{ctx: q.baseCtx, run: func(ctx context.Context) {
		q.runBatch(ctx, b, run)
	}})
	if err != nil {
		q.batches.remove(b.id)
		return nil, err
	}

	q.logger.Info("batch queued", "id", b.id, "total", len(req.Queries), "depth", q.Depth())
	return &models.BatchResponse{ID: b.id, Status: statusProcessing, Total: len(req.Queries)}, nil
}

// Batch returns the current status of a batch.
func (q *Queue) Batch(id string) (*models.BatchStatusResponse, bool) {
	b, ok := q.batches.get(id)
	if !ok {
		return nil, false
	}
	return b.status(), true
}

// Close stops accepting jobs, cancels running work and waits for the
// worker to exit.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.done
		return
	}
	q.closed = true
	close(q.tasks)
	q.mu.Unlock()

	q.cancel()
	<-q.done
}

func (q *Queue) enqueue(t *task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	q.depth.Add(1)
	select {
	case q.tasks <- t:
		return nil
	default:
		q.depth.Add(-1)
		return ErrQueueFull
	}
}

func (q *Queue) work() {
	defer close(q.done)
	for t := range q.tasks {
		q.execute(t)
	}
}

func (q *Queue) execute(t *task) {
	defer q.depth.Add(-1)
	if t.ctx.Err() != nil {
		q.logger.Debug("skipping canceled job", "error", t.ctx.Err())
		return
	}
	ctx, stop := mergeCancel(t.ctx, q.baseCtx)
	defer stop()
	t.run(ctx)
}

// scrape runs one job on the engine and builds its response.
func (q *Queue) scrape(ctx context.Context, job Job) (*models.ShoppingResponse, error) {
	items, err := q.sc.Run(ctx, job.Query, job.Run)
	if err != nil {
		return nil, err
	}
	if job.SaveImages && q.images != nil {
		items = q.images.SaveAll(ctx, job.Query, items)
	}
	return models.NewShoppingResponse(job.Query, q.now().Format(time.RFC3339), items), nil
}

func (q *Queue) runBatch(ctx context.Context, b *batch, run scraper.RunOptions) {
	for i, query := range b.queries {
		resp, err := q.scrape(ctx, Job{Query: query, Run: run})
		b.record(i, resp, err)
		if ctx.Err() != nil {
			break
		}
	}
	status := b.finish()
	q.batches.put(b)

	q.logger.Info("batch finished",
		"id", b.id,
		"status", status.Status,
		"completed", status.Completed,
		"total", status.Total,
	)

	if b.webhookURL == "" {
		return
	}
	evType := webhook.EventBatchCompleted
	if status.Status == statusFailed {
		evType = webhook.EventBatchFailed
	}
	q.notify(b.webhookURL, b.webhookSecret, &webhook.Event{
		Type:      evType,
		JobID:     b.id,
		Timestamp: q.now().Unix(),
		Data:      status,
	})
}

// mergeCancel returns a context carrying a's values that is canceled when
// either a or b is done.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	stop := context.AfterFunc(b, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}
