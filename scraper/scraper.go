// Package scraper is the browser-driven extraction engine for shopping
// results: it owns the browser session, paces every action like a person,
// retries failed attempts and turns rendered result cards into items.
package scraper

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

// Attempt outcomes, also used as metric labels.
const (
	outcomeItems         = "items"
	outcomeEmpty         = "empty"
	outcomeInitFailed    = "init_failed"
	outcomePrepareFailed = "prepare_failed"
	outcomeCollectFailed = "collect_failed"
)

// Pacing between attempts.
const (
	firstSpacing  = 2 * time.Second
	retrySpacing  = 5 * time.Second
	diagPauseLo   = 3 * time.Second
	diagPauseHi   = 7 * time.Second
	defaultTarget = 5
	defaultSteps  = 10
)

type attempt struct {
	index   int
	delay   time.Duration
	outcome string
	err     error
}

// Options configure a Scraper. Zero values fall back to defaults.
type Options struct {
	Launcher    browser.Launcher
	Selectors   *config.Selectors
	RateLimiter *RateLimiter
	Diagnostics DiagnosticsSink
	Clock       Clock
	Rand        *rand.Rand
	Logger      *slog.Logger
	Metrics     *Metrics

	KeepBrowserOpen bool
	FastMode        bool
	FastScale       float64

	TargetCount    int
	MaxScrollSteps int
	ReadyTimeout   time.Duration
	SearchURL      string

	NoSandbox      bool
	BrowserBin     string
	UserAgents     []string
	BlockResources []string
	BlockTrackers  bool
}

// OptionsFromConfig maps application configuration onto engine options.
// The caller still supplies the launcher and collaborators.
func OptionsFromConfig(cfg *config.Config, sel *config.Selectors) Options {
	return Options{
		Selectors:       sel,
		KeepBrowserOpen: cfg.Browser.KeepBrowserOpen,
		FastMode:        cfg.Scraper.FastMode,
		FastScale:       cfg.Scraper.FastScale,
		TargetCount:     cfg.Scraper.TargetCount,
		MaxScrollSteps:  cfg.Scraper.MaxScrollSteps,
		ReadyTimeout:    cfg.Scraper.ReadyTimeout,
		SearchURL:       cfg.Scraper.SearchURL,
		NoSandbox:       cfg.Browser.NoSandbox,
		BrowserBin:      cfg.Browser.BrowserBin,
		UserAgents:      cfg.Browser.UserAgents,
		BlockResources:  cfg.Browser.BlockResources,
		BlockTrackers:   cfg.Browser.BlockTrackers,
	}
}

// RunOptions are per-call settings. The zero value runs three headless
// attempts without a proxy.
type RunOptions struct {
	// MaxRetries is the number of attempts. Zero means 3.
	MaxRetries int
	Proxy      string
	// ShowBrowser opens a visible window instead of running headless.
	ShowBrowser bool
}

// DefaultRunOptions returns three headless attempts without a proxy.
func DefaultRunOptions() RunOptions {
	return RunOptions{MaxRetries: 3}
}

// Scraper runs queries against the shopping results page. It serves one
// caller at a time; callers needing concurrency put a queue in front.
type Scraper struct {
	sel         *config.Selectors
	limiter     *RateLimiter
	diagnostics DiagnosticsSink
	pacer       *Pacer
	logger      *slog.Logger
	metrics     *Metrics

	sessions  *SessionManager
	consent   *Consent
	collector *Collector

	keepOpen bool
	target   int
	maxSteps int
}

// New assembles a Scraper from opts.
func New(opts Options) *Scraper {
	if opts.Selectors == nil {
		opts.Selectors = config.DefaultSelectors()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.RateLimiter == nil {
		opts.RateLimiter = NewRateLimiter(opts.Clock)
	}
	if opts.Launcher == nil {
		opts.Launcher = browser.NewRodLauncher()
	}
	if opts.TargetCount <= 0 {
		opts.TargetCount = defaultTarget
	}
	if opts.MaxScrollSteps <= 0 {
		opts.MaxScrollSteps = defaultSteps
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 10 * time.Second
	}
	scale := 1.0
	if opts.FastMode {
		scale = opts.FastScale
		if scale <= 0 {
			scale = 0.3
		}
	}

	pacer := NewPacer(opts.Clock, opts.Rand, scale)
	extractor := NewExtractor(opts.Selectors, opts.Logger, opts.Metrics)
	readiness := NewReadiness(opts.Selectors, pacer, opts.Logger)
	base := browser.Options{
		NoSandbox:      opts.NoSandbox,
		Bin:            opts.BrowserBin,
		BlockResources: opts.BlockResources,
		BlockTrackers:  opts.BlockTrackers,
	}

	return &Scraper{
		sel:         opts.Selectors,
		limiter:     opts.RateLimiter,
		diagnostics: opts.Diagnostics,
		pacer:       pacer,
		logger:      opts.Logger,
		metrics:     opts.Metrics,
		sessions:    NewSessionManager(opts.Launcher, opts.KeepBrowserOpen, base, opts.UserAgents, pacer, opts.Logger, opts.Metrics),
		consent:     NewConsent(opts.Selectors, opts.SearchURL, readiness, opts.ReadyTimeout, pacer, opts.Logger),
		collector:   NewCollector(opts.Selectors, extractor, pacer, opts.Logger),
		keepOpen:    opts.KeepBrowserOpen,
		target:      opts.TargetCount,
		maxSteps:    opts.MaxScrollSteps,
	}
}

// Run scrapes up to the target number of items for query.
//
// Each attempt waits for the shared rate limiter and a random delay, then
// acquires a session, opens the results page and collects items. The first
// attempt with items wins. When every attempt fails the error matches
// models.ErrDriverInit if the last attempt could not start a browser and
// models.ErrShoppingData otherwise.
func (s *Scraper) Run(ctx context.Context, query string, opts RunOptions) ([]models.Item, error) {
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	start := s.pacer.Clock().Now()
	logger := s.logger.With("query", query)

	var last attemptResult
	for i := range opts.MaxRetries {
		a := s.attempt(ctx, logger.With("attempt", i+1), i, query, opts)
		s.metrics.IncAttempt(a.outcome)
		last = a

		if a.outcome == outcomeItems {
			s.metrics.ObserveRun("success", s.pacer.Clock().Now().Sub(start))
			return a.items, nil
		}
		if err := ctx.Err(); err != nil {
			s.metrics.ObserveRun("canceled", s.pacer.Clock().Now().Sub(start))
			return nil, err
		}
		if i+1 < opts.MaxRetries {
			s.metrics.IncRetry()
		}
	}

	var err error
	if last.outcome == outcomeInitFailed {
		err = models.NewScrapeError(models.ErrCodeDriverInit, models.ErrDriverInit.Message, last.err)
		s.metrics.ObserveRun("driver_init_failed", s.pacer.Clock().Now().Sub(start))
	} else {
		err = models.NewScrapeError(models.ErrCodeShoppingData, models.ErrShoppingData.Message, last.err)
		s.metrics.ObserveRun("shopping_data_failed", s.pacer.Clock().Now().Sub(start))
	}
	logger.Error("all attempts failed", "attempts", opts.MaxRetries, "last_outcome", last.outcome, "error", last.err)
	return nil, err
}

type attemptResult struct {
	attempt
	items []models.Item
}

func (s *Scraper) attempt(ctx context.Context, logger *slog.Logger, index int, query string, opts RunOptions) attemptResult {
	r := attemptResult{attempt: attempt{index: index}}
	fail := func(outcome string, err error) attemptResult {
		r.outcome, r.err = outcome, err
		logger.Warn("attempt failed", "outcome", outcome, "error", err)
		return r
	}

	// ── 1. Delay ─────────────────────────────────────────────────────
	spacing, lo, hi := firstSpacing, time.Second, 3*time.Second
	if index > 0 {
		spacing, lo, hi = retrySpacing, 5*time.Second, 10*time.Second
	}
	if err := s.limiter.WaitIfNeeded(ctx, s.pacer.Scaled(spacing)); err != nil {
		return fail(outcomePrepareFailed, err)
	}
	r.delay = s.pacer.Between(lo, hi)
	logger.Debug("pacing before attempt", "delay", r.delay)
	if err := s.pacer.Clock().Sleep(ctx, r.delay); err != nil {
		return fail(outcomePrepareFailed, err)
	}

	// ── 2. Acquire ───────────────────────────────────────────────────
	sess, reused, err := s.sessions.Acquire(ctx, opts.Proxy, !opts.ShowBrowser)
	if err != nil {
		return fail(outcomeInitFailed, err)
	}
	defer s.sessions.Release(s.keepOpen)
	page := sess.Page(ctx)

	// ── 3. Prepare ───────────────────────────────────────────────────
	if reused {
		if err := sess.ClearState(ctx); err != nil {
			logger.Warn("could not clear state of reused session", "error", err)
		}
	}
	if err := s.consent.Accept(ctx, page, query); err != nil {
		return fail(outcomePrepareFailed, err)
	}

	// ── 4. Diagnostics ───────────────────────────────────────────────
	if err := s.pacer.Pause(ctx, diagPauseLo, diagPauseHi); err != nil {
		return fail(outcomePrepareFailed, err)
	}
	s.inspect(ctx, logger, page, query)

	// ── 5. Collect ───────────────────────────────────────────────────
	items, err := s.collector.Collect(ctx, page, s.target, s.maxSteps)
	if err != nil {
		return fail(outcomeCollectFailed, err)
	}

	// ── 6. Evaluate ──────────────────────────────────────────────────
	if len(items) == 0 {
		return fail(outcomeEmpty, nil)
	}
	r.outcome, r.items = outcomeItems, items
	s.metrics.AddItems(len(items))
	logger.Info("attempt succeeded", "items", len(items), "reused_session", reused)
	return r
}

// inspect checks the rendered page for a bot challenge and hands it to the
// diagnostics sink. Failures are logged only.
func (s *Scraper) inspect(ctx context.Context, logger *slog.Logger, page browser.Page, query string) {
	html, err := page.HTML()
	if err != nil {
		logger.Warn("could not read rendered page", "error", err)
		return
	}
	challenge := challengeSuspected(html, s.sel.ChallengeMarkers)
	if challenge {
		s.metrics.IncChallenge()
		logger.Warn("bot challenge detected; wait before retrying or switch network")
	}
	if s.diagnostics == nil {
		return
	}
	snap := Snapshot{
		Query:              query,
		Slug:               QuerySlug(query),
		HTML:               html,
		ChallengeSuspected: challenge,
		CapturedAt:         s.pacer.Clock().Now(),
	}
	if err := s.diagnostics.Capture(ctx, snap); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("could not save page snapshot", "error", err)
	}
}

// Collect runs only the collection stage against an already loaded page.
// It is used to replay captured pages offline.
func (s *Scraper) Collect(ctx context.Context, page browser.Page) ([]models.Item, error) {
	return s.collector.Collect(ctx, page, s.target, s.maxSteps)
}

// CloseSession tears down a kept-open browser session. It never fails.
func (s *Scraper) CloseSession() {
	s.sessions.Close()
}
