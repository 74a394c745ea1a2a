package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/shopscrape/api"
	"github.com/use-agent/shopscrape/cache"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/debugdump"
	"github.com/use-agent/shopscrape/imagestore"
	"github.com/use-agent/shopscrape/queue"
	"github.com/use-agent/shopscrape/scraper"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(2)
	}

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("shopscrape starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"keepBrowserOpen", cfg.Browser.KeepBrowserOpen,
		"fastMode", cfg.Scraper.FastMode,
	)
	if cfg.Auth.Enabled && len(cfg.Auth.APIKeys) == 0 {
		slog.Warn("auth enabled but no API keys configured; API is open")
	}

	// ── 3. Initialise the engine ────────────────────────────────────
	sel, err := config.LoadSelectors(cfg.Scraper.SelectorsFile)
	if err != nil {
		slog.Error("failed to load selectors", "error", err)
		os.Exit(1)
	}
	slog.Info("selectors loaded", "version", sel.Version)

	metrics := scraper.NewMetrics()
	opts := scraper.OptionsFromConfig(cfg, sel)
	opts.Metrics = metrics
	if cfg.Debug.SaveHTML {
		opts.Diagnostics = debugdump.NewFileSink(cfg.Debug.Dir)
	}
	sc := scraper.New(opts)
	// Kept-open sessions are torn down after the queue drains.
	defer sc.CloseSession()

	// ── 4. Image store, queue and cache ─────────────────────────────
	fetcher, err := imagestore.NewHTTPFetcher(cfg.Browser.DefaultProxy, cfg.Images.FetchTimeout)
	if err != nil {
		slog.Error("failed to create image fetcher", "error", err)
		os.Exit(1)
	}
	q := queue.New(sc, queue.Options{
		Capacity: cfg.Queue.Capacity,
		BatchTTL: cfg.Queue.BatchTTL,
		Images:   imagestore.New(cfg.Images.Dir, fetcher, slog.Default()),
	})
	defer q.Close()

	cc := cache.New(cfg.Cache.MaxEntries, cfg.Cache.TTL)

	// ── 5. Setup router ─────────────────────────────────────────────
	router := api.NewRouter(q, cfg, cc, metrics, time.Now())

	// ── 6. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 7. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Scrapes take tens of seconds; give in-flight requests a little longer
	// than a typical attempt before cutting them off.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// q.Close() and sc.CloseSession() run via defer.
	slog.Info("shopscrape stopped")
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
