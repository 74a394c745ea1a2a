// Command shopscrape scrapes one shopping query and writes the results to a
// JSON file.
//
//	shopscrape [--no-headless] [--save-images] [--out file] [query]
//	shopscrape --replay debug/debug_google_shopping_cat_food.html
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/debugdump"
	"github.com/use-agent/shopscrape/imagestore"
	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/scraper"
)

const defaultQuery = "cat food"

var (
	noHeadless = flag.Bool("no-headless", false, "Run the browser with a visible window")
	saveImages = flag.Bool("save-images", false, "Download item images and record their paths")
	outPath    = flag.String("out", "", "Output file (default: shopping_results_<query>.json)")
	replay     = flag.String("replay", "", "Extract items from a saved page instead of scraping")
	proxy      = flag.String("proxy", "", "Proxy URL, overrides SHOPSCRAPE_PROXY")
	fast       = flag.Bool("fast", false, "Scale every pause down (SHOPSCRAPE_FAST_SCALE)")
	retries    = flag.Int("retries", 0, "Number of attempts (default: SHOPSCRAPE_MAX_RETRIES)")
	debugHTML  = flag.Bool("debug-html", false, "Save the rendered page of every attempt")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run wires the command and returns its exit code. Deferred cleanup runs
// before the process exits.
func run() int {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()
	if *noHeadless {
		cfg.Browser.Headless = false
	}
	if *proxy != "" {
		cfg.Browser.DefaultProxy = *proxy
	}
	if *fast {
		cfg.Scraper.FastMode = true
	}
	if *retries > 0 {
		cfg.Scraper.MaxRetries = *retries
	}
	if *debugHTML {
		cfg.Debug.SaveHTML = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 2
	}

	query := defaultQuery
	if flag.NArg() > 0 {
		query = flag.Arg(0)
	}

	// ── 2. Logging ──────────────────────────────────────────────────
	initLogger(cfg.Log)

	sel, err := config.LoadSelectors(cfg.Scraper.SelectorsFile)
	if err != nil {
		slog.Error("failed to load selectors", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := scraper.OptionsFromConfig(cfg, sel)
	if cfg.Debug.SaveHTML {
		opts.Diagnostics = debugdump.NewFileSink(cfg.Debug.Dir)
	}
	return scrape(ctx, cfg, scraper.New(opts), query, os.Stdout)
}

// engine is the part of scraper.Scraper the command drives.
type engine interface {
	Run(ctx context.Context, query string, opts scraper.RunOptions) ([]models.Item, error)
	Collect(ctx context.Context, page browser.Page) ([]models.Item, error)
	CloseSession()
}

// scrape runs or replays query on sc, writes the results and returns the
// exit code. The session of sc is closed on every path.
func scrape(ctx context.Context, cfg *config.Config, sc engine, query string, stdout io.Writer) int {
	defer sc.CloseSession()

	// ── 3. Scrape or replay ─────────────────────────────────────────
	var (
		items []models.Item
		err   error
	)
	if *replay != "" {
		slog.Info("replaying saved page", "path", *replay)
		items, err = replayFile(ctx, sc, *replay)
	} else {
		slog.Info("starting shopping scrape", "query", query, "headless", cfg.Browser.Headless)
		items, err = sc.Run(ctx, query, scraper.RunOptions{
			MaxRetries:  cfg.Scraper.MaxRetries,
			Proxy:       cfg.Browser.DefaultProxy,
			ShowBrowser: !cfg.Browser.Headless,
		})
	}
	if err != nil {
		slog.Error("scrape failed", "query", query, "error", err)
		return 1
	}
	if len(items) == 0 {
		slog.Warn("no items found", "query", query)
		return 0
	}

	// ── 4. Images ───────────────────────────────────────────────────
	if *saveImages {
		fetcher, err := imagestore.NewHTTPFetcher(cfg.Browser.DefaultProxy, cfg.Images.FetchTimeout)
		if err != nil {
			slog.Error("failed to create image fetcher", "error", err)
			return 1
		}
		items = imagestore.New(cfg.Images.Dir, fetcher, slog.Default()).SaveAll(ctx, query, items)
	}

	// ── 5. Write results ────────────────────────────────────────────
	resp := models.NewShoppingResponse(query, time.Now().Format(time.RFC3339), items)
	path := *outPath
	if path == "" {
		path = outputFilename(query)
	}
	if err := writeResults(path, resp); err != nil {
		slog.Error("failed to write results", "path", path, "error", err)
		return 1
	}
	slog.Info("results saved", "path", path, "items", len(items))

	printSummary(stdout, resp, path)
	return 0
}

func replayFile(ctx context.Context, sc engine, path string) ([]models.Item, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	page, err := browser.NewStaticPage(f)
	if err != nil {
		return nil, err
	}
	return sc.Collect(ctx, page)
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

	// Results go to stdout; keep logs on stderr.
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
