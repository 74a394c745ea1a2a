// Command benchmark compares running several queries with a fresh browser
// per query against reusing one kept-open session.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/scraper"
)

// CLI flags
var (
	queriesFlag = flag.String("queries", "laptop,smartphone,headphones", "Comma-separated queries")
	headless    = flag.Bool("headless", true, "Run the browser headless")
	fast        = flag.Bool("fast", true, "Use fast pacing")
	output      = flag.String("output", "benchmark-results.json", "JSON output file path")
)

// --- Benchmark result types ---

type queryResult struct {
	Query     string `json:"query"`
	ElapsedMs int64  `json:"elapsed_ms"`
	Items     int    `json:"items"`
	Error     string `json:"error,omitempty"`
}

type modeResult struct {
	Mode    string        `json:"mode"`
	TotalMs int64         `json:"total_ms"`
	Queries []queryResult `json:"queries"`
}

type benchmarkReport struct {
	Timestamp      string       `json:"timestamp"`
	FastMode       bool         `json:"fast_mode"`
	Results        []modeResult `json:"results"`
	SavedMs        int64        `json:"saved_ms"`
	ImprovementPct float64      `json:"improvement_percent"`
}

func main() {
	flag.Parse()
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	queries := splitQueries(*queriesFlag)
	if len(queries) == 0 {
		fmt.Fprintln(os.Stderr, "Error: no queries given")
		os.Exit(2)
	}

	cfg := config.Load()
	cfg.Scraper.FastMode = *fast
	sel, err := config.LoadSelectors(cfg.Scraper.SelectorsFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading selectors: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Println("=== Shopscrape Session Benchmark ===")
	fmt.Printf("Queries:   %s\n", strings.Join(queries, ", "))
	fmt.Printf("Fast mode: %v\n", *fast)
	fmt.Printf("Output:    %s\n", *output)
	fmt.Println()

	report := benchmarkReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		FastMode:  *fast,
	}

	// One limiter across both modes so the second run is not penalised by
	// a burst right after the first.
	limiter := scraper.NewRateLimiter(scraper.SystemClock{})
	for _, keepOpen := range []bool{false, true} {
		opts := scraper.OptionsFromConfig(cfg, sel)
		opts.KeepBrowserOpen = keepOpen
		opts.RateLimiter = limiter
		sc := scraper.New(opts)

		mode := modeName(keepOpen)
		fmt.Printf("=== Testing %s ===\n", mode)
		mr := runMode(ctx, sc, mode, queries)
		sc.CloseSession()
		report.Results = append(report.Results, mr)
		fmt.Println()

		if ctx.Err() != nil {
			fmt.Fprintln(os.Stderr, "interrupted")
			os.Exit(1)
		}
	}

	without, with := report.Results[0].TotalMs, report.Results[1].TotalMs
	report.SavedMs = without - with
	report.ImprovementPct = improvement(without, with)

	printTable(report)

	if err := writeJSON(*output, report); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing JSON output: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nDetailed results written to %s\n", *output)
}

func runMode(ctx context.Context, sc *scraper.Scraper, mode string, queries []string) modeResult {
	mr := modeResult{Mode: mode}
	start := time.Now()
	for i, q := range queries {
		fmt.Printf("  Query %d/%d: %s ... ", i+1, len(queries), q)
		qStart := time.Now()
		items, err := sc.Run(ctx, q, scraper.RunOptions{MaxRetries: 3, ShowBrowser: !*headless})
		qr := queryResult{Query: q, ElapsedMs: time.Since(qStart).Milliseconds(), Items: len(items)}
		if err != nil {
			qr.Error = err.Error()
			fmt.Printf("FAILED in %.2fs: %s\n", float64(qr.ElapsedMs)/1000, qr.Error)
		} else {
			fmt.Printf("OK in %.2fs, %d items\n", float64(qr.ElapsedMs)/1000, qr.Items)
		}
		mr.Queries = append(mr.Queries, qr)
		if ctx.Err() != nil {
			break
		}
	}
	mr.TotalMs = time.Since(start).Milliseconds()
	return mr
}

func modeName(keepOpen bool) string {
	if keepOpen {
		return "with session reuse"
	}
	return "without session reuse"
}

func splitQueries(s string) []string {
	var out []string
	for _, q := range strings.Split(s, ",") {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	return out
}

func improvement(without, with int64) float64 {
	if without <= 0 {
		return 0
	}
	return float64(without-with) / float64(without) * 100
}

func printTable(r benchmarkReport) {
	fmt.Println(strings.Repeat("─", 60))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Mode\tTotal\tQueries OK\n")
	fmt.Fprintf(w, "────\t─────\t──────────\n")
	for _, m := range r.Results {
		ok := 0
		for _, q := range m.Queries {
			if q.Error == "" {
				ok++
			}
		}
		fmt.Fprintf(w, "%s\t%.2fs\t%d/%d\n", m.Mode, float64(m.TotalMs)/1000, ok, len(m.Queries))
	}
	w.Flush()
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("Time saved:              %.2fs\n", float64(r.SavedMs)/1000)
	fmt.Printf("Performance improvement: %.1f%%\n", r.ImprovementPct)
}

func writeJSON(path string, report benchmarkReport) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
