package scraper

import (
	"context"
	"log/slog"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
)

const (
	readyPollInterval = 500 * time.Millisecond
	stabilityGap      = time.Second
)

// ReadyState reports what Await observed.
type ReadyState struct {
	// Marker is the first ready marker found, or "" on timeout.
	Marker string
	// Stable is true when two title counts taken apart were equal and non-zero.
	Stable bool
}

// Readiness waits for client-side rendering to produce result markers.
type Readiness struct {
	sel    *config.Selectors
	pacer  *Pacer
	logger *slog.Logger
}

// NewReadiness returns a detector polling the selector table's ready markers.
func NewReadiness(sel *config.Selectors, pacer *Pacer, logger *slog.Logger) *Readiness {
	return &Readiness{sel: sel, pacer: pacer, logger: logger}
}

// Await blocks until a ready marker is present or timeout elapses, then
// checks that the result count has settled. It never fails; a timeout or an
// unstable page is logged and the caller proceeds with whatever rendered.
func (r *Readiness) Await(ctx context.Context, page browser.Page, timeout time.Duration) ReadyState {
	var state ReadyState
	clock := r.pacer.Clock()
	deadline := clock.Now().Add(timeout)

	for state.Marker == "" {
		for _, marker := range r.sel.ReadyMarkers {
			if r.count(page, marker) > 0 {
				state.Marker = marker
				break
			}
		}
		if state.Marker != "" {
			break
		}
		if !clock.Now().Before(deadline) {
			r.logger.Warn("timed out waiting for results to render", "timeout", timeout)
			return state
		}
		if err := clock.Sleep(ctx, readyPollInterval); err != nil {
			return state
		}
	}
	r.logger.Debug("results rendered", "marker", state.Marker)

	// ── Settle, then sample the title count twice ──────────────────
	if err := r.pacer.Pause(ctx, time.Second, 2*time.Second); err != nil {
		return state
	}
	first := r.count(page, r.sel.Title)
	if err := r.pacer.Sleep(ctx, stabilityGap); err != nil {
		return state
	}
	second := r.count(page, r.sel.Title)

	state.Stable = first == second && first > 0
	if state.Stable {
		r.logger.Debug("results stable", "count", first)
	} else {
		r.logger.Info("results still changing, proceeding", "first", first, "second", second)
	}
	return state
}

func (r *Readiness) count(page browser.Page, selector string) int {
	els, err := page.Elements(selector)
	if err != nil {
		r.logger.Debug("marker lookup failed", "selector", selector, "error", err)
		return 0
	}
	return len(els)
}
