package scraper

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

// Consent opens the results page for a query and clicks through the cookie
// wall when one is shown.
type Consent struct {
	sel          *config.Selectors
	searchURL    string
	readiness    *Readiness
	readyTimeout time.Duration
	pacer        *Pacer
	logger       *slog.Logger
}

// NewConsent returns a consent handler. searchURL is the prefix the
// escaped query is appended to.
func NewConsent(sel *config.Selectors, searchURL string, readiness *Readiness, readyTimeout time.Duration, pacer *Pacer, logger *slog.Logger) *Consent {
	if searchURL == "" {
		searchURL = config.DefaultSearchURL
	}
	return &Consent{
		sel:          sel,
		searchURL:    searchURL,
		readiness:    readiness,
		readyTimeout: readyTimeout,
		pacer:        pacer,
		logger:       logger,
	}
}

// SearchURL returns the results page URL for query.
func (c *Consent) SearchURL(query string) string {
	return c.searchURL + url.QueryEscape(query)
}

// Accept navigates to the results page, accepts the consent form if present
// and waits for results to render. Only a navigation failure is an error;
// a missing or unclickable consent control is logged and ignored.
func (c *Consent) Accept(ctx context.Context, page browser.Page, query string) error {
	target := c.SearchURL(query)
	c.logger.Info("opening results page", "url", target)

	if err := page.Navigate(target); err != nil {
		return models.NewScrapeError(models.ErrCodeConsent, models.ErrConsent.Message, err)
	}
	if err := c.pacer.Pause(ctx, 2*time.Second, 4*time.Second); err != nil {
		return err
	}

	switch clicked, err := c.click(ctx, page); {
	case err != nil:
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consent interaction failed, continuing", "error", err)
	case clicked:
		c.logger.Info("consent form accepted")
	default:
		c.logger.Warn("consent button not found, may not be required")
	}

	c.readiness.Await(ctx, page, c.readyTimeout)
	return ctx.Err()
}

// click moves to the consent control and clicks it the way a pointer would.
func (c *Consent) click(ctx context.Context, page browser.Page) (bool, error) {
	btn, found, err := page.ElementX(c.sel.ConsentXPath)
	if err != nil || !found {
		return false, err
	}
	if err := btn.ScrollIntoView(); err != nil {
		return false, err
	}
	if err := c.pacer.Pause(ctx, 500*time.Millisecond, 1500*time.Millisecond); err != nil {
		return false, err
	}
	if err := btn.Hover(); err != nil {
		return false, err
	}
	if err := c.pacer.Pause(ctx, 200*time.Millisecond, 800*time.Millisecond); err != nil {
		return false, err
	}
	if err := btn.Click(); err != nil {
		return false, err
	}
	return true, nil
}
