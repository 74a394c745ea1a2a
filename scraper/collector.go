package scraper

import (
	"context"
	"fmt"
	"hash/fnv"
	"log/slog"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

const (
	maxAscend       = 5
	scrollJitter    = 50
	fallbackCap     = 15
	dedupTextPrefix = 100
	defaultStep     = 300
)

// Collector scrolls a results page and extracts items until it has enough.
type Collector struct {
	sel       *config.Selectors
	extractor *Extractor
	pacer     *Pacer
	logger    *slog.Logger
}

// NewCollector returns a collector that extracts through x.
func NewCollector(sel *config.Selectors, x *Extractor, pacer *Pacer, logger *slog.Logger) *Collector {
	return &Collector{sel: sel, extractor: x, pacer: pacer, logger: logger}
}

// Collect returns up to target items in the order they were first seen.
//
// It scrolls at most maxSteps times, a third of the viewport per step,
// extracting every new candidate after each step. If scrolling yields
// nothing it makes one pass over all candidates on the page. Driver errors
// on individual candidates only skip that candidate; an error is returned
// only when ctx is done or the page cannot be read at all.
func (c *Collector) Collect(ctx context.Context, page browser.Page, target, maxSteps int) ([]models.Item, error) {
	items := make([]models.Item, 0, target)
	seen := make(map[string]struct{})

	viewport, err := page.ViewportHeight()
	if err != nil {
		return nil, fmt.Errorf("read viewport height: %w", err)
	}
	step := viewport / 3
	if step <= 0 {
		step = defaultStep
	}

	position, steps := 0, 0
	for len(items) < target && steps < maxSteps {
		if err := ctx.Err(); err != nil {
			return items, err
		}

		titles, err := page.Elements(c.sel.Title)
		if err != nil {
			c.logger.Debug("title lookup failed", "position", position, "error", err)
		}
		for _, title := range titles {
			if len(items) >= target {
				break
			}
			container, key, ok := c.candidate(title)
			if !ok {
				continue
			}
			if _, dup := seen[key]; dup {
				continue
			}
			item, ok := c.extractor.Extract(container)
			if !ok {
				continue
			}
			seen[key] = struct{}{}
			items = append(items, item)
			c.logger.Info("found product", "n", len(items), "target", target, "title", truncate(item.Title, 50))
			if err := c.pacer.Pause(ctx, 100*time.Millisecond, 300*time.Millisecond); err != nil {
				return items, err
			}
		}
		if len(items) >= target {
			break
		}

		position += c.pacer.Spread(step, scrollJitter)
		if err := page.ScrollTo(position); err != nil {
			c.logger.Warn("scroll failed", "position", position, "error", err)
			break
		}
		if err := c.pacer.Pause(ctx, 800*time.Millisecond, 1500*time.Millisecond); err != nil {
			return items, err
		}
		steps++

		height, err := page.DocumentHeight()
		if err != nil {
			c.logger.Warn("document height unavailable", "error", err)
			break
		}
		if position >= height {
			c.logger.Debug("reached end of page", "position", position, "height", height)
			break
		}
	}

	if len(items) > 0 {
		c.logger.Info("scroll collection finished", "items", len(items), "scrolls", steps)
		return items, nil
	}

	c.logger.Warn("scrolling found no products, trying a single pass", "scrolls", steps)
	return c.fallback(ctx, page, target)
}

// fallback extracts from at most fallbackCap distinct containers in
// document order.
func (c *Collector) fallback(ctx context.Context, page browser.Page, target int) ([]models.Item, error) {
	titles, err := page.Elements(c.sel.Title)
	if err != nil {
		return nil, fmt.Errorf("list titles: %w", err)
	}

	containers := make([]browser.Element, 0, fallbackCap)
	seen := make(map[string]struct{})
	for _, title := range titles {
		if len(containers) >= fallbackCap {
			break
		}
		container, key, ok := c.candidate(title)
		if !ok {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		containers = append(containers, container)
	}
	c.logger.Info("processing product containers", "titles", len(titles), "containers", len(containers))

	items := make([]models.Item, 0, target)
	for i, container := range containers {
		if i > 0 {
			if err := c.pacer.Pause(ctx, 50*time.Millisecond, 200*time.Millisecond); err != nil {
				return items, err
			}
		}
		if item, ok := c.extractor.Extract(container); ok {
			items = append(items, item)
			if len(items) >= target {
				break
			}
		}
	}
	return items, nil
}

// candidate resolves the container of a title element and its dedup key.
func (c *Collector) candidate(title browser.Element) (browser.Element, string, bool) {
	container, ok, err := c.container(title)
	if err != nil {
		c.logger.Debug("container lookup failed", "error", err)
		return nil, "", false
	}
	if !ok {
		return nil, "", false
	}
	key, err := c.dedupKey(container)
	if err != nil {
		c.logger.Debug("dedup key unavailable", "error", err)
		return nil, "", false
	}
	return container, key, true
}

// container returns the nearest ancestor of title, at most maxAscend
// levels up, that also holds a price marker.
func (c *Collector) container(title browser.Element) (browser.Element, bool, error) {
	cur := title
	for range maxAscend {
		parent, ok, err := cur.Parent()
		if err != nil || !ok {
			return nil, false, err
		}
		_, hasPrice, err := parent.Element(c.sel.Price)
		if err != nil {
			return nil, false, err
		}
		if hasPrice {
			return parent, true, nil
		}
		cur = parent
	}
	return nil, false, nil
}

// dedupKey prefers the tracking attribute and falls back to a hash of the
// container's leading text.
func (c *Collector) dedupKey(container browser.Element) (string, error) {
	id, ok, err := container.Attribute(c.sel.TrackingAttr)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return "id:" + id, nil
	}
	text, err := container.Text()
	if err != nil {
		return "", err
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(truncate(text, dedupTextPrefix)))
	return fmt.Sprintf("text:%016x", h.Sum64()), nil
}

// truncate returns the first n runes of s.
func truncate(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
