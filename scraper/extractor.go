package scraper

import (
	"log/slog"
	"regexp"
	"strings"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

var reSymbolPrice = regexp.MustCompile(`[₹$€£¥]\s*[\d,]+\.?\d*`)

// Rejection reasons, also used as metric labels.
const (
	rejectNone         = ""
	rejectMissingTitle = "missing_title"
	rejectMissingPrice = "missing_price"
	rejectDriverError  = "driver_error"
)

// Extractor turns a candidate container into an Item.
type Extractor struct {
	sel     *config.Selectors
	logger  *slog.Logger
	metrics *Metrics
}

// NewExtractor returns an extractor using the given selector table.
func NewExtractor(sel *config.Selectors, logger *slog.Logger, metrics *Metrics) *Extractor {
	if sel == nil {
		sel = config.DefaultSelectors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{sel: sel, logger: logger, metrics: metrics}
}

// Extract returns the item in container and true, or false when the
// container has no usable title or price. A driver error on any lookup
// also rejects the container.
func (x *Extractor) Extract(container browser.Element) (models.Item, bool) {
	item, reason, err := x.extract(container)
	if reason != rejectNone {
		x.metrics.IncRejected(reason)
		if err != nil {
			x.logger.Debug("candidate rejected", "reason", reason, "error", err)
		}
		return models.Item{}, false
	}
	return item, true
}

func (x *Extractor) extract(c browser.Element) (models.Item, string, error) {
	// ── Mandatory fields ─────────────────────────────────────────────
	title, found, err := x.childText(c, x.sel.Title)
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	if !found || title == "" {
		return models.Item{}, rejectMissingTitle, nil
	}

	price, err := x.price(c)
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	if price == "" {
		return models.Item{}, rejectMissingPrice, nil
	}

	item := models.Item{
		Title:         title,
		Price:         price,
		DeliveryPrice: models.NotAvailable,
		URL:           models.NotAvailable,
	}

	// ── Optional fields ──────────────────────────────────────────────
	delivery, found, err := x.childText(c, x.sel.Delivery)
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	if found && delivery != "" {
		item.DeliveryPrice = delivery
	}

	review, found, err := x.childText(c, x.sel.Review)
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	if found && isRating(review) {
		item.Review = &review
	}

	link, found, err := x.childAttr(c, x.sel.Link, "href")
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	if found && link != "" {
		item.URL = link
	}

	img, err := x.imageURL(c)
	if err != nil {
		return models.Item{}, rejectDriverError, err
	}
	item.ImageURL = img

	return item, rejectNone, nil
}

// price reads the trimmed price text, falling back to a currency amount in
// the aria-label when the label talks about a price.
func (x *Extractor) price(c browser.Element) (string, error) {
	el, found, err := c.Element(x.sel.Price)
	if err != nil || !found {
		return "", err
	}
	text, err := el.Text()
	if err != nil {
		return "", err
	}
	if text = strings.TrimSpace(text); text != "" {
		return text, nil
	}
	label, found, err := el.Attribute("aria-label")
	if err != nil || !found {
		return "", err
	}
	if !strings.Contains(strings.ToLower(label), "price") {
		return "", nil
	}
	return reSymbolPrice.FindString(label), nil
}

// imageURL walks the image priority chain over the images found in the
// container, its adjacent siblings and its parent, in that order.
func (x *Extractor) imageURL(c browser.Element) (*string, error) {
	imgs, err := x.candidateImages(c)
	if err != nil {
		return nil, err
	}

	type imgAttrs struct{ src, lazy string }
	attrs := make([]imgAttrs, 0, len(imgs))
	for _, img := range imgs {
		src, _, err := img.Attribute("src")
		if err != nil {
			return nil, err
		}
		lazy, _, err := img.Attribute(x.sel.LazySrcAttr)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, imgAttrs{src: src, lazy: lazy})
	}

	pattern, marker := x.sel.ThumbnailPattern, x.sel.ThumbnailMarker

	// 1. Inline data URI.
	for _, a := range attrs {
		if strings.HasPrefix(a.src, "data:image/") {
			return &a.src, nil
		}
	}
	// 2. Shopping thumbnail proxy.
	if marker != "" {
		for _, a := range attrs {
			if strings.Contains(a.src, pattern) && strings.Contains(a.src, marker) {
				return &a.src, nil
			}
		}
	}
	// 3. Any thumbnail proxy, eager or lazy.
	for _, a := range attrs {
		if strings.Contains(a.src, pattern) {
			return &a.src, nil
		}
		if strings.Contains(a.lazy, pattern) {
			return &a.lazy, nil
		}
	}
	// 4. Any remote image that is not site chrome.
	for _, a := range attrs {
		if strings.HasPrefix(a.src, "http") && !x.excludedImage(a.src) {
			return &a.src, nil
		}
	}
	return nil, nil
}

func (x *Extractor) candidateImages(c browser.Element) ([]browser.Element, error) {
	imgs, err := c.Elements(x.sel.Image)
	if err != nil {
		return nil, err
	}

	for _, sibling := range []func() (browser.Element, bool, error){c.PrevSibling, c.NextSibling} {
		s, found, err := sibling()
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		more, err := s.Elements(x.sel.Image)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, more...)
	}

	parent, found, err := c.Parent()
	if err != nil {
		return nil, err
	}
	if found {
		more, err := parent.Elements(x.sel.Image)
		if err != nil {
			return nil, err
		}
		imgs = append(imgs, more...)
	}
	return imgs, nil
}

func (x *Extractor) excludedImage(src string) bool {
	lower := strings.ToLower(src)
	for _, kw := range x.sel.ExcludedImageKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (x *Extractor) childText(c browser.Element, selector string) (string, bool, error) {
	el, found, err := c.Element(selector)
	if err != nil || !found {
		return "", false, err
	}
	text, err := el.Text()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

func (x *Extractor) childAttr(c browser.Element, selector, name string) (string, bool, error) {
	el, found, err := c.Element(selector)
	if err != nil || !found {
		return "", false, err
	}
	return el.Attribute(name)
}

// isRating reports whether s looks like a numeric rating: digits with at
// most one decimal point.
func isRating(s string) bool {
	digits, dots := 0, 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '.':
			dots++
		default:
			return false
		}
	}
	return digits > 0 && dots <= 1
}
