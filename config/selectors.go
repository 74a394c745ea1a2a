package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/andybalholm/cascadia"
	"github.com/antchfx/htmlquery"
	"github.com/pelletier/go-toml/v2"
	"golang.org/x/net/html"
)

// Selectors is the versioned table of page markers the engine depends on.
// The target page changes its class names without notice, so the whole
// table can be swapped from a TOML file without a rebuild.
type Selectors struct {
	Version string `toml:"version"`

	Title    string `toml:"title"`
	Price    string `toml:"price"`
	Delivery string `toml:"delivery"`
	Review   string `toml:"review"`
	Link     string `toml:"link"`
	Image    string `toml:"image"`

	// ConsentXPath locates the "accept all" control of the cookie wall.
	ConsentXPath string `toml:"consent_xpath"`

	// ReadyMarkers are polled in order; the first present one ends the wait.
	ReadyMarkers []string `toml:"ready_markers"`

	// TrackingAttr is the per-result attribute used as a dedup key.
	TrackingAttr string `toml:"tracking_attr"`

	ThumbnailPattern string `toml:"thumbnail_pattern"`
	ThumbnailMarker  string `toml:"thumbnail_marker"`
	LazySrcAttr      string `toml:"lazy_src_attr"`

	// ExcludedImageKeywords disqualify generic remote images (site chrome).
	ExcludedImageKeywords []string `toml:"excluded_image_keywords"`

	// ChallengeMarkers flag a bot-check page, matched case-insensitively.
	ChallengeMarkers []string `toml:"challenge_markers"`
}

// DefaultSelectors returns the built-in selector table.
func DefaultSelectors() *Selectors {
	return &Selectors{
		Version:      "2024-11",
		Title:        ".gkQHve.SsM98d.RmEs5b",
		Price:        ".lmQWe",
		Delivery:     ".ybnj7e",
		Review:       ".yi40Hd",
		Link:         "a[href]",
		Image:        "img",
		ConsentXPath: "/html/body/c-wiz/div/div/div/div[2]/div[1]/div[3]/div[1]/div[1]/form[2]/div/div/button/span",
		ReadyMarkers: []string{
			".gkQHve.SsM98d.RmEs5b",
			".lmQWe",
			"[data-hveid]",
			"#search",
		},
		TrackingAttr:          "data-hveid",
		ThumbnailPattern:      "encrypted-tbn",
		ThumbnailMarker:       "shopping?q=tbn:",
		LazySrcAttr:           "data-src",
		ExcludedImageKeywords: []string{"favicon", "icon", "logo"},
		ChallengeMarkers:      []string{"recaptcha", "unusual traffic"},
	}
}

// LoadSelectors returns the default table overlaid with the fields present
// in the TOML file at path. An empty path yields the defaults.
func LoadSelectors(path string) (*Selectors, error) {
	s := DefaultSelectors()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read selectors file: %w", err)
	}
	if err := toml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parse selectors file %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("selectors file %s: %w", path, err)
	}
	return s, nil
}

// Validate compiles every CSS selector and the consent XPath.
func (s *Selectors) Validate() error {
	css := map[string]string{
		"title":    s.Title,
		"price":    s.Price,
		"delivery": s.Delivery,
		"review":   s.Review,
		"link":     s.Link,
		"image":    s.Image,
	}
	for i, m := range s.ReadyMarkers {
		css[fmt.Sprintf("ready_markers[%d]", i)] = m
	}
	for name, sel := range css {
		if strings.TrimSpace(sel) == "" {
			return fmt.Errorf("selector %s is empty", name)
		}
		if _, err := cascadia.ParseGroup(sel); err != nil {
			return fmt.Errorf("selector %s %q: %w", name, sel, err)
		}
	}
	if len(s.ReadyMarkers) == 0 {
		return errors.New("ready_markers must not be empty")
	}
	if s.ConsentXPath == "" {
		return errors.New("consent_xpath is empty")
	}
	if err := compileXPath(s.ConsentXPath); err != nil {
		return fmt.Errorf("consent_xpath %q: %w", s.ConsentXPath, err)
	}
	if s.TrackingAttr == "" || s.LazySrcAttr == "" {
		return errors.New("tracking_attr and lazy_src_attr must be set")
	}
	if s.ThumbnailPattern == "" {
		return errors.New("thumbnail_pattern is empty")
	}
	return nil
}

// compileXPath evaluates expr against an empty document so that syntax
// errors surface at load time instead of on the first live page.
func compileXPath(expr string) error {
	doc, err := html.Parse(strings.NewReader(""))
	if err != nil {
		return err
	}
	_, err = htmlquery.Query(doc, expr)
	return err
}
