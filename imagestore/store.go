// Package imagestore persists product thumbnails next to scrape results.
package imagestore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/scraper"
)

// ErrNotImage is returned when the downloaded bytes are not an image.
var ErrNotImage = errors.New("imagestore: content is not an image")

// fallbackSlug names the directory of queries made only of dots.
const fallbackSlug = "query"

// Store writes item images under Dir/<query slug>/.
type Store struct {
	Dir     string
	Fetcher Fetcher
	Logger  *slog.Logger
}

// New returns a store. A nil fetcher disables remote downloads; data URIs
// are still decoded.
func New(dir string, f Fetcher, logger *slog.Logger) *Store {
	if dir == "" {
		dir = "images"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{Dir: dir, Fetcher: f, Logger: logger}
}

// Save stores the image of item and returns a copy with SavedImagePath set.
// Items without an image URL are returned unchanged.
func (s *Store) Save(ctx context.Context, query string, index int, item models.Item) (models.Item, error) {
	if item.ImageURL == nil || *item.ImageURL == "" {
		return item, nil
	}
	src := *item.ImageURL

	var (
		data []byte
		err  error
	)
	if strings.HasPrefix(src, "data:") {
		data, err = decodeDataURI(src)
	} else {
		if s.Fetcher == nil {
			return item, nil
		}
		if _, perr := url.ParseRequestURI(src); perr != nil {
			return item, fmt.Errorf("imagestore: invalid image url: %w", perr)
		}
		data, err = s.Fetcher.Fetch(ctx, src)
	}
	if err != nil {
		return item, err
	}

	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return item, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}

	dir, err := s.queryDir(query)
	if err != nil {
		return item, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return item, fmt.Errorf("imagestore: create dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("%02d%s", index+1, mt.Extension()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return item, fmt.Errorf("imagestore: write image: %w", err)
	}
	return item.WithSavedImagePath(path), nil
}

// queryDir returns the directory for query's images. Leading dots are
// stripped from the slug so a query never names "." or ".." and the result
// always stays under Dir.
func (s *Store) queryDir(query string) (string, error) {
	slug := strings.TrimLeft(scraper.QuerySlug(query), ".")
	if slug == "" {
		slug = fallbackSlug
	}
	dir := filepath.Join(s.Dir, slug)
	rel, err := filepath.Rel(s.Dir, dir)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("imagestore: query %q escapes image dir", query)
	}
	return dir, nil
}

// SaveAll stores every item's image. Failures are logged and leave the
// item's SavedImagePath unset.
func (s *Store) SaveAll(ctx context.Context, query string, items []models.Item) []models.Item {
	out := make([]models.Item, len(items))
	saved := 0
	for i, item := range items {
		if ctx.Err() != nil {
			copy(out[i:], items[i:])
			break
		}
		got, err := s.Save(ctx, query, i, item)
		if err != nil {
			s.Logger.Warn("image not saved", "query", query, "index", i, "error", err)
		}
		if got.SavedImagePath != nil {
			saved++
		}
		out[i] = got
	}
	s.Logger.Debug("images saved", "query", query, "saved", saved, "items", len(items))
	return out
}

// decodeDataURI decodes a base64 or percent-encoded data URI.
func decodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, errors.New("imagestore: malformed data uri")
	}
	if strings.HasSuffix(header, ";base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some pages strip padding.
			data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		}
		if err != nil {
			return nil, fmt.Errorf("imagestore: decode data uri: %w", err)
		}
		return data, nil
	}
	s, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("imagestore: decode data uri: %w", err)
	}
	return []byte(s), nil
}
