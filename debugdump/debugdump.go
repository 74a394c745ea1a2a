// Package debugdump writes rendered result pages to disk so failed scrapes
// can be inspected and replayed offline.
package debugdump

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/use-agent/shopscrape/scraper"
)

// FilePrefix is prepended to every snapshot file name.
const FilePrefix = "debug_google_shopping_"

// FileSink stores snapshots as HTML files under Dir, one file per query.
// A later snapshot of the same query overwrites the earlier one.
type FileSink struct {
	Dir string
}

// NewFileSink returns a sink writing into dir ("." when empty).
func NewFileSink(dir string) *FileSink {
	if dir == "" {
		dir = "."
	}
	return &FileSink{Dir: dir}
}

// Path returns the file a snapshot for slug is written to.
func (s *FileSink) Path(slug string) string {
	return filepath.Join(s.Dir, FilePrefix+slug+".html")
}

// Capture implements scraper.DiagnosticsSink.
func (s *FileSink) Capture(ctx context.Context, snap scraper.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	slug := snap.Slug
	if slug == "" {
		slug = scraper.QuerySlug(snap.Query)
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return fmt.Errorf("debugdump: create dir: %w", err)
	}
	path := s.Path(slug)
	if err := os.WriteFile(path, []byte(snap.HTML), 0o644); err != nil {
		return fmt.Errorf("debugdump: write snapshot: %w", err)
	}
	slog.Debug("page snapshot saved",
		"path", path,
		"bytes", len(snap.HTML),
		"challenge_suspected", snap.ChallengeSuspected,
	)
	return nil
}
