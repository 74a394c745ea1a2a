package scraper

import (
	"context"
	"strings"
	"time"
)

// Snapshot is the rendered page of one attempt.
type Snapshot struct {
	Query              string
	Slug               string
	HTML               string
	ChallengeSuspected bool
	CapturedAt         time.Time
}

// DiagnosticsSink receives page snapshots for offline debugging and
// replay. Capture errors are logged by the caller and never fail a scrape.
type DiagnosticsSink interface {
	Capture(ctx context.Context, snap Snapshot) error
}

// QuerySlug turns a query into a file-name friendly token.
func QuerySlug(query string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, strings.TrimSpace(query))
}

// challengeSuspected reports whether html contains any of markers,
// ignoring case.
func challengeSuspected(html string, markers []string) bool {
	lower := strings.ToLower(html)
	for _, m := range markers {
		if m != "" && strings.Contains(lower, strings.ToLower(m)) {
			return true
		}
	}
	return false
}
