// Package browser abstracts the small slice of browser automation the
// extraction engine needs, so the engine can drive a live Chromium session
// or a static captured page through the same calls.
package browser

import (
	"context"
	"errors"
)

// ErrClosed is returned by operations on a session that was closed.
var ErrClosed = errors.New("browser: session closed")

// Element is a node in the rendered document.
//
// Lookups return an explicit found flag. A non-nil error means the driver
// itself failed (detached node, dead target), not that nothing matched.
type Element interface {
	Text() (string, error)
	Attribute(name string) (string, bool, error)
	Element(selector string) (Element, bool, error)
	Elements(selector string) ([]Element, error)
	Parent() (Element, bool, error)
	PrevSibling() (Element, bool, error)
	NextSibling() (Element, bool, error)
	ScrollIntoView() error
	Hover() error
	Click() error
}

// Page is a single browser tab.
type Page interface {
	Navigate(url string) error
	Elements(selector string) ([]Element, error)
	ElementX(xpath string) (Element, bool, error)
	ViewportHeight() (int, error)
	DocumentHeight() (int, error)
	ScrollTo(y int) error
	HTML() (string, error)
}

// Session is a running browser with one page.
type Session interface {
	// Page returns the session's page bound to ctx.
	Page(ctx context.Context) Page

	// Ping is a cheap liveness probe.
	Ping(ctx context.Context) error

	// ClearState drops cookies and web storage for the current origin.
	ClearState(ctx context.Context) error

	Close() error
}

// Options configure a new session.
type Options struct {
	Proxy        string
	Headless     bool
	UserAgent    string
	NoSandbox    bool
	Bin          string
	WindowWidth  int
	WindowHeight int

	// BlockResources lists resource types failed before they load:
	// "Stylesheet", "Font", "Media" or "Image".
	BlockResources []string

	// BlockTrackers fails requests to known ad and analytics hosts.
	BlockTrackers bool
}

// Launcher starts sessions.
type Launcher interface {
	Launch(ctx context.Context, opts Options) (Session, error)
}
