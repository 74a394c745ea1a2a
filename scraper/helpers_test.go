package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
)

// fakeClock advances only when slept on.
type fakeClock struct {
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 11, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	if d > 0 {
		c.now = c.now.Add(d)
	}
	return nil
}

func (c *fakeClock) total() time.Duration {
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testPacer(clock Clock) *Pacer {
	return NewPacer(clock, rand.New(rand.NewPCG(1, 2)), 1)
}

type cardOpts struct {
	id       string
	title    string
	price    string
	aria     string
	delivery string
	review   string
	href     string
	imgs     []string
}

// card renders a result card the way the live page nests it: the title
// sits one level below the container holding the price.
func card(o cardOpts) string {
	var b strings.Builder
	b.WriteString(`<div class="card"`)
	if o.id != "" {
		fmt.Fprintf(&b, ` data-hveid="%s"`, o.id)
	}
	b.WriteString(`>`)
	fmt.Fprintf(&b, `<div class="head"><span class="gkQHve SsM98d RmEs5b">%s</span></div>`, o.title)
	if o.aria != "" {
		fmt.Fprintf(&b, `<span class="lmQWe" aria-label="%s">%s</span>`, o.aria, o.price)
	} else {
		fmt.Fprintf(&b, `<span class="lmQWe">%s</span>`, o.price)
	}
	if o.delivery != "" {
		fmt.Fprintf(&b, `<span class="ybnj7e">%s</span>`, o.delivery)
	}
	if o.review != "" {
		fmt.Fprintf(&b, `<span class="yi40Hd">%s</span>`, o.review)
	}
	if o.href != "" {
		fmt.Fprintf(&b, `<a href="%s">view</a>`, o.href)
	}
	for _, img := range o.imgs {
		b.WriteString(img)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func simpleCard(i int) string {
	return card(cardOpts{
		id:    fmt.Sprintf("id-%d", i),
		title: fmt.Sprintf("Product %d", i),
		price: fmt.Sprintf("$%d.99", i),
	})
}

func resultsPage(t *testing.T, cards ...string) *browser.StaticPage {
	t.Helper()
	html := `<html><body><div id="search"><div class="grid">` + strings.Join(cards, "\n") + `</div></div></body></html>`
	p, err := browser.NewStaticPageString(html)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return p
}

// firstContainer returns the card wrapping the first title on p.
func firstContainer(t *testing.T, p browser.Page) browser.Element {
	t.Helper()
	els, err := p.Elements(".card")
	if err != nil || len(els) == 0 {
		t.Fatalf("no card on page: %v", err)
	}
	return els[0]
}

// fakeSession is a static session with a controllable liveness probe.
type fakeSession struct {
	page    browser.Page
	pingErr error
	closed  bool
	cleared int
}

func (s *fakeSession) Page(context.Context) browser.Page { return s.page }

func (s *fakeSession) Ping(context.Context) error {
	if s.closed {
		return browser.ErrClosed
	}
	return s.pingErr
}

func (s *fakeSession) ClearState(context.Context) error {
	s.cleared++
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

// fakeLauncher hands out fakeSessions built from newPage.
type fakeLauncher struct {
	newPage   func() browser.Page
	err       error
	failFirst int
	launches  []browser.Options
	sessions  []*fakeSession
}

func (l *fakeLauncher) Launch(_ context.Context, opts browser.Options) (browser.Session, error) {
	l.launches = append(l.launches, opts)
	if l.err != nil {
		return nil, l.err
	}
	if len(l.launches) <= l.failFirst {
		return nil, errLaunch
	}
	var page browser.Page
	if l.newPage != nil {
		page = l.newPage()
	}
	s := &fakeSession{page: page}
	l.sessions = append(l.sessions, s)
	return s, nil
}

var errLaunch = errors.New("chrome not found")

// erroringPage fails title lookups and element reads for selected calls.
type erroringPage struct {
	*browser.StaticPage
	failTitles int
	calls      int
}

func (p *erroringPage) Elements(selector string) ([]browser.Element, error) {
	if selector == config.DefaultSelectors().Title {
		p.calls++
		if p.calls <= p.failTitles {
			return nil, errors.New("target closed")
		}
	}
	return p.StaticPage.Elements(selector)
}

func mustStaticPage(t *testing.T, html string) *browser.StaticPage {
	t.Helper()
	p, err := browser.NewStaticPageString(html)
	if err != nil {
		t.Fatalf("parse page: %v", err)
	}
	return p
}
