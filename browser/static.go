package browser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"
)

// StaticPage is a Page over a parsed HTML document. It is used to replay
// captured pages offline and to drive the engine in tests. Navigation and
// pointer interactions do not change the document; they are recorded in
// Actions instead.
type StaticPage struct {
	doc *goquery.Document

	// Viewport and Height are the reported window and document heights.
	Viewport int
	Height   int

	// OnScroll, when set, is called after every ScrollTo with the new
	// offset. Tests use it to reveal more results as the page scrolls.
	OnScroll func(doc *goquery.Document, y int)

	// Actions lists navigations and interactions in call order,
	// e.g. "navigate https://...", "hover", "click", "scroll 360".
	Actions []string

	scrollY int
}

// NewStaticPage parses r into a page. Viewport and Height default to 1080.
func NewStaticPage(r io.Reader) (*StaticPage, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return &StaticPage{doc: doc, Viewport: 1080, Height: 1080}, nil
}

// NewStaticPageString parses s into a page.
func NewStaticPageString(s string) (*StaticPage, error) {
	return NewStaticPage(strings.NewReader(s))
}

// Document exposes the underlying document for mutation.
func (p *StaticPage) Document() *goquery.Document {
	return p.doc
}

// ScrollY returns the last offset passed to ScrollTo.
func (p *StaticPage) ScrollY() int {
	return p.scrollY
}

func (p *StaticPage) record(action string) {
	p.Actions = append(p.Actions, action)
}

func (p *StaticPage) Navigate(url string) error {
	p.record("navigate " + url)
	return nil
}

func (p *StaticPage) Elements(selector string) ([]Element, error) {
	return p.wrap(p.doc.Find(selector)), nil
}

func (p *StaticPage) ElementX(xpath string) (Element, bool, error) {
	if len(p.doc.Nodes) == 0 {
		return nil, false, nil
	}
	n, err := htmlquery.Query(p.doc.Nodes[0], xpath)
	if err != nil {
		return nil, false, fmt.Errorf("xpath %q: %w", xpath, err)
	}
	if n == nil {
		return nil, false, nil
	}
	return p.node(n), true, nil
}

func (p *StaticPage) ViewportHeight() (int, error) {
	return p.Viewport, nil
}

func (p *StaticPage) DocumentHeight() (int, error) {
	return p.Height, nil
}

func (p *StaticPage) ScrollTo(y int) error {
	p.scrollY = y
	p.record(fmt.Sprintf("scroll %d", y))
	if p.OnScroll != nil {
		p.OnScroll(p.doc, y)
	}
	return nil
}

func (p *StaticPage) HTML() (string, error) {
	return p.doc.Html()
}

func (p *StaticPage) node(n *html.Node) *staticElement {
	return &staticElement{page: p, sel: p.doc.FindNodes(n)}
}

func (p *StaticPage) wrap(sel *goquery.Selection) []Element {
	out := make([]Element, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &staticElement{page: p, sel: s})
	})
	return out
}

type staticElement struct {
	page *StaticPage
	sel  *goquery.Selection
}

func (e *staticElement) Text() (string, error) {
	return e.sel.Text(), nil
}

func (e *staticElement) Attribute(name string) (string, bool, error) {
	v, ok := e.sel.Attr(name)
	return v, ok, nil
}

func (e *staticElement) Element(selector string) (Element, bool, error) {
	return e.first(e.sel.Find(selector))
}

func (e *staticElement) Elements(selector string) ([]Element, error) {
	return e.page.wrap(e.sel.Find(selector)), nil
}

func (e *staticElement) Parent() (Element, bool, error) {
	return e.first(e.sel.Parent())
}

func (e *staticElement) PrevSibling() (Element, bool, error) {
	return e.first(e.sel.Prev())
}

func (e *staticElement) NextSibling() (Element, bool, error) {
	return e.first(e.sel.Next())
}

func (e *staticElement) ScrollIntoView() error {
	e.page.record("scroll-into-view")
	return nil
}

func (e *staticElement) Hover() error {
	e.page.record("hover")
	return nil
}

func (e *staticElement) Click() error {
	e.page.record("click")
	return nil
}

func (e *staticElement) first(sel *goquery.Selection) (Element, bool, error) {
	if sel.Length() == 0 {
		return nil, false, nil
	}
	return &staticElement{page: e.page, sel: sel.First()}, true, nil
}

// StaticSession serves a fixed StaticPage. Ping and ClearState always
// succeed until the session is closed.
type StaticSession struct {
	page   *StaticPage
	closed bool
}

// NewStaticSession wraps p in a session.
func NewStaticSession(p *StaticPage) *StaticSession {
	return &StaticSession{page: p}
}

func (s *StaticSession) Page(context.Context) Page {
	return s.page
}

func (s *StaticSession) Ping(context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *StaticSession) ClearState(context.Context) error {
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *StaticSession) Close() error {
	s.closed = true
	return nil
}

// Closed reports whether Close was called.
func (s *StaticSession) Closed() bool {
	return s.closed
}
