package browser

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

const fixture = `<html><body>
<div id="search">
  <section>
    <img id="before" src="https://example.com/a.png">
    <div class="card" data-hveid="k1"><h3 class="title">Kibble</h3><span class="price">$10</span></div>
    <img id="after" src="https://example.com/b.png">
  </section>
  <form><div><button><span>Accept all</span></button></div></form>
</div>
</body></html>`

func newFixture(t *testing.T) *StaticPage {
	t.Helper()
	p, err := NewStaticPageString(fixture)
	if err != nil {
		t.Fatalf("NewStaticPageString: %v", err)
	}
	return p
}

func TestStaticPage_ElementsAndText(t *testing.T) {
	p := newFixture(t)

	titles, err := p.Elements(".title")
	if err != nil {
		t.Fatal(err)
	}
	if len(titles) != 1 {
		t.Fatalf("got %d titles, want 1", len(titles))
	}
	text, _ := titles[0].Text()
	if text != "Kibble" {
		t.Errorf("Text() = %q", text)
	}

	none, _ := p.Elements(".missing")
	if len(none) != 0 {
		t.Errorf("expected no elements, got %d", len(none))
	}
}

func TestStaticElement_Navigation(t *testing.T) {
	p := newFixture(t)
	titles, _ := p.Elements(".title")

	card, ok, err := titles[0].Parent()
	if err != nil || !ok {
		t.Fatalf("Parent() = %v, %v", ok, err)
	}
	if v, ok, _ := card.Attribute("data-hveid"); !ok || v != "k1" {
		t.Errorf("data-hveid = %q, %v", v, ok)
	}
	if _, ok, _ := card.Attribute("data-missing"); ok {
		t.Error("missing attribute reported as found")
	}

	prev, ok, _ := card.PrevSibling()
	if !ok {
		t.Fatal("expected previous sibling")
	}
	if id, _, _ := prev.Attribute("id"); id != "before" {
		t.Errorf("previous sibling id = %q", id)
	}
	next, ok, _ := card.NextSibling()
	if !ok {
		t.Fatal("expected next sibling")
	}
	if id, _, _ := next.Attribute("id"); id != "after" {
		t.Errorf("next sibling id = %q", id)
	}

	if _, ok, _ := next.NextSibling(); ok {
		t.Error("last child should have no next sibling")
	}

	price, ok, _ := card.Element(".price")
	if !ok {
		t.Fatal("expected price inside card")
	}
	if text, _ := price.Text(); text != "$10" {
		t.Errorf("price = %q", text)
	}
	if _, ok, _ := card.Element(".rating"); ok {
		t.Error("missing child reported as found")
	}
}

func TestStaticElement_ParentOfRootNotFound(t *testing.T) {
	p := newFixture(t)
	htmlEls, _ := p.Elements("html")
	if len(htmlEls) != 1 {
		t.Fatalf("got %d html elements", len(htmlEls))
	}
	if _, ok, err := htmlEls[0].Parent(); ok || err != nil {
		t.Errorf("Parent() of root = %v, %v; want not found", ok, err)
	}
}

func TestStaticPage_ElementX(t *testing.T) {
	p := newFixture(t)

	el, ok, err := p.ElementX("//form/div/button/span")
	if err != nil || !ok {
		t.Fatalf("ElementX = %v, %v", ok, err)
	}
	if text, _ := el.Text(); text != "Accept all" {
		t.Errorf("text = %q", text)
	}
	if err := el.Click(); err != nil {
		t.Fatal(err)
	}

	if _, ok, err := p.ElementX("//form[2]/div"); ok || err != nil {
		t.Errorf("absent xpath = %v, %v", ok, err)
	}
	if _, _, err := p.ElementX("//form["); err == nil {
		t.Error("expected error for malformed xpath")
	}
}

func TestStaticPage_ScrollRevealsContent(t *testing.T) {
	p := newFixture(t)
	p.Height = 3000
	p.OnScroll = func(doc *goquery.Document, y int) {
		if y >= 1000 {
			doc.Find("section").AppendHtml(`<div class="card"><h3 class="title">Late</h3></div>`)
		}
	}

	if err := p.ScrollTo(500); err != nil {
		t.Fatal(err)
	}
	if els, _ := p.Elements(".title"); len(els) != 1 {
		t.Fatalf("got %d titles before reveal", len(els))
	}
	_ = p.ScrollTo(1200)
	if els, _ := p.Elements(".title"); len(els) != 2 {
		t.Fatalf("got %d titles after reveal", len(els))
	}
	if p.ScrollY() != 1200 {
		t.Errorf("ScrollY = %d", p.ScrollY())
	}
	if got := strings.Join(p.Actions, ","); got != "scroll 500,scroll 1200" {
		t.Errorf("Actions = %q", got)
	}
}

func TestStaticSession_Lifecycle(t *testing.T) {
	s := NewStaticSession(newFixture(t))
	ctx := context.Background()

	if err := s.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
	_ = s.Close()
	if !s.Closed() {
		t.Error("Closed() = false after Close")
	}
	if err := s.Ping(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping after close = %v, want ErrClosed", err)
	}
}
