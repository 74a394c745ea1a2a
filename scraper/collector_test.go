package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/use-agent/shopscrape/browser"
	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

func newTestCollector(clock Clock) *Collector {
	sel := config.DefaultSelectors()
	logger := discardLogger()
	return NewCollector(sel, NewExtractor(sel, logger, nil), testPacer(clock), logger)
}

func titles(items []models.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

func TestCollect_StopsAtTargetInOrder(t *testing.T) {
	cards := make([]string, 0, 8)
	for i := 1; i <= 8; i++ {
		cards = append(cards, simpleCard(i))
	}
	p := resultsPage(t, cards...)

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Product 1", "Product 2", "Product 3", "Product 4", "Product 5"}
	if fmt.Sprint(titles(items)) != fmt.Sprint(want) {
		t.Fatalf("titles = %v, want %v", titles(items), want)
	}
	if len(p.Actions) != 0 {
		t.Errorf("should not scroll once the target is met, actions = %v", p.Actions)
	}
}

func TestCollect_DedupAcrossScrollSteps(t *testing.T) {
	p := resultsPage(t, simpleCard(1), simpleCard(1), simpleCard(2))
	p.Height = 100000

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 3)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(items); fmt.Sprint(got) != "[Product 1 Product 2]" {
		t.Fatalf("titles = %v", got)
	}
	if p.ScrollY() == 0 {
		t.Error("expected the collector to scroll looking for more")
	}
}

func TestCollect_DedupByTextWithoutTrackingID(t *testing.T) {
	same := card(cardOpts{title: "Kibble", price: "$5"})
	p := resultsPage(t, same, same, card(cardOpts{title: "Treats", price: "$2"}))

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(items); fmt.Sprint(got) != "[Kibble Treats]" {
		t.Fatalf("titles = %v", got)
	}
}

func TestCollect_ScrollRevealsMore(t *testing.T) {
	p := resultsPage(t, simpleCard(1), simpleCard(2))
	p.Viewport = 900
	p.Height = 10000
	next := 3
	p.OnScroll = func(doc *goquery.Document, y int) {
		doc.Find(".grid").AppendHtml(simpleCard(next) + simpleCard(next+1))
		next += 2
	}

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 5 {
		t.Fatalf("got %d items, want 5", len(items))
	}
	if items[4].Title != "Product 5" {
		t.Errorf("last item = %q, want Product 5", items[4].Title)
	}
	if y := p.ScrollY(); y < 2*(300-50) || y > 2*(300+50) {
		t.Errorf("scroll offset after two steps = %d, want within 2*(300±50)", y)
	}
}

func TestCollect_StopsAtEndOfPage(t *testing.T) {
	p := resultsPage(t, card(cardOpts{title: "No price here", price: ""}))
	p.Viewport = 900
	p.Height = 200

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 0 {
		t.Fatalf("got %d items, want 0", len(items))
	}
	if len(p.Actions) != 1 {
		t.Errorf("expected exactly one scroll before reaching the end, got %v", p.Actions)
	}
}

func TestCollect_FallbackCap(t *testing.T) {
	cards := make([]string, 0, 20)
	for i := 1; i <= 14; i++ {
		cards = append(cards, card(cardOpts{id: fmt.Sprintf("bad-%d", i), title: fmt.Sprintf("Broken %d", i), price: ""}))
	}
	for i := 15; i <= 20; i++ {
		cards = append(cards, simpleCard(i))
	}
	p := resultsPage(t, cards...)

	// No scroll steps: go straight to the single pass.
	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(items); fmt.Sprint(got) != "[Product 15]" {
		t.Fatalf("fallback should only consider the first 15 containers, got %v", got)
	}
}

func TestCollect_FallbackAfterFailedLookups(t *testing.T) {
	p := &erroringPage{StaticPage: resultsPage(t, simpleCard(1), simpleCard(2)), failTitles: 2}
	p.Height = 100000

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 2)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(items); fmt.Sprint(got) != "[Product 1 Product 2]" {
		t.Fatalf("titles = %v", got)
	}
}

func TestCollect_FallbackLookupError(t *testing.T) {
	p := &erroringPage{StaticPage: resultsPage(t, simpleCard(1)), failTitles: 100}

	if _, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 1); err == nil {
		t.Fatal("expected error when titles cannot be listed at all")
	}
}

func TestCollect_ContainerBeyondAscendLimit(t *testing.T) {
	deep := `<div class="card" data-hveid="deep"><span class="lmQWe">$1</span>` +
		`<div><div><div><div><div><span class="gkQHve SsM98d RmEs5b">Too deep</span></div></div></div></div></div></div>`
	p := resultsPage(t, deep, simpleCard(1))

	items, err := newTestCollector(newFakeClock()).Collect(context.Background(), p, 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if got := titles(items); fmt.Sprint(got) != "[Product 1]" {
		t.Fatalf("titles = %v", got)
	}
}

func TestCollect_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := resultsPage(t, simpleCard(1))

	_, err := newTestCollector(newFakeClock()).Collect(ctx, p, 5, 10)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

var _ browser.Page = (*erroringPage)(nil)
