package scraper

import (
	"testing"

	"github.com/use-agent/shopscrape/config"
	"github.com/use-agent/shopscrape/models"
)

func newTestExtractor() *Extractor {
	return NewExtractor(config.DefaultSelectors(), discardLogger(), nil)
}

func extractCard(t *testing.T, html string) (models.Item, bool) {
	t.Helper()
	p := resultsPage(t, html)
	return newTestExtractor().Extract(firstContainer(t, p))
}

func TestExtract_MandatoryFields(t *testing.T) {
	tests := []struct {
		name      string
		card      cardOpts
		wantOK    bool
		wantPrice string
	}{
		{"title and price", cardOpts{title: "Kibble", price: "$12.50"}, true, "$12.50"},
		{"blank title", cardOpts{title: "   ", price: "$12.50"}, false, ""},
		{"blank price no label", cardOpts{title: "Kibble", price: ""}, false, ""},
		{"price from aria label", cardOpts{title: "Kibble", aria: "Current price: ₹24.50"}, true, "₹24.50"},
		{"aria label without price word", cardOpts{title: "Kibble", aria: "Was ₹24.50"}, false, ""},
		{"aria label without amount", cardOpts{title: "Kibble", aria: "Price unavailable"}, false, ""},
		{"thousands separator", cardOpts{title: "TV", aria: "Price $1,299.00 now"}, true, "$1,299.00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := extractCard(t, card(tt.card))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v (item %+v)", ok, tt.wantOK, item)
			}
			if !ok {
				return
			}
			if item.Price != tt.wantPrice {
				t.Errorf("Price = %q, want %q", item.Price, tt.wantPrice)
			}
			if !item.Valid() {
				t.Errorf("emitted item is not valid: %+v", item)
			}
		})
	}
}

func TestExtract_MissingTitleElement(t *testing.T) {
	p := resultsPage(t, `<div class="card"><span class="lmQWe">$3</span></div>`)
	if _, ok := newTestExtractor().Extract(firstContainer(t, p)); ok {
		t.Fatal("container without title should be rejected")
	}
}

func TestExtract_Defaults(t *testing.T) {
	item, ok := extractCard(t, card(cardOpts{title: "  Kibble  ", price: " $5 "}))
	if !ok {
		t.Fatal("expected item")
	}
	if item.Title != "Kibble" || item.Price != "$5" {
		t.Errorf("fields not trimmed: %+v", item)
	}
	if item.DeliveryPrice != models.NotAvailable {
		t.Errorf("DeliveryPrice = %q, want N/A", item.DeliveryPrice)
	}
	if item.URL != models.NotAvailable {
		t.Errorf("URL = %q, want N/A", item.URL)
	}
	if item.Review != nil || item.ImageURL != nil || item.SavedImagePath != nil {
		t.Errorf("optional pointers should be nil: %+v", item)
	}
}

func TestExtract_OptionalFields(t *testing.T) {
	item, ok := extractCard(t, card(cardOpts{
		title:    "Kibble",
		price:    "$5",
		delivery: "Free delivery",
		review:   "4.5",
		href:     "https://shop.example/p/1",
	}))
	if !ok {
		t.Fatal("expected item")
	}
	if item.DeliveryPrice != "Free delivery" {
		t.Errorf("DeliveryPrice = %q", item.DeliveryPrice)
	}
	if item.Review == nil || *item.Review != "4.5" {
		t.Errorf("Review = %v", item.Review)
	}
	if item.URL != "https://shop.example/p/1" {
		t.Errorf("URL = %q", item.URL)
	}
}

func TestExtract_ReviewFilter(t *testing.T) {
	tests := []struct {
		review string
		want   bool
	}{
		{"4.5", true},
		{"5", true},
		{"Bestseller", false},
		{"4.5.1", false},
		{"4,5", false},
		{".", false},
	}
	for _, tt := range tests {
		t.Run(tt.review, func(t *testing.T) {
			item, ok := extractCard(t, card(cardOpts{title: "Kibble", price: "$5", review: tt.review}))
			if !ok {
				t.Fatal("expected item")
			}
			if got := item.Review != nil; got != tt.want {
				t.Errorf("review kept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExtract_ImagePriority(t *testing.T) {
	const (
		dataURI   = "data:image/jpeg;base64,/9j/4AAQ"
		marked    = "https://encrypted-tbn0.gstatic.com/shopping?q=tbn:ANd9Gc"
		thumb     = "https://encrypted-tbn1.gstatic.com/images?q=tbn:xyz"
		remote    = "https://cdn.shop.example/item.jpg"
		remoteBad = "https://cdn.shop.example/logo.png"
	)
	img := func(src string) string { return `<img src="` + src + `">` }

	tests := []struct {
		name string
		imgs []string
		want string
	}{
		{"data uri wins over everything", []string{img(remote), img(thumb), img(marked), img(dataURI)}, dataURI},
		{"marked thumbnail over plain thumbnail", []string{img(remote), img(thumb), img(marked)}, marked},
		{"plain thumbnail over remote", []string{img(remote), img(thumb)}, thumb},
		{"lazy thumbnail", []string{img(remote), `<img src="" data-src="` + thumb + `">`}, thumb},
		{"remote skips site chrome", []string{img(remoteBad), img(remote)}, remote},
		{"only site chrome", []string{img(remoteBad), img("/relative.png")}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			item, ok := extractCard(t, card(cardOpts{title: "Kibble", price: "$5", imgs: tt.imgs}))
			if !ok {
				t.Fatal("expected item")
			}
			got := ""
			if item.ImageURL != nil {
				got = *item.ImageURL
			}
			if got != tt.want {
				t.Errorf("ImageURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExtract_ImageFromAdjacentSibling(t *testing.T) {
	p := resultsPage(t,
		`<div class="media"><img src="https://encrypted-tbn2.gstatic.com/images?q=tbn:sib"></div>`+
			card(cardOpts{title: "Kibble", price: "$5"}),
	)
	item, ok := newTestExtractor().Extract(firstContainer(t, p))
	if !ok {
		t.Fatal("expected item")
	}
	if item.ImageURL == nil || *item.ImageURL != "https://encrypted-tbn2.gstatic.com/images?q=tbn:sib" {
		t.Errorf("ImageURL = %v", item.ImageURL)
	}
}

func TestExtract_ExcludedKeywordsIgnoreCase(t *testing.T) {
	sel := config.DefaultSelectors()
	sel.ExcludedImageKeywords = []string{"Logo", "SPRITE"}
	x := NewExtractor(sel, discardLogger(), nil)

	p := resultsPage(t, card(cardOpts{title: "Kibble", price: "$5", imgs: []string{
		`<img src="https://cdn.shop.example/Brand-LOGO.png">`,
		`<img src="https://cdn.shop.example/sprite-sheet.png">`,
		`<img src="https://cdn.shop.example/item.jpg">`,
	}}))
	item, ok := x.Extract(firstContainer(t, p))
	if !ok {
		t.Fatal("expected item")
	}
	if item.ImageURL == nil || *item.ImageURL != "https://cdn.shop.example/item.jpg" {
		t.Errorf("ImageURL = %v", item.ImageURL)
	}
}

func TestIsRating(t *testing.T) {
	for s, want := range map[string]bool{"4": true, "4.0": true, "": false, "4.": true, "a4": false, "4..5": false} {
		if got := isRating(s); got != want {
			t.Errorf("isRating(%q) = %v, want %v", s, got, want)
		}
	}
}
