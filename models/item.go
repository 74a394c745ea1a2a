package models

// Sentinel for optional text fields that were not found on the page.
const NotAvailable = "N/A"

// Item is one product listing extracted from a shopping results page.
//
// Title and Price are always non-empty. Every other field is best-effort.
// SavedImagePath is never set by the scraper itself; it is populated by an
// image persistence collaborator after the fact.
type Item struct {
	Title          string  `json:"title"`
	Price          string  `json:"price"`
	DeliveryPrice  string  `json:"delivery_price"`
	Review         *string `json:"review"`
	URL            string  `json:"url"`
	ImageURL       *string `json:"image_url"`
	SavedImagePath *string `json:"saved_image_path"`
}

// Valid reports whether the mandatory fields are present.
func (it Item) Valid() bool {
	return it.Title != "" && it.Price != ""
}

// WithSavedImagePath returns a copy of the item with SavedImagePath set.
func (it Item) WithSavedImagePath(path string) Item {
	it.SavedImagePath = &path
	return it
}
