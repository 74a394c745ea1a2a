package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/use-agent/shopscrape/models"
	"github.com/use-agent/shopscrape/scraper"
)

// maxURLPreview is how much of an image URL the summary prints.
const maxURLPreview = 100

func outputFilename(query string) string {
	return "shopping_results_" + scraper.QuerySlug(query) + ".json"
}

// writeResults writes resp as indented JSON without escaping non-ASCII or
// HTML characters.
func writeResults(path string, resp *models.ShoppingResponse) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(resp); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func printSummary(w io.Writer, resp *models.ShoppingResponse, path string) {
	fmt.Fprintf(w, "\n=== SCRAPING RESULTS ===\n")
	fmt.Fprintf(w, "Query: %s\n", resp.Query)
	fmt.Fprintf(w, "Items found: %d\n", resp.TotalItems)
	fmt.Fprintf(w, "JSON file: %s\n", path)

	fmt.Fprintf(w, "\n=== ALL RESULTS ===\n")
	for i, item := range resp.Items {
		fmt.Fprintf(w, "\n%d. %s\n", i+1, item.Title)
		fmt.Fprintf(w, "   Price: %s\n", item.Price)
		fmt.Fprintf(w, "   Image URL: %s\n", previewURL(item.ImageURL))
		if item.SavedImagePath != nil {
			fmt.Fprintf(w, "   Saved image: %s\n", *item.SavedImagePath)
		}
	}
}

func previewURL(u *string) string {
	if u == nil || *u == "" {
		return models.NotAvailable
	}
	if len(*u) > maxURLPreview {
		return (*u)[:maxURLPreview] + "..."
	}
	return *u
}
