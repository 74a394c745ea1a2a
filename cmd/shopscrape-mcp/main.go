package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/use-agent/shopscrape/models"
)

func main() {
	apiURL := os.Getenv("SHOPSCRAPE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SHOPSCRAPE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SHOPSCRAPE_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"shopscrape",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	searchTool := mcp.NewTool("shopping_search",
		mcp.WithDescription("Search Google Shopping for a product query and return the top listings with title, price, delivery price, rating, link and image."),
		mcp.WithString("query",
			mcp.Required(),
			mcp.Description("The product search query, e.g. 'cat food'"),
		),
		mcp.WithBoolean("save_images",
			mcp.Description("Download listing images on the server and report their paths"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result younger than this many milliseconds (0 disables the cache)"),
		),
	)
	s.AddTool(searchTool, handleShoppingSearch(apiURL, apiKey))

	batchTool := mcp.NewTool("shopping_batch",
		mcp.WithDescription("Search Google Shopping for several queries one after another and return the listings for each. Slow: every query takes tens of seconds."),
		mcp.WithArray("queries",
			mcp.Required(),
			mcp.Description("List of product search queries"),
		),
	)
	s.AddTool(batchTool, handleShoppingBatch(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

// apiDo sends a request to the shopscrape API and returns the response body.
func apiDo(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload interface{}) ([]byte, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", apiKey)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	return io.ReadAll(resp.Body)
}

// pollBatch polls a batch until its status is no longer "processing" or
// the context is cancelled.
func pollBatch(ctx context.Context, client *http.Client, endpoint, apiKey string) (*models.BatchStatusResponse, error) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
			body, err := apiDo(ctx, client, http.MethodGet, endpoint, apiKey, nil)
			if err != nil {
				return nil, err
			}
			var status models.BatchStatusResponse
			if err := json.Unmarshal(body, &status); err != nil {
				return nil, fmt.Errorf("parse poll status: %w", err)
			}
			if status.Status != "processing" {
				return &status, nil
			}
		}
	}
}

func handleShoppingSearch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 300 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := request.RequireString("query")
		if err != nil || strings.TrimSpace(query) == "" {
			return mcp.NewToolResultError("query is required"), nil
		}

		params := url.Values{}
		params.Set("query", query)
		if request.GetBool("save_images", false) {
			params.Set("save_images", "true")
		}
		if maxAge := request.GetInt("max_age", 0); maxAge > 0 {
			params.Set("max_age", strconv.Itoa(maxAge))
		}

		body, err := apiDo(ctx, client, http.MethodGet, apiURL+"/api/v1/scrape?"+params.Encode(), apiKey, nil)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		var errResp models.ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != nil {
			return mcp.NewToolResultError(fmt.Sprintf("[%s] %s", errResp.Error.Code, errResp.Error.Message)), nil
		}

		var resp models.ShoppingResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}
		return mcp.NewToolResultText(formatResponse(&resp)), nil
	}
}

func handleShoppingBatch(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 30 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		queries, err := request.RequireStringSlice("queries")
		if err != nil || len(queries) == 0 {
			return mcp.NewToolResultError("queries is required and must be a non-empty array of strings"), nil
		}

		body, err := apiDo(ctx, client, http.MethodPost, apiURL+"/api/v1/batch", apiKey, models.BatchRequest{Queries: queries})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("batch request failed: %v", err)), nil
		}
		var created models.BatchResponse
		if err := json.Unmarshal(body, &created); err != nil || created.ID == "" {
			return mcp.NewToolResultError(fmt.Sprintf("batch job creation failed: %s", body)), nil
		}

		status, err := pollBatch(ctx, client, apiURL+"/api/v1/batch/"+created.ID, apiKey)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("polling batch job failed: %v", err)), nil
		}

		var sb strings.Builder
		fmt.Fprintf(&sb, "Batch %s: %s (%d/%d completed)\n\n", status.ID, status.Status, status.Completed, status.Total)
		for _, r := range status.Results {
			if r.Error != nil {
				fmt.Fprintf(&sb, "--- %s: FAILED [%s] %s ---\n\n", r.Query, r.Error.Code, r.Error.Message)
				continue
			}
			if r.Response != nil {
				sb.WriteString(formatResponse(r.Response))
				sb.WriteString("\n")
			}
		}
		return mcp.NewToolResultText(sb.String()), nil
	}
}

func formatResponse(resp *models.ShoppingResponse) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s: %d items (scraped %s) ---\n", resp.Query, resp.TotalItems, resp.ScrapedAt)
	for i, it := range resp.Items {
		fmt.Fprintf(&sb, "%d. %s\n   Price: %s | Delivery: %s", i+1, it.Title, it.Price, it.DeliveryPrice)
		if it.Review != nil {
			fmt.Fprintf(&sb, " | Rating: %s", *it.Review)
		}
		fmt.Fprintf(&sb, "\n   URL: %s\n", it.URL)
		if it.ImageURL != nil && !strings.HasPrefix(*it.ImageURL, "data:") {
			fmt.Fprintf(&sb, "   Image: %s\n", *it.ImageURL)
		}
		if it.SavedImagePath != nil {
			fmt.Fprintf(&sb, "   Saved image: %s\n", *it.SavedImagePath)
		}
	}
	return sb.String()
}
