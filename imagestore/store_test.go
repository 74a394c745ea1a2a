package imagestore

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"

	"github.com/use-agent/shopscrape/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00\x1f\x15\xc4\x89")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func itemWithImage(src string) models.Item {
	return models.Item{Title: "Kibble", Price: "$10", DeliveryPrice: models.NotAvailable, URL: models.NotAvailable, ImageURL: &src}
}

func newMockedFetcher(t *testing.T) *HTTPFetcher {
	t.Helper()
	f, err := NewHTTPFetcher("", 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	httpmock.ActivateNonDefault(f.Client())
	t.Cleanup(httpmock.DeactivateAndReset)
	return f
}

func TestSave_DataURI(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil, quietLogger())

	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)
	got, err := s.Save(context.Background(), "cat food", 0, itemWithImage(uri))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	want := filepath.Join(dir, "cat_food", "01.png")
	if got.SavedImagePath == nil || *got.SavedImagePath != want {
		t.Fatalf("SavedImagePath = %v, want %s", got.SavedImagePath, want)
	}
	if data, _ := os.ReadFile(want); string(data) != string(pngBytes) {
		t.Error("written bytes differ")
	}
}

func TestSave_DotQueriesStayInsideDir(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "images")
	s := New(dir, nil, quietLogger())
	uri := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes)

	tests := []struct {
		query string
		want  string
	}{
		{"..", filepath.Join(dir, "query", "01.png")},
		{".", filepath.Join(dir, "query", "01.png")},
		{"../etc", filepath.Join(dir, "_etc", "01.png")},
		{"...hidden", filepath.Join(dir, "hidden", "01.png")},
		{"v1.2 cable", filepath.Join(dir, "v1.2_cable", "01.png")},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := s.Save(context.Background(), tt.query, 0, itemWithImage(uri))
			if err != nil {
				t.Fatalf("Save: %v", err)
			}
			if got.SavedImagePath == nil || *got.SavedImagePath != tt.want {
				t.Fatalf("SavedImagePath = %v, want %s", got.SavedImagePath, tt.want)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(root, "01.png")); !os.IsNotExist(err) {
		t.Errorf("image written outside the image dir: %v", err)
	}
}

func TestSave_RemoteImage(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://encrypted-tbn0.gstatic.com/shopping?q=tbn:abc",
		func(req *http.Request) (*http.Response, error) {
			if req.Header.Get("User-Agent") == "" {
				t.Error("missing user agent")
			}
			return httpmock.NewBytesResponse(http.StatusOK, pngBytes), nil
		})

	dir := t.TempDir()
	s := New(dir, f, quietLogger())
	got, err := s.Save(context.Background(), "dog toys", 2, itemWithImage("https://encrypted-tbn0.gstatic.com/shopping?q=tbn:abc"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got.SavedImagePath == nil || *got.SavedImagePath != filepath.Join(dir, "dog_toys", "03.png") {
		t.Fatalf("SavedImagePath = %v", got.SavedImagePath)
	}
}

func TestSave_RejectsNonImage(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/x.png",
		httpmock.NewStringResponder(http.StatusOK, "<html><body>not an image</body></html>"))

	s := New(t.TempDir(), f, quietLogger())
	got, err := s.Save(context.Background(), "q", 0, itemWithImage("https://example.com/x.png"))
	if !errors.Is(err, ErrNotImage) {
		t.Fatalf("err = %v, want ErrNotImage", err)
	}
	if got.SavedImagePath != nil {
		t.Error("SavedImagePath set on failure")
	}
}

func TestSave_HTTPError(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/gone.png",
		httpmock.NewStringResponder(http.StatusNotFound, ""))

	s := New(t.TempDir(), f, quietLogger())
	if _, err := s.Save(context.Background(), "q", 0, itemWithImage("https://example.com/gone.png")); err == nil {
		t.Fatal("expected error for 404")
	}
}

func TestSave_NoImage(t *testing.T) {
	s := New(t.TempDir(), nil, quietLogger())
	item := models.Item{Title: "t", Price: "$1"}
	got, err := s.Save(context.Background(), "q", 0, item)
	if err != nil || got.SavedImagePath != nil {
		t.Fatalf("Save = %v, %v", got.SavedImagePath, err)
	}
}

func TestSaveAll_ContinuesPastFailures(t *testing.T) {
	f := newMockedFetcher(t)
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/ok.png",
		httpmock.NewBytesResponder(http.StatusOK, pngBytes))
	httpmock.RegisterResponder(http.MethodGet, "https://example.com/bad.png",
		httpmock.NewStringResponder(http.StatusInternalServerError, ""))

	s := New(t.TempDir(), f, quietLogger())
	items := []models.Item{
		itemWithImage("https://example.com/bad.png"),
		itemWithImage("https://example.com/ok.png"),
	}
	out := s.SaveAll(context.Background(), "q", items)
	if len(out) != 2 {
		t.Fatalf("got %d items", len(out))
	}
	if out[0].SavedImagePath != nil {
		t.Error("failed download should leave path unset")
	}
	if out[1].SavedImagePath == nil {
		t.Error("successful download should set path")
	}
}

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{"base64", "data:image/gif;base64,R0lGODlh", "GIF89a", false},
		{"unpadded", "data:image/gif;base64,R0lGODlhAQ", "GIF89a\x01", false},
		{"percent", "data:image/svg+xml,%3Csvg%3E", "<svg>", false},
		{"no comma", "data:image/png;base64", "", true},
		{"bad base64", "data:image/png;base64,!!!", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeDataURI(tt.uri)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && string(got) != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNewHTTPFetcher_ProxySchemes(t *testing.T) {
	for _, p := range []string{"", "http://127.0.0.1:8080", "socks5://127.0.0.1:1080"} {
		if _, err := NewHTTPFetcher(p, 0); err != nil {
			t.Errorf("NewHTTPFetcher(%q): %v", p, err)
		}
	}
	if _, err := NewHTTPFetcher("ftp://127.0.0.1", 0); err == nil {
		t.Error("expected error for unsupported scheme")
	}
}
