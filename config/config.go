package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Scraper   ScraperConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	Log       LogConfig
	Debug     DebugConfig
	Images    ImageConfig
	Queue     QueueConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Chromium session.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// DefaultProxy is the default proxy URL for all scrapes.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// KeepBrowserOpen reuses one session across scrapes.
	KeepBrowserOpen bool // default: false

	// UserAgents overrides the built-in user agent pool.
	UserAgents []string

	// BlockResources lists resource types the page never loads,
	// e.g. "Font,Media".
	BlockResources []string

	// BlockTrackers fails requests to ad and analytics hosts.
	BlockTrackers bool // default: false
}

// ScraperConfig controls the extraction engine.
type ScraperConfig struct {
	// MaxRetries is the number of attempts per query.
	MaxRetries int // default: 3

	// TargetCount is the number of items collected per query.
	TargetCount int // default: 5

	// MaxScrollSteps bounds the incremental scroll loop.
	MaxScrollSteps int // default: 10

	// ReadyTimeout bounds the wait for result markers.
	ReadyTimeout time.Duration // default: 10s

	// FastMode scales every human-like pause by FastScale.
	FastMode bool // default: false

	// FastScale is the pacing multiplier used in fast mode.
	FastScale float64 // default: 0.3

	// SearchURL is the search page prefix; the escaped query is appended.
	SearchURL string // default: "https://www.google.com/search?tbm=shop&hl=en&q="

	// SelectorsFile is an optional TOML file overriding the selector table.
	SelectorsFile string
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: true

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 1

	// Burst is the maximum burst size per API key.
	Burst int // default: 3
}

// CacheConfig controls the scrape response cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached responses.
	MaxEntries int // default: 256

	// TTL is the hard expiry of a cached response.
	TTL time.Duration // default: 1h
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// DebugConfig controls rendered-page capture.
type DebugConfig struct {
	// SaveHTML writes the rendered page of every attempt to Dir.
	SaveHTML bool // default: false

	// Dir is the directory for captured pages.
	Dir string // default: "debug"
}

// ImageConfig controls image persistence.
type ImageConfig struct {
	// Dir is the directory saved images are written to.
	Dir string // default: "images"

	// FetchTimeout bounds a single remote image download.
	FetchTimeout time.Duration // default: 10s
}

// QueueConfig controls the serial job queue in front of the engine.
type QueueConfig struct {
	// Capacity is the number of pending jobs accepted before rejecting.
	Capacity int // default: 32

	// BatchTTL is how long finished batch results are kept.
	BatchTTL time.Duration // default: 1h
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("SHOPSCRAPE_HOST", "0.0.0.0"),
			Port: envIntOr("SHOPSCRAPE_PORT", 8080),
			Mode: envOr("SHOPSCRAPE_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:        envBoolOr("SHOPSCRAPE_HEADLESS", true),
			DefaultProxy:    os.Getenv("SHOPSCRAPE_PROXY"),
			NoSandbox:       envBoolOr("SHOPSCRAPE_NO_SANDBOX", false),
			BrowserBin:      os.Getenv("SHOPSCRAPE_BROWSER_BIN"),
			KeepBrowserOpen: envBoolOr("SHOPSCRAPE_KEEP_BROWSER_OPEN", false),
			UserAgents:      envSliceOr("SHOPSCRAPE_USER_AGENTS", nil),
			BlockResources:  envSliceOr("SHOPSCRAPE_BLOCK_RESOURCES", nil),
			BlockTrackers:   envBoolOr("SHOPSCRAPE_BLOCK_TRACKERS", false),
		},
		Scraper: ScraperConfig{
			MaxRetries:     envIntOr("SHOPSCRAPE_MAX_RETRIES", 3),
			TargetCount:    envIntOr("SHOPSCRAPE_TARGET_COUNT", 5),
			MaxScrollSteps: envIntOr("SHOPSCRAPE_MAX_SCROLL_STEPS", 10),
			ReadyTimeout:   envDurationOr("SHOPSCRAPE_READY_TIMEOUT", 10*time.Second),
			FastMode:       envBoolOr("SHOPSCRAPE_FAST_MODE", false),
			FastScale:      envFloatOr("SHOPSCRAPE_FAST_SCALE", 0.3),
			SearchURL:      envOr("SHOPSCRAPE_SEARCH_URL", DefaultSearchURL),
			SelectorsFile:  os.Getenv("SHOPSCRAPE_SELECTORS_FILE"),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("SHOPSCRAPE_AUTH_ENABLED", true),
			APIKeys: envSliceOr("SHOPSCRAPE_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("SHOPSCRAPE_RATE_RPS", 1.0),
			Burst:             envIntOr("SHOPSCRAPE_RATE_BURST", 3),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("SHOPSCRAPE_CACHE_MAX_ENTRIES", 256),
			TTL:        envDurationOr("SHOPSCRAPE_CACHE_TTL", time.Hour),
		},
		Log: LogConfig{
			Level:  envOr("SHOPSCRAPE_LOG_LEVEL", "info"),
			Format: envOr("SHOPSCRAPE_LOG_FORMAT", "json"),
		},
		Debug: DebugConfig{
			SaveHTML: envBoolOr("SHOPSCRAPE_DEBUG_HTML", false),
			Dir:      envOr("SHOPSCRAPE_DEBUG_DIR", "debug"),
		},
		Images: ImageConfig{
			Dir:          envOr("SHOPSCRAPE_IMAGE_DIR", "images"),
			FetchTimeout: envDurationOr("SHOPSCRAPE_IMAGE_TIMEOUT", 10*time.Second),
		},
		Queue: QueueConfig{
			Capacity: envIntOr("SHOPSCRAPE_QUEUE_CAPACITY", 32),
			BatchTTL: envDurationOr("SHOPSCRAPE_BATCH_TTL", time.Hour),
		},
	}
}

// DefaultSearchURL is the shopping results page prefix.
const DefaultSearchURL = "https://www.google.com/search?tbm=shop&hl=en&q="

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be in 1..65535, got %d", c.Server.Port)
	}
	if c.Scraper.MaxRetries < 1 {
		return errors.New("max retries must be at least 1")
	}
	if c.Scraper.TargetCount < 1 {
		return errors.New("target count must be at least 1")
	}
	if c.Scraper.MaxScrollSteps < 0 {
		return errors.New("max scroll steps must not be negative")
	}
	if c.Scraper.ReadyTimeout <= 0 {
		return errors.New("ready timeout must be positive")
	}
	if c.Scraper.FastScale <= 0 || c.Scraper.FastScale > 1 {
		return fmt.Errorf("fast scale must be in (0, 1], got %v", c.Scraper.FastScale)
	}
	u, err := url.Parse(c.Scraper.SearchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("search URL %q is not an absolute URL", c.Scraper.SearchURL)
	}
	if c.Browser.DefaultProxy != "" {
		if p, err := url.Parse(c.Browser.DefaultProxy); err != nil || p.Host == "" {
			return fmt.Errorf("proxy %q is not a valid URL", c.Browser.DefaultProxy)
		}
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return errors.New("rate limit must have positive rps and burst")
	}
	if c.Cache.MaxEntries < 1 {
		return errors.New("cache max entries must be at least 1")
	}
	if c.Queue.Capacity < 1 {
		return errors.New("queue capacity must be at least 1")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text, got %q", c.Log.Format)
	}
	return nil
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
