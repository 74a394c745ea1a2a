package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/shopscrape/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.ShoppingResponse
	createdAt time.Time
}

// Cache is an in-memory LRU cache for shopping responses with a hard TTL.
// It is safe for concurrent use.
type Cache struct {
	lru *expirable.LRU[string, entry]
	now func() time.Time
}

// New creates a Cache holding at most maxEntries responses, each evicted
// ttl after it was stored.
func New(maxEntries int, ttl time.Duration) *Cache {
	return &Cache{
		lru: expirable.NewLRU[string, entry](maxEntries, nil, ttl),
		now: time.Now,
	}
}

// Key generates a cache key from the query and the settings that change
// what the page returns.
func Key(query, proxy string, headless, saveImages bool) string {
	h := sha256.New()
	h.Write([]byte(query))
	h.Write([]byte("|"))
	h.Write([]byte(proxy))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(headless)))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(saveImages)))
	return hex.EncodeToString(h.Sum(nil))
}

// Get retrieves a cached response if it exists and is younger than maxAge.
// maxAge is in milliseconds. If maxAge <= 0, no cache lookup is performed.
// The returned response is a copy and may be modified by the caller.
func (c *Cache) Get(key string, maxAgeMs int) (*models.ShoppingResponse, bool) {
	if maxAgeMs <= 0 {
		return nil, false
	}

	e, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}

	maxAge := time.Duration(maxAgeMs) * time.Millisecond
	if c.now().Sub(e.createdAt) > maxAge {
		return nil, false
	}

	resp := e.response
	resp.Items = append([]models.Item(nil), e.response.Items...)
	return &resp, true
}

// Set stores a copy of resp. The least recently used entry is evicted when
// the cache is full.
func (c *Cache) Set(key string, resp *models.ShoppingResponse) {
	stored := *resp
	stored.Items = append([]models.Item(nil), resp.Items...)
	stored.CacheStatus = ""
	c.lru.Add(key, entry{response: stored, createdAt: c.now()})
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
