package llm

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// responseCache is a bounded TTL cache for multiplexer responses. Identical
// requests within the TTL are served without touching a provider.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]cacheEntry
}

type cacheEntry struct {
	resp    Response
	expires time.Time
}

func newResponseCache(ttl time.Duration, max int) *responseCache {
	if max <= 0 {
		max = 256
	}
	return &responseCache{
		ttl:     ttl,
		max:     max,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) (Response, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return Response{}, false
	}
	if time.Now().After(entry.expires) {
		delete(c.entries, key)
		return Response{}, false
	}
	return entry.resp, true
}

func (c *responseCache) put(key string, resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if len(c.entries) >= c.max {
		c.evictLocked(now)
	}
	c.entries[key] = cacheEntry{resp: resp, expires: now.Add(c.ttl)}
}

// evictLocked drops expired entries, then the soonest-expiring one if the
// cache is still full.
func (c *responseCache) evictLocked(now time.Time) {
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.max {
		return
	}
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expires.Before(oldest) {
			oldestKey = k
			oldest = e.expires
		}
	}
	delete(c.entries, oldestKey)
}

func (c *responseCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cacheKey hashes the fields of a request that determine its response.
func cacheKey(req *ChatRequest) string {
	canonical := struct {
		Provider     string    `json:"provider"`
		Model        string    `json:"model"`
		SystemPrompt string    `json:"system_prompt"`
		Messages     []Message `json:"messages"`
		MaxTokens    int       `json:"max_tokens"`
		Temperature  float64   `json:"temperature"`
	}{
		Provider:     req.Provider,
		Model:        req.Model,
		SystemPrompt: req.SystemPrompt,
		Messages:     req.Messages,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
	}
	data, err := json.Marshal(canonical)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
