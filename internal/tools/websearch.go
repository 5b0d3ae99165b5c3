package tools

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"
)

// WebSearchTool searches the web through the Tavily API.
type WebSearchTool struct {
	apiKey     string
	endpoint   string
	httpClient *http.Client

	cacheMu sync.RWMutex
	cache   map[string]searchCacheEntry

	dangerousPatterns []*regexp.Regexp
}

type searchCacheEntry struct {
	response  *tavilyResponse
	expiresAt time.Time
}

const (
	searchCacheTTL    = 5 * time.Minute
	searchCacheMax    = 100
	maxQueryLength    = 500
	tavilyEndpoint    = "https://api.tavily.com/search"
	defaultSearchHits = 5
)

// WebSearchOption configures the WebSearchTool.
type WebSearchOption func(*WebSearchTool)

// WithAPIKey sets the Tavily API key.
func WithAPIKey(key string) WebSearchOption {
	return func(w *WebSearchTool) { w.apiKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) WebSearchOption {
	return func(w *WebSearchTool) { w.httpClient = client }
}

// WithEndpoint overrides the search API endpoint, used in tests.
func WithEndpoint(endpoint string) WebSearchOption {
	return func(w *WebSearchTool) { w.endpoint = endpoint }
}

// NewWebSearchTool creates the web search tool.
func NewWebSearchTool(opts ...WebSearchOption) *WebSearchTool {
	w := &WebSearchTool{
		endpoint:   tavilyEndpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cache:      make(map[string]searchCacheEntry),
	}
	w.compileDangerousPatterns()
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// compileDangerousPatterns compiles the sanitization patterns applied to
// fetched content before it reaches an LLM prompt.
func (w *WebSearchTool) compileDangerousPatterns() {
	patterns := []string{
		`<script[^>]*>.*?</script>`,
		`javascript:`,
		`on\w+\s*=`,
		`data:\s*text/html`,
		"\x00",
		`<iframe[^>]*>`,
		`<object[^>]*>`,
		`<embed[^>]*>`,
	}
	for _, p := range patterns {
		if re, err := regexp.Compile("(?is)" + p); err == nil {
			w.dangerousPatterns = append(w.dangerousPatterns, re)
		}
	}
}

func (w *WebSearchTool) Name() string { return "web_search" }

func (w *WebSearchTool) Description() string {
	return "Search the web for current information; input {query, max_results?}"
}

func (w *WebSearchTool) Risk() RiskLevel { return RiskMedium }

// Execute runs a search. Input: {"query": string, "max_results": number?}.
func (w *WebSearchTool) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	query, _ := input["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}
	if len(query) > maxQueryLength {
		return nil, fmt.Errorf("search query too long (max %d characters)", maxQueryLength)
	}
	if w.apiKey == "" {
		return nil, fmt.Errorf("web search API key not configured")
	}

	maxResults := defaultSearchHits
	if mr, ok := input["max_results"].(float64); ok && mr > 0 {
		maxResults = int(mr)
	}
	if mr, ok := input["max_results"].(int); ok && mr > 0 {
		maxResults = mr
	}

	key := w.cacheKey(query, maxResults)
	if cached := w.cacheGet(key); cached != nil {
		return w.formatResult(cached, start, true), nil
	}

	resp, err := w.search(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	w.cachePut(key, resp)
	return w.formatResult(resp, start, false), nil
}

func (w *WebSearchTool) search(ctx context.Context, query string, maxResults int) (*tavilyResponse, error) {
	body, err := json.Marshal(tavilyRequest{
		APIKey:        w.apiKey,
		Query:         query,
		SearchDepth:   "basic",
		MaxResults:    maxResults,
		IncludeAnswer: true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", w.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search API returned status %d", resp.StatusCode)
	}

	var parsed tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return &parsed, nil
}

func (w *WebSearchTool) formatResult(resp *tavilyResponse, start time.Time, fromCache bool) *Result {
	results := make([]map[string]any, 0, len(resp.Results))
	for _, r := range resp.Results {
		results = append(results, map[string]any{
			"title":   w.sanitize(r.Title),
			"url":     r.URL,
			"content": w.sanitize(r.Content),
			"score":   r.Score,
		})
	}
	return &Result{
		Success: true,
		Data: map[string]any{
			"answer":     w.sanitize(resp.Answer),
			"results":    results,
			"from_cache": fromCache,
		},
		ExecutionTime: time.Since(start),
	}
}

// sanitize strips markup that could smuggle instructions into a prompt.
func (w *WebSearchTool) sanitize(s string) string {
	for _, re := range w.dangerousPatterns {
		s = re.ReplaceAllString(s, "")
	}
	return s
}

func (w *WebSearchTool) cacheKey(query string, maxResults int) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", strings.ToLower(query), maxResults)))
	return hex.EncodeToString(sum[:])
}

func (w *WebSearchTool) cacheGet(key string) *tavilyResponse {
	w.cacheMu.RLock()
	defer w.cacheMu.RUnlock()
	entry, ok := w.cache[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return nil
	}
	return entry.response
}

func (w *WebSearchTool) cachePut(key string, resp *tavilyResponse) {
	w.cacheMu.Lock()
	defer w.cacheMu.Unlock()
	if len(w.cache) >= searchCacheMax {
		now := time.Now()
		for k, e := range w.cache {
			if now.After(e.expiresAt) {
				delete(w.cache, k)
			}
		}
		for k := range w.cache {
			if len(w.cache) < searchCacheMax {
				break
			}
			delete(w.cache, k)
		}
	}
	w.cache[key] = searchCacheEntry{response: resp, expiresAt: time.Now().Add(searchCacheTTL)}
}

// Tavily API types
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	MaxResults    int    `json:"max_results"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResponse struct {
	Answer  string         `json:"answer"`
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}
