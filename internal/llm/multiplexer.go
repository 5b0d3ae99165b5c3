package llm

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/mindforge-ai/mindforge/internal/metrics"
)

// Options configures the multiplexer.
type Options struct {
	// PrimaryProvider is tried first, or "auto" to take the first healthy
	// provider in fallback order.
	PrimaryProvider string

	// FallbackProviders is the ordered chain tried after the primary.
	FallbackProviders []string

	// MaxRetries is the retry budget per provider for retryable errors.
	MaxRetries int

	// RequestInterval is the minimum time between requests to one provider.
	RequestInterval time.Duration

	// CacheTTL enables the response cache when positive.
	CacheTTL time.Duration

	// CacheSize bounds the response cache.
	CacheSize int

	// HealthProbeInterval is how long a tripped provider stays benched
	// before a probe request is let through.
	HealthProbeInterval time.Duration

	// RetryBaseDelay seeds the exponential backoff. Defaults to 500ms.
	RetryBaseDelay time.Duration
}

// Response is the multiplexer's answer to a chat completion. It is always
// well-formed: when every provider fails, Success is false and ErrorKind
// carries the last classification. It never panics across the boundary.
type Response struct {
	Success      bool          `json:"success"`
	Content      string        `json:"content"`
	Usage        Usage         `json:"usage"`
	ErrorKind    ErrorKind     `json:"error_type,omitempty"`
	ErrorDetail  string        `json:"error_detail,omitempty"`
	Provider     string        `json:"provider,omitempty"`
	Model        string        `json:"model,omitempty"`
	ResponseTime time.Duration `json:"response_time"`
	FromCache    bool          `json:"from_cache,omitempty"`
}

// Usage carries token accounting for one response.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ProviderStats reports one provider's counters and health.
type ProviderStats struct {
	Requests int64 `json:"requests"`
	Failures int64 `json:"failures"`
	Healthy  bool  `json:"healthy"`
}

// Stats is the multiplexer stats snapshot.
type Stats struct {
	Providers     map[string]ProviderStats `json:"providers"`
	FallbackCount int64                    `json:"fallback_count"`
	CacheHits     int64                    `json:"cache_hits"`
	CacheEntries  int                      `json:"cache_entries"`
	Costs         map[string]ProviderCost  `json:"costs"`
}

// providerSlot wraps a provider with its breaker, rate bookkeeping and
// counters. The slot mutex guards lastRequest and the counters.
type providerSlot struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker

	mu          sync.Mutex
	lastRequest time.Time
	requests    int64
	failures    int64
}

// Multiplexer routes chat completions across registered providers with
// circuit-breaker health, ordered fallback, retry with jittered backoff,
// per-provider rate hygiene, response caching and cost accounting.
type Multiplexer struct {
	opts Options
	log  zerolog.Logger

	slotMu sync.RWMutex
	slots  map[string]*providerSlot
	order  []string

	cache *responseCache
	costs *costTracker

	rngMu sync.Mutex
	rng   *rand.Rand

	statMu        sync.Mutex
	fallbackCount int64
	cacheHits     int64
}

// NewMultiplexer builds a multiplexer with no providers registered.
func NewMultiplexer(opts Options, log zerolog.Logger) *Multiplexer {
	if opts.HealthProbeInterval <= 0 {
		opts.HealthProbeInterval = 300 * time.Second
	}
	if opts.RetryBaseDelay <= 0 {
		opts.RetryBaseDelay = 500 * time.Millisecond
	}

	m := &Multiplexer{
		opts:  opts,
		log:   log,
		slots: make(map[string]*providerSlot),
		costs: newCostTracker(),
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if opts.CacheTTL > 0 {
		m.cache = newResponseCache(opts.CacheTTL, opts.CacheSize)
	}
	return m
}

// Register adds a provider. Registration order is the final fallback order
// after the configured preference lists.
func (m *Multiplexer) Register(p Provider) {
	name := p.Name()
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     m.opts.HealthProbeInterval,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("provider health changed")
		},
	})

	m.slotMu.Lock()
	defer m.slotMu.Unlock()
	if _, exists := m.slots[name]; !exists {
		m.order = append(m.order, name)
	}
	m.slots[name] = &providerSlot{provider: p, breaker: breaker}
}

// Healthy reports whether the named provider's breaker is closed or probing.
func (m *Multiplexer) Healthy(name string) bool {
	m.slotMu.RLock()
	slot, ok := m.slots[name]
	m.slotMu.RUnlock()
	return ok && slot.breaker.State() != gobreaker.StateOpen
}

// HasProviders reports whether any provider is registered.
func (m *Multiplexer) HasProviders() bool {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()
	return len(m.slots) > 0
}

// Chat routes a completion request. Explicit provider first when healthy,
// then the preferred chain, then everything else healthy, then benched
// providers (whose breakers may admit a probe).
func (m *Multiplexer) Chat(ctx context.Context, req *ChatRequest) *Response {
	start := time.Now()

	var key string
	if m.cache != nil {
		key = cacheKey(req)
		if resp, ok := m.cache.get(key); ok {
			m.statMu.Lock()
			m.cacheHits++
			m.statMu.Unlock()
			metrics.LLMCacheHitsTotal.Inc()
			resp.FromCache = true
			resp.ResponseTime = time.Since(start)
			return &resp
		}
	}

	candidates := m.candidates(req.Provider)
	if len(candidates) == 0 {
		return &Response{
			Success:      false,
			ErrorKind:    ErrorUnknown,
			ErrorDetail:  "no providers registered",
			ResponseTime: time.Since(start),
		}
	}

	var lastErr error
	for i, name := range candidates {
		if i > 0 {
			m.statMu.Lock()
			m.fallbackCount++
			m.statMu.Unlock()
			metrics.LLMFallbacksTotal.Inc()
		}

		chatResp, err := m.tryProvider(ctx, name, req)
		if err == nil {
			m.costs.record(name, chatResp)
			resp := Response{
				Success: true,
				Content: chatResp.Content,
				Usage: Usage{
					PromptTokens:     chatResp.PromptTokens,
					CompletionTokens: chatResp.CompletionTokens,
					TotalTokens:      chatResp.TokensUsed,
				},
				Provider:     name,
				Model:        chatResp.Model,
				ResponseTime: time.Since(start),
			}
			if m.cache != nil && key != "" {
				m.cache.put(key, resp)
			}
			return &resp
		}

		lastErr = err
		m.log.Warn().
			Str("provider", name).
			Str("error_kind", string(Classify(err))).
			Err(err).
			Msg("provider failed, falling through")

		if ctx.Err() != nil {
			break
		}
	}

	return &Response{
		Success:      false,
		ErrorKind:    Classify(lastErr),
		ErrorDetail:  lastErr.Error(),
		ResponseTime: time.Since(start),
	}
}

// tryProvider runs one provider with the retry budget. Non-retryable errors,
// open breakers and context cancellation end the attempt loop early.
func (m *Multiplexer) tryProvider(ctx context.Context, name string, req *ChatRequest) (*ChatResponse, error) {
	m.slotMu.RLock()
	slot, ok := m.slots[name]
	m.slotMu.RUnlock()
	if !ok {
		return nil, &APIError{Provider: name, StatusCode: 404, Body: "provider not registered"}
	}

	var lastErr error
	for attempt := 0; attempt <= m.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := sleepCtx(ctx, m.backoff(attempt)); err != nil {
				return nil, err
			}
		}
		if err := m.waitInterval(ctx, slot); err != nil {
			return nil, err
		}

		slot.mu.Lock()
		slot.requests++
		slot.mu.Unlock()

		out, err := slot.breaker.Execute(func() (interface{}, error) {
			return slot.provider.Chat(ctx, req)
		})
		if err == nil {
			metrics.LLMRequestsTotal.WithLabelValues(name, "success").Inc()
			return out.(*ChatResponse), nil
		}

		slot.mu.Lock()
		slot.failures++
		slot.mu.Unlock()
		metrics.LLMRequestsTotal.WithLabelValues(name, "error").Inc()

		lastErr = err
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, err
		}
		if !Retryable(Classify(err)) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// candidates returns the provider try-order for this request: the explicit
// provider when healthy, then the configured preference chain, then the
// remaining healthy providers, then benched ones.
func (m *Multiplexer) candidates(explicit string) []string {
	m.slotMu.RLock()
	defer m.slotMu.RUnlock()

	seen := make(map[string]bool, len(m.slots))
	var out []string
	add := func(name string) {
		if name == "" || seen[name] {
			return
		}
		if _, ok := m.slots[name]; !ok {
			return
		}
		seen[name] = true
		out = append(out, name)
	}

	if explicit != "" {
		if slot, ok := m.slots[explicit]; ok && slot.breaker.State() != gobreaker.StateOpen {
			add(explicit)
		}
	}
	if m.opts.PrimaryProvider != "" && m.opts.PrimaryProvider != "auto" {
		add(m.opts.PrimaryProvider)
	}
	for _, name := range m.opts.FallbackProviders {
		add(name)
	}
	for _, name := range m.order {
		if m.slots[name].breaker.State() != gobreaker.StateOpen {
			add(name)
		}
	}
	for _, name := range m.order {
		add(name)
	}
	return out
}

// waitInterval enforces the per-provider minimum request interval.
func (m *Multiplexer) waitInterval(ctx context.Context, slot *providerSlot) error {
	if m.opts.RequestInterval <= 0 {
		return nil
	}

	slot.mu.Lock()
	now := time.Now()
	wait := m.opts.RequestInterval - now.Sub(slot.lastRequest)
	if wait < 0 {
		wait = 0
	}
	slot.lastRequest = now.Add(wait)
	slot.mu.Unlock()

	if wait == 0 {
		return nil
	}
	return sleepCtx(ctx, wait)
}

// backoff returns the jittered exponential delay before retry n (n >= 1).
func (m *Multiplexer) backoff(attempt int) time.Duration {
	base := float64(m.opts.RetryBaseDelay) * math.Pow(2, float64(attempt-1))
	if max := float64(8 * time.Second); base > max {
		base = max
	}

	m.rngMu.Lock()
	jitter := 0.5 + m.rng.Float64()
	m.rngMu.Unlock()

	return time.Duration(base * jitter)
}

// GetStats returns a snapshot of provider counters, health, cache and cost.
func (m *Multiplexer) GetStats() Stats {
	m.slotMu.RLock()
	providers := make(map[string]ProviderStats, len(m.slots))
	for name, slot := range m.slots {
		slot.mu.Lock()
		providers[name] = ProviderStats{
			Requests: slot.requests,
			Failures: slot.failures,
			Healthy:  slot.breaker.State() != gobreaker.StateOpen,
		}
		slot.mu.Unlock()
	}
	m.slotMu.RUnlock()

	m.statMu.Lock()
	fallbacks := m.fallbackCount
	hits := m.cacheHits
	m.statMu.Unlock()

	stats := Stats{
		Providers:     providers,
		FallbackCount: fallbacks,
		CacheHits:     hits,
		Costs:         m.costs.summary(),
	}
	if m.cache != nil {
		stats.CacheEntries = m.cache.len()
	}
	return stats
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
