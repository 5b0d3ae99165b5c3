package llm

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindforge-ai/mindforge/internal/logging"
)

// fakeProvider scripts responses per call.
type fakeProvider struct {
	name    string
	handler func(call int) (*ChatResponse, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeProvider) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()
	return f.handler(call)
}

func (f *fakeProvider) Name() string    { return f.name }
func (f *fakeProvider) Available() bool { return true }

func (f *fakeProvider) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func okResponse(content string) *ChatResponse {
	return &ChatResponse{
		Content:          content,
		Model:            "test-model",
		PromptTokens:     10,
		CompletionTokens: 5,
		TokensUsed:       15,
	}
}

func testOptions() Options {
	return Options{
		PrimaryProvider:     "auto",
		MaxRetries:          0,
		RequestInterval:     0,
		HealthProbeInterval: time.Hour,
		RetryBaseDelay:      time.Millisecond,
	}
}

func testRequest() *ChatRequest {
	return &ChatRequest{
		Messages: []Message{{Role: "user", Content: "hello"}},
	}
}

func TestChatFallsBackToNextProvider(t *testing.T) {
	broken := &fakeProvider{name: "broken", handler: func(int) (*ChatResponse, error) {
		return nil, &APIError{Provider: "broken", StatusCode: 500, Body: "boom"}
	}}
	working := &fakeProvider{name: "working", handler: func(int) (*ChatResponse, error) {
		return okResponse("from working"), nil
	}}

	opts := testOptions()
	opts.FallbackProviders = []string{"broken", "working"}
	m := NewMultiplexer(opts, logging.Nop())
	m.Register(broken)
	m.Register(working)

	resp := m.Chat(context.Background(), testRequest())

	require.True(t, resp.Success)
	assert.Equal(t, "working", resp.Provider)
	assert.Equal(t, "from working", resp.Content)
	assert.Equal(t, int64(1), m.GetStats().FallbackCount)
}

func TestChatHonorsExplicitProvider(t *testing.T) {
	first := &fakeProvider{name: "first", handler: func(int) (*ChatResponse, error) {
		return okResponse("from first"), nil
	}}
	second := &fakeProvider{name: "second", handler: func(int) (*ChatResponse, error) {
		return okResponse("from second"), nil
	}}

	opts := testOptions()
	opts.PrimaryProvider = "first"
	m := NewMultiplexer(opts, logging.Nop())
	m.Register(first)
	m.Register(second)

	req := testRequest()
	req.Provider = "second"
	resp := m.Chat(context.Background(), req)

	require.True(t, resp.Success)
	assert.Equal(t, "second", resp.Provider)
	assert.Zero(t, first.callCount())
}

func TestChatDoesNotRetryAuthErrors(t *testing.T) {
	p := &fakeProvider{name: "p", handler: func(int) (*ChatResponse, error) {
		return nil, &APIError{Provider: "p", StatusCode: 401, Body: "bad key"}
	}}

	opts := testOptions()
	opts.MaxRetries = 3
	m := NewMultiplexer(opts, logging.Nop())
	m.Register(p)

	resp := m.Chat(context.Background(), testRequest())

	require.False(t, resp.Success)
	assert.Equal(t, ErrorAuthentication, resp.ErrorKind)
	assert.Equal(t, 1, p.callCount())
}

func TestChatRetriesServerErrors(t *testing.T) {
	p := &fakeProvider{name: "p", handler: func(call int) (*ChatResponse, error) {
		if call < 3 {
			return nil, &APIError{Provider: "p", StatusCode: 503, Body: "overloaded"}
		}
		return okResponse("eventually"), nil
	}}

	opts := testOptions()
	opts.MaxRetries = 3
	m := NewMultiplexer(opts, logging.Nop())
	m.Register(p)

	resp := m.Chat(context.Background(), testRequest())

	require.True(t, resp.Success)
	assert.Equal(t, "eventually", resp.Content)
	assert.Equal(t, 3, p.callCount())
}

func TestBreakerBenchesProviderAfterConsecutiveFailures(t *testing.T) {
	p := &fakeProvider{name: "p", handler: func(int) (*ChatResponse, error) {
		return nil, &APIError{Provider: "p", StatusCode: 500, Body: "down"}
	}}

	m := NewMultiplexer(testOptions(), logging.Nop())
	m.Register(p)

	for i := 0; i < 3; i++ {
		resp := m.Chat(context.Background(), testRequest())
		require.False(t, resp.Success)
	}

	assert.False(t, m.Healthy("p"))

	// The open breaker rejects without reaching the provider.
	before := p.callCount()
	resp := m.Chat(context.Background(), testRequest())
	require.False(t, resp.Success)
	assert.Equal(t, before, p.callCount())
}

func TestChatServesFromCache(t *testing.T) {
	p := &fakeProvider{name: "p", handler: func(int) (*ChatResponse, error) {
		return okResponse("cached answer"), nil
	}}

	opts := testOptions()
	opts.CacheTTL = time.Minute
	opts.CacheSize = 8
	m := NewMultiplexer(opts, logging.Nop())
	m.Register(p)

	first := m.Chat(context.Background(), testRequest())
	second := m.Chat(context.Background(), testRequest())

	require.True(t, first.Success)
	require.True(t, second.Success)
	assert.False(t, first.FromCache)
	assert.True(t, second.FromCache)
	assert.Equal(t, 1, p.callCount())
	assert.Equal(t, int64(1), m.GetStats().CacheHits)
}

func TestChatAllProvidersFail(t *testing.T) {
	a := &fakeProvider{name: "a", handler: func(int) (*ChatResponse, error) {
		return nil, &APIError{Provider: "a", StatusCode: 500, Body: "down"}
	}}
	b := &fakeProvider{name: "b", handler: func(int) (*ChatResponse, error) {
		return nil, &APIError{Provider: "b", StatusCode: 502, Body: "also down"}
	}}

	m := NewMultiplexer(testOptions(), logging.Nop())
	m.Register(a)
	m.Register(b)

	resp := m.Chat(context.Background(), testRequest())

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.Equal(t, ErrorServer, resp.ErrorKind)
	assert.NotEmpty(t, resp.ErrorDetail)
}

func TestChatNoProvidersRegistered(t *testing.T) {
	m := NewMultiplexer(testOptions(), logging.Nop())

	resp := m.Chat(context.Background(), testRequest())

	require.NotNil(t, resp)
	assert.False(t, resp.Success)
	assert.False(t, m.HasProviders())
}

func TestCostTrackingAccumulates(t *testing.T) {
	p := &fakeProvider{name: "openai", handler: func(int) (*ChatResponse, error) {
		return okResponse("answer"), nil
	}}

	m := NewMultiplexer(testOptions(), logging.Nop())
	m.Register(p)

	req := testRequest()
	m.Chat(context.Background(), req)
	req.Messages = []Message{{Role: "user", Content: "another"}}
	m.Chat(context.Background(), req)

	costs := m.GetStats().Costs
	require.Contains(t, costs, "openai")
	assert.Equal(t, int64(2), costs["openai"].Requests)
	assert.Equal(t, int64(20), costs["openai"].PromptTokens)
	assert.Greater(t, costs["openai"].EstimatedUSD, 0.0)
}

func TestCacheKeyDistinguishesRequests(t *testing.T) {
	base := testRequest()

	changedMsg := testRequest()
	changedMsg.Messages = []Message{{Role: "user", Content: "different"}}

	changedTemp := testRequest()
	changedTemp.Temperature = 0.9

	assert.NotEqual(t, cacheKey(base), cacheKey(changedMsg))
	assert.NotEqual(t, cacheKey(base), cacheKey(changedTemp))
	assert.Equal(t, cacheKey(base), cacheKey(testRequest()))
}

func TestResponseCacheExpiry(t *testing.T) {
	c := newResponseCache(10*time.Millisecond, 4)
	c.put("k", Response{Content: "v"})

	if _, ok := c.get("k"); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	time.Sleep(20 * time.Millisecond)
	if _, ok := c.get("k"); ok {
		t.Fatal("expected cache miss after expiry")
	}
}

func TestResponseCacheBounded(t *testing.T) {
	c := newResponseCache(time.Minute, 2)
	c.put("a", Response{})
	c.put("b", Response{})
	c.put("c", Response{})

	assert.LessOrEqual(t, c.len(), 2)
}

func TestDefaultConfigKnownProvidersOnly(t *testing.T) {
	for _, name := range []string{"ollama", "openai", "anthropic"} {
		require.NotNil(t, DefaultConfig(name), name)
	}
	require.Nil(t, DefaultConfig("gemini"))
	require.Nil(t, DefaultConfig(""))
}
