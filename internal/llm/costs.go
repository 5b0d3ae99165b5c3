package llm

import "sync"

// providerPrices holds USD prices per million tokens. Local providers cost
// nothing. Unknown providers are tracked with zero cost.
var providerPrices = map[string]struct {
	input  float64
	output float64
}{
	"openai":    {input: 0.15, output: 0.60},
	"anthropic": {input: 3.00, output: 15.00},
	"ollama":    {input: 0, output: 0},
}

// ProviderCost aggregates usage and estimated spend for one provider.
type ProviderCost struct {
	Requests         int64   `json:"requests"`
	PromptTokens     int64   `json:"prompt_tokens"`
	CompletionTokens int64   `json:"completion_tokens"`
	EstimatedUSD     float64 `json:"estimated_usd"`
}

// costTracker accumulates per-provider token usage and estimated cost.
type costTracker struct {
	mu         sync.Mutex
	byProvider map[string]*ProviderCost
}

func newCostTracker() *costTracker {
	return &costTracker{byProvider: make(map[string]*ProviderCost)}
}

func (t *costTracker) record(provider string, resp *ChatResponse) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost, ok := t.byProvider[provider]
	if !ok {
		cost = &ProviderCost{}
		t.byProvider[provider] = cost
	}
	cost.Requests++
	cost.PromptTokens += int64(resp.PromptTokens)
	cost.CompletionTokens += int64(resp.CompletionTokens)

	if price, ok := providerPrices[provider]; ok {
		cost.EstimatedUSD += float64(resp.PromptTokens)/1e6*price.input +
			float64(resp.CompletionTokens)/1e6*price.output
	}
}

// summary returns a copy of the per-provider totals.
func (t *costTracker) summary() map[string]ProviderCost {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]ProviderCost, len(t.byProvider))
	for name, cost := range t.byProvider {
		out[name] = *cost
	}
	return out
}
