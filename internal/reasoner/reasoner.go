// Package reasoner performs fast query triage before the decision pipeline
// commits resources: complexity, domain, intent, urgency and a routing class,
// plus the thinking seed that frames downstream path generation. Triage is
// LLM-first with a keyword classifier as fallback and cross-check.
package reasoner

import (
	"context"
	"encoding/json"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/jsonx"
	"github.com/mindforge-ai/mindforge/internal/llm"
)

// Triage is the classification result for one query.
type Triage struct {
	Complexity    string  `json:"complexity"` // low, medium, high
	Domain        string  `json:"domain"`
	Intent        string  `json:"intent"`
	Urgency       string  `json:"urgency"` // low, normal, high
	RouteStrategy string  `json:"route_strategy"`
	Confidence    float64 `json:"confidence"`
	Reasoning     string  `json:"reasoning"`
}

// Route strategies.
const (
	RouteDirectAnswer  = "direct_answer"
	RouteToolAssisted  = "tool_assisted"
	RouteDeepReasoning = "deep_reasoning"
)

// ChatClient is the slice of the LLM multiplexer the reasoner needs.
type ChatClient interface {
	Chat(ctx context.Context, req *llm.ChatRequest) *llm.Response
}

// Reasoner triages queries.
type Reasoner struct {
	client ChatClient
	log    zerolog.Logger
}

// New builds a Reasoner. client may be nil to run heuristics only.
func New(client ChatClient, log zerolog.Logger) *Reasoner {
	return &Reasoner{client: client, log: log}
}

// ClassifyAndRoute triages a query. The heuristic classifier always runs;
// when the LLM also answers, its fields win and the confidences merge with a
// disagreement penalty.
func (r *Reasoner) ClassifyAndRoute(ctx context.Context, query string, _ map[string]any) Triage {
	heuristic := classifyHeuristic(query)

	if r.client == nil {
		return heuristic
	}
	fromLLM, ok := r.classifyLLM(ctx, query)
	if !ok {
		return heuristic
	}

	fromLLM.Confidence = mergeConfidence(fromLLM.Confidence, heuristic.Confidence)
	return fromLLM
}

// classifyLLM asks for a strict JSON triage at low temperature. ok is false
// when the call fails or required fields are missing.
func (r *Reasoner) classifyLLM(ctx context.Context, query string) (Triage, bool) {
	resp := r.client.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: triageSystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: query}},
		Temperature:  0.1,
		MaxTokens:    400,
	})
	if !resp.Success {
		return Triage{}, false
	}

	raw := jsonx.ExtractObject(resp.Content)
	if raw == "" {
		return Triage{}, false
	}
	var t Triage
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		r.log.Debug().Err(err).Msg("triage: unparseable LLM response")
		return Triage{}, false
	}
	if t.Complexity == "" || t.Intent == "" || t.Confidence <= 0 {
		return Triage{}, false
	}

	t.Complexity = strings.ToLower(t.Complexity)
	t.Urgency = strings.ToLower(t.Urgency)
	if t.Urgency == "" {
		t.Urgency = "normal"
	}
	if t.RouteStrategy == "" {
		t.RouteStrategy = RouteDeepReasoning
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
	return t, true
}

// mergeConfidence blends LLM and heuristic confidence 0.7/0.3 and penalizes
// disagreement above 0.3 by min(0.15, 0.2*|diff|).
func mergeConfidence(llmConf, heurConf float64) float64 {
	merged := 0.7*llmConf + 0.3*heurConf
	if diff := math.Abs(llmConf - heurConf); diff > 0.3 {
		merged -= math.Min(0.15, 0.2*diff)
	}
	if merged < 0 {
		return 0
	}
	if merged > 1 {
		return 1
	}
	return merged
}

const triageSystemPrompt = `You triage user queries for a reasoning engine. Respond with only a JSON object:
{"complexity": "low|medium|high", "domain": "short label", "intent": "greeting|informational|task|analysis|creative|other", "urgency": "low|normal|high", "route_strategy": "direct_answer|tool_assisted|deep_reasoning", "confidence": 0.0-1.0, "reasoning": "one sentence"}`
