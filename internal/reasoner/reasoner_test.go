package reasoner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindforge-ai/mindforge/internal/llm"
	"github.com/mindforge-ai/mindforge/internal/logging"
)

type scriptedChat struct {
	content string
	success bool
}

func (s *scriptedChat) Chat(ctx context.Context, req *llm.ChatRequest) *llm.Response {
	return &llm.Response{Success: s.success, Content: s.content}
}

func TestClassifyHeuristicGreeting(t *testing.T) {
	for _, q := range []string{"hello there", "你好", "thanks!"} {
		tr := classifyHeuristic(q)
		assert.Equal(t, "greeting", tr.Intent, "query %q", q)
		assert.Equal(t, RouteDirectAnswer, tr.RouteStrategy)
		assert.Equal(t, "low", tr.Complexity)
	}
}

func TestClassifyHeuristicInformational(t *testing.T) {
	tr := classifyHeuristic("what are the latest Rust async runtimes")
	assert.Equal(t, "informational", tr.Intent)
	assert.Equal(t, RouteToolAssisted, tr.RouteStrategy)
	assert.Equal(t, "technology", tr.Domain)
}

func TestClassifyHeuristicUrgency(t *testing.T) {
	tr := classifyHeuristic("I need this fixed immediately, what is wrong with my server")
	assert.Equal(t, "high", tr.Urgency)
}

func TestComplexityFor(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"short one", "low"},
		{"a medium length question about something, with a clause or two to think about", "medium"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, complexityFor(tt.query), "query %q", tt.query)
	}

	long := ""
	for i := 0; i < 30; i++ {
		long += "a longer clause with detail, "
	}
	assert.Equal(t, "high", complexityFor(long))
}

func TestClassifyAndRoutePrefersLLM(t *testing.T) {
	client := &scriptedChat{success: true, content: `{"complexity": "high", "domain": "technology",
		"intent": "analysis", "urgency": "normal", "route_strategy": "deep_reasoning",
		"confidence": 0.9, "reasoning": "multi-part technical question"}`}

	r := New(client, logging.Nop())
	tr := r.ClassifyAndRoute(context.Background(), "compare async runtime schedulers in depth", nil)

	assert.Equal(t, "high", tr.Complexity)
	assert.Equal(t, "analysis", tr.Intent)
	// Confidence is merged with the heuristic, never the raw LLM value.
	assert.Less(t, tr.Confidence, 0.9)
	assert.Greater(t, tr.Confidence, 0.5)
}

func TestClassifyAndRouteFallsBackOnGarbage(t *testing.T) {
	r := New(&scriptedChat{success: true, content: "I cannot help with that."}, logging.Nop())
	tr := r.ClassifyAndRoute(context.Background(), "what is the latest in quantum computing", nil)

	require.NotEmpty(t, tr.Complexity)
	assert.Equal(t, "informational", tr.Intent)
	assert.Equal(t, "keyword heuristic classification", tr.Reasoning)
}

func TestClassifyAndRouteFallsBackOnLLMFailure(t *testing.T) {
	r := New(&scriptedChat{success: false}, logging.Nop())
	tr := r.ClassifyAndRoute(context.Background(), "hello", nil)
	assert.Equal(t, "greeting", tr.Intent)
}

func TestMergeConfidence(t *testing.T) {
	// Agreement: pure blend.
	assert.InDelta(t, 0.7*0.8+0.3*0.7, mergeConfidence(0.8, 0.7), 1e-9)

	// Disagreement beyond 0.3 applies the capped penalty.
	diff := 0.9 - 0.4
	want := 0.7*0.9 + 0.3*0.4 - 0.2*diff
	assert.InDelta(t, want, mergeConfidence(0.9, 0.4), 1e-9)

	// Penalty caps at 0.15.
	got := mergeConfidence(1.0, 0.0)
	assert.InDelta(t, 0.7*1.0-0.15, got, 1e-9)
}

func TestThinkingSeedBoundsAndPurity(t *testing.T) {
	tr := Triage{Complexity: "medium", Domain: "technology", Intent: "informational",
		Urgency: "normal", RouteStrategy: RouteToolAssisted, Confidence: 0.65}

	a := ThinkingSeed("what are the latest Rust async runtimes", tr)
	b := ThinkingSeed("what are the latest Rust async runtimes", tr)

	assert.Equal(t, a, b)
	n := len([]rune(a))
	assert.GreaterOrEqual(t, n, 100)
	assert.LessOrEqual(t, n, 400)
}

func TestThinkingSeedTruncatesLongQueries(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "very long query text "
	}
	seed := ThinkingSeed(long, Triage{Confidence: 0.5})
	assert.LessOrEqual(t, len([]rune(seed)), 400)
}
