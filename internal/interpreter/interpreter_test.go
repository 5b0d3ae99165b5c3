package interpreter

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mindforge-ai/mindforge/internal/llm"
	"github.com/mindforge-ai/mindforge/internal/paths"
	"github.com/mindforge-ai/mindforge/internal/tools"
)

type stubTool struct {
	name string
}

func (s *stubTool) Name() string          { return s.name }
func (s *stubTool) Description() string   { return "stub tool" }
func (s *stubTool) Risk() tools.RiskLevel { return tools.RiskNone }
func (s *stubTool) Execute(context.Context, map[string]any) (*tools.Result, error) {
	return &tools.Result{Success: true}, nil
}

type scriptedChat struct {
	resp *llm.Response
}

func (s *scriptedChat) Chat(_ context.Context, _ *llm.ChatRequest) *llm.Response {
	return s.resp
}

func registryWith(names ...string) *tools.Registry {
	r := tools.NewRegistry()
	for _, n := range names {
		r.Register(&stubTool{name: n})
	}
	return r
}

func analyticalPath() paths.ReasoningPath {
	return paths.ReasoningPath{
		StrategyID:  "systematic_analytical",
		PathType:    "Systematic Analytical",
		Description: "Break the problem into components and analyze each",
	}
}

func TestArbiterDirectAnswer(t *testing.T) {
	chat := &scriptedChat{resp: &llm.Response{
		Success: true,
		Content: "```json\n{\"needs_tools\": false, \"direct_answer\": \"Go's GC is concurrent and tri-color.\", \"explanation\": \"general knowledge\"}\n```",
	}}
	i := New(chat, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "how does the Go garbage collector work", "")
	require.True(t, plan.Valid())
	require.True(t, plan.IsDirectAnswer())
	require.Contains(t, plan.FinalAnswer, "tri-color")
	require.Equal(t, "llm_arbiter", plan.Metadata["planner"])
}

func TestArbiterToolPlanPreservesOrder(t *testing.T) {
	chat := &scriptedChat{resp: &llm.Response{
		Success: true,
		Content: `{"needs_tools": true, "recommended_tools": ["web_search", "idea_verification"], "tool_reasoning": "needs fresh data"}`,
	}}
	i := New(chat, registryWith("web_search", "idea_verification"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "latest kubernetes release notes", "")
	require.True(t, plan.Valid())
	require.Len(t, plan.Actions, 2)
	require.Equal(t, "web_search", plan.Actions[0].ToolName)
	require.Equal(t, "idea_verification", plan.Actions[1].ToolName)
	require.Equal(t, "latest kubernetes release notes", plan.Actions[0].ToolInput["query"])
	require.Equal(t, "latest kubernetes release notes", plan.Actions[1].ToolInput["idea_text"])
}

func TestArbiterDropsUnknownTools(t *testing.T) {
	chat := &scriptedChat{resp: &llm.Response{
		Success: true,
		Content: `{"needs_tools": true, "recommended_tools": ["quantum_oracle", "web_search"], "tool_reasoning": "mixed"}`,
	}}
	i := New(chat, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "what is new in rust", "")
	require.True(t, plan.Valid())
	require.Len(t, plan.Actions, 1)
	require.Equal(t, "web_search", plan.Actions[0].ToolName)
}

func TestArbiterAllToolsUnknownFallsBackToDirect(t *testing.T) {
	chat := &scriptedChat{resp: &llm.Response{
		Success: true,
		Content: `{"needs_tools": true, "recommended_tools": ["quantum_oracle"], "direct_answer": "Best effort answer.", "tool_reasoning": "oracle"}`,
	}}
	i := New(chat, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "tell me something", "")
	require.True(t, plan.Valid())
	require.True(t, plan.IsDirectAnswer())
	require.Equal(t, true, plan.Metadata["tools_dropped"])
}

func TestGarbageArbiterFallsToHeuristics(t *testing.T) {
	chat := &scriptedChat{resp: &llm.Response{Success: true, Content: "certainly! here is my thinking, sans JSON"}}
	i := New(chat, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "what is the latest Go release", "")
	require.True(t, plan.Valid())
	require.Equal(t, "web_search", plan.Actions[0].ToolName)
}

func TestHeuristicGreeting(t *testing.T) {
	i := New(nil, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "你好", "")
	require.True(t, plan.Valid())
	require.True(t, plan.IsDirectAnswer())
	require.NotEmpty(t, plan.FinalAnswer)
	require.Less(t, len([]rune(plan.FinalAnswer)), 200)
	require.Empty(t, plan.Actions)
}

func TestHeuristicInformationalSearch(t *testing.T) {
	i := New(nil, registryWith("web_search"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "最新的Rust异步运行时有哪些", "")
	require.True(t, plan.Valid())
	require.Empty(t, plan.FinalAnswer)
	require.NotEmpty(t, plan.Actions)
	require.Equal(t, "web_search", plan.Actions[0].ToolName)
	require.Contains(t, plan.Actions[0].ToolInput["query"], "Rust")
}

func TestStrategySpecializations(t *testing.T) {
	tests := []struct {
		strategyID string
		tool       string
		wantTool   string
		direct     bool
	}{
		{"exploratory_search", "web_search", "web_search", false},
		{"critical_verification", "idea_verification", "idea_verification", false},
		{paths.DetourStrategyID, "web_search", "web_search", false},
		{"creative_synthesis", "web_search", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.strategyID, func(t *testing.T) {
			i := New(nil, registryWith(tt.tool), zerolog.Nop())
			chosen := paths.ReasoningPath{StrategyID: tt.strategyID, PathType: tt.strategyID, Description: "combine distant concepts"}

			plan := i.ToPlan(context.Background(), chosen, "design a resilient queue", "")
			require.True(t, plan.Valid())
			if tt.direct {
				require.True(t, plan.IsDirectAnswer())
			} else {
				require.Equal(t, tt.wantTool, plan.Actions[0].ToolName)
			}
		})
	}
}

func TestDirectAnswerNeverLeaksSeed(t *testing.T) {
	i := New(nil, registryWith(), zerolog.Nop())
	seed := "INTERNAL FRAMING: treat with suspicion"
	chosen := paths.ReasoningPath{StrategyID: "practical_direct", PathType: "Practical Direct", Description: "answer from what is known"}

	plan := i.ToPlan(context.Background(), chosen, "summarize this repo layout", seed)
	require.True(t, plan.Valid())
	require.NotContains(t, plan.FinalAnswer, "INTERNAL FRAMING")
}

func TestVisualDecisionExplicitRequest(t *testing.T) {
	d := DecideVisual("please draw a picture of a lighthouse at dawn")
	require.True(t, d.Generate)
	require.Equal(t, "immediate", d.Timing)

	d = DecideVisual("what time is it in tokyo")
	require.False(t, d.Generate)
}

func TestVisualActionAppendedToToolPlans(t *testing.T) {
	i := New(nil, registryWith("web_search", "image_generation"), zerolog.Nop())

	plan := i.ToPlan(context.Background(), analyticalPath(), "what does a raft cluster look like, draw a diagram", "")
	require.True(t, plan.Valid())
	last := plan.Actions[len(plan.Actions)-1]
	require.Equal(t, "image_generation", last.ToolName)
}

func TestPlanValidityInvariant(t *testing.T) {
	valid := Plan{Thought: "t", FinalAnswer: "a"}
	require.True(t, valid.Valid())

	both := Plan{Thought: "t", FinalAnswer: "a", Actions: []Action{{ToolName: "x"}}}
	require.False(t, both.Valid())

	neither := Plan{Thought: "t"}
	require.False(t, neither.Valid())

	noThought := Plan{FinalAnswer: "a"}
	require.False(t, noThought.Valid())
}
