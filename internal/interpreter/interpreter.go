// Package interpreter translates a chosen reasoning path into an executable
// Plan: either a direct answer or an ordered list of tool actions. The
// primary translator is an LLM arbiter; a rule ladder takes over whenever
// the arbiter is unavailable or returns garbage.
package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/jsonx"
	"github.com/mindforge-ai/mindforge/internal/llm"
	"github.com/mindforge-ai/mindforge/internal/paths"
	"github.com/mindforge-ai/mindforge/internal/tools"
)

// Action is one tool invocation in a plan.
type Action struct {
	ToolName  string         `json:"tool_name"`
	ToolInput map[string]any `json:"tool_input"`
}

// Plan is the interpreter output. A valid plan carries exactly one of
// FinalAnswer or a non-empty Actions list.
type Plan struct {
	Thought     string         `json:"thought"`
	FinalAnswer string         `json:"final_answer,omitempty"`
	Actions     []Action       `json:"actions,omitempty"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// IsDirectAnswer reports whether the plan answers without tools.
func (p *Plan) IsDirectAnswer() bool {
	return p.FinalAnswer != "" && len(p.Actions) == 0
}

// Valid enforces the plan invariant.
func (p *Plan) Valid() bool {
	if p.Thought == "" {
		return false
	}
	return (p.FinalAnswer != "") != (len(p.Actions) > 0)
}

// ChatClient is the slice of the LLM multiplexer the interpreter needs.
type ChatClient interface {
	Chat(ctx context.Context, req *llm.ChatRequest) *llm.Response
}

// Interpreter builds plans. Safe for concurrent use.
type Interpreter struct {
	client   ChatClient
	registry *tools.Registry
	log      zerolog.Logger
}

// New builds an Interpreter. client may be nil to run rules only.
func New(client ChatClient, registry *tools.Registry, log zerolog.Logger) *Interpreter {
	return &Interpreter{client: client, registry: registry, log: log}
}

// ToPlan translates the chosen path for a query into a plan. It always
// returns a valid plan; every failure mode degrades to a direct answer.
func (i *Interpreter) ToPlan(ctx context.Context, chosen paths.ReasoningPath, query, seed string) Plan {
	if plan, ok := i.arbiterPlan(ctx, chosen, query, seed); ok {
		i.attachVisual(&plan, query)
		return plan
	}

	plan := i.heuristicPlan(chosen, query)
	if !plan.Valid() {
		plan = apologyPlan()
	}
	i.attachVisual(&plan, query)
	return plan
}

// arbiterVerdict is the JSON shape the arbiter prompt requests.
type arbiterVerdict struct {
	NeedsTools       bool     `json:"needs_tools"`
	RecommendedTools []string `json:"recommended_tools"`
	ToolReasoning    string   `json:"tool_reasoning"`
	DirectAnswer     string   `json:"direct_answer"`
	Explanation      string   `json:"explanation"`
}

// arbiterPlan asks the LLM whether the query needs tools and which ones.
func (i *Interpreter) arbiterPlan(ctx context.Context, chosen paths.ReasoningPath, query, seed string) (Plan, bool) {
	if i.client == nil {
		return Plan{}, false
	}

	resp := i.client.Chat(ctx, &llm.ChatRequest{
		SystemPrompt: arbiterSystemPrompt(),
		Messages: []llm.Message{{
			Role:    "user",
			Content: i.arbiterUserPrompt(chosen, query, seed),
		}},
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if resp == nil || !resp.Success {
		return Plan{}, false
	}

	raw := jsonx.ExtractObject(resp.Content)
	if raw == "" {
		i.log.Debug().Msg("arbiter returned no JSON object")
		return Plan{}, false
	}
	var v arbiterVerdict
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		i.log.Debug().Err(err).Msg("arbiter JSON unmarshal failed")
		return Plan{}, false
	}

	if !v.NeedsTools {
		if strings.TrimSpace(v.DirectAnswer) == "" {
			return Plan{}, false
		}
		return Plan{
			Thought:     firstNonEmpty(v.Explanation, "answer directly"),
			FinalAnswer: v.DirectAnswer,
			Confidence:  0.8,
			Metadata:    map[string]any{"planner": "llm_arbiter"},
		}, true
	}

	var actions []Action
	for _, name := range v.RecommendedTools {
		if !i.registry.Has(name) {
			i.log.Debug().Str("tool", name).Msg("arbiter recommended unknown tool, dropping")
			continue
		}
		actions = append(actions, Action{ToolName: name, ToolInput: buildToolInput(name, query)})
	}
	if len(actions) == 0 {
		// Every recommendation was unknown; fall back to a direct answer
		// when the arbiter offered one.
		if strings.TrimSpace(v.DirectAnswer) == "" {
			return Plan{}, false
		}
		return Plan{
			Thought:     firstNonEmpty(v.ToolReasoning, v.Explanation, "recommended tools unavailable"),
			FinalAnswer: v.DirectAnswer,
			Confidence:  0.6,
			Metadata:    map[string]any{"planner": "llm_arbiter", "tools_dropped": true},
		}, true
	}

	return Plan{
		Thought:    firstNonEmpty(v.ToolReasoning, v.Explanation, "use tools"),
		Actions:    actions,
		Confidence: 0.75,
		Metadata:   map[string]any{"planner": "llm_arbiter"},
	}, true
}

// buildToolInput maps a tool name to its input shape.
func buildToolInput(name, query string) map[string]any {
	switch name {
	case "idea_verification":
		return map[string]any{"idea_text": query}
	default:
		// web_search, knowledge_query and future tools all take a query.
		return map[string]any{"query": query}
	}
}

func (i *Interpreter) arbiterUserPrompt(chosen paths.ReasoningPath, query, seed string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Query: %s\n\n", query)
	fmt.Fprintf(&b, "Chosen strategy: %s\n%s\n\n", chosen.PathType, chosen.Description)
	if seed != "" {
		fmt.Fprintf(&b, "Framing: %s\n\n", seed)
	}
	b.WriteString("Available tools:\n")
	for _, info := range i.registry.Catalog() {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
	}
	return b.String()
}

func arbiterSystemPrompt() string {
	return `You decide whether answering a query requires tools.
Respond with ONLY a JSON object:
{
  "needs_tools": true or false,
  "recommended_tools": ["tool_name", ...],
  "tool_reasoning": "why these tools, in one sentence",
  "direct_answer": "complete answer when no tools are needed, else empty",
  "explanation": "one sentence on the overall approach"
}
Recommend only tools from the provided list. Prefer a direct answer when
the query can be answered from general knowledge.`
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
