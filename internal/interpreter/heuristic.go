package interpreter

import (
	"fmt"
	"strings"

	"github.com/mindforge-ai/mindforge/internal/paths"
)

// Curated direct answers for social queries. Kept short so they read well
// in any chat surface.
var cannedAnswers = []struct {
	triggers []string
	answer   string
}{
	{
		triggers: []string{"你好", "您好", "hello", "hi ", "hey ", "早上好", "晚上好", "good morning", "good evening"},
		answer:   "你好！很高兴见到你，有什么我可以帮忙的吗？",
	},
	{
		triggers: []string{"谢谢", "感谢", "thank you", "thanks"},
		answer:   "不客气！随时乐意帮忙。",
	},
	{
		triggers: []string{"你是谁", "who are you", "introduce yourself", "自我介绍"},
		answer:   "我是一个推理助手，擅长分析问题、检索信息并给出可靠的答案。",
	},
	{
		triggers: []string{"你能做什么", "what can you do", "你会什么", "capabilities"},
		answer:   "我可以分析复杂问题、联网检索最新信息、验证想法的可行性，并把结论整理成清晰的回答。",
	},
}

// informationalTriggers mirror the triage keyword list: queries that want
// facts the model may not hold.
var informationalTriggers = []string{
	"what", "how", "why", "where", "when", "who",
	"latest", "news", "current", "recent",
	"什么", "怎么", "为什么", "哪里", "何时", "谁", "最新", "新闻", "现状",
}

// heuristicPlan is the rule ladder used when the arbiter cannot decide.
func (i *Interpreter) heuristicPlan(chosen paths.ReasoningPath, query string) Plan {
	lower := strings.ToLower(query)

	for _, c := range cannedAnswers {
		for _, trig := range c.triggers {
			if strings.Contains(lower, trig) {
				return Plan{
					Thought:     "social query, answer from the curated set",
					FinalAnswer: c.answer,
					Confidence:  0.9,
					Metadata:    map[string]any{"planner": "heuristic"},
				}
			}
		}
	}

	if i.registry.Has("web_search") && containsAny(lower, informationalTriggers) {
		return Plan{
			Thought:    "informational query, search first",
			Actions:    []Action{{ToolName: "web_search", ToolInput: map[string]any{"query": query}}},
			Confidence: 0.7,
			Metadata:   map[string]any{"planner": "heuristic"},
		}
	}

	if plan, ok := i.strategyPlan(chosen, query); ok {
		return plan
	}

	// Last rung: a direct answer shaped by the strategy description. The
	// internal seed text never leaks here.
	return Plan{
		Thought:     fmt.Sprintf("apply the %s strategy directly", chosen.PathType),
		FinalAnswer: directFromStrategy(chosen, query),
		Confidence:  0.5,
		Metadata:    map[string]any{"planner": "heuristic"},
	}
}

// strategyPlan applies the per-strategy specialization.
func (i *Interpreter) strategyPlan(chosen paths.ReasoningPath, query string) (Plan, bool) {
	meta := map[string]any{"planner": "strategy_rules", "strategy": chosen.StrategyID}

	switch chosen.StrategyID {
	case "exploratory_search":
		if !i.registry.Has("web_search") {
			return Plan{}, false
		}
		return Plan{
			Thought:    "exploratory strategy, gather external information",
			Actions:    []Action{{ToolName: "web_search", ToolInput: map[string]any{"query": query}}},
			Confidence: 0.65,
			Metadata:   meta,
		}, true

	case "critical_verification":
		if !i.registry.Has("idea_verification") {
			return Plan{}, false
		}
		return Plan{
			Thought:    "critical strategy, verify the claim before answering",
			Actions:    []Action{{ToolName: "idea_verification", ToolInput: map[string]any{"idea_text": query}}},
			Confidence: 0.65,
			Metadata:   meta,
		}, true

	case "systematic_analytical":
		if !i.registry.Has("web_search") {
			return Plan{}, false
		}
		meta["followup"] = "analyze"
		return Plan{
			Thought:    "analytical strategy, collect evidence then analyze",
			Actions:    []Action{{ToolName: "web_search", ToolInput: map[string]any{"query": query}}},
			Confidence: 0.6,
			Metadata:   meta,
		}, true

	case paths.DetourStrategyID:
		if !i.registry.Has("web_search") {
			return Plan{}, false
		}
		return Plan{
			Thought: "detour strategy, search sideways for alternative angles",
			Actions: []Action{{
				ToolName:  "web_search",
				ToolInput: map[string]any{"query": "alternative approaches to " + query},
			}},
			Confidence: 0.55,
			Metadata:   meta,
		}, true

	case "creative_synthesis":
		return Plan{
			Thought:     "creative strategy, synthesize directly",
			FinalAnswer: directFromStrategy(chosen, query),
			Confidence:  0.6,
			Metadata:    meta,
		}, true
	}
	return Plan{}, false
}

// directFromStrategy phrases an answer scaffold from the strategy
// description without exposing any internal framing text.
func directFromStrategy(chosen paths.ReasoningPath, query string) string {
	desc := strings.TrimSpace(chosen.Description)
	if desc == "" {
		return fmt.Sprintf("Let me think this through step by step: %s", query)
	}
	return fmt.Sprintf("Approaching this by %s: %s", strings.ToLower(strings.TrimRight(desc, ".")), query)
}

func apologyPlan() Plan {
	return Plan{
		Thought:     "no planner produced a usable plan",
		FinalAnswer: "抱歉，我暂时无法为这个问题制定处理方案，请换个方式描述或稍后再试。",
		Confidence:  0.2,
		Metadata:    map[string]any{"planner": "apology"},
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
