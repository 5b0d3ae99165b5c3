package reasoner

import "strings"

// keywordSet scores a query against weighted trigger words. The classifier is
// deliberately cheap: it runs on every request and must never block.
type keywordSet struct {
	label    string
	keywords map[string]float64
}

var greetingWords = []string{
	"hello", "hi ", "hey", "good morning", "good evening", "thanks",
	"thank you", "你好", "您好", "谢谢", "早上好", "晚上好",
}

var informationalWords = []string{
	"what", "how", "why", "where", "when", "who", "which", "latest",
	"info", "information", "news", "search", "find", "lookup",
	"什么", "怎么", "为什么", "哪里", "哪些", "最新", "查询", "搜索",
}

var urgentWords = []string{
	"urgent", "asap", "immediately", "right now", "emergency", "紧急", "马上",
}

var domainSets = []keywordSet{
	{label: "technology", keywords: map[string]float64{
		"code": 1, "program": 1, "bug": 1, "api": 1, "rust": 1, "golang": 1,
		"python": 1, "server": 1, "database": 1, "async": 1, "runtime": 1,
		"编程": 1, "代码": 1, "异步": 1,
	}},
	{label: "science", keywords: map[string]float64{
		"physics": 1, "chemistry": 1, "biology": 1, "theorem": 1, "quantum": 1,
		"experiment": 1, "科学": 1, "物理": 1,
	}},
	{label: "business", keywords: map[string]float64{
		"market": 1, "revenue": 1, "strategy": 1, "customer": 1, "sales": 1,
		"市场": 1, "营销": 1,
	}},
}

// classifyHeuristic is the keyword fallback classifier. It is a pure
// function of the query text.
func classifyHeuristic(query string) Triage {
	lower := strings.ToLower(strings.TrimSpace(query))

	t := Triage{
		Domain:        "general",
		Intent:        "other",
		Urgency:       "normal",
		RouteStrategy: RouteDeepReasoning,
		Confidence:    0.5,
		Reasoning:     "keyword heuristic classification",
	}

	if containsAny(lower, greetingWords) && len([]rune(lower)) < 30 {
		t.Intent = "greeting"
		t.Complexity = "low"
		t.RouteStrategy = RouteDirectAnswer
		t.Confidence = 0.75
		return t
	}

	if containsAny(lower, informationalWords) {
		t.Intent = "informational"
		t.RouteStrategy = RouteToolAssisted
		t.Confidence = 0.65
	}

	if containsAny(lower, urgentWords) {
		t.Urgency = "high"
	}

	best, bestScore := "general", 0.0
	for _, set := range domainSets {
		score := 0.0
		for word, weight := range set.keywords {
			if strings.Contains(lower, word) {
				score += weight
			}
		}
		if score > bestScore {
			best, bestScore = set.label, score
		}
	}
	t.Domain = best

	t.Complexity = complexityFor(lower)
	if t.Complexity == "high" && t.RouteStrategy == RouteToolAssisted {
		t.RouteStrategy = RouteDeepReasoning
	}
	return t
}

// complexityFor estimates complexity from length and clause structure.
func complexityFor(query string) string {
	runes := len([]rune(query))
	clauses := strings.Count(query, ",") + strings.Count(query, ";") +
		strings.Count(query, "，") + strings.Count(query, "；")

	switch {
	case runes < 40 && clauses == 0:
		return "low"
	case runes < 200 && clauses <= 3:
		return "medium"
	default:
		return "high"
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
