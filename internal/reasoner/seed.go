package reasoner

import (
	"fmt"
	"strings"
)

// seed length bounds in characters.
const (
	seedMinLen = 100
	seedMaxLen = 400
)

// ThinkingSeed composes the short prose framing the path generator builds on.
// Pure function of its inputs.
func ThinkingSeed(query string, t Triage) string {
	subject := strings.TrimSpace(query)
	if len([]rune(subject)) > 120 {
		subject = string([]rune(subject)[:120]) + "…"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The query %q is a %s-complexity %s request in the %s domain. ",
		subject, orDefault(t.Complexity, "medium"), orDefault(t.Intent, "general"), orDefault(t.Domain, "general"))

	switch t.RouteStrategy {
	case RouteDirectAnswer:
		b.WriteString("It can likely be answered directly from known information without external lookups. ")
	case RouteToolAssisted:
		b.WriteString("Answering well probably requires gathering external information before synthesizing. ")
	default:
		b.WriteString("It calls for structured reasoning: decompose the problem, weigh alternatives, then conclude. ")
	}

	if t.Urgency == "high" {
		b.WriteString("The user signals urgency, so prefer fast reliable strategies over exhaustive ones. ")
	}
	fmt.Fprintf(&b, "Triage confidence is %.2f.", t.Confidence)

	seed := b.String()
	if len([]rune(seed)) > seedMaxLen {
		seed = string([]rune(seed)[:seedMaxLen])
	}
	for len([]rune(seed)) < seedMinLen {
		seed += " Consider what the user actually needs before choosing a strategy."
	}
	return seed
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
