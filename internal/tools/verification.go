package tools

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// IdeaVerificationTool scores a proposition for feasibility without calling
// out to anything. It looks for concreteness signals and vagueness markers;
// the point is a cheap, always-available reward source, not deep judgment.
type IdeaVerificationTool struct{}

// NewIdeaVerificationTool creates the verification tool.
func NewIdeaVerificationTool() *IdeaVerificationTool {
	return &IdeaVerificationTool{}
}

func (t *IdeaVerificationTool) Name() string { return "idea_verification" }

func (t *IdeaVerificationTool) Description() string {
	return "Score an idea's feasibility and expected reward; input {idea_text}"
}

func (t *IdeaVerificationTool) Risk() RiskLevel { return RiskNone }

var concretenessMarkers = []string{
	"step", "first", "then", "verify", "check", "search", "compare",
	"decompose", "analyze", "gather", "identify", "retrieve", "order",
}

var vaguenessMarkers = []string{
	"somehow", "magic", "maybe", "hopefully", "just do it", "figure it out",
}

var infeasibilityMarkers = []string{
	"impossible", "cannot be done", "no way to", "contradiction",
}

// Execute scores input {"idea_text": string}. Output data carries
// feasibility_score in [0,1] and reward_score in [-1,1].
func (t *IdeaVerificationTool) Execute(_ context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	text, _ := input["idea_text"].(string)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("idea_text cannot be empty")
	}

	lower := strings.ToLower(text)
	score := 0.5

	for _, m := range concretenessMarkers {
		if strings.Contains(lower, m) {
			score += 0.06
		}
	}
	for _, m := range vaguenessMarkers {
		if strings.Contains(lower, m) {
			score -= 0.15
		}
	}
	for _, m := range infeasibilityMarkers {
		if strings.Contains(lower, m) {
			score -= 0.3
		}
	}

	// Very short propositions carry little signal either way.
	if len([]rune(text)) < 20 {
		score = 0.5*score + 0.25
	}

	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	// Map feasibility to a reward in [-1, 1], damped.
	reward := (score - 0.5) * 2 * 0.8

	return &Result{
		Success: true,
		Data: map[string]any{
			"feasibility_score": score,
			"reward_score":      reward,
			"details":           fmt.Sprintf("heuristic verification over %d chars", len(text)),
		},
		ExecutionTime: time.Since(start),
	}, nil
}
