package interpreter

import (
	"strings"
	"unicode/utf8"
)

// VisualDecision is the outcome of the visual-intelligence check.
type VisualDecision struct {
	Generate   bool    `json:"generate"`
	Score      float64 `json:"score"`
	VisualType string  `json:"visual_type,omitempty"`
	Style      string  `json:"style,omitempty"`
	Timing     string  `json:"timing,omitempty"`
}

var (
	explicitVisualMarkers = []string{
		"draw", "picture", "image of", "illustrate", "visualize", "show me a",
		"画", "图片", "插图", "示意图",
	}
	educationalMarkers = []string{"explain", "how does", "structure of", "architecture", "原理", "结构", "流程"}
	creativeMarkers    = []string{"story", "poem", "imagine", "design", "设计", "想象", "创作"}
	emotionalMarkers   = []string{"feel", "sad", "happy", "lonely", "心情", "难过", "开心"}
	urgencyMarkers     = []string{"urgent", "asap", "immediately", "紧急", "马上", "立刻"}
)

// DecideVisual weighs the opportunity for a generated visual against the
// risk of producing one at the wrong moment.
func DecideVisual(query string) VisualDecision {
	lower := strings.ToLower(query)

	explicit := containsAny(lower, explicitVisualMarkers)
	opportunity := 0.0
	visualType := "illustration"
	style := "realistic"

	if explicit {
		opportunity += 0.5
	}
	if containsAny(lower, educationalMarkers) {
		opportunity += 0.25
		visualType = "diagram"
		style = "schematic"
	}
	if containsAny(lower, creativeMarkers) {
		opportunity += 0.25
		visualType = "artwork"
		style = "expressive"
	}
	if containsAny(lower, emotionalMarkers) {
		opportunity += 0.15
	}

	risk := 0.0
	if containsAny(lower, urgencyMarkers) {
		risk += 0.3
	}
	if utf8.RuneCountInString(query) > 200 {
		risk += 0.2
	}

	score := opportunity - 0.5*risk
	threshold := 0.45
	if explicit {
		threshold = 0.3
	}

	d := VisualDecision{Score: score}
	if score < threshold {
		return d
	}
	d.Generate = true
	d.VisualType = visualType
	d.Style = style
	d.Timing = "after_answer"
	if explicit {
		d.Timing = "immediate"
	}
	return d
}

// attachVisual runs the visual check when an image tool is registered. A
// positive decision adds an action to tool plans and a suggestion to
// direct-answer plans, preserving plan validity either way.
func (i *Interpreter) attachVisual(plan *Plan, query string) {
	if !i.registry.Has("image_generation") {
		return
	}
	d := DecideVisual(query)
	if plan.Metadata == nil {
		plan.Metadata = make(map[string]any)
	}
	plan.Metadata["visual"] = d
	if !d.Generate {
		return
	}
	if len(plan.Actions) > 0 {
		plan.Actions = append(plan.Actions, Action{
			ToolName: "image_generation",
			ToolInput: map[string]any{
				"prompt": query,
				"style":  d.Style,
				"type":   d.VisualType,
			},
		})
	}
}
