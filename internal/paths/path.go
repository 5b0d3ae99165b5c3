// Package paths defines the ReasoningPath model and the candidate path
// generator. A path is one strategy instance: the bandit learns on its
// strategy_id while instance_id traces a single generation.
package paths

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// LearningSource records how a strategy entered the system.
type LearningSource string

const (
	SourceStaticTemplate     LearningSource = "static_template"
	SourceLearnedExploration LearningSource = "learned_exploration"
	SourceManualAddition     LearningSource = "manual_addition"
	SourceEvolved            LearningSource = "evolved"
)

// ValidationStatus tracks verification state of a path.
type ValidationStatus string

const (
	StatusUnverified  ValidationStatus = "unverified"
	StatusPending     ValidationStatus = "pending"
	StatusVerified    ValidationStatus = "verified"
	StatusConflicting ValidationStatus = "conflicting"
)

// Provenance is optional lineage metadata. Relationships are stored by
// strategy_id so the structure serializes without cycles.
type Provenance struct {
	Sources     []string            `json:"sources,omitempty"`
	Validations []string            `json:"validations,omitempty"`
	Updates     []string            `json:"updates,omitempty"`
	Related     map[string][]string `json:"related,omitempty"`
}

// ReasoningPath is a candidate strategy instance.
type ReasoningPath struct {
	// StrategyID is the stable family key the bandit learns on. It is
	// always NormalizeStrategyID(PathType).
	StrategyID string `json:"strategy_id"`

	// InstanceID uniquely traces this generation.
	InstanceID string `json:"instance_id"`

	PathType       string         `json:"path_type"`
	Description    string         `json:"description"`
	PromptTemplate string         `json:"prompt_template,omitempty"`
	LearningSource LearningSource `json:"learning_source"`

	ConfidenceScore  float64          `json:"confidence_score"`
	ValidationStatus ValidationStatus `json:"validation_status"`

	Provenance *Provenance `json:"provenance,omitempty"`
}

// NormalizeStrategyID derives the deterministic family key from a path type.
// "Systematic Analytical" and "systematic-analytical" normalize identically.
func NormalizeStrategyID(pathType string) string {
	var b strings.Builder
	lastUnderscore := true
	for _, r := range strings.ToLower(strings.TrimSpace(pathType)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastUnderscore = false
		} else if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}

// NewInstanceID mints a unique trace identifier for one generation of a
// strategy.
func NewInstanceID(strategyID string) string {
	return fmt.Sprintf("%s_%d_%s", strategyID, time.Now().UnixNano(), uuid.NewString()[:8])
}

// DetourStrategyID names the synthetic strategy used when no candidate
// survives verification.
const DetourStrategyID = "creative_detour"

// Detour synthesizes the creative fallback path for a query.
func Detour(query string) ReasoningPath {
	return ReasoningPath{
		StrategyID:     DetourStrategyID,
		InstanceID:     NewInstanceID(DetourStrategyID),
		PathType:       "Creative Detour",
		Description:    "Lateral approach taken when conventional strategies are infeasible: reframe the problem, borrow analogies from adjacent domains, and search sideways.",
		PromptTemplate: "Conventional approaches failed for: {query}. Step back, reframe the problem from an unexpected angle, and propose a creative route to an answer.",
		LearningSource: SourceStaticTemplate,
		ConfidenceScore:  0.5,
		ValidationStatus: StatusUnverified,
	}
}
