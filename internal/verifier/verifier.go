// Package verifier defines the idea-verification contract the decision
// pipeline consumes. Verification is advisory: it must never fail into the
// pipeline, so every error path degrades to the neutral fallback result.
package verifier

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/metrics"
	"github.com/mindforge-ai/mindforge/internal/tools"
)

// Result scores one proposition.
type Result struct {
	// Feasibility is in [0, 1].
	Feasibility float64 `json:"feasibility_score"`
	// Reward is in [-1, 1].
	Reward float64 `json:"reward_score"`
	// Fallback marks a degraded result the caller should not learn from.
	Fallback bool   `json:"fallback"`
	Details  string `json:"details,omitempty"`
}

// Fallback is the neutral result used whenever verification cannot run.
func Fallback(details string) Result {
	return Result{Feasibility: 0.5, Reward: 0.0, Fallback: true, Details: details}
}

// Verifier scores propositions.
type Verifier interface {
	Verify(ctx context.Context, text string, extra map[string]any) Result
}

// ToolVerifier verifies through the idea_verification tool in the registry.
type ToolVerifier struct {
	registry *tools.Registry
	timeout  time.Duration
	log      zerolog.Logger
}

// NewToolVerifier builds a verifier over the registry. timeout bounds each
// verification call (zero means 60s).
func NewToolVerifier(registry *tools.Registry, timeout time.Duration, log zerolog.Logger) *ToolVerifier {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ToolVerifier{registry: registry, timeout: timeout, log: log}
}

// Verify scores text. Any failure, including a panicking tool, returns the
// neutral fallback.
func (v *ToolVerifier) Verify(ctx context.Context, text string, extra map[string]any) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error().Interface("panic", r).Msg("verification tool panicked")
			metrics.VerifierFallbacksTotal.Inc()
			result = Fallback("verification panicked")
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, v.timeout)
	defer cancel()

	input := map[string]any{"idea_text": text}
	for k, val := range extra {
		input[k] = val
	}

	res, err := v.registry.Execute(ctx, "idea_verification", input)
	if err != nil || !res.Success {
		metrics.VerifierFallbacksTotal.Inc()
		if err != nil {
			v.log.Warn().Err(err).Msg("verification unavailable")
			return Fallback(err.Error())
		}
		return Fallback(res.Error)
	}

	feasibility, okF := toFloat(res.Data["feasibility_score"])
	reward, okR := toFloat(res.Data["reward_score"])
	if !okF || !okR {
		metrics.VerifierFallbacksTotal.Inc()
		return Fallback("verification returned malformed scores")
	}

	details, _ := res.Data["details"].(string)
	return Result{
		Feasibility: clamp(feasibility, 0, 1),
		Reward:      clamp(reward, -1, 1),
		Details:     details,
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
