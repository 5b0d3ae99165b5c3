// Package decision orchestrates the five-stage verify-then-learn pipeline:
// triage and seed, seed verification, path generation, per-path verification
// with online learning, and final bandit selection.
package decision

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/metrics"
	"github.com/mindforge-ai/mindforge/internal/paths"
	"github.com/mindforge-ai/mindforge/internal/reasoner"
	"github.com/mindforge-ai/mindforge/internal/verifier"
)

// Selection algorithm names the pipeline itself produces. Golden and bandit
// names come back from the selector.
const (
	AlgorithmDetour           = "intelligent_detour"
	AlgorithmVerifiedMAB      = "verification_enhanced_mab"
	AlgorithmDeadlineFallback = "deadline_fallback"
)

// defaultFeasibilityCutoff separates usable paths from rejected ones.
const defaultFeasibilityCutoff = 0.3

// Triager classifies a query before resources are committed.
type Triager interface {
	ClassifyAndRoute(ctx context.Context, query string, extra map[string]any) reasoner.Triage
}

// PathGenerator produces candidate reasoning paths.
type PathGenerator interface {
	Generate(ctx context.Context, seed, query string, maxPaths int) []paths.ReasoningPath
}

// Selector is the slice of the bandit the pipeline drives.
type Selector interface {
	SelectBestPath(candidates []paths.ReasoningPath, algorithm string) (paths.ReasoningPath, string)
	UpdatePathPerformance(strategyID string, success bool, reward float64, source mab.FeedbackSource)
	TotalSelections() int
}

// VerifiedPath is one candidate with its verification verdict.
type VerifiedPath struct {
	Path        paths.ReasoningPath `json:"path"`
	Feasibility float64             `json:"feasibility"`
	Reward      float64             `json:"reward"`
	IsFeasible  bool                `json:"is_feasible"`
	Fallback    bool                `json:"fallback"`
}

// VerificationStats aggregates stage 2 and stage 4 outcomes.
type VerificationStats struct {
	SeedFeasibility    float64 `json:"seed_feasibility"`
	SeedReward         float64 `json:"seed_reward"`
	FeasibleCount      int     `json:"feasible_count"`
	FallbackCount      int     `json:"fallback_count"`
	AllPathsInfeasible bool    `json:"all_paths_infeasible"`
}

// StageTimings records per-stage wall time.
type StageTimings struct {
	Seed             time.Duration `json:"seed"`
	SeedVerification time.Duration `json:"seed_verification"`
	PathGeneration   time.Duration `json:"path_generation"`
	PathVerification time.Duration `json:"path_verification"`
	Selection        time.Duration `json:"selection"`
	Total            time.Duration `json:"total"`
}

// Result is the pipeline output for one query.
type Result struct {
	Query              string                `json:"query"`
	ChosenPath         paths.ReasoningPath   `json:"chosen_path"`
	AvailablePaths     []paths.ReasoningPath `json:"available_paths"`
	VerifiedPaths      []VerifiedPath        `json:"verified_paths"`
	ThinkingSeed       string                `json:"thinking_seed"`
	Triage             reasoner.Triage       `json:"triage"`
	SeedVerification   verifier.Result       `json:"seed_verification"`
	VerificationStats  VerificationStats     `json:"verification_stats"`
	Timings            StageTimings          `json:"timings"`
	SelectionAlgorithm string                `json:"selection_algorithm"`
	Round              int                   `json:"round"`
	Degraded           bool                  `json:"degraded"`
	Timestamp          time.Time             `json:"timestamp"`
}

const (
	maxDecisionHistory  = 100
	trimDecisionHistory = 50
)

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMaxPaths overrides the candidate count asked of the generator.
func WithMaxPaths(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxPaths = n
		}
	}
}

// WithPathObserver registers a callback invoked for every generated
// candidate, before verification.
func WithPathObserver(fn func(paths.ReasoningPath)) Option {
	return func(p *Pipeline) { p.observe = fn }
}

// WithHealthCheck supplies the provider health probe used to flag
// degraded results.
func WithHealthCheck(fn func() bool) Option {
	return func(p *Pipeline) { p.healthy = fn }
}

// WithFeasibilityCutoff overrides the verification score a path must
// exceed to count as feasible.
func WithFeasibilityCutoff(cutoff float64) Option {
	return func(p *Pipeline) {
		if cutoff >= 0 && cutoff <= 1 {
			p.cutoff = cutoff
		}
	}
}

// Pipeline runs decisions. Safe for concurrent use.
type Pipeline struct {
	triager   Triager
	generator PathGenerator
	verifier  verifier.Verifier
	selector  Selector
	log       zerolog.Logger

	maxPaths int
	cutoff   float64
	observe  func(paths.ReasoningPath)
	healthy  func() bool

	mu      sync.Mutex
	history []Result
}

// NewPipeline wires the five stages together.
func NewPipeline(triager Triager, gen PathGenerator, ver verifier.Verifier, sel Selector, log zerolog.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		triager:   triager,
		generator: gen,
		verifier:  ver,
		selector:  sel,
		log:       log,
		maxPaths:  paths.DefaultMaxPaths,
		cutoff:    defaultFeasibilityCutoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Decide runs the full pipeline for one query. It never panics and never
// hangs past the context deadline; on expiry it returns the best result
// assembled so far with a deadline_fallback marker.
func (p *Pipeline) Decide(ctx context.Context, query string, extra map[string]any) Result {
	start := time.Now()
	res := Result{Query: query, Timestamp: start}
	if p.healthy != nil && !p.healthy() {
		res.Degraded = true
	}

	// Stage 1: triage and thinking seed.
	stage := time.Now()
	res.Triage = p.triager.ClassifyAndRoute(ctx, query, extra)
	res.ThinkingSeed = reasoner.ThinkingSeed(query, res.Triage)
	res.Timings.Seed = time.Since(stage)
	if expired(ctx) {
		return p.finish(deadlineResult(res, query), start)
	}

	// Stage 2: verify the seed itself.
	stage = time.Now()
	res.SeedVerification = p.verifier.Verify(ctx, res.ThinkingSeed, map[string]any{"query": query})
	res.VerificationStats.SeedFeasibility = res.SeedVerification.Feasibility
	res.VerificationStats.SeedReward = res.SeedVerification.Reward
	res.Timings.SeedVerification = time.Since(stage)
	if expired(ctx) {
		return p.finish(deadlineResult(res, query), start)
	}

	// Stage 3: candidate generation.
	stage = time.Now()
	res.AvailablePaths = p.generator.Generate(ctx, res.ThinkingSeed, query, p.maxPaths)
	res.Timings.PathGeneration = time.Since(stage)
	if p.observe != nil {
		for _, c := range res.AvailablePaths {
			p.observe(c)
		}
	}
	if expired(ctx) {
		return p.finish(deadlineResult(res, query), start)
	}

	// Stage 4: per-path verification with online learning.
	stage = time.Now()
	for _, c := range res.AvailablePaths {
		if expired(ctx) {
			res.Timings.PathVerification = time.Since(stage)
			return p.finish(deadlineResult(res, query), start)
		}
		v := p.verifier.Verify(ctx, c.Description, map[string]any{"query": query})
		vp := VerifiedPath{
			Path:        c,
			Feasibility: v.Feasibility,
			Reward:      v.Reward,
			Fallback:    v.Fallback,
			IsFeasible:  v.Feasibility > p.cutoff && !v.Fallback,
		}
		p.selector.UpdatePathPerformance(c.StrategyID, vp.IsFeasible, v.Reward, mab.SourceToolVerification)
		if vp.IsFeasible {
			res.VerificationStats.FeasibleCount++
		}
		if v.Fallback {
			res.VerificationStats.FallbackCount++
		}
		res.VerifiedPaths = append(res.VerifiedPaths, vp)
	}
	res.Timings.PathVerification = time.Since(stage)

	// Stage 5: final selection.
	stage = time.Now()
	feasible := make([]paths.ReasoningPath, 0, len(res.VerifiedPaths))
	for _, vp := range res.VerifiedPaths {
		if vp.IsFeasible {
			feasible = append(feasible, vp.Path)
		}
	}

	if len(feasible) == 0 {
		res.VerificationStats.AllPathsInfeasible = true
		res.ChosenPath = paths.Detour(query)
		res.SelectionAlgorithm = AlgorithmDetour
		p.log.Warn().Str("query", query).Msg("no feasible path, taking intelligent detour")
	} else {
		chosen, algo := p.selector.SelectBestPath(feasible, mab.AlgorithmAuto)
		res.ChosenPath = chosen
		if algo == mab.AlgorithmGolden {
			res.SelectionAlgorithm = mab.AlgorithmGolden
		} else {
			res.SelectionAlgorithm = AlgorithmVerifiedMAB
		}
	}
	res.Timings.Selection = time.Since(stage)
	res.Round = p.selector.TotalSelections()

	return p.finish(res, start)
}

// deadlineResult picks the best content assembled so far.
func deadlineResult(res Result, query string) Result {
	res.SelectionAlgorithm = AlgorithmDeadlineFallback
	for _, vp := range res.VerifiedPaths {
		if vp.IsFeasible {
			res.ChosenPath = vp.Path
			return res
		}
	}
	if len(res.AvailablePaths) > 0 {
		res.ChosenPath = res.AvailablePaths[0]
		return res
	}
	res.ChosenPath = paths.Detour(query)
	return res
}

func (p *Pipeline) finish(res Result, start time.Time) Result {
	res.Timings.Total = time.Since(start)

	if res.SelectionAlgorithm == AlgorithmDeadlineFallback {
		p.log.Warn().Str("query", res.Query).Msg("decision deadline exceeded, returning best effort")
	}
	metrics.DecisionsTotal.WithLabelValues(res.SelectionAlgorithm).Inc()
	metrics.DecisionDuration.Observe(res.Timings.Total.Seconds())

	p.mu.Lock()
	p.history = append(p.history, res)
	if len(p.history) > maxDecisionHistory {
		p.history = append(p.history[:0], p.history[len(p.history)-trimDecisionHistory:]...)
	}
	p.mu.Unlock()

	p.log.Info().
		Str("algorithm", res.SelectionAlgorithm).
		Str("strategy", res.ChosenPath.StrategyID).
		Int("candidates", len(res.AvailablePaths)).
		Int("feasible", res.VerificationStats.FeasibleCount).
		Dur("total", res.Timings.Total).
		Msg("decision complete")
	return res
}

// History returns a copy of the bounded decision log.
func (p *Pipeline) History() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Result(nil), p.history...)
}

func expired(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
