// Package core assembles the cognitive engine: LLM multiplexer, triage,
// path generation, verification, bandit selection with golden templates and
// trial ground lifecycle, plan translation and state persistence, behind
// one façade.
package core

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/config"
	"github.com/mindforge-ai/mindforge/internal/decision"
	"github.com/mindforge-ai/mindforge/internal/golden"
	"github.com/mindforge-ai/mindforge/internal/interpreter"
	"github.com/mindforge-ai/mindforge/internal/llm"
	"github.com/mindforge-ai/mindforge/internal/logging"
	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/paths"
	"github.com/mindforge-ai/mindforge/internal/reasoner"
	"github.com/mindforge-ai/mindforge/internal/state"
	"github.com/mindforge-ai/mindforge/internal/tools"
	"github.com/mindforge-ai/mindforge/internal/trial"
	"github.com/mindforge-ai/mindforge/internal/verifier"
)

// Stats aggregates observable state across subsystems.
type Stats struct {
	TotalSelections int                        `json:"total_selections"`
	Arms            map[string]mab.Arm         `json:"arms"`
	GoldenTemplates map[string]golden.Template `json:"golden_templates"`
	Trial           trial.Analytics            `json:"trial"`
	LLM             llm.Stats                  `json:"llm"`
	Decisions       int                        `json:"decisions"`
	Converged       bool                       `json:"converged"`
}

// Core owns all mutable engine state. Construct one per process, or per
// test; there are no package-level singletons besides the optional Default.
type Core struct {
	cfg *config.Config
	log zerolog.Logger

	mux       *llm.Multiplexer
	providers []string
	registry  *tools.Registry
	knowledge *tools.KnowledgeTool

	selector *mab.Selector
	golden   *golden.Registry
	trial    *trial.Ground

	pipeline *decision.Pipeline
	interp   *interpreter.Interpreter
	store    *state.Store
}

// New builds and wires a core from configuration.
func New(cfg *config.Config, log zerolog.Logger) (*Core, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	c := &Core{cfg: cfg, log: log}

	c.mux = llm.NewMultiplexer(llm.Options{
		PrimaryProvider:     cfg.LLM.PrimaryProvider,
		FallbackProviders:   cfg.LLM.FallbackProviders,
		MaxRetries:          cfg.LLM.MaxRetries,
		RequestInterval:     cfg.LLM.RequestInterval,
		CacheTTL:            cfg.LLM.CacheTTL,
		CacheSize:           cfg.LLM.CacheSize,
		HealthProbeInterval: cfg.LLM.HealthProbeInterval,
	}, logging.Component(log, "llm"))
	c.registerProviders()

	if err := c.buildTools(); err != nil {
		return nil, err
	}

	ver := verifier.NewToolVerifier(c.registry, cfg.Verifier.Timeout, logging.Component(log, "verifier"))
	triager := reasoner.New(c.mux, logging.Component(log, "reasoner"))
	gen := paths.NewGenerator(c.mux, logging.Component(log, "paths"))

	c.golden = golden.NewRegistry(golden.Config{
		SuccessRateThreshold: cfg.Golden.SuccessRateThreshold,
		MinSamplesRequired:   cfg.Golden.MinSamplesRequired,
		StabilityWindow:      cfg.Golden.StabilityWindow,
		MaxTemplates:         cfg.Golden.MaxTemplates,
	}, logging.Component(log, "golden"))

	c.selector = mab.NewSelector(mab.Config{
		ConvergenceThreshold: cfg.MAB.ConvergenceThreshold,
		MinSamples:           cfg.MAB.MinSamples,
		Seed:                 cfg.MAB.Seed,
	}, logging.Component(log, "mab"))

	c.trial = trial.NewGround(trial.Config{
		CullThreshold:           cfg.Trial.CullingThreshold,
		MinSamplesForCull:       cfg.Trial.CullingMinSamples,
		MaxConsecutiveFailures:  cfg.Trial.ConsecutiveFailuresLimit,
		WatchDuration:           cfg.Trial.WatchDuration,
		LearnedProtectionWindow: cfg.Trial.LearnedProtectionWindow,
		InitialBoostBudget:      cfg.Trial.ExplorationBoostRounds,
		LearnedPathBonus:        cfg.Trial.LearnedPathBonus,
	}, c.selector, c.golden.IsGolden, logging.Component(log, "trial"))

	c.selector.SetLifecycle(c.trial)
	c.selector.SetTemplateMatcher(c.golden)

	c.pipeline = decision.NewPipeline(triager, gen, ver, c.selector,
		logging.Component(log, "decision"),
		decision.WithMaxPaths(cfg.Paths.MaxPaths),
		decision.WithFeasibilityCutoff(cfg.Verifier.FeasibilityCutoff),
		decision.WithPathObserver(c.golden.Observe),
		decision.WithHealthCheck(c.anyProviderHealthy),
	)
	c.interp = interpreter.New(c.mux, c.registry, logging.Component(log, "interpreter"))

	if cfg.State.Enabled {
		c.store = state.NewStore(cfg.State.Path, logging.Component(log, "state"))
		if err := c.restoreState(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Core) registerProviders() {
	for name, pc := range c.cfg.LLM.Providers {
		base := llm.DefaultConfig(name)
		if base == nil {
			c.log.Warn().Str("provider", name).Msg("unknown provider in config, skipping")
			continue
		}
		if pc.Endpoint != "" {
			base.Endpoint = pc.Endpoint
		}
		if pc.APIKey != "" {
			base.APIKey = pc.APIKey
		}
		if pc.Model != "" {
			base.Model = pc.Model
		}
		if pc.MaxTokens > 0 {
			base.MaxTokens = pc.MaxTokens
		}
		if pc.Temperature > 0 {
			base.Temperature = pc.Temperature
		}
		if c.cfg.LLM.ReadTimeout > 0 {
			base.Timeout = c.cfg.LLM.ReadTimeout
		}

		var p llm.Provider
		switch name {
		case "ollama":
			p = llm.NewOllamaProvider(base)
		case "openai":
			p = llm.NewOpenAIProvider(base)
		case "anthropic":
			p = llm.NewAnthropicProvider(base)
		}
		c.mux.Register(p)
		c.providers = append(c.providers, name)
	}
}

func (c *Core) buildTools() error {
	c.registry = tools.NewRegistry()
	c.registry.Register(tools.NewIdeaVerificationTool())

	key := c.cfg.Tools.TavilyAPIKey
	if key == "" {
		key = os.Getenv("TAVILY_API_KEY")
	}
	if key != "" {
		c.registry.Register(tools.NewWebSearchTool(tools.WithAPIKey(key)))
	}

	if c.cfg.Tools.KnowledgeDB != "" {
		kt, err := tools.NewKnowledgeTool(c.cfg.Tools.KnowledgeDB)
		if err != nil {
			return fmt.Errorf("open knowledge db: %w", err)
		}
		c.knowledge = kt
		c.registry.Register(kt)
	}
	return nil
}

func (c *Core) anyProviderHealthy() bool {
	for _, name := range c.providers {
		if c.mux.Healthy(name) {
			return true
		}
	}
	return false
}

// Decide runs the five-stage pipeline for a query.
func (c *Core) Decide(ctx context.Context, query string, extra map[string]any) decision.Result {
	return c.pipeline.Decide(ctx, query, extra)
}

// Plan runs a full decision and translates the chosen path into an
// executable plan. The returned plan is always valid.
func (c *Core) Plan(ctx context.Context, query string, extra map[string]any) (interpreter.Plan, decision.Result) {
	res := c.Decide(ctx, query, extra)
	plan := c.interp.ToPlan(ctx, res.ChosenPath, query, res.ThinkingSeed)
	if plan.Metadata == nil {
		plan.Metadata = make(map[string]any)
	}
	plan.Metadata["degraded"] = res.Degraded
	plan.Metadata["selection_algorithm"] = res.SelectionAlgorithm
	return plan, res
}

// RecordOutcome feeds external feedback into the bandit. Deliberately not
// idempotent: two identical calls update the counters twice.
func (c *Core) RecordOutcome(strategyID string, success bool, reward float64, source mab.FeedbackSource) {
	c.selector.UpdatePathPerformance(strategyID, success, reward, source)
}

// RegisterStrategy adds a strategy by hand, with the manual warm start.
func (c *Core) RegisterStrategy(strategyID string) {
	c.selector.EnsureArm(strategyID, paths.SourceManualAddition)
}

// RegisterLearnedStrategy adds a learned strategy with its warm start,
// exploration boost and protection window.
func (c *Core) RegisterLearnedStrategy(strategyID string) {
	c.selector.EnsureArm(strategyID, paths.SourceLearnedExploration)
}

// RegisterTool exposes an extra tool to the interpreter and verifier.
func (c *Core) RegisterTool(t tools.Tool) {
	c.registry.Register(t)
}

// ForcePromote installs a golden template for a strategy regardless of its
// record. Unknown strategies are ignored.
func (c *Core) ForcePromote(strategyID, reason string) bool {
	arm, ok := c.selector.Snapshot(strategyID)
	if !ok {
		return false
	}
	c.golden.ForcePromote(arm, reason)
	return true
}

// RevokeGolden removes a template by hand.
func (c *Core) RevokeGolden(strategyID, reason string) bool {
	return c.golden.Revoke(strategyID, reason)
}

// Maintain runs the trial ground sweep. Returns how many strategies were
// culled.
func (c *Core) Maintain() int {
	return c.trial.Maintain()
}

// ExecuteAction runs one plan action against the tool registry.
func (c *Core) ExecuteAction(ctx context.Context, a interpreter.Action) (*tools.Result, error) {
	return c.registry.Execute(ctx, a.ToolName, a.ToolInput)
}

// GetStats returns a cross-subsystem snapshot.
func (c *Core) GetStats() Stats {
	return Stats{
		TotalSelections: c.selector.TotalSelections(),
		Arms:            c.selector.Arms(),
		GoldenTemplates: c.golden.Templates(),
		Trial:           c.trial.Stats(),
		LLM:             c.mux.GetStats(),
		Decisions:       len(c.pipeline.History()),
		Converged:       c.selector.CheckPathConvergence(),
	}
}

// SaveState writes the learned state snapshot, when persistence is enabled.
func (c *Core) SaveState() error {
	if c.store == nil {
		return nil
	}
	return c.store.Save(state.Snapshot{
		Arms:            c.selector.Arms(),
		TotalSelections: c.selector.TotalSelections(),
		Golden:          c.golden.Templates(),
		Trial:           c.trial.Export(),
	})
}

func (c *Core) restoreState() error {
	snap, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("restore state: %w", err)
	}
	if snap == nil {
		c.log.Info().Msg("no saved state, cold start")
		return nil
	}
	c.selector.Restore(snap.Arms, snap.TotalSelections)
	c.golden.Restore(snap.Golden)
	c.trial.Restore(snap.Trial)
	c.log.Info().
		Int("arms", len(snap.Arms)).
		Int("templates", len(snap.Golden)).
		Msg("state restored")
	return nil
}

// Close persists state and releases tool resources.
func (c *Core) Close() error {
	err := c.SaveState()
	if c.knowledge != nil {
		if cerr := c.knowledge.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

var (
	defaultMu   sync.Mutex
	defaultCore *Core
)

// Default returns the process-wide convenience instance, building it from
// the on-disk configuration on first use.
func Default() (*Core, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultCore != nil {
		return defaultCore, nil
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logging.New(logging.Config{Level: cfg.Logging.Level, Console: cfg.Logging.Console})
	c, err := New(cfg, log)
	if err != nil {
		return nil, err
	}
	defaultCore = c
	return c, nil
}

// SetDefault replaces the convenience instance, for tests and embedders.
func SetDefault(c *Core) {
	defaultMu.Lock()
	defaultCore = c
	defaultMu.Unlock()
}
