// Package trial implements the trial ground: newly learned strategies get a
// decaying exploration boost and a protection window, chronic losers get
// watched and eventually culled. Golden templates are never culled.
package trial

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/metrics"
	"github.com/mindforge-ai/mindforge/internal/paths"
)

// Config holds the boost and culling tunables.
type Config struct {
	// CullThreshold is the success rate under which an arm becomes a
	// culling candidate.
	CullThreshold float64
	// MinSamplesForCull gates all rate-based culling rules.
	MinSamplesForCull int
	// MaxConsecutiveFailures culls immediately, protection or not.
	MaxConsecutiveFailures int
	// WatchDuration is how long a candidate must stay bad before the
	// sustained-underperformance rule fires.
	WatchDuration time.Duration
	// LearnedProtectionWindow shields fresh learned strategies from
	// rate-based culling.
	LearnedProtectionWindow time.Duration
	// InitialBoostBudget is the number of selections a boost lasts.
	InitialBoostBudget int
	// LearnedPathBonus is the full-strength decaying boost increment.
	LearnedPathBonus float64
	// PermanentLearnedBonus remains after the decaying boost runs out.
	PermanentLearnedBonus float64
}

// ArmStore is the slice of the selector the trial ground needs. Calls into
// it are always made without holding the ground's lock.
type ArmStore interface {
	Remove(strategyID string)
	Arms() map[string]mab.Arm
}

// CullRecord is one entry of the bounded culled-path log.
type CullRecord struct {
	StrategyID  string    `json:"strategy_id"`
	Reason      string    `json:"reason"`
	SuccessRate float64   `json:"success_rate"`
	Samples     int       `json:"samples"`
	Timestamp   time.Time `json:"timestamp"`
}

// WatchEntry describes one culling candidate under observation.
type WatchEntry struct {
	StrategyID          string    `json:"strategy_id"`
	SuccessRate         float64   `json:"success_rate"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	Since               time.Time `json:"since"`
}

// BoostState is the serializable remainder of a decaying boost.
type BoostState struct {
	Remaining int `json:"remaining"`
	Initial   int `json:"initial"`
}

// Metadata is the persistable trial ground state.
type Metadata struct {
	Learned map[string]time.Time  `json:"learned"`
	Boosts  map[string]BoostState `json:"boosts"`
}

// Analytics summarizes the ground for stats reporting.
type Analytics struct {
	LearnedPaths int `json:"learned_paths"`
	ActiveBoosts int `json:"active_boosts"`
	Watched      int `json:"watched"`
	CulledTotal  int `json:"culled_total"`
}

const (
	maxCullHistory  = 100
	trimCullHistory = 50
)

// Ground tracks boosts and culling candidates. It implements the
// selector's Lifecycle hook.
type Ground struct {
	mu          sync.Mutex
	cfg         Config
	store       ArmStore
	isGolden    func(strategyID string) bool
	learned     map[string]time.Time
	boosts      map[string]*BoostState
	watch       map[string]*WatchEntry
	culled      []CullRecord
	culledTotal int
	log         zerolog.Logger
	now         func() time.Time
}

// NewGround builds a trial ground. isGolden may be nil when no template
// registry is attached.
func NewGround(cfg Config, store ArmStore, isGolden func(string) bool, log zerolog.Logger) *Ground {
	if cfg.CullThreshold <= 0 {
		cfg.CullThreshold = 0.25
	}
	if cfg.MinSamplesForCull <= 0 {
		cfg.MinSamplesForCull = 20
	}
	if cfg.MaxConsecutiveFailures <= 0 {
		cfg.MaxConsecutiveFailures = 10
	}
	if cfg.WatchDuration <= 0 {
		cfg.WatchDuration = 30 * time.Minute
	}
	if cfg.LearnedProtectionWindow <= 0 {
		cfg.LearnedProtectionWindow = time.Hour
	}
	if cfg.InitialBoostBudget <= 0 {
		cfg.InitialBoostBudget = 10
	}
	if cfg.LearnedPathBonus <= 0 {
		cfg.LearnedPathBonus = 0.15
	}
	if cfg.PermanentLearnedBonus <= 0 {
		cfg.PermanentLearnedBonus = 0.05
	}
	return &Ground{
		cfg:      cfg,
		store:    store,
		isGolden: isGolden,
		learned:  make(map[string]time.Time),
		boosts:   make(map[string]*BoostState),
		watch:    make(map[string]*WatchEntry),
		log:      log,
		now:      time.Now,
	}
}

// OnArmCreated registers fresh learned or manually added strategies for a
// decaying boost. Learned ones additionally start their protection window.
func (g *Ground) OnArmCreated(strategyID string, source paths.LearningSource) {
	if source != paths.SourceLearnedExploration && source != paths.SourceManualAddition {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if source == paths.SourceLearnedExploration {
		if _, ok := g.learned[strategyID]; !ok {
			g.learned[strategyID] = g.now()
		}
	}
	if _, ok := g.boosts[strategyID]; !ok {
		g.boosts[strategyID] = &BoostState{
			Remaining: g.cfg.InitialBoostBudget,
			Initial:   g.cfg.InitialBoostBudget,
		}
	}
}

// Boost returns the current exploration factor. The decaying part shrinks
// with the remaining budget; learned strategies keep a small permanent
// bonus after it runs out.
func (g *Ground) Boost(strategyID string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	boost := 1.0
	if b, ok := g.boosts[strategyID]; ok && b.Initial > 0 {
		boost += g.cfg.LearnedPathBonus * float64(b.Remaining) / float64(b.Initial)
	}
	if _, ok := g.learned[strategyID]; ok {
		boost += g.cfg.PermanentLearnedBonus
	}
	return boost
}

// HasActiveBoost reports whether any decaying budget remains.
func (g *Ground) HasActiveBoost(strategyID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	b, ok := g.boosts[strategyID]
	return ok && b.Remaining > 0
}

// NoteSelection burns one unit of boost budget.
func (g *Ground) NoteSelection(strategyID string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	b, ok := g.boosts[strategyID]
	if !ok {
		return
	}
	b.Remaining--
	if b.Remaining <= 0 {
		delete(g.boosts, strategyID)
	}
}

// AfterUpdate runs the culling rules on a post-feedback arm snapshot. The
// actual removal happens after the ground's lock is released, because the
// selector takes its own lock first during scoring.
func (g *Ground) AfterUpdate(arm mab.Arm) {
	reason := g.evaluate(arm)
	if reason == "" {
		return
	}
	g.store.Remove(arm.StrategyID)
	g.log.Info().
		Str("strategy", arm.StrategyID).
		Str("reason", reason).
		Float64("success_rate", arm.SuccessRate()).
		Msg("path culled")
}

// evaluate updates the watchlist and returns a cull reason, or "".
func (g *Ground) evaluate(arm mab.Arm) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	sid := arm.StrategyID
	if g.isGolden != nil && g.isGolden(sid) {
		delete(g.watch, sid)
		return ""
	}

	now := g.now()
	sr := arm.SuccessRate()

	if arm.Samples() >= g.cfg.MinSamplesForCull {
		switch {
		case sr < g.cfg.CullThreshold:
			if w, ok := g.watch[sid]; ok {
				w.SuccessRate = sr
				w.ConsecutiveFailures = arm.ConsecutiveFailures
			} else {
				g.watch[sid] = &WatchEntry{
					StrategyID:          sid,
					SuccessRate:         sr,
					ConsecutiveFailures: arm.ConsecutiveFailures,
					Since:               now,
				}
			}
		case sr >= 1.2*g.cfg.CullThreshold:
			// Recovered with margin; stop watching.
			delete(g.watch, sid)
		}
	}

	started, learned := g.learned[sid]
	inProtection := learned && now.Sub(started) < g.cfg.LearnedProtectionWindow

	var reason string
	switch {
	case arm.ConsecutiveFailures >= g.cfg.MaxConsecutiveFailures:
		reason = "consecutive_failures"
	case inProtection:
		return ""
	case arm.Samples() < g.cfg.MinSamplesForCull:
		return ""
	case learned && sr <= 0.5*g.cfg.CullThreshold:
		reason = "severe_underperformance"
	case g.watchedLongEnoughLocked(sid, now) && sr < 0.8*g.cfg.CullThreshold:
		reason = "sustained_underperformance"
	case arm.Samples() > 50 && sr < g.cfg.CullThreshold:
		reason = "persistent_mediocrity"
	default:
		return ""
	}

	g.cullLocked(sid, reason, sr, arm.Samples(), now)
	return reason
}

func (g *Ground) watchedLongEnoughLocked(sid string, now time.Time) bool {
	w, ok := g.watch[sid]
	return ok && now.Sub(w.Since) >= g.cfg.WatchDuration
}

func (g *Ground) cullLocked(sid, reason string, sr float64, samples int, now time.Time) {
	delete(g.watch, sid)
	delete(g.boosts, sid)
	delete(g.learned, sid)

	g.culled = append(g.culled, CullRecord{
		StrategyID:  sid,
		Reason:      reason,
		SuccessRate: sr,
		Samples:     samples,
		Timestamp:   now,
	})
	if len(g.culled) > maxCullHistory {
		g.culled = append(g.culled[:0], g.culled[len(g.culled)-trimCullHistory:]...)
	}
	g.culledTotal++
	metrics.PathsCulledTotal.Inc()
}

// Maintain sweeps every stored arm through the culling rules and prunes
// watch entries for arms that no longer exist. Returns how many were culled.
func (g *Ground) Maintain() int {
	arms := g.store.Arms()

	var toCull []string
	for _, arm := range arms {
		if reason := g.evaluate(arm); reason != "" {
			toCull = append(toCull, arm.StrategyID)
			g.log.Info().
				Str("strategy", arm.StrategyID).
				Str("reason", reason).
				Msg("path culled during maintenance")
		}
	}
	for _, sid := range toCull {
		g.store.Remove(sid)
	}

	g.mu.Lock()
	for sid := range g.watch {
		if _, ok := arms[sid]; !ok {
			delete(g.watch, sid)
		}
	}
	g.mu.Unlock()

	return len(toCull)
}

// Watchlist returns a copy of the current culling candidates.
func (g *Ground) Watchlist() []WatchEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]WatchEntry, 0, len(g.watch))
	for _, w := range g.watch {
		out = append(out, *w)
	}
	return out
}

// CulledHistory returns a copy of the bounded cull log.
func (g *Ground) CulledHistory() []CullRecord {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]CullRecord(nil), g.culled...)
}

// Stats summarizes the ground.
func (g *Ground) Stats() Analytics {
	g.mu.Lock()
	defer g.mu.Unlock()

	active := 0
	for _, b := range g.boosts {
		if b.Remaining > 0 {
			active++
		}
	}
	return Analytics{
		LearnedPaths: len(g.learned),
		ActiveBoosts: active,
		Watched:      len(g.watch),
		CulledTotal:  g.culledTotal,
	}
}

// Export returns the persistable state.
func (g *Ground) Export() Metadata {
	g.mu.Lock()
	defer g.mu.Unlock()

	meta := Metadata{
		Learned: make(map[string]time.Time, len(g.learned)),
		Boosts:  make(map[string]BoostState, len(g.boosts)),
	}
	for sid, t := range g.learned {
		meta.Learned[sid] = t
	}
	for sid, b := range g.boosts {
		meta.Boosts[sid] = *b
	}
	return meta
}

// Restore replaces the persistable state, used on startup.
func (g *Ground) Restore(meta Metadata) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.learned = make(map[string]time.Time, len(meta.Learned))
	for sid, t := range meta.Learned {
		g.learned[sid] = t
	}
	g.boosts = make(map[string]*BoostState, len(meta.Boosts))
	for sid, b := range meta.Boosts {
		copied := b
		g.boosts[sid] = &copied
	}
}
