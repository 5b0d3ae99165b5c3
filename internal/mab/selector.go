package mab

import (
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/paths"
)

// Selection algorithm names.
const (
	AlgorithmAuto     = "auto"
	AlgorithmThompson = "thompson_sampling"
	AlgorithmUCB      = "ucb_variant"
	AlgorithmEpsilon  = "epsilon_greedy"

	// AlgorithmGolden marks selections short-circuited by a golden
	// template match; no arm state is touched.
	AlgorithmGolden = "golden_template"

	// AlgorithmSingle marks the trivial one-candidate case; no PRNG draw.
	AlgorithmSingle = "single_candidate"
)

// Lifecycle receives arm lifecycle events. The Trial Ground implements it.
type Lifecycle interface {
	// OnArmCreated fires when an arm is lazily created.
	OnArmCreated(strategyID string, source paths.LearningSource)
	// Boost returns the exploration boost factor (>= 1.0).
	Boost(strategyID string) float64
	// HasActiveBoost reports whether a decaying boost entry remains.
	HasActiveBoost(strategyID string) bool
	// NoteSelection decrements the boost budget for a selected strategy.
	NoteSelection(strategyID string)
	// AfterUpdate runs the culling checks on a post-feedback snapshot.
	AfterUpdate(arm Arm)
}

// TemplateMatcher is the golden-template fast path consulted before any
// bandit draw. The registry implements it.
type TemplateMatcher interface {
	// MatchBest returns the candidate matched by a golden template, if any.
	MatchBest(candidates []paths.ReasoningPath) (paths.ReasoningPath, bool)
	// AfterUpdate runs the promotion check on a post-feedback snapshot.
	AfterUpdate(arm Arm)
}

// Config holds the selector tunables.
type Config struct {
	// ConvergenceThreshold bounds success-rate variance for convergence.
	ConvergenceThreshold float64
	// MinSamples gates convergence detection.
	MinSamples int
	// Seed fixes the PRNG; zero seeds from the clock.
	Seed int64
}

// SelectionRecord is one entry of the bounded selection history.
type SelectionRecord struct {
	Round      int       `json:"round"`
	StrategyID string    `json:"strategy_id"`
	Algorithm  string    `json:"algorithm"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}

const (
	maxSelectionHistory  = 100
	trimSelectionHistory = 50
)

// Selector owns the arms. One RWMutex guards arms, counters, history and
// the PRNG; selection mutates state so it takes the write lock.
type Selector struct {
	mu              sync.Mutex
	arms            map[string]*Arm
	totalSelections int
	history         []SelectionRecord
	rng             *rand.Rand

	cfg    Config
	trial  Lifecycle
	golden TemplateMatcher
	log    zerolog.Logger
}

// NewSelector builds a selector.
func NewSelector(cfg Config, log zerolog.Logger) *Selector {
	if cfg.ConvergenceThreshold <= 0 {
		cfg.ConvergenceThreshold = 0.05
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 10
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Selector{
		arms: make(map[string]*Arm),
		rng:  rand.New(rand.NewSource(seed)),
		cfg:  cfg,
		log:  log,
	}
}

// SetLifecycle attaches the trial ground hooks.
func (s *Selector) SetLifecycle(l Lifecycle) { s.trial = l }

// SetTemplateMatcher attaches the golden template fast path.
func (s *Selector) SetTemplateMatcher(m TemplateMatcher) { s.golden = m }

// EnsureArm lazily creates the arm for a strategy, applying the warm start
// for its learning source, and reports creation to the trial ground.
func (s *Selector) EnsureArm(strategyID string, source paths.LearningSource) {
	s.mu.Lock()
	created := s.ensureArmLocked(strategyID, source)
	s.mu.Unlock()

	if created && s.trial != nil {
		s.trial.OnArmCreated(strategyID, source)
	}
}

func (s *Selector) ensureArmLocked(strategyID string, source paths.LearningSource) bool {
	if _, ok := s.arms[strategyID]; ok {
		return false
	}

	arm := &Arm{
		StrategyID: strategyID,
		Source:     source,
		CreatedAt:  time.Now(),
	}
	switch source {
	case paths.SourceLearnedExploration:
		arm.SuccessCount = 1
		arm.TotalReward = 0.3
		arm.RewardHistory = []float64{0.3}
	case paths.SourceManualAddition:
		arm.SuccessCount = 1
		arm.TotalReward = 0.2
		arm.RewardHistory = []float64{0.2}
	}
	s.arms[strategyID] = arm
	return true
}

// SelectBestPath picks one candidate. The golden fast path is consulted
// first; a match bypasses the bandit entirely and leaves arm state alone.
// Returns the chosen path and the algorithm that chose it.
func (s *Selector) SelectBestPath(candidates []paths.ReasoningPath, algorithm string) (paths.ReasoningPath, string) {
	if len(candidates) == 0 {
		return paths.ReasoningPath{}, ""
	}

	if s.golden != nil {
		if match, ok := s.golden.MatchBest(candidates); ok {
			s.recordSelection(match.StrategyID, AlgorithmGolden, 1.0)
			return match, AlgorithmGolden
		}
	}

	// Arms exist before any scoring; creation callbacks run outside the lock.
	for _, p := range candidates {
		s.EnsureArm(p.StrategyID, p.LearningSource)
	}

	if len(candidates) == 1 {
		s.noteChosen(candidates[0].StrategyID, AlgorithmSingle, 1.0)
		return candidates[0], AlgorithmSingle
	}

	s.mu.Lock()
	if algorithm == "" || algorithm == AlgorithmAuto {
		algorithm = s.chooseAlgorithmLocked()
	}

	sids := uniqueStrategyIDs(candidates)
	var chosen string
	var score float64
	switch algorithm {
	case AlgorithmUCB:
		chosen, score = s.selectUCBLocked(sids)
	case AlgorithmEpsilon:
		chosen, score = s.selectEpsilonGreedyLocked(sids)
	default:
		algorithm = AlgorithmThompson
		chosen, score = s.selectThompsonLocked(sids)
	}
	s.mu.Unlock()

	s.noteChosen(chosen, algorithm, score)
	return firstWithStrategy(candidates, chosen), algorithm
}

// noteChosen bumps the chosen arm's activation, the global round counter
// and the boost budget.
func (s *Selector) noteChosen(strategyID, algorithm string, score float64) {
	s.mu.Lock()
	if arm, ok := s.arms[strategyID]; ok {
		arm.ActivationCount++
		arm.LastUsed = time.Now()
	}
	s.mu.Unlock()

	s.recordSelection(strategyID, algorithm, score)
	if s.trial != nil {
		s.trial.NoteSelection(strategyID)
	}
}

func (s *Selector) recordSelection(strategyID, algorithm string, score float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.totalSelections++
	s.history = append(s.history, SelectionRecord{
		Round:      s.totalSelections,
		StrategyID: strategyID,
		Algorithm:  algorithm,
		Score:      score,
		Timestamp:  time.Now(),
	})
	if len(s.history) > maxSelectionHistory {
		s.history = append(s.history[:0], s.history[len(s.history)-trimSelectionHistory:]...)
	}
}

// chooseAlgorithmLocked implements the auto policy: Thompson early and
// while unconverged, UCB in the middle band, epsilon-greedy once converged.
func (s *Selector) chooseAlgorithmLocked() string {
	if s.totalSelections < 15 {
		return AlgorithmThompson
	}
	level := s.convergenceLevelLocked()
	switch {
	case level < 0.4:
		return AlgorithmThompson
	case level < 0.7:
		return AlgorithmUCB
	default:
		return AlgorithmEpsilon
	}
}

// convergenceLevelLocked is max(0, 1 - 3.5*Var(success rates)) over arms
// with at least one sample.
func (s *Selector) convergenceLevelLocked() float64 {
	rates := make([]float64, 0, len(s.arms))
	for _, arm := range s.arms {
		if arm.Samples() > 0 {
			rates = append(rates, arm.SuccessRate())
		}
	}
	if len(rates) < 2 {
		return 0
	}
	level := 1 - 3.5*variance(rates)
	if level < 0 {
		return 0
	}
	return level
}

// UpdatePathPerformance folds one outcome into an arm and triggers the
// golden promotion check and trial culling check on the updated snapshot.
func (s *Selector) UpdatePathPerformance(strategyID string, success bool, reward float64, source FeedbackSource) {
	adjusted := sourceAdjustedReward(source, success, reward)

	s.mu.Lock()
	createdCold := s.ensureArmLocked(strategyID, paths.SourceStaticTemplate)
	arm := s.arms[strategyID]
	arm.recordFeedback(success, adjusted, time.Now())
	snapshot := arm.clone()
	s.mu.Unlock()

	if createdCold && s.trial != nil {
		s.trial.OnArmCreated(strategyID, paths.SourceStaticTemplate)
	}

	s.log.Debug().
		Str("strategy", strategyID).
		Bool("success", success).
		Float64("reward", adjusted).
		Str("source", string(source)).
		Msg("path performance updated")

	// Hooks run outside the lock; both call back into the selector.
	if s.golden != nil {
		s.golden.AfterUpdate(snapshot)
	}
	if s.trial != nil {
		s.trial.AfterUpdate(snapshot)
	}
}

// CheckPathConvergence reports whether the arms have converged: enough
// samples, at least two sampled arms, and success-rate variance inside
// 1.2x the configured threshold.
func (s *Selector) CheckPathConvergence() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := 0
	rates := make([]float64, 0, len(s.arms))
	for _, arm := range s.arms {
		total += arm.Samples()
		if arm.Samples() > 0 {
			rates = append(rates, arm.SuccessRate())
		}
	}
	if total < s.cfg.MinSamples || len(rates) < 2 {
		return false
	}
	return variance(rates) < 1.2*s.cfg.ConvergenceThreshold
}

// Snapshot returns a copy of one arm.
func (s *Selector) Snapshot(strategyID string) (Arm, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	arm, ok := s.arms[strategyID]
	if !ok {
		return Arm{}, false
	}
	return arm.clone(), true
}

// Arms returns copies of all arms keyed by strategy_id.
func (s *Selector) Arms() map[string]Arm {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]Arm, len(s.arms))
	for sid, arm := range s.arms {
		out[sid] = arm.clone()
	}
	return out
}

// Remove deletes an arm. Only the trial ground's culling calls this.
func (s *Selector) Remove(strategyID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.arms, strategyID)
}

// TotalSelections returns the global selection round counter.
func (s *Selector) TotalSelections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totalSelections
}

// SelectionHistory returns a copy of the bounded selection log.
func (s *Selector) SelectionHistory() []SelectionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SelectionRecord(nil), s.history...)
}

// Restore replaces arm state and the round counter, used by persistence.
func (s *Selector) Restore(arms map[string]Arm, totalSelections int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.arms = make(map[string]*Arm, len(arms))
	for sid, arm := range arms {
		a := arm.clone()
		s.arms[sid] = &a
	}
	s.totalSelections = totalSelections
}

func uniqueStrategyIDs(candidates []paths.ReasoningPath) []string {
	seen := make(map[string]bool, len(candidates))
	var out []string
	for _, p := range candidates {
		if !seen[p.StrategyID] {
			seen[p.StrategyID] = true
			out = append(out, p.StrategyID)
		}
	}
	sort.Strings(out)
	return out
}

func firstWithStrategy(candidates []paths.ReasoningPath, strategyID string) paths.ReasoningPath {
	for _, p := range candidates {
		if p.StrategyID == strategyID {
			return p
		}
	}
	return candidates[0]
}

func variance(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))

	v := 0.0
	for _, x := range xs {
		v += (x - mean) * (x - mean)
	}
	return v / float64(len(xs))
}

// boostFor consults the trial ground, defaulting to neutral.
func (s *Selector) boostFor(strategyID string) float64 {
	if s.trial == nil {
		return 1.0
	}
	b := s.trial.Boost(strategyID)
	if b < 1.0 || math.IsNaN(b) {
		return 1.0
	}
	return b
}

func (s *Selector) hasActiveBoost(strategyID string) bool {
	return s.trial != nil && s.trial.HasActiveBoost(strategyID)
}
