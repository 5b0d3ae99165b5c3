// Package golden maintains the golden template registry: strategies with a
// sustained excellent record get promoted to templates that short-circuit
// bandit selection entirely. Templates are absolutely protected from
// culling and survive restarts through the state snapshot.
package golden

import (
	"math"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/metrics"
	"github.com/mindforge-ai/mindforge/internal/paths"
)

// Config holds the promotion and capacity tunables.
type Config struct {
	// SuccessRateThreshold is the minimum overall success rate.
	SuccessRateThreshold float64
	// MinSamplesRequired is the minimum activation count.
	MinSamplesRequired int
	// StabilityWindow is how many trailing results must stay excellent.
	StabilityWindow int
	// MaxTemplates caps the registry; worst quality is evicted on overflow.
	MaxTemplates int
}

// Template is a promoted arm snapshot.
type Template struct {
	StrategyID      string    `json:"strategy_id"`
	PathType        string    `json:"path_type"`
	Description     string    `json:"description"`
	SuccessRate     float64   `json:"success_rate"`
	ActivationCount int       `json:"activation_count"`
	StabilityScore  float64   `json:"stability_score"`
	CreatedAt       time.Time `json:"created_at"`
	LastUpdated     time.Time `json:"last_updated"`
	UsageAsTemplate int       `json:"usage_as_template"`
}

// HistoryEvent records a promotion, revocation or eviction.
type HistoryEvent struct {
	Type       string    `json:"type"` // promoted, force_promoted, revoked, evicted
	StrategyID string    `json:"strategy_id"`
	Reason     string    `json:"reason,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// MatchRecord logs one fast-path hit.
type MatchRecord struct {
	StrategyID string    `json:"strategy_id"`
	InstanceID string    `json:"instance_id"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}

// matchThreshold is the minimum score for a fast-path hit.
const matchThreshold = 0.85

const (
	maxHistory  = 100
	trimHistory = 50
)

// pathInfo caches descriptive fields per strategy so promotion snapshots
// can match on path_type and description later.
type pathInfo struct {
	pathType    string
	description string
}

// Registry is the golden template store. It implements the selector's
// TemplateMatcher hook.
type Registry struct {
	mu        sync.Mutex
	cfg       Config
	templates map[string]*Template
	info      map[string]pathInfo
	history   []HistoryEvent
	matches   []MatchRecord
	log       zerolog.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(cfg Config, log zerolog.Logger) *Registry {
	if cfg.SuccessRateThreshold <= 0 {
		cfg.SuccessRateThreshold = 0.90
	}
	if cfg.MinSamplesRequired <= 0 {
		cfg.MinSamplesRequired = 20
	}
	if cfg.StabilityWindow <= 0 {
		cfg.StabilityWindow = 10
	}
	if cfg.MaxTemplates <= 0 {
		cfg.MaxTemplates = 50
	}
	return &Registry{
		cfg:       cfg,
		templates: make(map[string]*Template),
		info:      make(map[string]pathInfo),
		log:       log,
	}
}

// Observe caches a candidate's descriptive fields for later matching, and
// backfills templates promoted before the strategy was ever observed.
func (r *Registry) Observe(p paths.ReasoningPath) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.info[p.StrategyID] = pathInfo{pathType: p.PathType, description: p.Description}
	if t, ok := r.templates[p.StrategyID]; ok && t.PathType == "" {
		t.PathType = p.PathType
		t.Description = p.Description
	}
}

// IsGolden reports whether a strategy holds a template.
func (r *Registry) IsGolden(strategyID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.templates[strategyID]
	return ok
}

// Count returns the number of templates.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.templates)
}

// Templates returns a copy of the registry contents.
func (r *Registry) Templates() map[string]Template {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]Template, len(r.templates))
	for sid, t := range r.templates {
		out[sid] = *t
	}
	return out
}

// History returns a copy of the promotion/revocation log.
func (r *Registry) History() []HistoryEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]HistoryEvent(nil), r.history...)
}

// AfterUpdate refreshes an existing template's snapshot or runs the
// promotion check for an unpromoted arm. Selector hook; never blocks long.
func (r *Registry) AfterUpdate(arm mab.Arm) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if t, ok := r.templates[arm.StrategyID]; ok {
		t.SuccessRate = arm.SuccessRate()
		t.ActivationCount = arm.ActivationCount
		t.StabilityScore = stabilityOf(arm, r.cfg.StabilityWindow)
		t.LastUpdated = now
		return
	}

	if !r.eligibleLocked(arm) {
		return
	}
	r.promoteLocked(arm, "promoted", now)
}

// eligibleLocked is the three-part promotion predicate.
func (r *Registry) eligibleLocked(arm mab.Arm) bool {
	if arm.SuccessRate() < r.cfg.SuccessRateThreshold {
		return false
	}
	if arm.ActivationCount < r.cfg.MinSamplesRequired {
		return false
	}
	if len(arm.RecentResults) < r.cfg.StabilityWindow {
		return false
	}
	return stabilityOf(arm, r.cfg.StabilityWindow) >= 0.95*arm.SuccessRate()
}

// stabilityOf is the success rate over the trailing window of results.
func stabilityOf(arm mab.Arm, window int) float64 {
	n := len(arm.RecentResults)
	if n == 0 {
		return 0
	}
	if n > window {
		n = window
	}
	tail := arm.RecentResults[len(arm.RecentResults)-n:]
	wins := 0
	for _, ok := range tail {
		if ok {
			wins++
		}
	}
	return float64(wins) / float64(n)
}

func (r *Registry) promoteLocked(arm mab.Arm, eventType string, now time.Time) {
	info := r.info[arm.StrategyID]
	r.templates[arm.StrategyID] = &Template{
		StrategyID:      arm.StrategyID,
		PathType:        info.pathType,
		Description:     info.description,
		SuccessRate:     arm.SuccessRate(),
		ActivationCount: arm.ActivationCount,
		StabilityScore:  stabilityOf(arm, r.cfg.StabilityWindow),
		CreatedAt:       now,
		LastUpdated:     now,
	}
	r.appendHistoryLocked(HistoryEvent{Type: eventType, StrategyID: arm.StrategyID, Timestamp: now})
	metrics.GoldenPromotionsTotal.Inc()
	r.log.Info().Str("strategy", arm.StrategyID).Str("event", eventType).Msg("golden template promoted")

	r.evictIfOverLocked(now)
}

// evictIfOverLocked drops the lowest-quality template while over capacity.
func (r *Registry) evictIfOverLocked(now time.Time) {
	for len(r.templates) > r.cfg.MaxTemplates {
		worstID := ""
		worstQ := math.Inf(1)
		for sid, t := range r.templates {
			if q := quality(t, now); q < worstQ {
				worstQ = q
				worstID = sid
			}
		}
		delete(r.templates, worstID)
		r.appendHistoryLocked(HistoryEvent{Type: "evicted", StrategyID: worstID, Reason: "capacity", Timestamp: now})
	}
}

// quality ranks templates for eviction.
func quality(t *Template, now time.Time) float64 {
	usage := float64(t.UsageAsTemplate) / 10
	if usage > 1 {
		usage = 1
	}
	return 0.4*t.SuccessRate + 0.3*usage + 0.2*t.StabilityScore + 0.1*recency(t.LastUpdated, now)
}

// recency decays linearly from 1.0 at <= 24h to 0.0 at >= 7d.
func recency(lastUpdated time.Time, now time.Time) float64 {
	age := now.Sub(lastUpdated)
	day := 24 * time.Hour
	week := 7 * day
	switch {
	case age <= day:
		return 1
	case age >= week:
		return 0
	default:
		return 1 - float64(age-day)/float64(week-day)
	}
}

// MatchBest scores templates against candidates and returns the matched
// candidate when the top score clears the threshold and is unique.
func (r *Registry) MatchBest(candidates []paths.ReasoningPath) (paths.ReasoningPath, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.templates) == 0 || len(candidates) == 0 {
		return paths.ReasoningPath{}, false
	}

	var (
		best      paths.ReasoningPath
		bestT     *Template
		bestScore = math.Inf(-1)
		tied      bool
	)
	for _, t := range r.templates {
		for _, c := range candidates {
			score := matchScore(t, c)
			switch {
			case score > bestScore+1e-12:
				bestScore = score
				best = c
				bestT = t
				tied = false
			case math.Abs(score-bestScore) <= 1e-12:
				tied = true
			}
		}
	}

	if bestT == nil || bestScore < matchThreshold || tied {
		return paths.ReasoningPath{}, false
	}

	bestT.UsageAsTemplate++
	r.matches = append(r.matches, MatchRecord{
		StrategyID: bestT.StrategyID,
		InstanceID: best.InstanceID,
		Score:      bestScore,
		Timestamp:  time.Now(),
	})
	if len(r.matches) > maxHistory {
		r.matches = append(r.matches[:0], r.matches[len(r.matches)-trimHistory:]...)
	}
	return best, true
}

// matchScore combines identity, type, description similarity and a
// performance bonus.
func matchScore(t *Template, c paths.ReasoningPath) float64 {
	score := 0.0
	if t.StrategyID == c.StrategyID {
		score += 0.6
	}
	if t.PathType != "" && t.PathType == c.PathType {
		score += 0.4
	}
	score += 0.2 * jaccard(t.Description, c.Description)
	score += math.Min(0.2, t.SuccessRate-0.8)
	return score
}

// jaccard is word-set similarity of two descriptions.
func jaccard(a, b string) float64 {
	wa := wordSet(a)
	wb := wordSet(b)
	if len(wa) == 0 || len(wb) == 0 {
		return 0
	}
	inter := 0
	for w := range wa {
		if wb[w] {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

func wordSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		w = strings.Trim(w, ".,;:!?\"'()")
		if len(w) > 2 {
			out[w] = true
		}
	}
	return out
}

// Revoke removes a template by hand. Returns false when absent.
func (r *Registry) Revoke(strategyID, reason string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[strategyID]; !ok {
		return false
	}
	delete(r.templates, strategyID)
	r.appendHistoryLocked(HistoryEvent{
		Type: "revoked", StrategyID: strategyID, Reason: reason, Timestamp: time.Now(),
	})
	return true
}

// ForcePromote installs a template regardless of the promotion predicate.
func (r *Registry) ForcePromote(arm mab.Arm, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if t, ok := r.templates[arm.StrategyID]; ok {
		t.SuccessRate = arm.SuccessRate()
		t.ActivationCount = arm.ActivationCount
		t.LastUpdated = now
		return
	}
	r.promoteLocked(arm, "force_promoted", now)
	if reason != "" && len(r.history) > 0 {
		r.history[len(r.history)-1].Reason = reason
	}
}

// Restore replaces the registry contents, used by persistence.
func (r *Registry) Restore(templates map[string]Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates = make(map[string]*Template, len(templates))
	for sid, t := range templates {
		copied := t
		r.templates[sid] = &copied
	}
}

func (r *Registry) appendHistoryLocked(e HistoryEvent) {
	r.history = append(r.history, e)
	if len(r.history) > maxHistory {
		r.history = append(r.history[:0], r.history[len(r.history)-trimHistory:]...)
	}
}
