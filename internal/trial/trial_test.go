package trial

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/paths"
)

type fakeStore struct {
	mu      sync.Mutex
	arms    map[string]mab.Arm
	removed []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{arms: make(map[string]mab.Arm)}
}

func (f *fakeStore) Remove(strategyID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.arms, strategyID)
	f.removed = append(f.removed, strategyID)
}

func (f *fakeStore) Arms() map[string]mab.Arm {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]mab.Arm, len(f.arms))
	for sid, arm := range f.arms {
		out[sid] = arm
	}
	return out
}

func newTestGround(store ArmStore, isGolden func(string) bool) *Ground {
	return NewGround(Config{}, store, isGolden, zerolog.Nop())
}

func failingArm(sid string, wins, losses, consecutive int) mab.Arm {
	return mab.Arm{
		StrategyID:          sid,
		SuccessCount:        wins,
		FailureCount:        losses,
		ConsecutiveFailures: consecutive,
	}
}

func TestBoostDecaysWithSelections(t *testing.T) {
	g := newTestGround(newFakeStore(), nil)
	g.OnArmCreated("fresh_idea", paths.SourceLearnedExploration)

	require.InDelta(t, 1.20, g.Boost("fresh_idea"), 1e-9)
	require.True(t, g.HasActiveBoost("fresh_idea"))

	for i := 0; i < 5; i++ {
		g.NoteSelection("fresh_idea")
	}
	require.InDelta(t, 1.125, g.Boost("fresh_idea"), 1e-9)

	for i := 0; i < 5; i++ {
		g.NoteSelection("fresh_idea")
	}
	// Budget exhausted; only the permanent learned bonus remains.
	require.InDelta(t, 1.05, g.Boost("fresh_idea"), 1e-9)
	require.False(t, g.HasActiveBoost("fresh_idea"))
}

func TestManualAdditionGetsDecayingBoostOnly(t *testing.T) {
	g := newTestGround(newFakeStore(), nil)
	g.OnArmCreated("handmade", paths.SourceManualAddition)

	require.InDelta(t, 1.15, g.Boost("handmade"), 1e-9)
	for i := 0; i < 10; i++ {
		g.NoteSelection("handmade")
	}
	require.InDelta(t, 1.0, g.Boost("handmade"), 1e-9)
}

func TestStaticSourceGetsNoBoost(t *testing.T) {
	g := newTestGround(newFakeStore(), nil)
	g.OnArmCreated("stock", paths.SourceStaticTemplate)
	require.InDelta(t, 1.0, g.Boost("stock"), 1e-9)
	require.False(t, g.HasActiveBoost("stock"))
}

func TestWatchlistAddAndRecover(t *testing.T) {
	g := newTestGround(newFakeStore(), nil)

	g.AfterUpdate(failingArm("shaky", 4, 16, 2))
	require.Len(t, g.Watchlist(), 1)

	// Recovery needs margin above the threshold.
	g.AfterUpdate(failingArm("shaky", 10, 20, 0))
	require.Len(t, g.Watchlist(), 0)
}

func TestConsecutiveFailuresCullImmediately(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)

	g.AfterUpdate(failingArm("broken", 0, 10, 10))

	require.Equal(t, []string{"broken"}, store.removed)
	hist := g.CulledHistory()
	require.Len(t, hist, 1)
	require.Equal(t, "consecutive_failures", hist[0].Reason)
}

func TestLearnedProtectionWindowBlocksRateCulling(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)
	g.OnArmCreated("newborn", paths.SourceLearnedExploration)

	// Terrible rate, but inside the protection window.
	g.AfterUpdate(failingArm("newborn", 2, 28, 3))
	require.Empty(t, store.removed)

	// Two hours later the severe-underperformance rule applies.
	g.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	g.AfterUpdate(failingArm("newborn", 2, 28, 3))
	require.Equal(t, []string{"newborn"}, store.removed)
	require.Equal(t, "severe_underperformance", g.CulledHistory()[0].Reason)
}

func TestSustainedUnderperformanceNeedsWatchDuration(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)

	arm := failingArm("laggard", 3, 27, 1)
	g.AfterUpdate(arm)
	require.Empty(t, store.removed)
	require.Len(t, g.Watchlist(), 1)

	g.now = func() time.Time { return time.Now().Add(45 * time.Minute) }
	g.AfterUpdate(arm)
	require.Equal(t, []string{"laggard"}, store.removed)
	require.Equal(t, "sustained_underperformance", g.CulledHistory()[0].Reason)
}

func TestPersistentMediocrityCull(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)

	// Just under threshold over many samples, never bad enough to watch
	// long, but too mediocre to keep.
	g.AfterUpdate(failingArm("mediocre", 13, 47, 1))
	require.Equal(t, []string{"mediocre"}, store.removed)
	require.Equal(t, "persistent_mediocrity", g.CulledHistory()[0].Reason)
}

func TestGoldenTemplatesAreNeverCulled(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, func(sid string) bool { return sid == "sacred" })

	g.AfterUpdate(failingArm("sacred", 0, 30, 15))
	require.Empty(t, store.removed)
	require.Empty(t, g.Watchlist())
}

func TestMaintainSweepsStoredArms(t *testing.T) {
	store := newFakeStore()
	store.arms["fine"] = failingArm("fine", 18, 2, 0)
	store.arms["doomed"] = failingArm("doomed", 0, 12, 12)
	g := newTestGround(store, nil)

	culled := g.Maintain()
	require.Equal(t, 1, culled)
	require.Equal(t, []string{"doomed"}, store.removed)

	_, fineLeft := store.Arms()["fine"]
	require.True(t, fineLeft)
}

func TestCullClearsBoostAndLearnedState(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)
	g.OnArmCreated("loser", paths.SourceLearnedExploration)
	require.True(t, g.HasActiveBoost("loser"))

	g.AfterUpdate(failingArm("loser", 0, 10, 10))

	require.False(t, g.HasActiveBoost("loser"))
	require.InDelta(t, 1.0, g.Boost("loser"), 1e-9)
	require.Equal(t, 0, g.Stats().LearnedPaths)
}

func TestExportRestoreRoundTrip(t *testing.T) {
	g := newTestGround(newFakeStore(), nil)
	g.OnArmCreated("survivor", paths.SourceLearnedExploration)
	g.NoteSelection("survivor")
	meta := g.Export()

	fresh := newTestGround(newFakeStore(), nil)
	fresh.Restore(meta)

	require.InDelta(t, g.Boost("survivor"), fresh.Boost("survivor"), 1e-9)
	require.True(t, fresh.HasActiveBoost("survivor"))
	require.Equal(t, 1, fresh.Stats().LearnedPaths)
}

func TestStats(t *testing.T) {
	store := newFakeStore()
	g := newTestGround(store, nil)
	g.OnArmCreated("a", paths.SourceLearnedExploration)
	g.OnArmCreated("b", paths.SourceManualAddition)
	g.AfterUpdate(failingArm("c", 2, 18, 1))

	s := g.Stats()
	require.Equal(t, 1, s.LearnedPaths)
	require.Equal(t, 2, s.ActiveBoosts)
	require.Equal(t, 1, s.Watched)
	require.Equal(t, 0, s.CulledTotal)
}
