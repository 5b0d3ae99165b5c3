package golden

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/mindforge-ai/mindforge/internal/mab"
	"github.com/mindforge-ai/mindforge/internal/paths"
)

func newTestRegistry(cfg Config) *Registry {
	return NewRegistry(cfg, zerolog.Nop())
}

// eligibleArm has a 95% success rate over 40 samples with a clean tail.
func eligibleArm(sid string) mab.Arm {
	arm := mab.Arm{
		StrategyID:      sid,
		SuccessCount:    38,
		FailureCount:    2,
		ActivationCount: 40,
	}
	for i := 0; i < 40; i++ {
		arm.RecentResults = append(arm.RecentResults, i >= 2)
	}
	return arm
}

func TestPromotionOnEligibleArm(t *testing.T) {
	r := newTestRegistry(Config{})
	r.Observe(paths.ReasoningPath{
		StrategyID:  "systematic_analytical",
		PathType:    "analytical",
		Description: "break the problem into parts and analyze each",
	})

	r.AfterUpdate(eligibleArm("systematic_analytical"))

	require.True(t, r.IsGolden("systematic_analytical"))
	tmpl := r.Templates()["systematic_analytical"]
	require.Equal(t, "analytical", tmpl.PathType)
	require.InDelta(t, 0.95, tmpl.SuccessRate, 1e-9)
	require.InDelta(t, 1.0, tmpl.StabilityScore, 1e-9)

	hist := r.History()
	require.Len(t, hist, 1)
	require.Equal(t, "promoted", hist[0].Type)
}

func TestNoPromotionWhenIneligible(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*mab.Arm)
	}{
		{"success rate below threshold", func(a *mab.Arm) {
			a.SuccessCount = 20
			a.FailureCount = 20
		}},
		{"too few activations", func(a *mab.Arm) {
			a.ActivationCount = 5
		}},
		{"unstable tail", func(a *mab.Arm) {
			// Four failures in the last ten results.
			n := len(a.RecentResults)
			for i := n - 4; i < n; i++ {
				a.RecentResults[i] = false
			}
		}},
		{"no recent results yet", func(a *mab.Arm) {
			a.RecentResults = nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry(Config{})
			arm := eligibleArm("candidate")
			tt.mutate(&arm)
			r.AfterUpdate(arm)
			require.False(t, r.IsGolden("candidate"))
		})
	}
}

func TestAfterUpdateRefreshesExistingTemplate(t *testing.T) {
	r := newTestRegistry(Config{})
	r.AfterUpdate(eligibleArm("stable"))
	require.True(t, r.IsGolden("stable"))

	// A later update with a worse record refreshes the snapshot but never
	// promotes twice.
	arm := eligibleArm("stable")
	arm.SuccessCount = 30
	arm.FailureCount = 10
	r.AfterUpdate(arm)

	require.InDelta(t, 0.75, r.Templates()["stable"].SuccessRate, 1e-9)
	require.Len(t, r.History(), 1)
}

func TestMatchBestFastPath(t *testing.T) {
	r := newTestRegistry(Config{})
	desc := "verify every claim against independent evidence"
	r.Observe(paths.ReasoningPath{
		StrategyID:  "critical_verification",
		PathType:    "verification",
		Description: desc,
	})
	r.AfterUpdate(eligibleArm("critical_verification"))

	candidates := []paths.ReasoningPath{
		{StrategyID: "exploratory_search", PathType: "exploratory", Description: "search widely"},
		{StrategyID: "critical_verification", InstanceID: "cv_1", PathType: "verification", Description: desc},
	}
	got, ok := r.MatchBest(candidates)
	require.True(t, ok)
	require.Equal(t, "critical_verification", got.StrategyID)
	require.Equal(t, 1, r.Templates()["critical_verification"].UsageAsTemplate)
}

func TestMatchBestRejectsWeakMatches(t *testing.T) {
	r := newTestRegistry(Config{})
	r.Observe(paths.ReasoningPath{
		StrategyID:  "practical_direct",
		PathType:    "direct",
		Description: "answer directly from what is known",
	})
	r.AfterUpdate(eligibleArm("practical_direct"))

	_, ok := r.MatchBest([]paths.ReasoningPath{
		{StrategyID: "creative_synthesis", PathType: "creative", Description: "combine distant ideas"},
	})
	require.False(t, ok)
	require.Equal(t, 0, r.Templates()["practical_direct"].UsageAsTemplate)
}

func TestMatchBestEmptyRegistry(t *testing.T) {
	r := newTestRegistry(Config{})
	_, ok := r.MatchBest([]paths.ReasoningPath{{StrategyID: "anything"}})
	require.False(t, ok)
}

func TestRevoke(t *testing.T) {
	r := newTestRegistry(Config{})
	r.AfterUpdate(eligibleArm("doomed"))
	require.True(t, r.IsGolden("doomed"))

	require.True(t, r.Revoke("doomed", "manual review"))
	require.False(t, r.IsGolden("doomed"))
	require.False(t, r.Revoke("doomed", "again"))

	hist := r.History()
	require.Equal(t, "revoked", hist[len(hist)-1].Type)
	require.Equal(t, "manual review", hist[len(hist)-1].Reason)
}

func TestForcePromoteBypassesPredicate(t *testing.T) {
	r := newTestRegistry(Config{})
	arm := mab.Arm{StrategyID: "novice", SuccessCount: 1, FailureCount: 1, ActivationCount: 2}
	r.AfterUpdate(arm)
	require.False(t, r.IsGolden("novice"))

	r.ForcePromote(arm, "operator override")
	require.True(t, r.IsGolden("novice"))

	hist := r.History()
	require.Equal(t, "force_promoted", hist[len(hist)-1].Type)
	require.Equal(t, "operator override", hist[len(hist)-1].Reason)
}

func TestEvictionAtCapacity(t *testing.T) {
	r := newTestRegistry(Config{MaxTemplates: 2})
	for i := 0; i < 3; i++ {
		r.ForcePromote(eligibleArm(fmt.Sprintf("strategy_%d", i)), "")
	}
	require.Equal(t, 2, r.Count())

	evictions := 0
	for _, e := range r.History() {
		if e.Type == "evicted" {
			evictions++
		}
	}
	require.Equal(t, 1, evictions)
}

func TestRestoreRoundTrip(t *testing.T) {
	r := newTestRegistry(Config{})
	r.AfterUpdate(eligibleArm("persisted"))
	saved := r.Templates()

	fresh := newTestRegistry(Config{})
	fresh.Restore(saved)
	require.True(t, fresh.IsGolden("persisted"))
	require.Equal(t, saved["persisted"].SuccessRate, fresh.Templates()["persisted"].SuccessRate)
}

func TestRecencyDecay(t *testing.T) {
	now := time.Now()
	require.InDelta(t, 1.0, recency(now, now), 1e-9)
	require.InDelta(t, 1.0, recency(now.Add(-12*time.Hour), now), 1e-9)
	require.InDelta(t, 0.0, recency(now.Add(-8*24*time.Hour), now), 1e-9)

	mid := recency(now.Add(-4*24*time.Hour), now)
	require.Greater(t, mid, 0.0)
	require.Less(t, mid, 1.0)
}

func TestJaccard(t *testing.T) {
	require.InDelta(t, 1.0, jaccard("analyze the problem carefully", "analyze the problem carefully"), 1e-9)
	require.InDelta(t, 0.0, jaccard("alpha bravo", "charlie delta"), 1e-9)
	require.Equal(t, 0.0, jaccard("", "something here"))
}
