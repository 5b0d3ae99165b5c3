// Package mab implements the multi-armed bandit strategy selector: one arm
// per strategy family, Thompson / UCB / epsilon-greedy selection with
// automatic algorithm choice, warm starts for learned strategies, and
// convergence detection over arm success rates.
package mab

import (
	"time"

	"github.com/mindforge-ai/mindforge/internal/paths"
)

// Buffer bounds. On overflow each buffer trims to half its cap.
const (
	maxRecentRewards  = 20
	trimRecentRewards = 10
	maxRecentResults  = 50
	trimRecentResults = 25
	maxRewardHistory  = 50
	trimRewardHistory = 25
)

// FeedbackSource identifies where a performance update came from. Sources
// are weighted differently when folding rewards into an arm.
type FeedbackSource string

const (
	SourceRetrospection    FeedbackSource = "retrospection"
	SourceUserFeedback     FeedbackSource = "user_feedback"
	SourceAutoEvaluation   FeedbackSource = "auto_evaluation"
	SourceToolVerification FeedbackSource = "tool_verification"
)

// Arm is the per-strategy state bundle the bandit learns on.
type Arm struct {
	StrategyID string `json:"strategy_id"`

	SuccessCount    int     `json:"success_count"`
	FailureCount    int     `json:"failure_count"`
	TotalReward     float64 `json:"total_reward"`
	ActivationCount int     `json:"activation_count"`

	ConsecutiveFailures int `json:"consecutive_failures"`

	RecentRewards []float64 `json:"recent_rewards"`
	RecentResults []bool    `json:"recent_results"`
	RewardHistory []float64 `json:"reward_history"`

	Source    paths.LearningSource `json:"source"`
	CreatedAt time.Time            `json:"created_at"`
	LastUsed  time.Time            `json:"last_used"`
}

// SuccessRate is success_count / max(1, success+failure).
func (a *Arm) SuccessRate() float64 {
	total := a.SuccessCount + a.FailureCount
	if total == 0 {
		return 0
	}
	return float64(a.SuccessCount) / float64(total)
}

// Samples is the number of recorded feedback events.
func (a *Arm) Samples() int {
	return a.SuccessCount + a.FailureCount
}

// meanRewardHistory returns the average of reward_history, 0 when empty.
func (a *Arm) meanRewardHistory() float64 {
	if len(a.RewardHistory) == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range a.RewardHistory {
		sum += r
	}
	return sum / float64(len(a.RewardHistory))
}

// normalizeReward maps a reward in [-1, 1] to [0, 1].
func normalizeReward(r float64) float64 {
	n := (r + 1) / 2
	if n < 0 {
		return 0
	}
	if n > 1 {
		return 1
	}
	return n
}

// recordFeedback folds one feedback event into the arm, enforcing the
// buffer bounds.
func (a *Arm) recordFeedback(success bool, adjustedReward float64, now time.Time) {
	if success {
		a.SuccessCount++
		a.ConsecutiveFailures = 0
	} else {
		a.FailureCount++
		a.ConsecutiveFailures++
	}
	a.TotalReward += adjustedReward
	a.LastUsed = now

	a.RecentRewards = appendBoundedFloat(a.RecentRewards, adjustedReward, maxRecentRewards, trimRecentRewards)
	a.RewardHistory = appendBoundedFloat(a.RewardHistory, adjustedReward, maxRewardHistory, trimRewardHistory)
	a.RecentResults = appendBoundedBool(a.RecentResults, success, maxRecentResults, trimRecentResults)
}

// clone copies the arm including its buffers, for hooks and snapshots.
func (a *Arm) clone() Arm {
	c := *a
	c.RecentRewards = append([]float64(nil), a.RecentRewards...)
	c.RecentResults = append([]bool(nil), a.RecentResults...)
	c.RewardHistory = append([]float64(nil), a.RewardHistory...)
	return c
}

func appendBoundedFloat(buf []float64, v float64, max, trimTo int) []float64 {
	buf = append(buf, v)
	if len(buf) > max {
		buf = append(buf[:0], buf[len(buf)-trimTo:]...)
	}
	return buf
}

func appendBoundedBool(buf []bool, v bool, max, trimTo int) []bool {
	buf = append(buf, v)
	if len(buf) > max {
		buf = append(buf[:0], buf[len(buf)-trimTo:]...)
	}
	return buf
}

// sourceAdjustedReward applies the per-source weighting.
func sourceAdjustedReward(source FeedbackSource, success bool, reward float64) float64 {
	switch source {
	case SourceRetrospection:
		adjusted := reward * 0.8
		if success {
			return adjusted + 0.1
		}
		// Keep a small floor so failed exploration still pays a little.
		if adjusted < 0.05 {
			return 0.05
		}
		return adjusted
	case SourceAutoEvaluation:
		return reward * 0.6
	case SourceToolVerification:
		return reward * 0.9
	case SourceUserFeedback:
		return reward
	default:
		return reward
	}
}
