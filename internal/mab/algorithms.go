package mab

import "math"

// scoreEpsilon is the float tolerance for tie detection.
const scoreEpsilon = 1e-12

// selectThompsonLocked samples Beta(success+1, failure+1) per arm, blends in
// reward history, applies the exploration boost and the usage penalty.
// Ties break by uniform random draw.
func (s *Selector) selectThompsonLocked(sids []string) (string, float64) {
	bestScore := math.Inf(-1)
	var winners []string

	for _, sid := range sids {
		arm := s.arms[sid]

		x := sampleBeta(s.rng, float64(arm.SuccessCount+1), float64(arm.FailureCount+1))
		if len(arm.RewardHistory) > 0 {
			x = 0.8*x + 0.2*normalizeReward(arm.meanRewardHistory())
		}
		x *= s.boostFor(sid)
		x -= math.Min(0.1, 0.2*float64(arm.ActivationCount)/float64(s.totalSelections+1))

		switch {
		case x > bestScore+scoreEpsilon:
			bestScore = x
			winners = winners[:0]
			winners = append(winners, sid)
		case math.Abs(x-bestScore) <= scoreEpsilon:
			winners = append(winners, sid)
		}
	}

	if len(winners) == 1 {
		return winners[0], bestScore
	}
	return winners[s.rng.Intn(len(winners))], bestScore
}

// selectUCBLocked plays untried arms first (preferring boosted ones), then
// maximizes base*boost + 1.2*sqrt(2 ln N / n_i). sids arrive sorted, so
// strict comparisons give the lexicographic tie-break.
func (s *Selector) selectUCBLocked(sids []string) (string, float64) {
	var untried []string
	for _, sid := range sids {
		if s.arms[sid].ActivationCount == 0 {
			untried = append(untried, sid)
		}
	}
	if len(untried) > 0 {
		best := untried[0]
		bestBoost := s.boostFor(best)
		for _, sid := range untried[1:] {
			if b := s.boostFor(sid); b > bestBoost+scoreEpsilon {
				best, bestBoost = sid, b
			}
		}
		return best, bestBoost
	}

	n := float64(s.totalSelections)
	if n < 1 {
		n = 1
	}

	bestScore := math.Inf(-1)
	best := sids[0]
	for _, sid := range sids {
		arm := s.arms[sid]

		blend := 0.5
		if len(arm.RewardHistory) > 0 {
			blend = normalizeReward(arm.meanRewardHistory())
		}
		base := 0.7*arm.SuccessRate() + 0.3*blend

		// The boost multiplies the base value only; the confidence term
		// is added afterwards.
		score := base*s.boostFor(sid) + 1.2*math.Sqrt(2*math.Log(n)/float64(arm.ActivationCount))
		if score > bestScore+scoreEpsilon {
			bestScore = score
			best = sid
		}
	}
	return best, bestScore
}

// selectEpsilonGreedyLocked keeps exploring after convergence: epsilon
// shrinks with total activations but never below 0.1, and grows when any
// candidate still carries an active boost.
func (s *Selector) selectEpsilonGreedyLocked(sids []string) (string, float64) {
	// Golden rounds aside, each selection bumps exactly one arm's
	// activation, so totalSelections tracks the summed activation counts
	// and serves as the decay clock.
	eps := math.Max(0.1, 0.4/(1+0.008*float64(s.totalSelections)))

	var boosted []string
	for _, sid := range sids {
		if s.hasActiveBoost(sid) {
			boosted = append(boosted, sid)
		}
	}
	if len(boosted) > 0 {
		eps = math.Min(0.6, 1.3*eps)
	}

	if s.rng.Float64() < eps {
		if len(boosted) > 0 && s.rng.Float64() < 0.7 {
			return boosted[s.rng.Intn(len(boosted))], eps
		}
		return sids[s.rng.Intn(len(sids))], eps
	}

	bestScore := math.Inf(-1)
	best := sids[0]
	for _, sid := range sids {
		arm := s.arms[sid]

		blend := 0.5
		if len(arm.RewardHistory) > 0 {
			blend = normalizeReward(arm.meanRewardHistory())
		}
		score := 0.7*arm.SuccessRate() + 0.3*blend + 0.1*(s.boostFor(sid)-1)
		if score > bestScore+scoreEpsilon {
			bestScore = score
			best = sid
		}
	}
	return best, bestScore
}
