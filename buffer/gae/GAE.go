// Package gae implements generalized advantage estimation - GAE(λ) -
// following https://arxiv.org/abs/1506.02438
package gae

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Estimate computes GAE(λ) advantages and λ-returns for a single
// trajectory segment collected in one environment.
//
// The rewards, values, and dones arguments are aligned by timestep and
// must have equal length T. The bootstrap argument is v(s_T), the value
// estimate of the state following the last stored state. It stands in
// for the unknown return-to-go when the segment was cut off in the
// middle of an episode. A done flag at timestep t stops the backward
// recursion, so nothing after an episode boundary leaks into the
// advantages before it.
//
// For each t in T-1, ..., 0:
//
//	mask   = 0 if done[t] else 1
//	δ      = r[t] + ℽ v[t+1] mask - v[t]
//	A[t]   = δ + ℽ λ mask A[t+1]
//	ret[t] = A[t] + v[t]
func Estimate(rewards, values []float64, dones []bool, bootstrap, gamma,
	lambda float64) (advantages, returns []float64) {
	if len(rewards) != len(values) || len(rewards) != len(dones) {
		panic(fmt.Sprintf("estimate: misaligned trajectory "+
			"\n\trewards(%d)\n\tvalues(%d)\n\tdones(%d)", len(rewards),
			len(values), len(dones)))
	}

	steps := len(rewards)
	advantages = make([]float64, steps)

	nextValue := bootstrap
	nextAdvantage := 0.0
	for t := steps - 1; t >= 0; t-- {
		mask := 1.0
		if dones[t] {
			mask = 0.0
		}

		delta := rewards[t] + gamma*nextValue*mask - values[t]
		advantages[t] = delta + gamma*lambda*mask*nextAdvantage

		nextValue = values[t]
		nextAdvantage = advantages[t]
	}

	returns = floats.AddTo(make([]float64, steps), advantages, values)
	return advantages, returns
}
