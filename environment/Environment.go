// Package environment outlines the interfaces and structs needed to
// implement concrete environments and to run them in parallel.
package environment

import (
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goppg/timestep"
)

// Starter implements a distribution of starting states and samples starting
// states for environments
type Starter interface {
	Start() *mat.VecDense
}

// Ender determines when episodes end
type Ender interface {
	// End returns whether the episode should end at the argument
	// TimeStep. If so, the TimeStep is marked as the last of its
	// episode.
	End(*timestep.TimeStep) bool
}

// Task implements the reward scheme and episode ends for taking
// actions in some environment
type Task interface {
	Starter
	Ender
	GetReward(state, action, nextState mat.Vector) float64
	RewardSpec() Spec
}

// Environment implements a simulated environment, which includes a
// Task to complete
type Environment interface {
	Task
	Reset() timestep.TimeStep
	Step(action *mat.VecDense) (timestep.TimeStep, bool)
	DiscountSpec() Spec
	ObservationSpec() Spec
	ActionSpec() Spec
}

// Episode summarizes a completed episode
type Episode struct {
	Return float64
	Length int
}

// Vectorized runs a number of copies of an environment with discrete
// actions in lockstep. Environments that end an episode are reset
// automatically. Row i of each matrix and element i of each slice
// belongs to environment i.
type Vectorized interface {
	NumEnvs() int

	// Reset resets all environments, returning their observations
	Reset() *mat.Dense

	// Step takes one action in each environment, returning the
	// observations reached, the rewards, and whether each environment
	// ended its episode.
	Step(actions []int) (next *mat.Dense, rewards []float64, dones []bool)

	// Observations returns the current observation of each environment,
	// which is the first observation of a new episode for environments
	// that were reset by the last call to Step.
	Observations() *mat.Dense

	// Episodes returns the episodes completed since the last call to
	// Episodes
	Episodes() []Episode

	ObservationSpec() Spec
	ActionSpec() Spec
}
