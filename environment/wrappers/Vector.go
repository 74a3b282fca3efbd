// Package wrappers implements wrappers around environments
package wrappers

import (
	"fmt"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/samuelfneumann/goppg/environment"
)

// Vector runs a number of copies of an environment with discrete,
// one-dimensional actions in lockstep. Copies that end an episode are
// reset automatically, so that a Vector never has to be reset once
// started.
//
// Vector implements the environment.Vectorized interface.
type Vector struct {
	envs     []environment.Environment
	obs      *mat.Dense
	features int

	returns  []float64
	lengths  []int
	episodes []environment.Episode
}

// NewVector returns a new Vector running the argument environments.
// All environments must share their observation and action shapes.
func NewVector(envs ...environment.Environment) (*Vector, error) {
	if len(envs) == 0 {
		return nil, errors.New("newVector: at least one environment needed")
	}

	features := envs[0].ObservationSpec().Shape.Len()
	numActions, err := envs[0].ActionSpec().NumActions()
	if err != nil {
		return nil, errors.Wrap(err, "newVector")
	}

	for i, e := range envs[1:] {
		n, err := e.ActionSpec().NumActions()
		if err != nil {
			return nil, errors.Wrapf(err, "newVector: environment %d", i+1)
		}
		if f := e.ObservationSpec().Shape.Len(); f != features ||
			n != numActions {
			return nil, errors.Errorf("newVector: environment %d has "+
				"shape (%d, %d) \n\twant(%d, %d)", i+1, f, n, features,
				numActions)
		}
	}

	v := &Vector{
		envs:     envs,
		obs:      mat.NewDense(len(envs), features, nil),
		features: features,
		returns:  make([]float64, len(envs)),
		lengths:  make([]int, len(envs)),
	}
	v.Reset()
	return v, nil
}

// NumEnvs returns the number of environments run by the Vector
func (v *Vector) NumEnvs() int { return len(v.envs) }

// Reset resets all environments and returns their first observations
func (v *Vector) Reset() *mat.Dense {
	for i, e := range v.envs {
		step := e.Reset()
		v.obs.SetRow(i, step.Observation.RawVector().Data)
		v.returns[i] = 0
		v.lengths[i] = 0
	}
	v.episodes = nil
	return v.Observations()
}

// Step takes actions[i] in environment i. Row i of next is the
// observation environment i reached, even if the step ended the
// episode and the environment was then reset.
func (v *Vector) Step(actions []int) (next *mat.Dense, rewards []float64,
	dones []bool) {
	if len(actions) != len(v.envs) {
		panic(fmt.Sprintf("step: need one action per environment"+
			"\n\twant(%d)\n\thave(%d)", len(v.envs), len(actions)))
	}

	next = mat.NewDense(len(v.envs), v.features, nil)
	rewards = make([]float64, len(v.envs))
	dones = make([]bool, len(v.envs))

	action := mat.NewVecDense(1, nil)
	for i, e := range v.envs {
		action.SetVec(0, float64(actions[i]))
		step, last := e.Step(action)

		next.SetRow(i, step.Observation.RawVector().Data)
		rewards[i] = step.Reward
		dones[i] = last

		v.returns[i] += step.Reward
		v.lengths[i]++
		if !last {
			v.obs.SetRow(i, step.Observation.RawVector().Data)
			continue
		}

		v.episodes = append(v.episodes, environment.Episode{
			Return: v.returns[i],
			Length: v.lengths[i],
		})
		v.returns[i], v.lengths[i] = 0, 0

		start := e.Reset()
		v.obs.SetRow(i, start.Observation.RawVector().Data)
	}
	return next, rewards, dones
}

// Observations returns a copy of the current observations
func (v *Vector) Observations() *mat.Dense {
	return mat.DenseCopyOf(v.obs)
}

// Episodes returns the episodes completed since the last call
func (v *Vector) Episodes() []environment.Episode {
	episodes := v.episodes
	v.episodes = nil
	return episodes
}

// ObservationSpec returns the observation specification of the wrapped
// environments
func (v *Vector) ObservationSpec() environment.Spec {
	return v.envs[0].ObservationSpec()
}

// ActionSpec returns the action specification of the wrapped
// environments
func (v *Vector) ActionSpec() environment.Spec {
	return v.envs[0].ActionSpec()
}
